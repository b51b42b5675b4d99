package atlastt

import (
	"github.com/samber/lo"
)

// QualityInfo is a run-level sanity check over the MFCs of one PCE's
// emitted histograms (`[ADDED]`, ambient test tooling). Grounded on the
// teacher's QualityInfo/QInfo (qa.go): that type flags inconsistent beam
// counts and duplicate/coincident ping timestamps across a swath file;
// this adaptation flags the equivalent anomalies across an emitted
// time-tag sequence - duplicate MFCs (the per-PCE analogue of duplicate
// ping timestamps) and inconsistent transmit counts between periods
// (the per-PCE analogue of an inconsistent beam count).
type QualityInfo struct {
	MinMaxTransmitCount [2]int
	ConsistentTransmitCount bool
	DuplicateMFC bool
	DuplicateMFCs []int64
	Monotonic bool
}

// AssessRun computes QualityInfo over a sequence of emitted histograms for
// one PCE, in emission order. Intended for a run's tail-end report, not
// per-period hot-path use.
func AssessRun(histograms []*Histogram) QualityInfo {
	var qa QualityInfo

	if len(histograms) == 0 {
		qa.ConsistentTransmitCount = true
		qa.Monotonic = true
		return qa
	}

	counts := make([]int, len(histograms))
	mfcs := make([]int64, len(histograms))
	for i, h := range histograms {
		counts[i] = h.TransmitCount
		mfcs[i] = h.MajorFrameCounter
	}

	qa.MinMaxTransmitCount = [2]int{lo.Min(counts), lo.Max(counts)}
	qa.ConsistentTransmitCount = qa.MinMaxTransmitCount[0] == qa.MinMaxTransmitCount[1]

	dupMfcs := lo.FindDuplicates(mfcs)
	qa.DuplicateMFC = len(dupMfcs) > 0
	qa.DuplicateMFCs = dupMfcs

	qa.Monotonic = true
	for i := 1; i < len(mfcs); i++ {
		if mfcs[i] < mfcs[i-1] {
			qa.Monotonic = false
			break
		}
	}

	return qa
}
