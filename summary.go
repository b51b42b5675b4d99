package atlastt

import "time"

// RunSummary contains the summary information over an entire run's emitted
// time-tag histograms (`[ADDED]` §4.7, serialised via WriteJSON). Fields
// cover the temporal extent of the run and roll up the totals a reviewer
// would otherwise have to scan the full CSV to find.
//
// Grounded on the teacher's SwathBathySummary: that type describes a swath
// file's (longitude, latitude, depth, time) extent from its first and last
// ping; RunSummary describes the analogous (PCE, MFC, GPS time) extent from
// its first and last emitted period, plus the error and signal rollups
// §4.4.5 requires to be visible at a glance.
type RunSummary struct {
	PCE PCE

	StartGpsTime time.Time
	EndGpsTime   time.Time

	FirstMFC int64
	LastMFC  int64

	PeriodCount int64

	TotalTransmitCount int64
	TotalPktBytes      int64

	TotalMfcErr int64
	TotalHdrErr int64
	TotalFmtErr int64
	TotalDlbErr int64
	TotalTagErr int64
	TotalPktErr int64
	TotalWarn   int64

	MinSignalEnergy float64
	MaxSignalEnergy float64
	AvgSignalEnergy float64

	DroppedEmissions int64
}

// NewRunSummary returns an empty summary for pce; Update folds in emitted
// histograms one at a time as the writer consumes them.
func NewRunSummary(pce PCE) *RunSummary {
	return &RunSummary{PCE: pce}
}

// Update folds one emitted Histogram's GPS time, MFC, and rollup fields
// into the summary (analogous to DecodeSwathBathySummary's first/last-ping
// extent, but accumulated incrementally across a live run rather than
// decoded once from a trailer record).
func (rs *RunSummary) Update(h *Histogram) {
	gps := gpsToTime(h.GpsAtMajorFrame)

	if rs.PeriodCount == 0 || h.MajorFrameCounter < rs.FirstMFC {
		rs.FirstMFC = h.MajorFrameCounter
		if !gps.IsZero() {
			rs.StartGpsTime = gps
		}
	}
	if rs.PeriodCount == 0 || h.MajorFrameCounter > rs.LastMFC {
		rs.LastMFC = h.MajorFrameCounter
		if !gps.IsZero() {
			rs.EndGpsTime = gps
		}
	}

	rs.TotalTransmitCount += int64(h.TransmitCount)
	rs.TotalPktBytes += int64(h.PktBytes)

	rs.TotalMfcErr += h.PktStats.MfcErr
	rs.TotalHdrErr += h.PktStats.HdrErr
	rs.TotalFmtErr += h.PktStats.FmtErr
	rs.TotalDlbErr += h.PktStats.DlbErr
	rs.TotalTagErr += h.PktStats.TagErr
	rs.TotalPktErr += h.PktStats.PktErr
	rs.TotalWarn += h.PktStats.Warnings

	if rs.PeriodCount == 0 || h.SignalEnergy < rs.MinSignalEnergy {
		rs.MinSignalEnergy = h.SignalEnergy
	}
	if rs.PeriodCount == 0 || h.SignalEnergy > rs.MaxSignalEnergy {
		rs.MaxSignalEnergy = h.SignalEnergy
	}
	rs.AvgSignalEnergy = runningAvg(rs.PeriodCount, rs.AvgSignalEnergy, h.SignalEnergy)

	rs.PeriodCount++
}

// gpsToTime converts a GPS-seconds-since-epoch float (as produced by
// AmetToGps) into a wall-clock time.Time, or the zero Time if gps is 0
// (meaning the correlator mapping was invalid for that period, §4.3).
func gpsToTime(gps float64) time.Time {
	if gps == 0 {
		return time.Time{}
	}
	sec := int64(gps)
	nsec := int64((gps - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).UTC()
}
