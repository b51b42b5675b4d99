package atlastt

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAssessRunEmptyIsConsistentAndMonotonic(t *testing.T) {
	qa := AssessRun(nil)
	assert.True(t, qa.ConsistentTransmitCount)
	assert.True(t, qa.Monotonic)
	assert.False(t, qa.DuplicateMFC)
}

func TestAssessRunFlagsInconsistentTransmitCount(t *testing.T) {
	histograms := []*Histogram{
		{TransmitCount: 200, MajorFrameCounter: 1},
		{TransmitCount: 150, MajorFrameCounter: 2},
	}
	qa := AssessRun(histograms)
	assert.False(t, qa.ConsistentTransmitCount)
	assert.Equal(t, [2]int{150, 200}, qa.MinMaxTransmitCount)
}

func TestAssessRunFlagsDuplicateMFCs(t *testing.T) {
	histograms := []*Histogram{
		{TransmitCount: 200, MajorFrameCounter: 5},
		{TransmitCount: 200, MajorFrameCounter: 5},
		{TransmitCount: 200, MajorFrameCounter: 6},
	}
	qa := AssessRun(histograms)
	assert.True(t, qa.DuplicateMFC)
	assert.Equal(t, []int64{5}, qa.DuplicateMFCs)
}

func TestAssessRunDetectsNonMonotonicMFCs(t *testing.T) {
	histograms := []*Histogram{
		{MajorFrameCounter: 10},
		{MajorFrameCounter: 5},
	}
	qa := AssessRun(histograms)
	assert.False(t, qa.Monotonic)
}
