package scorer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFreqScoreIsLog1pOfWeightedFrequency(t *testing.T) {
	assert.InDelta(t, 0.0, freqScore(0), 1e-9)
	assert.InDelta(t, 0.6931471805599453, freqScore(1), 1e-9)
}

func TestRelativePositionWeightPeaksAtStartAndDecaysToZero(t *testing.T) {
	assert.InDelta(t, 1.0, relativePositionWeight(0, 100), 1e-9)
	assert.InDelta(t, 0.0, relativePositionWeight(99, 100), 0.05)
	assert.Equal(t, 0.0, relativePositionWeight(150, 100))
}

func TestAbsolutePositionWeightBuckets(t *testing.T) {
	assert.InDelta(t, 1.0, absolutePositionWeight(0), 1e-9)
	assert.InDelta(t, 0.1, absolutePositionWeight(9), 1e-9)
	assert.InDelta(t, 0.4, absolutePositionWeight(10), 1e-9)
	assert.Equal(t, 0.0, absolutePositionWeight(50))
}

func TestPosScoreFallsBackToAbsoluteWhenDocLengthUnknown(t *testing.T) {
	got := posScore([]int{0}, 0, false)
	assert.InDelta(t, 1.0, got, 1e-9)
}

func TestPosScoreUsesRelativeWeightWhenDocLengthKnown(t *testing.T) {
	got := posScore([]int{0}, 100, true)
	assert.InDelta(t, 1.0, got, 1e-9)
}

func TestPosScoreEmptyPositionsIsZero(t *testing.T) {
	assert.Equal(t, 0.0, posScore(nil, 100, true))
}

func TestTitleBoost(t *testing.T) {
	assert.Equal(t, 2.0, titleBoost(1))
	assert.Equal(t, 1.0, titleBoost(0))
}

func TestMetadataScoreZeroWhenCitationsUnknown(t *testing.T) {
	assert.Equal(t, 0.0, metadataScore(0, false))
}

func TestMetadataScoreLogScalesCitations(t *testing.T) {
	assert.InDelta(t, 0.3*0.6931471805599453, metadataScore(1, true), 1e-9)
}

func TestDateBoostClampsToRange(t *testing.T) {
	assert.Equal(t, 1.0, dateBoost(0, false))
	assert.InDelta(t, 0.5, dateBoost(1900, true), 1e-9)
	assert.InDelta(t, 2.0, dateBoost(2200, true), 1e-9)
	assert.InDelta(t, 1.17, dateBoost(2017, true), 1e-9)
}

func TestScoreCombinesFactorsWithWeightsThenAppliesDateBoost(t *testing.T) {
	w := Weights{Frequency: 1, Position: 0, Title: 0, Metadata: 0}
	in := Input{WeightedFrequency: 1, HasYear: true, Year: 2010}

	got := Score(in, w)
	want := freqScore(1) * dateBoost(2010, true)
	assert.InDelta(t, want, got, 1e-9)
}
