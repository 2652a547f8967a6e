// Package scorer implements the multi-factor per-(term,doc) ranking
// function (SPEC_FULL.md §4.F), ported formula-for-formula from
// original_source/backend/src/RankingScorer.cpp. Score is a pure
// function: it holds no state, so it is safe to call concurrently from
// every query goroutine without a lock.
package scorer

import "math"

// Weights are the non-negative factor weights combined in Score. They
// are not required to sum to 1.
type Weights struct {
	Frequency float64
	Position  float64
	Title     float64
	Metadata  float64
}

// DefaultWeights matches the values original_source ships with.
func DefaultWeights() Weights {
	return Weights{Frequency: 0.4, Position: 0.2, Title: 0.3, Metadata: 0.1}
}

// Input bundles everything Score needs for one (term, doc) pair.
type Input struct {
	WeightedFrequency int
	TitleFrequency    int
	Positions         []int
	DocLength         int  // 0 means unknown
	HasDocLength      bool // when false, Score falls back to absolute-position bucketing
	Citations         int
	HasCitations      bool
	Year              int
	HasYear           bool
}

// Score computes the ranking contribution of one matched term in one
// document.
func Score(in Input, w Weights) float64 {
	freq := freqScore(in.WeightedFrequency)
	pos := posScore(in.Positions, in.DocLength, in.HasDocLength)
	title := titleBoost(in.TitleFrequency)
	meta := metadataScore(in.Citations, in.HasCitations)
	date := dateBoost(in.Year, in.HasYear)

	return (w.Frequency*freq + w.Position*pos + w.Title*title + w.Metadata*meta) * date
}

func freqScore(weightedFreq int) float64 {
	return math.Log1p(float64(weightedFreq))
}

// posScore averages a piecewise-linear relative-position weight over
// positions when doc length is known; otherwise it falls back to the
// absolute bucketing original_source uses when length is unavailable.
func posScore(positions []int, docLength int, hasDocLength bool) float64 {
	if len(positions) == 0 {
		return 0
	}

	var sum float64
	for _, p := range positions {
		if hasDocLength && docLength > 0 {
			sum += relativePositionWeight(p, docLength)
		} else {
			sum += absolutePositionWeight(p)
		}
	}
	return sum / float64(len(positions))
}

func relativePositionWeight(p, docLength int) float64 {
	r := float64(p) / float64(docLength)
	switch {
	case r < 0.1:
		return 1 - 10*r
	case r < 0.5:
		return 0.2 * (1 - 2.5*(r-0.1))
	case r < 1.0:
		return 0.1 * (1.1 - r)
	default:
		return 0
	}
}

func absolutePositionWeight(p int) float64 {
	switch {
	case p < 10:
		return float64(10-p) * 0.1
	case p < 50:
		return float64(50-p) * 0.01
	default:
		return 0
	}
}

func titleBoost(titleFreq int) float64 {
	if titleFreq > 0 {
		return 2.0
	}
	return 1.0
}

func metadataScore(citations int, hasCitations bool) float64 {
	if !hasCitations {
		return 0
	}
	return 0.3 * math.Log1p(float64(citations))
}

func dateBoost(year int, hasYear bool) float64 {
	if !hasYear {
		return 1.0
	}
	boost := 1 + 0.01*float64(year-2000)
	if boost < 0.5 {
		return 0.5
	}
	if boost > 2.0 {
		return 2.0
	}
	return boost
}
