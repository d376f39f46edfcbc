package coach

import (
	"context"
	"math"
)

// Delivery scoring constants.
const (
	fillerPenalty = 5

	idealPaceMin = 100.0
	idealPaceMax = 150.0

	paceIdealScore = 100
	paceOffScore   = 80

	// DefaultBrightnessThreshold separates a bright (confident) voice from a
	// calm one, in Hz of spectral centroid.
	DefaultBrightnessThreshold = 1000.0
)

// ClarityScore is 100 minus five points per filler, never below zero.
func ClarityScore(fillers int) int {
	return max(0, 100-fillerPenalty*fillers)
}

// PaceScore is 100 inside the 100-150 wpm band and 80 outside it.
func PaceScore(wpm float64) int {
	if IdealPace(wpm) {
		return paceIdealScore
	}
	return paceOffScore
}

// IdealPace reports whether wpm is within the 100-150 wpm band.
func IdealPace(wpm float64) bool {
	return wpm >= idealPaceMin && wpm <= idealPaceMax
}

// Heuristic grades delivery without a model.
type Heuristic struct {
	// BrightnessThreshold overrides [DefaultBrightnessThreshold] when > 0.
	BrightnessThreshold float64
}

// Score implements [Scorer].
func (h Heuristic) Score(_ context.Context, in Input) Feedback {
	threshold := h.BrightnessThreshold
	if threshold <= 0 {
		threshold = DefaultBrightnessThreshold
	}

	clarity := ClarityScore(in.FillerCount)
	pace := PaceScore(in.WPM)
	score := int(math.Round(float64(clarity+pace) / 2))

	tone := ToneCalm
	if in.AveragePitch > threshold {
		tone = ToneConfident
	}

	fillerTip := "Great flow!"
	if in.FillerCount > 0 {
		fillerTip = "Try to reduce filler words."
	}
	paceTip := "Adjust your speaking pace."
	if IdealPace(in.WPM) {
		paceTip = "Your pace is good."
	}

	return Feedback{
		Kind:            KindHeuristic,
		Score:           score,
		Tone:            tone,
		ImprovementPlan: []string{fillerTip, paceTip},
		Clarity:         clarity,
		// Without a model the pace bucket is the only confidence signal.
		Confidence:  pace,
		FillerCount: in.FillerCount,
	}
}
