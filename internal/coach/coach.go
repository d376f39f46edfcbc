// Package coach grades a spoken attempt and writes the improvement plan.
//
// Three scorers share the [Scorer] interface and tag their output with a
// [Kind]:
//
//   - [Model] asks a language model for a content-aware grade.
//   - [Unavailable] is used when no model is configured and returns a fixed
//     zero score that tells the operator what to configure.
//   - [Heuristic] grades delivery only (fillers and pace) and never carries a
//     content match score.
//
// Scorers never return errors. A failed or malformed model call produces
// [ErrorFeedback] with the cause attached as a [Failure].
package coach

import (
	"context"
	"fmt"

	"github.com/MrWong99/talk2me/internal/align"
)

// Kind tags which scorer produced a [Feedback].
type Kind string

const (
	KindModel       Kind = "model"
	KindUnavailable Kind = "unavailable"
	KindHeuristic   Kind = "heuristic"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindModel, KindUnavailable, KindHeuristic:
		return true
	}
	return false
}

// Tones produced by the scorers themselves. Model tones are free-form short
// labels such as "Nervous" or "Enthusiastic".
const (
	ToneConfident = "Confident"
	ToneCalm      = "Calm"
	ToneUnknown   = "Unknown"
	ToneError     = "Error"
	ToneSilent    = "Silent"
)

// FailureReason classifies a model scoring failure.
type FailureReason string

const (
	FailureBackend   FailureReason = "backend"
	FailureTimeout   FailureReason = "timeout"
	FailureMalformed FailureReason = "malformed"
)

// Failure records why a model-backed grade degraded to [ErrorFeedback].
type Failure struct {
	Reason FailureReason
	Err    error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("coach: %s: %v", f.Reason, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// Feedback is the grade of one attempt.
type Feedback struct {
	Kind Kind

	// Score is the overall grade, 0-100.
	Score int

	// ContentMatchScore is the 0-100 topic alignment grade. It is nil for
	// heuristic and unavailable feedback, and for model feedback without a
	// topic.
	ContentMatchScore *int

	Tone            string
	ImprovementPlan []string

	// Clarity and Confidence are 0-100 sub-scores.
	Clarity    int
	Confidence int

	// FillerCount is the scorer's filler count, reconciled with the manual
	// count supplied in [Input].
	FillerCount int

	// Failure is set when a model call failed and the fields above hold
	// [ErrorFeedback].
	Failure *Failure
}

// Input is everything a scorer may look at.
type Input struct {
	Transcript string

	// Duration is the recording length in seconds.
	Duration float64

	// WPM is the speaking pace in words per minute.
	WPM float64

	// FillerCount is the manual count from [CountFillers].
	FillerCount int

	// TopicDescription is the expected content. Empty disables content
	// matching.
	TopicDescription string

	// Segments is the alignment of TopicDescription against Transcript.
	Segments []align.Segment

	// AveragePitch is the brightness proxy used for the heuristic tone.
	AveragePitch float64
}

// Scorer grades an attempt.
type Scorer interface {
	Score(ctx context.Context, in Input) Feedback
}

// ErrorFeedback is the grade used when a model call fails.
func ErrorFeedback(in Input, f *Failure) Feedback {
	return Feedback{
		Kind:            KindModel,
		Score:           0,
		Tone:            ToneError,
		ImprovementPlan: []string{"Error generating feedback."},
		FillerCount:     in.FillerCount,
		Failure:         f,
	}
}

// UnavailableTip is the single tip of [Unavailable] feedback.
const UnavailableTip = "Configure the scoring backend (an LLM provider and its API key) to get feedback."

// Unavailable is the scorer used when no model is configured.
type Unavailable struct{}

// Score implements [Scorer].
func (Unavailable) Score(_ context.Context, in Input) Feedback {
	return Feedback{
		Kind:            KindUnavailable,
		Tone:            ToneUnknown,
		ImprovementPlan: []string{UnavailableTip},
		FillerCount:     in.FillerCount,
	}
}

func clamp(v, lo, hi int) int {
	return max(lo, min(hi, v))
}
