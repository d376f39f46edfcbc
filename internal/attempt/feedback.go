package attempt

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/MrWong99/talk2me/internal/align"
	"github.com/MrWong99/talk2me/internal/coach"
)

// ErrInvalidFeedback is returned by [DecodeFeedback] for stored feedback
// that does not satisfy the record schema.
var ErrInvalidFeedback = errors.New("attempt: invalid feedback record")

// FeedbackRecord is the feedback part of a response and the schema of
// [Attempt.Feedback].
type FeedbackRecord struct {
	// Kind is empty for silent results.
	Kind              coach.Kind      `json:"kind,omitempty"`
	Tone              string          `json:"tone"`
	ImprovementPlan   []string        `json:"improvement_plan"`
	DiffAnalysis      []align.Segment `json:"diff_analysis"`
	ContentMatchScore *int            `json:"content_match_score,omitempty"`
}

func newFeedbackRecord(fb coach.Feedback, segs []align.Segment) FeedbackRecord {
	if segs == nil {
		segs = []align.Segment{}
	}
	plan := fb.ImprovementPlan
	if plan == nil {
		plan = []string{}
	}
	return FeedbackRecord{
		Kind:              fb.Kind,
		Tone:              fb.Tone,
		ImprovementPlan:   plan,
		DiffAnalysis:      segs,
		ContentMatchScore: fb.ContentMatchScore,
	}
}

// Validate checks the record against its schema.
func (r FeedbackRecord) Validate() error {
	var errs []error
	if r.Kind != "" && !r.Kind.Valid() {
		errs = append(errs, fmt.Errorf("unknown kind %q", r.Kind))
	}
	if strings.TrimSpace(r.Tone) == "" {
		errs = append(errs, errors.New("tone is empty"))
	}
	if r.ImprovementPlan == nil {
		errs = append(errs, errors.New("improvement_plan is missing"))
	}
	for i, s := range r.DiffAnalysis {
		if !s.Status.Valid() {
			errs = append(errs, fmt.Errorf("diff_analysis[%d]: unknown status %q", i, s.Status))
		}
	}
	if c := r.ContentMatchScore; c != nil && (*c < 0 || *c > 100) {
		errs = append(errs, fmt.Errorf("content_match_score %d out of range 0-100", *c))
	}
	if r.Kind == coach.KindHeuristic && r.ContentMatchScore != nil {
		errs = append(errs, errors.New("heuristic feedback carries a content_match_score"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidFeedback, errors.Join(errs...))
	}
	return nil
}

// EncodeFeedback validates r and serialises it for storage.
func EncodeFeedback(r FeedbackRecord) ([]byte, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(r)
}

// DecodeFeedback parses and validates a stored feedback record.
func DecodeFeedback(data []byte) (FeedbackRecord, error) {
	var r FeedbackRecord
	if err := json.Unmarshal(data, &r); err != nil {
		return FeedbackRecord{}, fmt.Errorf("%w: %w", ErrInvalidFeedback, err)
	}
	if r.DiffAnalysis == nil {
		r.DiffAnalysis = []align.Segment{}
	}
	if err := r.Validate(); err != nil {
		return FeedbackRecord{}, err
	}
	return r, nil
}
