package coach

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/MrWong99/talk2me/internal/align"
	"github.com/MrWong99/talk2me/internal/observe"
	"github.com/MrWong99/talk2me/pkg/provider/llm"
)

const (
	defaultTemperature = 0.2
	defaultMaxTokens   = 600

	// DefaultTimeout bounds one scoring call.
	DefaultTimeout = 30 * time.Second

	contentWeight  = 0.7
	deliveryWeight = 0.3

	// offTopicCeiling is the highest content match score that still counts
	// as off-topic. The overall score is capped at it as well.
	offTopicCeiling = 10

	maxTips = 3
)

const systemPrompt = `You are an expert public-speaking coach. You grade one spoken practice attempt from its verbatim transcript and delivery metrics.

Return a JSON object with exactly these fields:
- "filler_count": integer number of filler words (um, uh, like, you know, ...). Use the provided detected count if it looks accurate.
- "content_match_score": integer 0-100 measuring how well the transcript covers the topic description. Use 0-10 if the content is off-topic or in an unexpected language, 20-50 if it partially matches, and 60 or more only if it is clearly on-topic. Use null when no topic is given.
- "score": integer 0-100. Weight content_match_score 70% and delivery quality (clarity, pace, fillers) 30%. If the content is off-topic, the score must also be 0-10.
- "tone": one short label such as Confident, Nervous, Monotone or Enthusiastic.
- "improvement_plan": list of 2-3 concrete, actionable tips. If the content is off-topic, the first tip must say so.
- "metrics": object with "clarity" (0-100) and "confidence" (0-100).

The transcript may be a placeholder or an error message instead of speech; grade it as off-topic.`

// Option configures a [Model].
type Option func(*Model)

// WithTimeout bounds each model call. Zero or negative disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(m *Model) { m.timeout = d }
}

// WithTemperature sets the sampling temperature. Default: 0.2.
func WithTemperature(t float64) Option {
	return func(m *Model) { m.temperature = t }
}

// WithEnforceWeighting recomputes the overall score in code as 70% content
// match plus 30% delivery (mean of clarity and confidence), capped when the
// content is off-topic, instead of trusting the model's arithmetic.
func WithEnforceWeighting(on bool) Option {
	return func(m *Model) { m.enforceWeighting = on }
}

// Model grades attempts with a language model. It is safe for concurrent use.
type Model struct {
	llm              llm.Provider
	timeout          time.Duration
	temperature      float64
	enforceWeighting bool
}

// NewModel returns a [Model] backed by p.
func NewModel(p llm.Provider, opts ...Option) *Model {
	m := &Model{
		llm:         p,
		timeout:     DefaultTimeout,
		temperature: defaultTemperature,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Score implements [Scorer].
func (m *Model) Score(ctx context.Context, in Input) Feedback {
	callCtx := ctx
	if m.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	log := observe.Logger(ctx)
	resp, err := m.llm.Complete(callCtx, buildRequest(in, m.temperature))
	if err != nil {
		reason := FailureBackend
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			reason = FailureTimeout
		}
		log.Warn("feedback model call failed", "reason", reason, "err", err)
		return ErrorFeedback(in, &Failure{Reason: reason, Err: err})
	}
	if resp == nil {
		return ErrorFeedback(in, &Failure{Reason: FailureMalformed, Err: errors.New("empty response")})
	}

	fb, err := parseFeedback(resp.Content, in)
	if err != nil {
		log.Warn("feedback model returned malformed output", "err", err)
		return ErrorFeedback(in, &Failure{Reason: FailureMalformed, Err: err})
	}
	if m.enforceWeighting {
		applyWeighting(&fb)
	}
	return fb
}

func buildRequest(in Input, temperature float64) llm.CompletionRequest {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Transcript: %q\n", in.Transcript)
	fmt.Fprintf(&sb, "Duration: %.2f seconds\n", in.Duration)
	fmt.Fprintf(&sb, "WPM: %.1f\n", in.WPM)
	fmt.Fprintf(&sb, "Detected Filler Words: %d\n", in.FillerCount)
	if in.TopicDescription == "" {
		sb.WriteString("Topic: none given\n")
	} else {
		fmt.Fprintf(&sb, "Topic: %q\n", in.TopicDescription)
		if len(in.Segments) > 0 {
			fmt.Fprintf(&sb, "Topic words spoken: %.0f%%\n", align.Coverage(in.Segments)*100)
			if missed := spans(in.Segments, align.StatusMissed); missed != "" {
				fmt.Fprintf(&sb, "Topic phrases not spoken: %s\n", missed)
			}
		}
	}

	return llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: sb.String()}},
		Temperature:  temperature,
		MaxTokens:    defaultMaxTokens,
		JSONMode:     true,
	}
}

func spans(segs []align.Segment, st align.Status) string {
	var parts []string
	for _, s := range segs {
		if s.Status == st {
			parts = append(parts, fmt.Sprintf("%q", s.Text))
		}
	}
	return strings.Join(parts, ", ")
}

// modelResponse mirrors the JSON contract of systemPrompt. Numbers are
// floats so "85.0" from a sloppy model still parses.
type modelResponse struct {
	FillerCount       *float64 `json:"filler_count"`
	ContentMatchScore *float64 `json:"content_match_score"`
	Score             *float64 `json:"score"`
	Tone              string   `json:"tone"`
	ImprovementPlan   []string `json:"improvement_plan"`
	Metrics           struct {
		Clarity    *float64 `json:"clarity"`
		Confidence *float64 `json:"confidence"`
	} `json:"metrics"`
}

var errMissingField = errors.New("missing field")

// parseFeedback validates the model output. Any field out of range or
// missing, other than filler_count and content_match_score, is an error.
func parseFeedback(content string, in Input) (Feedback, error) {
	var r modelResponse
	if err := json.Unmarshal([]byte(stripMarkdown(content)), &r); err != nil {
		return Feedback{}, fmt.Errorf("decode: %w", err)
	}

	score, err := percent("score", r.Score)
	if err != nil {
		return Feedback{}, err
	}
	clarity, err := percent("metrics.clarity", r.Metrics.Clarity)
	if err != nil {
		return Feedback{}, err
	}
	confidence, err := percent("metrics.confidence", r.Metrics.Confidence)
	if err != nil {
		return Feedback{}, err
	}

	tone := strings.TrimSpace(r.Tone)
	if tone == "" {
		return Feedback{}, fmt.Errorf("tone: %w", errMissingField)
	}

	var plan []string
	for _, tip := range r.ImprovementPlan {
		if tip = strings.TrimSpace(tip); tip != "" {
			plan = append(plan, tip)
		}
	}
	if len(plan) == 0 {
		return Feedback{}, fmt.Errorf("improvement_plan: %w", errMissingField)
	}
	if len(plan) > maxTips {
		plan = plan[:maxTips]
	}

	fillers := in.FillerCount
	if r.FillerCount != nil {
		if *r.FillerCount < 0 {
			return Feedback{}, fmt.Errorf("filler_count: negative value %v", *r.FillerCount)
		}
		fillers = int(math.Round(*r.FillerCount))
	}

	fb := Feedback{
		Kind:            KindModel,
		Score:           score,
		Tone:            tone,
		ImprovementPlan: plan,
		Clarity:         clarity,
		Confidence:      confidence,
		FillerCount:     fillers,
	}
	if in.TopicDescription != "" && r.ContentMatchScore != nil {
		cms, err := percent("content_match_score", r.ContentMatchScore)
		if err != nil {
			return Feedback{}, err
		}
		fb.ContentMatchScore = &cms
	}
	return fb, nil
}

func percent(field string, v *float64) (int, error) {
	if v == nil {
		return 0, fmt.Errorf("%s: %w", field, errMissingField)
	}
	if *v < 0 || *v > 100 {
		return 0, fmt.Errorf("%s: %v out of range 0-100", field, *v)
	}
	return int(math.Round(*v)), nil
}

func applyWeighting(fb *Feedback) {
	if fb.ContentMatchScore == nil {
		return
	}
	content := *fb.ContentMatchScore
	delivery := float64(fb.Clarity+fb.Confidence) / 2
	score := int(math.Round(contentWeight*float64(content) + deliveryWeight*delivery))
	if content <= offTopicCeiling {
		score = min(score, offTopicCeiling)
	}
	fb.Score = clamp(score, 0, 100)
}

// stripMarkdown removes optional markdown code fences (```json ... ```) that
// some models wrap around JSON output.
func stripMarkdown(s string) string {
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"```json", "```"} {
		if after, ok := strings.CutPrefix(s, prefix); ok {
			s = after
			break
		}
	}
	if before, ok := strings.CutSuffix(s, "```"); ok {
		s = before
	}
	return strings.TrimSpace(s)
}
