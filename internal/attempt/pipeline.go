// Package attempt runs the analysis of one recorded attempt from upload to
// stored result.
//
// [Pipeline.Run] copies the upload into a private temporary file, extracts
// delivery features, stops early on silence, then transcribes, aligns the
// transcript with the topic and scores it. Attempts from known users are
// persisted together with a durable copy of the recording. The temporary
// file is removed on every exit path.
//
// Component failures (undecodable audio, transcription or scoring errors)
// degrade the result but never fail the run. Only a missing user, store
// failures and local I/O errors are returned as errors.
package attempt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/talk2me/internal/align"
	"github.com/MrWong99/talk2me/internal/coach"
	"github.com/MrWong99/talk2me/internal/features"
	"github.com/MrWong99/talk2me/internal/observe"
	"github.com/MrWong99/talk2me/internal/transcribe"
	"github.com/MrWong99/talk2me/pkg/provider/llm"
	"github.com/MrWong99/talk2me/pkg/provider/stt"
)

// TempPrefix starts the name of every temporary upload file.
const TempPrefix = "talk2me-upload-"

// SilentTip is the single tip of a silent result.
const SilentTip = "No speech detected. Please speak louder or check your microphone."

// UserNotFoundMessage is the error text returned to clients for
// [ErrUserNotFound].
const UserNotFoundMessage = "User not found"

// FeatureExtractor computes delivery features of an audio file.
type FeatureExtractor interface {
	Extract(ctx context.Context, path string) features.Result
}

// Tuning holds the analysis knobs that may change while the service runs.
type Tuning struct {
	// SilenceThreshold is the RMS volume below which an attempt is silent.
	SilenceThreshold float64

	// BrightnessThreshold splits Confident from Calm in heuristic scoring.
	BrightnessThreshold float64

	// FillerWords feeds the manual filler count.
	FillerWords []string

	STTTimeout time.Duration
	LLMTimeout time.Duration

	ScoringMode      coach.Mode
	EnforceWeighting bool

	// Language is the transcription language hint.
	Language string
}

// DefaultTuning returns the stock analysis settings.
func DefaultTuning() Tuning {
	return Tuning{
		SilenceThreshold:    0.005,
		BrightnessThreshold: coach.DefaultBrightnessThreshold,
		FillerWords:         append([]string(nil), coach.DefaultFillerWords...),
		STTTimeout:          transcribe.DefaultTimeout,
		LLMTimeout:          coach.DefaultTimeout,
		ScoringMode:         coach.ModeAuto,
	}
}

// Config wires a [Pipeline]. STT, LLM and the stores are optional; a
// pipeline without them runs fully degraded and anonymous-only.
type Config struct {
	Extractor FeatureExtractor

	// STT transcribes recordings. Nil yields the unavailable placeholder.
	STT stt.Provider

	// LLM scores transcripts. Nil selects unavailable or heuristic scoring.
	LLM llm.Provider

	Topics   TopicStore
	Users    UserStore
	Attempts AttemptStore
	Blobs    BlobStore

	// TempDir holds in-flight uploads. Empty means os.TempDir().
	TempDir string

	Tuning Tuning

	// Metrics is optional.
	Metrics *observe.Metrics

	// Now defaults to time.Now.
	Now func() time.Time
}

// Pipeline analyses attempts. It is safe for concurrent use; attempts share
// nothing but the stores.
type Pipeline struct {
	cfg    Config
	tuning atomic.Pointer[Tuning]
}

// New validates cfg and returns a [Pipeline].
func New(cfg Config) (*Pipeline, error) {
	if cfg.Extractor == nil {
		return nil, errors.New("attempt: config: Extractor is required")
	}
	if cfg.Users != nil && (cfg.Attempts == nil || cfg.Blobs == nil) {
		return nil, errors.New("attempt: config: Users requires Attempts and Blobs")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	p := &Pipeline{cfg: cfg}
	p.SetTuning(cfg.Tuning)
	return p, nil
}

// Tuning returns the current analysis settings.
func (p *Pipeline) Tuning() Tuning {
	return *p.tuning.Load()
}

// SetTuning atomically replaces the analysis settings. Attempts already
// running keep the settings they started with. Zero fields take the
// defaults.
func (p *Pipeline) SetTuning(t Tuning) {
	def := DefaultTuning()
	if t.SilenceThreshold <= 0 {
		t.SilenceThreshold = def.SilenceThreshold
	}
	if t.BrightnessThreshold <= 0 {
		t.BrightnessThreshold = def.BrightnessThreshold
	}
	if len(t.FillerWords) == 0 {
		t.FillerWords = def.FillerWords
	}
	if t.STTTimeout <= 0 {
		t.STTTimeout = def.STTTimeout
	}
	if t.LLMTimeout <= 0 {
		t.LLMTimeout = def.LLMTimeout
	}
	if t.ScoringMode == "" {
		t.ScoringMode = def.ScoringMode
	}
	t.FillerWords = append([]string(nil), t.FillerWords...)
	p.tuning.Store(&t)
}

// Request is one submitted attempt.
type Request struct {
	// Audio is the uploaded recording.
	Audio io.Reader

	TopicID int64

	// TopicText, when set, replaces the stored topic description.
	TopicText string

	// UserID is nil for anonymous attempts, which are never persisted.
	UserID *int64
}

// Metrics is the delivery sub-object of a [Response].
type Metrics struct {
	// Pace is the words per minute rounded to one decimal.
	Pace       float64 `json:"pace"`
	Clarity    int     `json:"clarity"`
	Confidence int     `json:"confidence"`
}

// Response is the result of one attempt.
type Response struct {
	// ID is nil for anonymous and silent attempts.
	ID          *int64         `json:"id"`
	Transcript  string         `json:"transcript"`
	Duration    float64        `json:"duration"`
	WPM         float64        `json:"wpm"`
	FillerCount int            `json:"filler_count"`
	Score       int            `json:"score"`
	Metrics     Metrics        `json:"metrics"`
	Feedback    FeedbackRecord `json:"feedback"`
}

// ErrorResponse is the body returned instead of a [Response] when the
// referenced user does not exist.
type ErrorResponse struct {
	Error string `json:"error"`
}

// SilentResponse is the fixed result for a recording without speech.
func SilentResponse(duration float64) *Response {
	return &Response{
		Duration: round(duration, 2),
		Feedback: FeedbackRecord{
			Tone:            coach.ToneSilent,
			ImprovementPlan: []string{SilentTip},
			DiffAnalysis:    []align.Segment{},
		},
	}
}

// Run analyses one attempt. For an unknown user it returns an error
// matching [ErrUserNotFound] and writes nothing.
func (p *Pipeline) Run(ctx context.Context, req Request) (resp *Response, err error) {
	tun := p.Tuning()
	ctx, span := observe.StartSpan(ctx, "attempt.run")
	defer span.End()
	log := observe.Logger(ctx)

	if m := p.cfg.Metrics; m != nil {
		m.AttemptsInFlight.Add(ctx, 1)
		defer m.AttemptsInFlight.Add(ctx, -1)
	}
	outcome := observe.OutcomeFailed
	defer func() {
		if m := p.cfg.Metrics; m != nil {
			m.RecordAttempt(ctx, outcome)
		}
	}()

	// 1. Ingest.
	path, err := p.ingest(ctx, req.Audio)
	if err != nil {
		return nil, err
	}
	defer func() {
		if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			log.Error("failed to remove temporary upload", "path", path, "err", rmErr)
		}
	}()

	// 2. Extract.
	stageCtx, done := observe.Stage(ctx, p.cfg.Metrics, observe.StageExtract)
	feat := p.cfg.Extractor.Extract(stageCtx, path)
	done()
	if !feat.Success {
		log.Warn("continuing without audio features", "reason", feat.Reason, "err", feat.Err)
		feat = features.Failed(feat.Reason, nil)
	}

	// 3. Silence gate. Zeroed features from a failed decode say nothing
	// about loudness.
	if feat.Success && feat.Silent(tun.SilenceThreshold) {
		log.Info("attempt is silent", "volume", feat.AverageVolume, "threshold", tun.SilenceThreshold)
		outcome = observe.OutcomeSilent
		return SilentResponse(feat.Duration), nil
	}

	// 4. Transcribe, looking the topic up meanwhile.
	var (
		tr    transcribe.Result
		topic string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sctx, done := observe.Stage(gctx, p.cfg.Metrics, observe.StageTranscribe)
		defer done()
		tr = transcribe.New(p.cfg.STT,
			transcribe.WithTimeout(tun.STTTimeout),
			transcribe.WithLanguage(tun.Language),
		).Transcribe(sctx, path)
		return nil
	})
	g.Go(func() error {
		topic = p.topicText(gctx, req)
		return nil
	})
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// 5. Delivery metrics.
	text := tr.Text
	words := transcribe.WordCount(text)
	var wpm float64
	if feat.Duration > 0 {
		wpm = float64(words) / feat.Duration * 60
	}
	fillers := coach.CountFillers(text, tun.FillerWords)

	// 6. Align.
	var segs []align.Segment
	if topic != "" {
		_, done := observe.Stage(ctx, p.cfg.Metrics, observe.StageAlign)
		segs = align.Diff(topic, text)
		done()
	}

	// 7. Score.
	scorer := coach.Select(p.cfg.LLM, coach.Settings{
		Mode:                tun.ScoringMode,
		BrightnessThreshold: tun.BrightnessThreshold,
		Timeout:             tun.LLMTimeout,
		EnforceWeighting:    tun.EnforceWeighting,
	})
	sctx, done := observe.Stage(ctx, p.cfg.Metrics, observe.StageScore)
	fb := scorer.Score(sctx, coach.Input{
		Transcript:       text,
		Duration:         feat.Duration,
		WPM:              wpm,
		FillerCount:      fillers,
		TopicDescription: topic,
		Segments:         segs,
		AveragePitch:     feat.AveragePitch,
	})
	done()

	record := newFeedbackRecord(fb, segs)
	resp = &Response{
		Transcript:  text,
		Duration:    round(feat.Duration, 2),
		WPM:         round(wpm, 1),
		FillerCount: fb.FillerCount,
		Score:       clampScore(fb.Score),
		Metrics: Metrics{
			Pace:       round(wpm, 1),
			Clarity:    fb.Clarity,
			Confidence: fb.Confidence,
		},
		Feedback: record,
	}

	// 8. Persist.
	if req.UserID == nil || p.cfg.Users == nil {
		outcome = observe.OutcomeAnonymous
		return resp, nil
	}
	sctx, done = observe.Stage(ctx, p.cfg.Metrics, observe.StagePersist)
	defer done()
	id, err := p.persist(sctx, *req.UserID, req.TopicID, path, wpm, resp, record)
	if errors.Is(err, ErrUserNotFound) {
		outcome = observe.OutcomeUserNotFound
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	resp.ID = &id
	outcome = observe.OutcomeScored
	return resp, nil
}

// ingest copies the upload into a fresh temporary file and returns its path.
func (p *Pipeline) ingest(ctx context.Context, r io.Reader) (string, error) {
	_, done := observe.Stage(ctx, p.cfg.Metrics, observe.StageIngest)
	defer done()

	if r == nil {
		return "", errors.New("attempt: ingest: no audio")
	}
	f, err := os.CreateTemp(p.cfg.TempDir, TempPrefix+"*.webm")
	if err != nil {
		return "", fmt.Errorf("attempt: ingest: %w", err)
	}
	path := f.Name()
	_, copyErr := io.Copy(f, r)
	closeErr := f.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("attempt: ingest: %w", err)
	}
	return path, nil
}

func (p *Pipeline) topicText(ctx context.Context, req Request) string {
	if req.TopicText != "" {
		return req.TopicText
	}
	if p.cfg.Topics == nil {
		return ""
	}
	t, err := p.cfg.Topics.GetTopic(ctx, req.TopicID)
	if err != nil {
		if !errors.Is(err, ErrTopicNotFound) {
			observe.Logger(ctx).Warn("topic lookup failed, skipping content match",
				"topic_id", req.TopicID, "err", err)
		}
		return ""
	}
	return t.Description
}

func (p *Pipeline) persist(ctx context.Context, userID, topicID int64, path string, wpm float64, resp *Response, record FeedbackRecord) (int64, error) {
	if _, err := p.cfg.Users.GetUser(ctx, userID); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return 0, err
		}
		return 0, fmt.Errorf("attempt: get user %d: %w", userID, err)
	}

	feedback, err := EncodeFeedback(record)
	if err != nil {
		return 0, err
	}

	url, err := p.cfg.Blobs.Copy(ctx, path)
	if err != nil {
		return 0, fmt.Errorf("attempt: store audio: %w", err)
	}

	id, err := p.cfg.Attempts.Insert(ctx, &Attempt{
		UserID:      userID,
		TopicID:     topicID,
		AudioURL:    url,
		Transcript:  resp.Transcript,
		WPM:         wpm,
		FillerCount: resp.FillerCount,
		Score:       resp.Score,
		Feedback:    feedback,
		CreatedAt:   p.cfg.Now().UTC(),
	})
	if err != nil {
		if delErr := p.cfg.Blobs.Delete(context.WithoutCancel(ctx), url); delErr != nil {
			observe.Logger(ctx).Error("failed to remove orphaned recording", "url", url, "err", delErr)
		}
		return 0, fmt.Errorf("attempt: insert: %w", err)
	}
	return id, nil
}

func round(v float64, places int) float64 {
	pow := math.Pow(10, float64(places))
	return math.Round(v*pow) / pow
}

func clampScore(s int) int {
	return max(0, min(100, s))
}
