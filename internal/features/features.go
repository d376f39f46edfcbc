// Package features extracts the delivery signals of a recorded attempt:
// duration, loudness, tempo and a brightness proxy for pitch.
//
// Extraction never fails from the caller's point of view. Every decode or
// processing problem is folded into a [Result] with Success set to false,
// all numeric fields zeroed and a typed [Reason] describing what went wrong.
package features

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math"

	"github.com/MrWong99/talk2me/internal/observe"
	"github.com/MrWong99/talk2me/pkg/audio"
)

// Reason classifies why extraction failed.
type Reason string

const (
	// ReasonNone means extraction succeeded.
	ReasonNone Reason = ""

	// ReasonUnreadable means the file could not be opened or read.
	ReasonUnreadable Reason = "unreadable"

	// ReasonUnsupported means no decoder understood the container or codec.
	ReasonUnsupported Reason = "unsupported"

	// ReasonEmpty means the file decoded to zero samples.
	ReasonEmpty Reason = "empty"

	// ReasonDecode covers every other decoder error, including corrupt data.
	ReasonDecode Reason = "decode"

	// ReasonInvalid means decoding worked but the computed features were not
	// finite numbers.
	ReasonInvalid Reason = "invalid"

	// ReasonCanceled means the context ended before extraction finished.
	ReasonCanceled Reason = "canceled"
)

// Result holds the features of one recording.
type Result struct {
	// Duration in seconds at the native sample rate.
	Duration float64 `json:"duration"`

	// Tempo is a beats-per-minute estimate.
	Tempo float64 `json:"tempo"`

	// AveragePitch is the loudness-weighted spectral-centroid mean in Hz.
	// Treat it as a coarse brightness proxy, not a pitch track.
	AveragePitch float64 `json:"avg_pitch"`

	// AverageVolume is the RMS energy (0..~1). It only feeds the silence gate.
	AverageVolume float64 `json:"avg_volume"`

	Success bool   `json:"success"`
	Reason  Reason `json:"reason,omitempty"`
	Err     string `json:"error,omitempty"`
}

// Failed returns the zeroed result for reason and err.
func Failed(reason Reason, err error) Result {
	r := Result{Reason: reason}
	if err != nil {
		r.Err = err.Error()
	}
	return r
}

// Silent reports whether the recording is below threshold RMS.
func (r Result) Silent(threshold float64) bool {
	return r.AverageVolume < threshold
}

// Extractor decodes audio files and computes their [Result].
type Extractor struct {
	decoder audio.Decoder
}

// New returns an [Extractor] using dec. A nil dec selects a native-only
// [audio.FileDecoder].
func New(dec audio.Decoder) *Extractor {
	if dec == nil {
		dec = audio.NewFileDecoder()
	}
	return &Extractor{decoder: dec}
}

// Extract decodes the file at path and computes its features. It never
// returns an error; check [Result.Success].
func (e *Extractor) Extract(ctx context.Context, path string) (res Result) {
	defer func() {
		// Third-party decoders are fed user uploads.
		if p := recover(); p != nil {
			res = Failed(ReasonDecode, fmt.Errorf("features: decoder panic: %v", p))
			observe.Logger(ctx).Warn("audio decoder panicked", "path", path, "panic", p)
		}
	}()

	clip, err := e.decoder.Decode(ctx, path)
	if err != nil {
		reason := classify(err)
		observe.Logger(ctx).Warn("audio feature extraction failed",
			"path", path, "reason", reason, "err", err)
		return Failed(reason, err)
	}

	f := audio.Analyze(clip)
	for _, v := range []float64{f.Duration, f.Tempo, f.AveragePitch, f.AverageVolume} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Failed(ReasonInvalid, errors.New("features: non-finite feature value"))
		}
	}
	return Result{
		Duration:      f.Duration,
		Tempo:         f.Tempo,
		AveragePitch:  f.AveragePitch,
		AverageVolume: f.AverageVolume,
		Success:       true,
	}
}

func classify(err error) Reason {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ReasonCanceled
	case errors.Is(err, audio.ErrNoSamples):
		return ReasonEmpty
	case errors.Is(err, audio.ErrUnsupportedFormat):
		return ReasonUnsupported
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, fs.ErrPermission):
		return ReasonUnreadable
	default:
		return ReasonDecode
	}
}
