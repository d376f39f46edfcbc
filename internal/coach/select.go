package coach

import (
	"fmt"
	"time"

	"github.com/MrWong99/talk2me/pkg/provider/llm"
)

// Mode chooses between model-backed and heuristic scoring.
type Mode string

const (
	// ModeAuto uses the model when one is configured and [Unavailable]
	// otherwise.
	ModeAuto Mode = "auto"

	// ModeHeuristic always uses [Heuristic], even with a model configured.
	ModeHeuristic Mode = "heuristic"
)

// ParseMode validates s. An empty string means [ModeAuto].
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeAuto:
		return ModeAuto, nil
	case ModeHeuristic:
		return ModeHeuristic, nil
	}
	return "", fmt.Errorf("coach: unknown scoring mode %q (want auto or heuristic)", s)
}

// Settings are the tunables [Select] applies to the chosen scorer.
type Settings struct {
	Mode                Mode
	BrightnessThreshold float64
	Timeout             time.Duration
	EnforceWeighting    bool
}

// Select returns the scorer for p and s. p may be nil.
func Select(p llm.Provider, s Settings) Scorer {
	switch {
	case s.Mode == ModeHeuristic:
		return Heuristic{BrightnessThreshold: s.BrightnessThreshold}
	case p == nil:
		return Unavailable{}
	}
	opts := []Option{WithEnforceWeighting(s.EnforceWeighting)}
	if s.Timeout > 0 {
		opts = append(opts, WithTimeout(s.Timeout))
	}
	return NewModel(p, opts...)
}
