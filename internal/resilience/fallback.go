package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when no backend of a [Group] produced a result.
// The backend errors are joined onto it.
var ErrAllFailed = errors.New("resilience: all backends failed")

// FallbackConfig configures a [Group].
type FallbackConfig struct {
	// Breaker is the template for each backend's breaker; Name is set per
	// backend.
	Breaker BreakerConfig

	// Observer, if set, sees every call that reached a backend, with the
	// backend name and the call's error. Rejected calls are not reported.
	Observer func(backend string, err error)
}

type backend[T any] struct {
	name    string
	p       T
	breaker *Breaker
}

// Group tries a primary backend and then its fallbacks in order. Backends
// are added during setup; calls are safe for concurrent use afterwards.
type Group[T any] struct {
	cfg      FallbackConfig
	backends []backend[T]
}

// NewGroup returns a [Group] whose first backend is primary.
func NewGroup[T any](primary T, name string, cfg FallbackConfig) *Group[T] {
	g := &Group[T]{cfg: cfg}
	g.Add(name, primary)
	return g
}

// Add appends a fallback.
func (g *Group[T]) Add(name string, p T) {
	bc := g.cfg.Breaker
	bc.Name = name
	g.backends = append(g.backends, backend[T]{name: name, p: p, breaker: NewBreaker(bc)})
}

// Names lists the backends in the order they are tried.
func (g *Group[T]) Names() []string {
	out := make([]string, 0, len(g.backends))
	for _, b := range g.backends {
		out = append(out, b.name)
	}
	return out
}

// States reports each backend's breaker state by name.
func (g *Group[T]) States() map[string]State {
	out := make(map[string]State, len(g.backends))
	for _, b := range g.backends {
		out[b.name] = b.breaker.State()
	}
	return out
}

// Call runs fn against the backends of g until one succeeds. An error that
// is the caller's own (cancellation, deadline) ends the search and is
// returned as is. Otherwise the result is [ErrAllFailed] joined with every
// backend error.
func Call[T, R any](g *Group[T], fn func(T) (R, error)) (R, error) {
	var (
		zero R
		errs []error
	)
	for _, b := range g.backends {
		var out R
		err := b.breaker.Do(func() error {
			var err error
			out, err = fn(b.p)
			return err
		})
		if err == nil {
			g.observe(b.name, nil)
			return out, nil
		}
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("backend skipped, circuit open", "backend", b.name)
			errs = append(errs, fmt.Errorf("%s: %w", b.name, err))
			continue
		}
		g.observe(b.name, err)
		if !CountsAsFailure(err) {
			return zero, err
		}
		slog.Warn("backend failed", "backend", b.name, "err", err)
		errs = append(errs, fmt.Errorf("%s: %w", b.name, err))
	}
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, errors.Join(errs...))
}

func (g *Group[T]) observe(name string, err error) {
	if g.cfg.Observer != nil {
		g.cfg.Observer(name, err)
	}
}
