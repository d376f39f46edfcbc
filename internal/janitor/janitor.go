// Package janitor removes temporary uploads left behind by crashed or killed
// analysis runs.
//
// The pipeline deletes its temporary file on every exit path, so anything
// matching the temp prefix that outlives the maximum age is an orphan.
package janitor

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron"
)

// DefaultInterval is how often the temp dir is swept.
const DefaultInterval = time.Minute

// Janitor sweeps one directory on a schedule.
type Janitor struct {
	dir    string
	prefix string
	maxAge atomic.Int64
	now    func() time.Time

	scheduler *gocron.Scheduler
}

// New returns a [Janitor] for files in dir whose names start with prefix.
// An empty dir means os.TempDir().
func New(dir, prefix string, maxAge time.Duration) *Janitor {
	if dir == "" {
		dir = os.TempDir()
	}
	j := &Janitor{dir: dir, prefix: prefix, now: time.Now}
	j.SetMaxAge(maxAge)
	return j
}

// SetMaxAge changes the age after which a file counts as orphaned. It takes
// effect on the next sweep.
func (j *Janitor) SetMaxAge(d time.Duration) {
	j.maxAge.Store(int64(d))
}

// Start sweeps every interval in the background until [Janitor.Stop].
func (j *Janitor) Start(interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultInterval
	}
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	if _, err := s.Every(interval).Do(j.sweepAndLog); err != nil {
		return fmt.Errorf("janitor: schedule: %w", err)
	}
	s.StartAsync()
	j.scheduler = s
	return nil
}

// Stop halts the schedule. Safe to call without Start.
func (j *Janitor) Stop() {
	if j.scheduler != nil {
		j.scheduler.Stop()
	}
}

func (j *Janitor) sweepAndLog() {
	n, err := j.Sweep()
	if err != nil {
		slog.Warn("janitor: sweep incomplete", "dir", j.dir, "removed", n, "err", err)
		return
	}
	if n > 0 {
		slog.Info("janitor: removed orphaned uploads", "dir", j.dir, "count", n)
	}
}

// Sweep removes matching files older than the maximum age once and returns
// how many it removed.
func (j *Janitor) Sweep() (int, error) {
	entries, err := os.ReadDir(j.dir)
	if err != nil {
		return 0, fmt.Errorf("janitor: read %s: %w", j.dir, err)
	}
	cutoff := j.now().Add(-time.Duration(j.maxAge.Load()))

	var (
		removed int
		errs    []error
	)
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), j.prefix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// Removed between ReadDir and Info.
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(j.dir, e.Name())); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}
