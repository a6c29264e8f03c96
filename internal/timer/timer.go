// Package timer provides a named, restartable stopwatch registry used for
// per-phase diagnostics of a query run. Timers are not a correctness
// mechanism; callers log the summary at debug level and move on.
package timer

import (
	"log/slog"
	"sort"
	"time"
)

type entry struct {
	start   time.Time
	end     time.Time
	elapsed time.Duration
	started bool
}

// Registry tracks stopwatches keyed by name. Starting an existing name
// resets it; ending a never-started name is a logged no-op.
//
// A Registry is not safe for concurrent use. Each cursor drives its own
// Registry, so the expected usage is single-threaded.
type Registry struct {
	timers map[string]*entry
	order  []string
	logger *slog.Logger
	now    func() time.Time
}

// NewRegistry returns an empty Registry. A nil logger falls back to
// slog.Default().
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		timers: make(map[string]*entry),
		logger: logger,
		now:    time.Now,
	}
}

// Start begins (or resets) the named timer.
func (r *Registry) Start(name string) {
	e, ok := r.timers[name]
	if !ok {
		e = &entry{}
		r.timers[name] = e
		r.order = append(r.order, name)
	}
	e.start = r.now()
	e.end = e.start
	e.elapsed = 0
	e.started = true
}

// End stops the named timer and returns its elapsed time. Ending a timer
// that was never started is reported and returns zero.
func (r *Registry) End(name string) time.Duration {
	e, ok := r.timers[name]
	if !ok || !e.started {
		r.logger.Warn("timer ended without being started", "timer", name)
		return 0
	}
	e.end = r.now()
	e.elapsed = e.end.Sub(e.start)
	return e.elapsed
}

// Elapsed returns the last recorded elapsed time for the named timer,
// or zero when the timer is unknown.
func (r *Registry) Elapsed(name string) time.Duration {
	e, ok := r.timers[name]
	if !ok {
		return 0
	}
	return e.elapsed
}

// Names returns the timer names in the order they were first started.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// LogSummary emits one debug line per timer, tagged with the job name.
func (r *Registry) LogSummary(jobName string) {
	names := r.Names()
	sort.SliceStable(names, func(i, j int) bool {
		return r.timers[names[i]].start.Before(r.timers[names[j]].start)
	})
	for _, name := range names {
		e := r.timers[name]
		r.logger.Debug("phase timing",
			"job", jobName,
			"phase", name,
			"started_at", e.start.UTC().Format("15:04:05.000"),
			"ended_at", e.end.UTC().Format("15:04:05.000"),
			"elapsed", e.elapsed,
		)
	}
}
