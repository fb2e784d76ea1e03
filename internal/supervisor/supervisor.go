// Package supervisor keeps launched workers running.
//
// The launcher itself never watches its workers. With `start --watch` the
// supervisor polls each worker and restarts dead ones with exponential
// backoff, giving up on a worker after a configurable number of consecutive
// failed restarts, or at once when a restart fails with a permanent error.
// A worker counts as recovered only after it has stayed up for the maximum
// backoff, so a worker that crashes right after every restart still runs
// out of attempts.
package supervisor

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/noshadows/soundmachine/internal/config"
	"github.com/noshadows/soundmachine/internal/errors"
	"github.com/noshadows/soundmachine/internal/logging"
	"github.com/noshadows/soundmachine/internal/metrics"
)

// Target is one supervised worker.
type Target interface {
	Name() string
	Alive(ctx context.Context) bool
	Restart(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Status is the supervisor's view of one target.
type Status struct {
	Name        string    `json:"name"`
	Up          bool      `json:"up"`
	Restarts    int       `json:"restarts"`
	Failures    int       `json:"consecutive_failures"`
	GaveUp      bool      `json:"gave_up"`
	NextAttempt time.Time `json:"next_attempt,omitzero"`
}

type targetState struct {
	target      Target
	up          bool
	upSince     time.Time
	restarts    int
	failures    int
	gaveUp      bool
	nextAttempt time.Time
}

// Supervisor polls targets and restarts the dead ones.
type Supervisor struct {
	interval       time.Duration
	initialBackoff time.Duration
	maxBackoff     time.Duration
	maxRestarts    int
	stopOnExit     bool

	logger  *logging.Logger
	metrics metrics.Recorder
	now     func() time.Time

	// checkMu serializes passes; mu guards targets' state and is never held
	// while calling into a target.
	checkMu sync.Mutex
	mu      sync.Mutex
	targets []*targetState
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithConfig applies the supervise section of the configuration.
func WithConfig(cfg config.SuperviseConfig) Option {
	return func(s *Supervisor) {
		s.interval = cfg.Interval()
		s.initialBackoff = cfg.InitialBackoff()
		s.maxBackoff = cfg.MaxBackoff()
		s.maxRestarts = cfg.MaxRestarts
		s.stopOnExit = cfg.StopOnExit
	}
}

// WithInterval sets how often targets are checked.
func WithInterval(d time.Duration) Option {
	return func(s *Supervisor) {
		s.interval = d
	}
}

// WithBackoff sets the first restart delay and its cap.
func WithBackoff(initial, max time.Duration) Option {
	return func(s *Supervisor) {
		s.initialBackoff = initial
		s.maxBackoff = max
	}
}

// WithMaxRestarts gives up on a target after n consecutive failures. Zero
// means never give up.
func WithMaxRestarts(n int) Option {
	return func(s *Supervisor) {
		s.maxRestarts = n
	}
}

// WithStopOnExit stops every target when Run returns.
func WithStopOnExit(stop bool) Option {
	return func(s *Supervisor) {
		s.stopOnExit = stop
	}
}

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(s *Supervisor) {
		s.logger = logger
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(rec metrics.Recorder) Option {
	return func(s *Supervisor) {
		s.metrics = rec
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Supervisor) {
		s.now = now
	}
}

// New creates a Supervisor for targets.
func New(targets []Target, opts ...Option) *Supervisor {
	def := config.Default().Supervise
	s := &Supervisor{
		interval:       def.Interval(),
		initialBackoff: def.InitialBackoff(),
		maxBackoff:     def.MaxBackoff(),
		logger:         logging.NopLogger(),
		metrics:        metrics.Nop(),
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	for _, t := range targets {
		s.targets = append(s.targets, &targetState{target: t, up: true})
	}
	return s
}

// Run checks targets every interval until ctx is done.
func (s *Supervisor) Run(ctx context.Context) error {
	s.logger.Info("supervisor started", "workers", len(s.targets), "interval", s.interval.String())

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return nil
		case <-ticker.C:
			s.Check(ctx)
		}
	}
}

// Check runs one liveness pass over all targets.
func (s *Supervisor) Check(ctx context.Context) {
	s.checkMu.Lock()
	defer s.checkMu.Unlock()

	for _, ts := range s.targets {
		if ctx.Err() != nil {
			return
		}
		s.check(ctx, ts)
	}
}

func (s *Supervisor) check(ctx context.Context, ts *targetState) {
	name := ts.target.Name()
	log := s.logger.WithWorker(name)

	alive := ts.target.Alive(ctx)
	s.metrics.WorkerUp(name, alive)
	now := s.now()

	s.mu.Lock()
	if alive {
		if !ts.up {
			log.Info("worker is up")
			ts.up = true
			ts.upSince = now
		}
		ts.nextAttempt = time.Time{}
		if ts.failures > 0 && now.Sub(ts.upSince) >= s.maxBackoff {
			ts.failures = 0
		}
		s.mu.Unlock()
		return
	}

	if ts.up {
		ts.up = false
		delay := Backoff(ts.failures, s.initialBackoff, s.maxBackoff)
		ts.nextAttempt = now.Add(delay)
		s.mu.Unlock()
		log.Warn("worker is down", "restart_in", delay.String())
		return
	}
	if ts.gaveUp || now.Before(ts.nextAttempt) {
		s.mu.Unlock()
		return
	}
	if s.maxRestarts > 0 && ts.failures >= s.maxRestarts {
		ts.gaveUp = true
		failures := ts.failures
		s.mu.Unlock()
		log.Error("giving up on worker", "consecutive_failures", failures)
		return
	}

	delay := Backoff(ts.failures, s.initialBackoff, s.maxBackoff)
	ts.failures++
	ts.restarts++
	attempt := ts.failures
	s.mu.Unlock()
	s.metrics.WorkerRestart(name, delay)

	err := ts.target.Restart(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	ts.nextAttempt = now.Add(Backoff(attempt, s.initialBackoff, s.maxBackoff))
	switch {
	case err == nil:
		log.Info("worker restarted", "attempt", attempt)
	case errors.IsRetryable(err):
		log.LogError("worker restart failed", err, "attempt", attempt)
	default:
		ts.gaveUp = true
		log.LogError("giving up on worker, restart cannot succeed", err, "attempt", attempt)
	}
}

func (s *Supervisor) shutdown() {
	if !s.stopOnExit {
		s.logger.Info("supervisor stopped, workers left running")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s.checkMu.Lock()
	defer s.checkMu.Unlock()
	for _, ts := range s.targets {
		if err := ts.target.Stop(ctx); err != nil {
			s.logger.WithWorker(ts.target.Name()).Warn("failed to stop worker", "error", err.Error())
		}
	}
	s.logger.Info("supervisor stopped workers")
}

// Snapshot returns the status of every target.
func (s *Supervisor) Snapshot() []Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Status, 0, len(s.targets))
	for _, ts := range s.targets {
		out = append(out, Status{
			Name:        ts.target.Name(),
			Up:          ts.up,
			Restarts:    ts.restarts,
			Failures:    ts.failures,
			GaveUp:      ts.gaveUp,
			NextAttempt: ts.nextAttempt,
		})
	}
	return out
}

// Backoff returns initial * 2^attempt, capped at max.
func Backoff(attempt int, initial, max time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	delay := time.Duration(float64(initial) * math.Pow(2, float64(attempt)))
	if delay > max || delay <= 0 {
		delay = max
	}
	return delay
}
