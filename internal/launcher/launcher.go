package launcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/noshadows/soundmachine/internal/config"
	"github.com/noshadows/soundmachine/internal/errors"
	"github.com/noshadows/soundmachine/internal/logging"
	"github.com/noshadows/soundmachine/internal/metrics"
	"github.com/noshadows/soundmachine/internal/proc"
)

// Launcher starts, stops and inspects workers.
type Launcher struct {
	cfg     *config.Config
	logger  *logging.Logger
	metrics metrics.Recorder

	executable string
	configFile string

	multiplexer   Backend
	background    Backend
	tmuxAvailable func() bool
	install       Installer

	mu sync.Mutex // Serializes launch state updates
}

// Option configures a Launcher.
type Option func(*Launcher)

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(l *Launcher) {
		l.logger = logger
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(rec metrics.Recorder) Option {
	return func(l *Launcher) {
		l.metrics = rec
	}
}

// WithExecutable sets the binary used for workers configured by subcommand.
func WithExecutable(path string) Option {
	return func(l *Launcher) {
		l.executable = path
	}
}

// WithConfigFile passes --config to workers configured by subcommand.
func WithConfigFile(path string) Option {
	return func(l *Launcher) {
		l.configFile = path
	}
}

// WithBackends replaces the tmux and background backends.
func WithBackends(multiplexer, background Backend) Option {
	return func(l *Launcher) {
		l.multiplexer = multiplexer
		l.background = background
	}
}

// WithTmuxCheck replaces the tmux presence check.
func WithTmuxCheck(available func() bool) Option {
	return func(l *Launcher) {
		l.tmuxAvailable = available
	}
}

// WithInstaller replaces the tmux installer.
func WithInstaller(install Installer) Option {
	return func(l *Launcher) {
		l.install = install
	}
}

// New creates a Launcher for cfg.
func New(cfg *config.Config, opts ...Option) *Launcher {
	exe, err := os.Executable()
	if err != nil {
		exe = "soundmachine"
	}

	l := &Launcher{
		cfg:           cfg,
		logger:        logging.NopLogger(),
		metrics:       metrics.Nop(),
		executable:    exe,
		multiplexer:   NewTmuxBackend(cfg.Launcher.Socket, cfg.Launcher.StopTimeout()),
		background:    &ProcessBackend{StopTimeout: cfg.Launcher.StopTimeout()},
		tmuxAvailable: defaultTmuxAvailable,
		install:       ExecInstaller,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Result describes a completed launch.
type Result struct {
	RunID   string
	Mode    Mode
	Plan    *Plan
	Started []WorkerState

	backend Backend
}

// Launch starts profile. The work directory is resolved before anything else,
// so an unusable directory fails the launch without touching any session.
// Without patterns every configured worker is terminated first; with patterns
// only the selected workers are restarted. A worker that fails to start does
// not prevent the others from starting; the failures are joined in the error.
func (l *Launcher) Launch(ctx context.Context, profile string, patterns []string) (*Result, error) {
	workDir, err := ResolveWorkDir(l.cfg.Launcher.WorkDir)
	if err != nil {
		return nil, err
	}

	plan, err := l.BuildPlan(profile, workDir, patterns)
	if err != nil {
		return nil, err
	}

	backend, err := l.EnsureMultiplexer(ctx)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	prev := l.loadState(workDir)

	stopping := plan.Workers
	if len(patterns) == 0 {
		if stopping, err = l.SelectWorkers(workDir, nil); err != nil {
			return nil, err
		}
	}
	if err := l.TerminateSessions(ctx, stopping, prev); err != nil {
		l.logger.Warn("failed to terminate previous sessions", "error", err.Error())
	}

	next := NewState(plan.Profile, workDir, backend.Mode())
	if len(patterns) > 0 {
		for _, w := range prev.Workers {
			if !planned(plan, w.Name) {
				next.Put(w)
			}
		}
	}

	result := &Result{RunID: next.RunID, Mode: backend.Mode(), Plan: plan, backend: backend}
	var errs []error
	for _, spec := range plan.Workers {
		rec, err := l.Spawn(ctx, backend, workDir, spec)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		next.Put(rec)
		result.Started = append(result.Started, rec)
	}

	if err := next.Save(stateDir(workDir)); err != nil {
		errs = append(errs, err)
	}

	l.logger.Info("launch complete",
		"run_id", result.RunID,
		"profile", plan.Profile,
		"mode", string(result.Mode),
		"started", len(result.Started),
		"failed", len(plan.Workers)-len(result.Started),
	)
	return result, errors.Join(errs...)
}

// TerminateSessions stops every given worker in every mode it might run in.
// Workers that are not running are skipped, so calling it twice is harmless.
func (l *Launcher) TerminateSessions(ctx context.Context, specs []WorkerSpec, st *State) error {
	backends := []Backend{l.background}
	if l.tmuxAvailable() {
		backends = append(backends, l.multiplexer)
	}

	var errs []error
	for _, spec := range specs {
		var rec *WorkerState
		if st != nil {
			rec = st.Worker(spec.Name)
		}
		for _, b := range backends {
			stopped, err := b.Terminate(ctx, spec, rec)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if stopped {
				l.metrics.WorkerStopped(spec.Name)
				l.logger.WithWorker(spec.Name).Info("terminated previous worker",
					"session", spec.Session, "mode", string(b.Mode()))
			}
		}
	}
	return errors.Join(errs...)
}

// Spawn starts one worker with backend and returns its launch record.
func (l *Launcher) Spawn(ctx context.Context, backend Backend, workDir string, spec WorkerSpec) (WorkerState, error) {
	log := l.logger.WithWorker(spec.Name).WithSession(spec.Session)

	pid, err := backend.Spawn(ctx, workDir, spec)
	if err != nil {
		l.metrics.WorkerSpawnFailed(spec.Name)
		log.LogError("failed to start worker", err, "argv", spec.Argv)
		return WorkerState{}, err
	}
	l.metrics.WorkerStarted(spec.Name, string(backend.Mode()))

	rec := WorkerState{
		Name:      spec.Name,
		Session:   spec.Session,
		Mode:      backend.Mode(),
		PID:       pid,
		Argv:      spec.Argv,
		StartedAt: time.Now(),
	}
	if backend.Mode() == ModeBackground {
		rec.LogFile = spec.LogFile
		rec.Identity, _ = proc.Identity(pid)
	}

	log.Info("worker started", "mode", string(rec.Mode), "pid", pid, "argv", spec.Argv)
	return rec, nil
}

// Stop terminates the workers matching patterns, or all workers. It returns
// the names of the workers that were running.
func (l *Launcher) Stop(ctx context.Context, patterns []string) ([]string, error) {
	workDir, err := ResolveWorkDir(l.cfg.Launcher.WorkDir)
	if err != nil {
		return nil, err
	}
	specs, err := l.SelectWorkers(workDir, patterns)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	st := l.loadState(workDir)

	var stopped []string
	var errs []error
	for _, spec := range specs {
		running := l.status(ctx, spec, st.Worker(spec.Name)).Running
		if err := l.TerminateSessions(ctx, []WorkerSpec{spec}, st); err != nil {
			errs = append(errs, err)
			continue
		}
		if running {
			stopped = append(stopped, spec.Name)
		}
		st.Drop(spec.Name)
	}

	if err := st.Save(stateDir(workDir)); err != nil {
		errs = append(errs, err)
	}
	return stopped, errors.Join(errs...)
}

// WorkerStatus is the observed state of one configured worker.
type WorkerStatus struct {
	Name      string    `json:"name" yaml:"name"`
	Session   string    `json:"session" yaml:"session"`
	Mode      Mode      `json:"mode,omitempty" yaml:"mode,omitempty"`
	Running   bool      `json:"running" yaml:"running"`
	PID       int       `json:"pid,omitempty" yaml:"pid,omitempty"`
	LogFile   string    `json:"log_file,omitempty" yaml:"log_file,omitempty"`
	StartedAt time.Time `json:"started_at,omitzero" yaml:"started_at,omitempty"`
}

// Status reports every configured worker.
func (l *Launcher) Status(ctx context.Context) ([]WorkerStatus, error) {
	workDir, err := ResolveWorkDir(l.cfg.Launcher.WorkDir)
	if err != nil {
		return nil, err
	}
	specs, err := l.SelectWorkers(workDir, nil)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	st := l.loadState(workDir)
	l.mu.Unlock()

	statuses := make([]WorkerStatus, 0, len(specs))
	for _, spec := range specs {
		statuses = append(statuses, l.status(ctx, spec, st.Worker(spec.Name)))
	}
	return statuses, nil
}

func (l *Launcher) status(ctx context.Context, spec WorkerSpec, rec *WorkerState) WorkerStatus {
	ws := WorkerStatus{Name: spec.Name, Session: spec.Session}
	if rec != nil {
		ws.Mode = rec.Mode
		ws.LogFile = rec.LogFile
		ws.StartedAt = rec.StartedAt
	}

	if l.tmuxAvailable() {
		if ok, pid := l.multiplexer.Alive(ctx, spec, rec); ok {
			ws.Mode, ws.Running, ws.PID = ModeTmux, true, pid
			return ws
		}
	}
	if ok, pid := l.background.Alive(ctx, spec, rec); ok {
		ws.Mode, ws.Running, ws.PID = ModeBackground, true, pid
	}
	return ws
}

func (l *Launcher) loadState(workDir string) *State {
	st, err := LoadState(stateDir(workDir))
	if err != nil {
		l.logger.Warn("ignoring unreadable launch state", "error", err.Error())
		return &State{}
	}
	return st
}

func stateDir(workDir string) string {
	return filepath.Join(workDir, ".soundmachine")
}

func planned(plan *Plan, name string) bool {
	for _, w := range plan.Workers {
		if w.Name == name {
			return true
		}
	}
	return false
}
