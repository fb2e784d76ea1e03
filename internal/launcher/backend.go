package launcher

import (
	"context"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"syscall"
	"time"

	"github.com/noshadows/soundmachine/internal/errors"
	"github.com/noshadows/soundmachine/internal/proc"
	"github.com/noshadows/soundmachine/internal/tmux"
)

// Backend starts and stops workers in one launch mode.
type Backend interface {
	Mode() Mode
	// Spawn starts spec detached in workDir and returns its PID, or 0 when
	// the PID is not known.
	Spawn(ctx context.Context, workDir string, spec WorkerSpec) (int, error)
	// Alive reports whether the worker runs and its PID when known. rec is
	// the worker's record from the last launch and may be nil.
	Alive(ctx context.Context, spec WorkerSpec, rec *WorkerState) (bool, int)
	// Terminate stops the worker and reports whether it was running.
	// A worker that is not running is not an error.
	Terminate(ctx context.Context, spec WorkerSpec, rec *WorkerState) (bool, error)
}

// TmuxBackend runs each worker in its own tmux session.
type TmuxBackend struct {
	client *tmux.Client
}

// NewTmuxBackend returns a Backend on the given tmux socket.
func NewTmuxBackend(socket string, stopTimeout time.Duration) *TmuxBackend {
	client := tmux.New(socket)
	if stopTimeout > 0 {
		client.GracefulTimeout = stopTimeout
	}
	return &TmuxBackend{client: client}
}

func (b *TmuxBackend) Mode() Mode { return ModeTmux }

func (b *TmuxBackend) Spawn(ctx context.Context, workDir string, spec WorkerSpec) (int, error) {
	if err := b.client.NewSession(ctx, spec.Session, workDir, spec.Argv); err != nil {
		return 0, err
	}
	return b.client.PanePID(ctx, spec.Session), nil
}

func (b *TmuxBackend) Alive(ctx context.Context, spec WorkerSpec, _ *WorkerState) (bool, int) {
	ok, err := b.client.HasSession(ctx, spec.Session)
	if err != nil || !ok {
		return false, 0
	}
	return true, b.client.PanePID(ctx, spec.Session)
}

func (b *TmuxBackend) Terminate(ctx context.Context, spec WorkerSpec, _ *WorkerState) (bool, error) {
	ok, err := b.client.HasSession(ctx, spec.Session)
	if err != nil || !ok {
		return false, err
	}
	if err := b.client.KillSession(ctx, spec.Session); err != nil {
		return true, err
	}
	return true, nil
}

// ProcessBackend runs workers as detached background processes with their
// output appended to the worker log file. It keeps no handle on them; the
// launch state carries their PIDs.
type ProcessBackend struct {
	StopTimeout time.Duration
}

func (b *ProcessBackend) Mode() Mode { return ModeBackground }

func (b *ProcessBackend) Spawn(ctx context.Context, workDir string, spec WorkerSpec) (int, error) {
	if len(spec.Argv) == 0 {
		return 0, errors.NewLaunchError("empty command", errors.ErrSpawnFailed).WithWorker(spec.Name)
	}

	if err := os.MkdirAll(filepath.Dir(spec.LogFile), 0755); err != nil {
		return 0, errors.NewLaunchError("cannot create log directory: "+err.Error(), errors.ErrSpawnFailed).
			WithWorker(spec.Name)
	}
	logFile, err := os.OpenFile(spec.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return 0, errors.NewLaunchError("cannot open log file: "+err.Error(), errors.ErrSpawnFailed).
			WithWorker(spec.Name)
	}
	defer func() { _ = logFile.Close() }()

	// Not CommandContext: the worker must outlive the launcher.
	cmd := exec.Command(spec.Argv[0], spec.Argv[1:]...)
	cmd.Dir = workDir
	cmd.Stdin = nil
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true, // Own session and process group, no controlling terminal
	}

	if err := cmd.Start(); err != nil {
		// A missing or non-executable binary will not appear on retry.
		permanent := errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission)
		return 0, errors.NewLaunchError(err.Error(), errors.ErrSpawnFailed).WithWorker(spec.Name).
			WithRetryable(!permanent)
	}
	pid := cmd.Process.Pid

	if err := cmd.Process.Release(); err != nil {
		return pid, errors.NewLaunchError("failed to release background process: "+err.Error(), nil).
			WithWorker(spec.Name)
	}
	return pid, nil
}

// Alive reports whether the recorded PID still belongs to the started
// worker. A PID now held by another process counts as not running, so a stale
// record never leads to killing an unrelated process.
func (b *ProcessBackend) Alive(_ context.Context, _ WorkerSpec, rec *WorkerState) (bool, int) {
	if rec == nil || rec.Mode != ModeBackground || !proc.Alive(rec.PID) {
		return false, 0
	}
	if !sameProcess(rec) {
		return false, 0
	}
	return true, rec.PID
}

func sameProcess(rec *WorkerState) bool {
	current, ok := proc.Identity(rec.PID)
	if !ok {
		// No procfs: the PID is all there is to go on.
		return rec.Identity == ""
	}
	if rec.Identity != "" {
		return current == rec.Identity
	}
	// Records written without an identity fall back to the command line.
	return len(rec.Argv) > 0 && slices.Equal(proc.CommandLine(rec.PID), rec.Argv)
}

func (b *ProcessBackend) Terminate(ctx context.Context, spec WorkerSpec, rec *WorkerState) (bool, error) {
	alive, pid := b.Alive(ctx, spec, rec)
	if !alive {
		return false, nil
	}

	grace := b.StopTimeout
	if grace <= 0 {
		grace = proc.DefaultGracePeriod
	}
	if err := proc.Terminate(ctx, pid, grace); err != nil {
		return true, errors.NewLaunchError("failed to stop worker: "+err.Error(), nil).WithWorker(spec.Name)
	}
	return true, nil
}
