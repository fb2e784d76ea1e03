package launcher

import (
	"context"
	"sync"
)

// Handle addresses one worker of a launch for the supervisor.
type Handle struct {
	l       *Launcher
	backend Backend
	workDir string
	spec    WorkerSpec

	mu  sync.Mutex
	rec WorkerState
}

// Handles returns a handle per planned worker, including workers that
// failed to start.
func (r *Result) Handles(l *Launcher) []*Handle {
	handles := make([]*Handle, 0, len(r.Plan.Workers))
	for _, spec := range r.Plan.Workers {
		h := &Handle{l: l, backend: r.backend, workDir: r.Plan.WorkDir, spec: spec}
		for _, rec := range r.Started {
			if rec.Name == spec.Name {
				h.rec = rec
			}
		}
		handles = append(handles, h)
	}
	return handles
}

// Name returns the worker name.
func (h *Handle) Name() string {
	return h.spec.Name
}

// Alive reports whether the worker is running.
func (h *Handle) Alive(ctx context.Context) bool {
	h.mu.Lock()
	rec := h.rec
	h.mu.Unlock()

	ok, _ := h.backend.Alive(ctx, h.spec, &rec)
	return ok
}

// Restart terminates what is left of the worker and starts it again with
// the same arguments, updating the launch state. Spawn errors are returned
// as is so the caller can tell transient failures from permanent ones; a
// state that cannot be saved is only logged since the worker is running.
func (h *Handle) Restart(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	rec := h.rec
	if _, err := h.backend.Terminate(ctx, h.spec, &rec); err != nil {
		h.l.logger.WithWorker(h.spec.Name).Warn("failed to clean up worker before restart", "error", err.Error())
	}

	next, err := h.l.Spawn(ctx, h.backend, h.workDir, h.spec)
	if err != nil {
		return err
	}
	h.rec = next

	h.l.mu.Lock()
	defer h.l.mu.Unlock()
	st := h.l.loadState(h.workDir)
	st.Put(next)
	if err := st.Save(stateDir(h.workDir)); err != nil {
		h.l.logger.WithWorker(h.spec.Name).Warn("failed to save launch state", "error", err.Error())
	}
	return nil
}

// Stop terminates the worker.
func (h *Handle) Stop(ctx context.Context) error {
	h.mu.Lock()
	rec := h.rec
	h.mu.Unlock()

	stopped, err := h.backend.Terminate(ctx, h.spec, &rec)
	if stopped {
		h.l.metrics.WorkerStopped(h.spec.Name)
	}
	return err
}
