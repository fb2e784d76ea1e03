// Package fifo creates and uses the named pipes that connect the workers.
//
// The RFID reader writes tags to one pipe, the visualizer reads them and
// forwards each tag to a second pipe read by the audio player. Every message
// is a single line.
package fifo

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"github.com/noshadows/soundmachine/internal/errors"
	"github.com/noshadows/soundmachine/internal/logging"
)

// DefaultPerm lets workers running as different users share the pipes.
const DefaultPerm fs.FileMode = 0666

const (
	writerPollInterval   = 50 * time.Millisecond
	defaultBackoff       = time.Second
	defaultCheckInterval = 500 * time.Millisecond
)

// IsFIFO reports whether path exists and is a named pipe.
func IsFIFO(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode()&fs.ModeNamedPipe != 0
}

// Ensure creates a named pipe at path unless one already exists.
// An existing non-pipe file is an error.
func Ensure(path string, perm fs.FileMode) error {
	info, err := os.Stat(path)
	switch {
	case err == nil:
		if info.Mode()&fs.ModeNamedPipe == 0 {
			return errors.NewDeviceError("path exists and is not a named pipe", nil).WithPath(path)
		}
		return nil
	case !os.IsNotExist(err):
		return errors.NewDeviceError("cannot stat pipe", err).WithPath(path)
	}
	return create(path, perm)
}

// Recreate removes whatever is at path and creates a fresh named pipe.
func Recreate(path string, perm fs.FileMode) error {
	if err := Remove(path); err != nil {
		return err
	}
	return create(path, perm)
}

// Remove deletes path. A missing file is not an error.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.NewDeviceError("cannot remove pipe", err).WithPath(path)
	}
	return nil
}

func create(path string, perm fs.FileMode) error {
	if err := unix.Mkfifo(path, uint32(perm.Perm())); err != nil {
		if errors.Is(err, unix.EEXIST) && IsFIFO(path) {
			return nil
		}
		return errors.NewDeviceError("cannot create pipe", err).WithPath(path)
	}
	// mkfifo applies the umask.
	if err := os.Chmod(path, perm.Perm()); err != nil {
		return errors.NewDeviceError("cannot set pipe permissions", err).WithPath(path)
	}
	return nil
}

// WriteLine writes line plus a newline to the pipe at path. Opening a pipe for
// writing waits for a reader; the wait is bounded by ctx.
func WriteLine(ctx context.Context, path, line string) error {
	f, err := openWriter(ctx, path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	if deadline, ok := ctx.Deadline(); ok {
		_ = f.SetWriteDeadline(deadline)
	}
	if _, err := f.WriteString(strings.TrimRight(line, "\r\n") + "\n"); err != nil {
		return errors.NewDeviceError("write to pipe failed", err).WithPath(path)
	}
	return nil
}

// openWriter polls a non-blocking open, which fails with ENXIO while the
// pipe has no reader. Running out of time yields a TimeoutError.
func openWriter(ctx context.Context, path string) (*os.File, error) {
	ticker := time.NewTicker(writerPollInterval)
	defer ticker.Stop()
	start := time.Now()

	for {
		f, err := os.OpenFile(path, os.O_WRONLY|unix.O_NONBLOCK, 0)
		if err == nil {
			return f, nil
		}
		if !errors.Is(err, unix.ENXIO) {
			return nil, errors.NewDeviceError("cannot open pipe for writing", err).WithPath(path)
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, errors.NewTimeoutError("waiting for a reader on "+path, time.Since(start).Round(time.Millisecond)).
					WithCause(ctx.Err())
			}
			return nil, errors.NewDeviceError("no reader on pipe", ctx.Err()).WithPath(path)
		case <-ticker.C:
		}
	}
}

// Reader emits lines written to a named pipe.
type Reader struct {
	Path string
	// Backoff is the pause after a read error before reopening (default: 1s).
	Backoff time.Duration
	// CheckInterval is how often an idle reader checks that Path still names
	// the pipe it has open (default: 500ms).
	CheckInterval time.Duration
	Logger        *logging.Logger
}

// NewReader returns a Reader for path.
func NewReader(path string, logger *logging.Logger) *Reader {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Reader{Path: path, Backoff: defaultBackoff, CheckInterval: defaultCheckInterval, Logger: logger}
}

// Lines streams trimmed, non-empty lines until ctx is done, then closes the
// channel. The pipe is reopened after EOF or a read error.
func (r *Reader) Lines(ctx context.Context) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		for ctx.Err() == nil {
			err := r.readOnce(ctx, out)
			if err == nil || ctx.Err() != nil {
				continue
			}
			r.Logger.Warn("error reading from pipe", "path", r.Path, "error", err)
			select {
			case <-ctx.Done():
			case <-time.After(r.backoff()):
			}
		}
	}()
	return out
}

func (r *Reader) backoff() time.Duration {
	if r.Backoff <= 0 {
		return defaultBackoff
	}
	return r.Backoff
}

func (r *Reader) checkInterval() time.Duration {
	if r.CheckInterval <= 0 {
		return defaultCheckInterval
	}
	return r.CheckInterval
}

// readOnce opens the pipe read-write, so it never sees EOF between writers
// and the open does not block waiting for one. It returns nil when Path has
// been replaced by another file, so the caller opens the new pipe.
func (r *Reader) readOnce(ctx context.Context, out chan<- string) error {
	if !IsFIFO(r.Path) {
		return fmt.Errorf("%s is not a named pipe", r.Path)
	}

	f, err := os.OpenFile(r.Path, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, func() { _ = f.Close() })
	defer func() {
		if stop() {
			_ = f.Close()
		}
	}()

	opened, err := f.Stat()
	if err != nil {
		return err
	}

	br := bufio.NewReader(f)
	var partial strings.Builder
	for {
		_ = f.SetReadDeadline(time.Now().Add(r.checkInterval()))
		chunk, err := br.ReadString('\n')
		partial.WriteString(chunk)

		switch {
		case err == nil:
			line := strings.TrimSpace(partial.String())
			partial.Reset()
			if line == "" {
				continue
			}
			select {
			case out <- line:
			case <-ctx.Done():
				return nil
			}
		case errors.Is(err, os.ErrDeadlineExceeded):
			if r.replaced(opened) {
				r.Logger.Info("pipe was recreated, reopening", "path", r.Path)
				return nil
			}
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, io.EOF):
			return nil
		default:
			return err
		}
	}
}

// replaced reports whether Path no longer names the pipe described by opened.
func (r *Reader) replaced(opened os.FileInfo) bool {
	current, err := os.Stat(r.Path)
	if err != nil {
		// Removed without a replacement yet.
		return false
	}
	return !os.SameFile(opened, current)
}
