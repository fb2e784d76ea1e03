// Package rfid reads tags from RFID readers that present themselves as USB
// keyboards and writes each tag to the RFID pipe.
//
// A tag arrives as a run of digit key presses followed by Enter. Each input
// device is read by its own goroutine; one device failing does not stop the
// others.
package rfid

import (
	"context"
	"io"
	"io/fs"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/noshadows/soundmachine/internal/config"
	"github.com/noshadows/soundmachine/internal/errors"
	"github.com/noshadows/soundmachine/internal/fifo"
	"github.com/noshadows/soundmachine/internal/logging"
	"github.com/noshadows/soundmachine/internal/metrics"
	"github.com/noshadows/soundmachine/internal/sounds"
)

// writeTimeout bounds how long a tag waits for a reader on the pipe.
const writeTimeout = 10 * time.Second

// SinkFunc receives every tag read.
type SinkFunc func(ctx context.Context, tag string) error

// Reader reads tags from input devices.
type Reader struct {
	cfg     config.RFIDConfig
	logger  *logging.Logger
	metrics metrics.Recorder
	sink    SinkFunc
	devices []Device
}

// Option configures a Reader.
type Option func(*Reader)

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(r *Reader) {
		r.logger = logger
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(rec metrics.Recorder) Option {
	return func(r *Reader) {
		r.metrics = rec
	}
}

// WithSink replaces writing to the RFID pipe.
func WithSink(sink SinkFunc) Option {
	return func(r *Reader) {
		r.sink = sink
	}
}

// WithDevices skips discovery and reads from devices.
func WithDevices(devices ...Device) Option {
	return func(r *Reader) {
		r.devices = devices
	}
}

// New creates a Reader.
func New(cfg config.RFIDConfig, opts ...Option) *Reader {
	r := &Reader{
		cfg:     cfg,
		logger:  logging.NopLogger(),
		metrics: metrics.Nop(),
	}
	r.sink = r.writePipe
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Reader) writePipe(ctx context.Context, tag string) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return fifo.WriteLine(ctx, r.cfg.FIFO, tag)
}

// Run recreates the RFID pipe, reads every device until ctx is done or all
// devices fail, and removes the pipe on return.
func (r *Reader) Run(ctx context.Context) error {
	if err := fifo.Recreate(r.cfg.FIFO, fifo.DefaultPerm); err != nil {
		return err
	}
	defer func() {
		if err := fifo.Remove(r.cfg.FIFO); err != nil {
			r.logger.Warn("failed to remove pipe", "path", r.cfg.FIFO, "error", err.Error())
		}
	}()
	r.logger.Info("created pipe", "path", r.cfg.FIFO)

	devices := r.devices
	if len(devices) == 0 {
		found, err := Discover(r.cfg)
		if err != nil {
			r.logger.Error("no input devices found, is the RFID reader connected?", "error", err.Error())
			return err
		}
		devices = found
	}

	var g errgroup.Group
	for _, dev := range devices {
		r.logger.Info("reading input device", "path", dev.Path, "name", dev.Name)
		g.Go(func() error {
			if err := r.ReadDevice(ctx, dev); err != nil {
				r.logger.LogError("input device failed", err, "path", dev.Path)
				if errors.Is(err, errors.ErrPermissionDenied) {
					r.logger.Error("permission denied, run as root or add the user to the input group", "path", dev.Path)
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	r.logger.Info("rfid reader stopped")
	return nil
}

// ReadDevice decodes key presses from dev and passes each tag to the sink
// until ctx is done or the device is gone.
func (r *Reader) ReadDevice(ctx context.Context, dev Device) error {
	f, err := os.Open(dev.Path)
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return errors.NewDeviceError("cannot open input device", errors.ErrPermissionDenied).WithPath(dev.Path)
		}
		return errors.NewDeviceError("cannot open input device", err).WithPath(dev.Path)
	}
	stop := context.AfterFunc(ctx, func() { _ = f.Close() })
	defer func() {
		if stop() {
			_ = f.Close()
		}
	}()

	var dec Decoder
	buf := make([]byte, EventSize)
	for {
		if _, err := io.ReadFull(f, buf); err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil
			}
			// The device may come back once the reader is plugged in again.
			return errors.NewDeviceError("read failed", err).WithPath(dev.Path).WithRetryable(true)
		}

		ev, _ := DecodeEvent(buf)
		tag, ok := dec.Feed(ev)
		if !ok {
			continue
		}
		if !sounds.IsTag(tag) {
			r.logger.Debug("ignored non-tag input", "input", tag, "device", dev.Name)
			continue
		}

		r.metrics.TagRead("rfid")
		r.logger.Info("tag scanned", "tag", tag, "device", dev.Name)
		if err := r.sink(ctx, tag); err != nil {
			r.logger.LogError("failed to forward tag", err, "tag", tag)
		}
	}
}
