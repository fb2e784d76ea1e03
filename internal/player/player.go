// Package player plays the sound of each tag read from the audio pipe.
//
// One sound plays at a time: a new tag stops the current playback before the
// next one starts. Output always goes to the configured ALSA device; there is
// no fallback to another device.
package player

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/noshadows/soundmachine/internal/config"
	"github.com/noshadows/soundmachine/internal/errors"
	"github.com/noshadows/soundmachine/internal/fifo"
	"github.com/noshadows/soundmachine/internal/logging"
	"github.com/noshadows/soundmachine/internal/metrics"
	"github.com/noshadows/soundmachine/internal/sounds"
)

// stopGrace is how long a playback gets to exit after SIGTERM.
const stopGrace = 500 * time.Millisecond

// Player starts the mp3 player for tags.
type Player struct {
	cfg     config.PlayerConfig
	lib     *sounds.Library
	logger  *logging.Logger
	metrics metrics.Recorder

	mu      sync.Mutex
	current *playback
}

type playback struct {
	tag  string
	cmd  *exec.Cmd
	done chan struct{}
}

// Option configures a Player.
type Option func(*Player)

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(p *Player) {
		p.logger = logger
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(rec metrics.Recorder) Option {
	return func(p *Player) {
		p.metrics = rec
	}
}

// New creates a Player that plays sounds from lib.
func New(cfg config.PlayerConfig, lib *sounds.Library, opts ...Option) *Player {
	p := &Player{
		cfg:     cfg,
		lib:     lib,
		logger:  logging.NopLogger(),
		metrics: metrics.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Play stops the current sound and starts the sound of tag. A tag without an
// audio file is an error wrapping ErrNoAudio and leaves the current sound
// playing.
func (p *Player) Play(ctx context.Context, tag string) error {
	tag = sounds.NormalizeTag(tag)
	if !sounds.IsTag(tag) {
		return errors.NewValidationError("not a tag").WithField("tag").WithValue(tag).
			WithCause(errors.ErrInvalidInput)
	}

	path := p.lib.AudioPath(tag)
	if !p.lib.HasAudio(tag) {
		return errors.NewNotFoundError("audio", path).WithCause(errors.ErrNoAudio)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopLocked()
	if p.cfg.KillStrays {
		p.killStrays(ctx)
	}

	pb, err := p.start(tag, "-a", p.cfg.Device, path)
	if err != nil {
		p.logger.Warn("player failed to start, retrying with --device", "tag", tag, "error", err.Error())
		pb, err = p.start(tag, "--device", p.cfg.Device, path)
	}
	p.metrics.PlaybackStarted(err)
	if err != nil {
		return errors.NewDeviceError("cannot start "+p.cfg.Binary, err).WithPath(p.cfg.Device)
	}

	p.current = pb
	p.logger.Info("playing", "tag", tag, "path", path, "device", p.cfg.Device, "pid", pb.cmd.Process.Pid)
	return nil
}

func (p *Player) start(tag string, args ...string) (*playback, error) {
	// Not tied to a request context: playback outlives the call to Play.
	cmd := exec.Command(p.cfg.Binary, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	pb := &playback{tag: tag, cmd: cmd, done: make(chan struct{})}
	go func() {
		_ = cmd.Wait()
		close(pb.done)
	}()
	return pb, nil
}

// Stop stops the current sound, if any.
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
}

// Playing returns the tag currently playing, or "".
func (p *Player) Playing() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return ""
	}
	select {
	case <-p.current.done:
		return ""
	default:
		return p.current.tag
	}
}

func (p *Player) stopLocked() {
	pb := p.current
	p.current = nil
	if pb == nil {
		return
	}

	select {
	case <-pb.done:
		return
	default:
	}

	_ = pb.cmd.Process.Signal(os.Interrupt)
	select {
	case <-pb.done:
	case <-time.After(stopGrace):
		_ = pb.cmd.Process.Kill()
		<-pb.done
	}
}

// killStrays stops player processes this Player did not start, such as a
// playback left over from a previous run.
func (p *Player) killStrays(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	_ = exec.CommandContext(ctx, "pkill", "-x", filepath.Base(p.cfg.Binary)).Run()
}

// Run plays the tag of every line read from the audio pipe until ctx is done,
// then stops playback. The pipe is created if missing.
func (p *Player) Run(ctx context.Context) error {
	if err := fifo.Ensure(p.cfg.FIFO, fifo.DefaultPerm); err != nil {
		return err
	}

	p.logInventory()
	p.logger.Info("audio player started", "fifo", p.cfg.FIFO, "sounds", p.lib.Dir, "device", p.cfg.Device)

	reader := fifo.NewReader(p.cfg.FIFO, p.logger)
	for tag := range reader.Lines(ctx) {
		p.logger.Info("received tag", "tag", tag)
		if err := p.Play(ctx, tag); err != nil {
			if errors.Is(err, errors.ErrNoAudio) {
				p.logger.Warn("no audio file for tag", "tag", tag)
				continue
			}
			p.logger.LogError("playback failed", err, "tag", tag)
		}
	}

	p.logger.Info("shutting down audio player")
	p.Stop()
	if p.cfg.KillStrays {
		p.killStrays(context.Background())
	}
	return nil
}

func (p *Player) logInventory() {
	entries, err := p.lib.Entries()
	if err != nil {
		p.logger.Warn("failed to list sounds", "dir", p.lib.Dir, "error", err.Error())
		return
	}
	available := 0
	for _, e := range entries {
		if e.HasAudio {
			available++
		} else {
			p.logger.Debug("sound without audio", "tag", e.Tag)
		}
	}
	p.logger.Info("sound library", "tags", len(entries), "with_audio", available)
}

