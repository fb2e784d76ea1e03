// Package visualizer animates a waveform in the color of the last scanned
// tag and passes every tag on to the audio player.
//
// Tags arrive on the RFID pipe. Each one changes the color scheme and is
// forwarded unchanged to the audio pipe, so the visualizer sits between the
// reader and the player. A tag whose directory holds a waveform.json drives
// the wave amplitude from that envelope.
package visualizer

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/noshadows/soundmachine/internal/config"
	"github.com/noshadows/soundmachine/internal/fifo"
	"github.com/noshadows/soundmachine/internal/logging"
	"github.com/noshadows/soundmachine/internal/metrics"
	"github.com/noshadows/soundmachine/internal/sounds"
)

// forwardTimeout bounds how long a tag waits for the audio player.
const forwardTimeout = 5 * time.Second

// Visualizer draws the waveform and relays tags.
type Visualizer struct {
	cfg     config.VisualizerConfig
	geom    Geometry
	cache   *sounds.Cache
	canvas  Canvas
	logger  *logging.Logger
	metrics metrics.Recorder
	rng     *rand.Rand

	mu       sync.Mutex
	scheme   Scheme
	tag      string
	waveform sounds.Waveform
	frame    int
}

// Option configures a Visualizer.
type Option func(*Visualizer)

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(v *Visualizer) {
		v.logger = logger
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(rec metrics.Recorder) Option {
	return func(v *Visualizer) {
		v.metrics = rec
	}
}

// WithCanvas sets where frames are drawn (default: a NullCanvas).
func WithCanvas(c Canvas) Option {
	return func(v *Visualizer) {
		v.canvas = c
	}
}

// WithRand fixes the source of the wave's jitter.
func WithRand(rng *rand.Rand) Option {
	return func(v *Visualizer) {
		v.rng = rng
	}
}

// New creates a Visualizer. cache supplies manifests and waveforms and may be
// nil, in which case only the built-in colors are used.
func New(cfg config.VisualizerConfig, geom Geometry, cache *sounds.Cache, opts ...Option) *Visualizer {
	v := &Visualizer{
		cfg:     cfg,
		geom:    geom,
		cache:   cache,
		canvas:  &NullCanvas{},
		logger:  logging.NopLogger(),
		metrics: metrics.Nop(),
		scheme:  GreyScheme(brightness(cfg.Brightness)),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

func brightness(b int) uint8 {
	return uint8(max(0, min(255, b)))
}

// Scheme returns the current color scheme.
func (v *Visualizer) Scheme() Scheme {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.scheme
}

// SetTag switches the display to the scheme of tag.
func (v *Visualizer) SetTag(tag string) Scheme {
	tag = sounds.NormalizeTag(tag)
	scheme := SchemeFor(tag, v.cache, brightness(v.cfg.Brightness))
	var wf sounds.Waveform
	if v.cache != nil && sounds.IsTag(tag) {
		wf = v.cache.Waveform(tag)
	}

	v.mu.Lock()
	changed := scheme != v.scheme
	v.scheme = scheme
	v.tag = tag
	v.waveform = wf
	v.frame = 0
	v.mu.Unlock()

	if changed {
		v.logger.Info("now displaying", "scheme", scheme.Name, "tag", tag,
			"r", scheme.Color.R, "g", scheme.Color.G, "b", scheme.Color.B)
	}
	return scheme
}

// HandleTag updates the scheme and forwards tag to the audio pipe.
func (v *Visualizer) HandleTag(ctx context.Context, tag string) {
	v.metrics.TagRead("visualizer")
	v.logger.Info("read tag", "tag", tag)
	v.SetTag(tag)

	ctx, cancel := context.WithTimeout(ctx, forwardTimeout)
	defer cancel()
	if err := fifo.WriteLine(ctx, v.cfg.AudioFIFO, tag); err != nil {
		v.logger.LogError("failed to forward tag to audio player", err, "tag", tag)
		return
	}
	v.logger.Debug("forwarded tag to audio player", "tag", tag)
}

// Run creates both pipes if needed, then relays tags and animates until ctx
// is done or the canvas quits.
func (v *Visualizer) Run(ctx context.Context) error {
	if err := v.geom.Validate(); err != nil {
		return err
	}
	for _, path := range []string{v.cfg.FIFO, v.cfg.AudioFIFO} {
		if err := fifo.Ensure(path, fifo.DefaultPerm); err != nil {
			return err
		}
	}

	if v.cache != nil {
		if err := v.cache.Start(); err != nil {
			v.logger.Warn("sound cache watcher disabled", "error", err.Error())
		}
		defer v.cache.Stop()
		v.logger.Info("sound cache loaded", "waveforms", v.cache.Preload())
	}

	v.logger.Info("visualizer started", "fifo", v.cfg.FIFO, "audio_fifo", v.cfg.AudioFIFO,
		"width", v.geom.Width(), "height", v.geom.Height(), "scheme", v.Scheme().Name)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return v.canvas.Run(ctx)
	})
	g.Go(func() error {
		for tag := range fifo.NewReader(v.cfg.FIFO, v.logger).Lines(ctx) {
			v.HandleTag(ctx, tag)
		}
		return nil
	})
	g.Go(func() error {
		v.animate(ctx)
		return nil
	})

	err := g.Wait()
	v.logger.Info("visualizer stopped")
	return err
}

func (v *Visualizer) animate(ctx context.Context) {
	anim := NewAnimator(v.geom, v.rng)
	interval := v.cfg.FrameInterval()
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			v.canvas.Draw(v.nextFrame(anim))
		}
	}
}

func (v *Visualizer) nextFrame(anim *Animator) *Frame {
	v.mu.Lock()
	scheme, tag := v.scheme, v.tag
	envelope := 1.0
	if len(v.waveform) > 0 {
		envelope = v.waveform.At(v.frame)
	}
	v.frame++
	v.mu.Unlock()

	f := anim.Next(scheme.Color, envelope)
	f.Label = scheme.Name
	if tag != "" {
		f.Label += " " + tag
	}
	return f
}
