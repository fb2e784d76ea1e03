package visualizer

import (
	"math"
	"math/rand/v2"

	"github.com/noshadows/soundmachine/internal/errors"
	"github.com/noshadows/soundmachine/internal/sounds"
)

// timeStep is how far the wave advances per frame.
const timeStep = 0.2

// Geometry describes a chain of LED panels.
type Geometry struct {
	Rows     int
	Cols     int
	Chain    int
	Parallel int
}

// DefaultGeometry is a single 64x32 panel.
func DefaultGeometry() Geometry {
	return Geometry{Rows: 32, Cols: 64, Chain: 1, Parallel: 1}
}

// Width is the number of pixel columns across all chained panels.
func (g Geometry) Width() int { return g.Cols * g.Chain }

// Height is the number of pixel rows across all parallel chains.
func (g Geometry) Height() int { return g.Rows * g.Parallel }

// Validate rejects geometries that cannot hold a waveform.
func (g Geometry) Validate() error {
	switch {
	case g.Rows < 4:
		return errors.NewValidationError("must be at least 4").WithField("led-rows").WithValue(g.Rows)
	case g.Cols < 1:
		return errors.NewValidationError("must be positive").WithField("led-cols").WithValue(g.Cols)
	case g.Chain < 1:
		return errors.NewValidationError("must be positive").WithField("led-chain").WithValue(g.Chain)
	case g.Parallel < 1:
		return errors.NewValidationError("must be positive").WithField("led-parallel").WithValue(g.Parallel)
	}
	return nil
}

// Frame is one image of the display, row-major.
type Frame struct {
	Width  int
	Height int
	Pix    []sounds.Color
	// Label describes what is shown, for renderers that have room for text.
	Label string
}

// NewFrame returns a black frame.
func NewFrame(width, height int) *Frame {
	return &Frame{Width: width, Height: height, Pix: make([]sounds.Color, width*height)}
}

// At returns the pixel at x, y. Out of range reads are black.
func (f *Frame) At(x, y int) sounds.Color {
	if x < 0 || y < 0 || x >= f.Width || y >= f.Height {
		return sounds.Color{}
	}
	return f.Pix[y*f.Width+x]
}

// Set sets the pixel at x, y. Out of range writes are dropped.
func (f *Frame) Set(x, y int, c sounds.Color) {
	if x < 0 || y < 0 || x >= f.Width || y >= f.Height {
		return
	}
	f.Pix[y*f.Width+x] = c
}

// Animator draws the scrolling waveform.
type Animator struct {
	width, height int
	t             float64
	rng           *rand.Rand
	points        []int
}

// NewAnimator returns an animator for g. A nil rng uses a random seed.
func NewAnimator(g Geometry, rng *rand.Rand) *Animator {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	a := &Animator{
		width:  g.Width(),
		height: g.Height(),
		rng:    rng,
		points: make([]int, g.Width()),
	}
	for x := range a.points {
		a.points[x] = a.height / 2
	}
	return a
}

// Time returns the wave phase.
func (a *Animator) Time() float64 { return a.t }

// Points returns the wave height of every column of the last frame.
func (a *Animator) Points() []int { return a.points }

// Next advances the wave and draws it in c. envelope scales the amplitude;
// 1 draws the full wave.
func (a *Animator) Next(c sounds.Color, envelope float64) *Frame {
	a.t += timeStep
	h := a.height
	mid := h / 2
	amp := float64(h/3) * math.Max(0, envelope)

	for x := range a.points {
		fx := float64(x)
		y := mid
		y += int(amp * math.Sin(fx/7+a.t) * 0.5)
		y += int(amp * math.Sin(fx/4-a.t*0.7) * 0.3)
		y += int(amp * math.Sin(fx/10+a.t*0.5) * 0.2)
		y += a.rng.IntN(5) - 2
		a.points[x] = max(1, min(h-2, y))
	}

	f := NewFrame(a.width, h)
	half := float64(h / 2)
	for x, p := range a.points {
		d := p - mid
		if d < 0 {
			d = -d
		}
		for y := mid - d; y <= mid+d; y++ {
			dist := y - mid
			if dist < 0 {
				dist = -dist
			}
			f.Set(x, y, c.Scale(1-float64(dist)/half))
		}
	}
	return f
}
