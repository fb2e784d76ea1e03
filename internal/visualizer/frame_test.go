package visualizer

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noshadows/soundmachine/internal/errors"
	"github.com/noshadows/soundmachine/internal/sounds"
)

func seeded() *rand.Rand {
	return rand.New(rand.NewPCG(1, 2))
}

func TestGeometry(t *testing.T) {
	g := Geometry{Rows: 32, Cols: 64, Chain: 2, Parallel: 3}
	assert.Equal(t, 128, g.Width())
	assert.Equal(t, 96, g.Height())
	assert.NoError(t, g.Validate())
	assert.NoError(t, DefaultGeometry().Validate())

	for _, bad := range []Geometry{
		{Rows: 2, Cols: 64, Chain: 1, Parallel: 1},
		{Rows: 32, Cols: 0, Chain: 1, Parallel: 1},
		{Rows: 32, Cols: 64, Chain: 0, Parallel: 1},
		{Rows: 32, Cols: 64, Chain: 1, Parallel: 0},
	} {
		err := bad.Validate()
		var verr *errors.ValidationError
		assert.True(t, errors.As(err, &verr), "%+v", bad)
	}
}

func TestFrame_OutOfRange(t *testing.T) {
	f := NewFrame(2, 2)
	f.Set(5, 5, sounds.Color{R: 1})
	f.Set(-1, 0, sounds.Color{R: 1})
	assert.Equal(t, sounds.Color{}, f.At(5, 5))
	assert.Equal(t, sounds.Color{}, f.At(0, -1))
}

func TestAnimator_Next(t *testing.T) {
	g := DefaultGeometry()
	a := NewAnimator(g, seeded())
	red := sounds.Color{R: 180}

	f := a.Next(red, 1)
	assert.InDelta(t, timeStep, a.Time(), 1e-9)
	require.Equal(t, 64, f.Width)
	require.Equal(t, 32, f.Height)

	mid := g.Height() / 2
	for x, p := range a.Points() {
		assert.GreaterOrEqual(t, p, 1, "column %d", x)
		assert.LessOrEqual(t, p, g.Height()-2, "column %d", x)
		assert.Equal(t, red, f.At(x, mid), "center of column %d is full intensity", x)

		for k := 1; k <= mid; k++ {
			assert.Equal(t, f.At(x, mid-k), f.At(x, mid+k), "column %d is mirrored", x)
		}
	}

	a.Next(red, 1)
	assert.InDelta(t, 2*timeStep, a.Time(), 1e-9)
}

func TestAnimator_Gradient(t *testing.T) {
	a := NewAnimator(DefaultGeometry(), seeded())
	c := sounds.Color{R: 200, G: 200, B: 200}
	f := a.Next(c, 1)

	mid := 16
	for x := range f.Width {
		prev := f.At(x, mid).R
		for y := mid + 1; y < f.Height; y++ {
			cur := f.At(x, y).R
			assert.LessOrEqual(t, cur, prev, "intensity falls off from the center")
			prev = cur
		}
	}
}

func TestAnimator_EnvelopeFlattensWave(t *testing.T) {
	g := DefaultGeometry()
	a := NewAnimator(g, seeded())
	a.Next(sounds.Color{R: 255}, 0)

	mid := g.Height() / 2
	for x, p := range a.Points() {
		assert.LessOrEqual(t, abs(p-mid), 2, "column %d only jitters", x)
	}
}

func TestAnimator_Deterministic(t *testing.T) {
	a := NewAnimator(DefaultGeometry(), seeded())
	b := NewAnimator(DefaultGeometry(), seeded())
	c := sounds.Color{B: 180}
	for range 5 {
		assert.Equal(t, a.Next(c, 1).Pix, b.Next(c, 1).Pix)
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
