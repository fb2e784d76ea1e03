package visualizer

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/noshadows/soundmachine/internal/config"
	"github.com/noshadows/soundmachine/internal/fifo"
	"github.com/noshadows/soundmachine/internal/sounds"
	"github.com/noshadows/soundmachine/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testConfig(t *testing.T) config.VisualizerConfig {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default().Visualizer
	cfg.FIFO = filepath.Join(dir, "rfid_pipe")
	cfg.AudioFIFO = filepath.Join(dir, "rfid_audio_pipe")
	cfg.FrameIntervalMs = 5
	return cfg
}

func TestSetTag(t *testing.T) {
	lib := sounds.NewLibrary(t.TempDir())
	testutil.WriteFile(t, lib.WaveformPath(BlueTag), `[0.5, 1.0]`)
	v := New(testConfig(t), DefaultGeometry(), sounds.NewCache(lib, nil), WithRand(seeded()))

	assert.Equal(t, "grey", v.Scheme().Name)
	assert.Equal(t, "red", v.SetTag(" 0008479619\n").Name)
	assert.Equal(t, "blue", v.SetTag(BlueTag).Name)

	anim := NewAnimator(DefaultGeometry(), seeded())
	f := v.nextFrame(anim)
	assert.Equal(t, "blue "+BlueTag, f.Label)
	v.mu.Lock()
	assert.Equal(t, 1, v.frame)
	assert.Len(t, v.waveform, 2)
	v.mu.Unlock()

	assert.Equal(t, "grey", v.SetTag("whatever").Name)
}

func TestHandleTag_ForwardsToAudioPipe(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, fifo.Ensure(cfg.AudioFIFO, 0600))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	lines := fifo.NewReader(cfg.AudioFIFO, nil).Lines(ctx)

	v := New(cfg, DefaultGeometry(), nil)
	v.HandleTag(ctx, RedTag)

	select {
	case got := <-lines:
		assert.Equal(t, RedTag, got)
	case <-time.After(3 * time.Second):
		t.Fatal("tag not forwarded")
	}
	assert.Equal(t, "red", v.Scheme().Name)

	cancel()
	for range lines {
	}
}

func TestHandleTag_NoAudioPlayer(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, fifo.Ensure(cfg.AudioFIFO, 0600))
	v := New(cfg, DefaultGeometry(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	v.HandleTag(ctx, BlueTag)
	assert.Less(t, time.Since(start), 2*time.Second, "gives up when nobody reads the audio pipe")
	assert.Equal(t, "blue", v.Scheme().Name)
}

func TestRun(t *testing.T) {
	cfg := testConfig(t)
	lib := sounds.NewLibrary(t.TempDir())
	testutil.WriteSound(t, lib.Dir, "0009466586", `{"color": [10, 20, 30]}`, "mp3")

	canvas := &NullCanvas{}
	v := New(cfg, DefaultGeometry(), sounds.NewCache(lib, nil), WithCanvas(canvas))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- v.Run(ctx) }()

	require.Eventually(t, func() bool {
		return fifo.IsFIFO(cfg.FIFO) && fifo.IsFIFO(cfg.AudioFIFO)
	}, 2*time.Second, 10*time.Millisecond)

	audio := fifo.NewReader(cfg.AudioFIFO, nil).Lines(ctx)
	wctx, wcancel := context.WithTimeout(ctx, 2*time.Second)
	defer wcancel()
	require.NoError(t, fifo.WriteLine(wctx, cfg.FIFO, "0009466586"))

	select {
	case got := <-audio:
		assert.Equal(t, "0009466586", got)
	case <-time.After(3 * time.Second):
		t.Fatal("tag not forwarded")
	}
	assert.Equal(t, Scheme{Name: "manifest", Color: sounds.Color{R: 10, G: 20, B: 30}}, v.Scheme())
	require.Eventually(t, func() bool { return canvas.Frames() > 3 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	for range audio {
	}
}

func TestRun_InvalidGeometry(t *testing.T) {
	v := New(testConfig(t), Geometry{Rows: 1, Cols: 1, Chain: 1, Parallel: 1}, nil)
	assert.Error(t, v.Run(context.Background()))
}
