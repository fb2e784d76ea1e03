package sounds

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/noshadows/soundmachine/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestCache_LazyLoad(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteSound(t, dir, "0026068654", `{"color":[0,0,255]}`, "mp3")
	testutil.WriteFile(t, filepath.Join(dir, "0026068654", WaveformFile), `[1,2,4]`)

	c := NewCache(NewLibrary(dir), nil)

	m := c.Manifest("0026068654")
	require.NotNil(t, m)
	assert.Equal(t, &Color{0, 0, 255}, m.Color)
	assert.Equal(t, Waveform{0.25, 0.5, 1}, c.Waveform("0026068654"))

	assert.Nil(t, c.Manifest("0000000000"))
	assert.Nil(t, c.Waveform("0000000000"))

	// Cached until invalidated.
	testutil.WriteFile(t, filepath.Join(dir, "0026068654", ManifestFile), `{"color":[255,0,0]}`)
	assert.Equal(t, &Color{0, 0, 255}, c.Manifest("0026068654").Color)

	c.Invalidate("0026068654")
	assert.Equal(t, &Color{255, 0, 0}, c.Manifest("0026068654").Color)

	c.Clear()
	assert.Equal(t, 1, c.Preload())
}

func TestCache_WatchInvalidates(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteSound(t, dir, "0008479619", `{"color":[255,0,0]}`, "mp3")

	c := NewCache(NewLibrary(dir), nil)
	require.NoError(t, c.Start())
	defer c.Stop()

	require.Equal(t, &Color{255, 0, 0}, c.Manifest("0008479619").Color)

	testutil.WriteFile(t, filepath.Join(dir, "0008479619", ManifestFile), `{"color":[0,255,0]}`)
	require.Eventually(t, func() bool {
		m := c.Manifest("0008479619")
		return m != nil && m.Color != nil && *m.Color == Color{0, 255, 0}
	}, 3*time.Second, 20*time.Millisecond)

	// A tag created after Start is watched too.
	assert.Nil(t, c.Manifest("0000000042"))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "0000000042"), 0755))
	time.Sleep(50 * time.Millisecond)
	testutil.WriteFile(t, filepath.Join(dir, "0000000042", ManifestFile), `{"color":[1,2,3]}`)
	require.Eventually(t, func() bool {
		m := c.Manifest("0000000042")
		return m != nil && m.Color != nil && *m.Color == Color{1, 2, 3}
	}, 3*time.Second, 20*time.Millisecond)
}

func TestCache_StopWithoutStart(t *testing.T) {
	c := NewCache(NewLibrary(t.TempDir()), nil)
	c.Stop()
}
