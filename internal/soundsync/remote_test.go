package soundsync

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/noshadows/soundmachine/internal/errors"
	"github.com/noshadows/soundmachine/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseListing(t *testing.T) {
	body := `<html><body>
<a href="../">../</a>
<a href="0008479619/">0008479619/</a>   12-Oct-2026 10:00
<a href="0026068654/">0026068654/</a>
<a href="drafts/">drafts/</a>
<a href="0008479619/">0008479619/</a>
<a href="notes.txt">notes.txt</a>
</body></html>`

	assert.Equal(t, []string{"0008479619", "0026068654"}, ParseListing(body))
	assert.Empty(t, ParseListing(""))
}

func TestRemote_ListTags(t *testing.T) {
	srv := testutil.NewSoundServer(t, map[string]string{
		"0008479619/manifest.json": `{"color":[255,0,0]}`,
		"0008479619/audio.mp3":     "red",
		"0026068654/manifest.json": `{"color":[0,0,255]}`,
		"0026068654/audio.mp3":     "blue",
		"0000000001/manifest.json": `{}`, // no audio
		"drafts/audio.mp3":         "not a tag",
	})
	r := NewRemote(srv.URL, 5*time.Second)

	tags, err := r.ListTags(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"0008479619", "0026068654"}, tags)
	assert.Equal(t, 1, srv.Requests(http.MethodHead, "/0000000001/manifest.json"))
	assert.Zero(t, srv.Requests(http.MethodHead, "/drafts/audio.mp3"))
}

func TestRemote_ListTagsUnavailable(t *testing.T) {
	srv := testutil.NewSoundServer(t, nil)
	srv.FailListing(http.StatusBadGateway)
	r := NewRemote(srv.URL, 5*time.Second)

	_, err := r.ListTags(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrRemoteUnavailable))
	assert.True(t, errors.IsRetryable(err))
}

func TestRemote_HashIsCachedAndShared(t *testing.T) {
	srv := testutil.NewSoundServer(t, map[string]string{
		"42/audio.mp3": "hello",
	})
	r := NewRemote(srv.URL, 5*time.Second)
	url := r.URL("42", "audio.mp3")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err := r.Hash(context.Background(), url)
			assert.NoError(t, err)
			assert.Equal(t, "5d41402abc4b2a76b9719d911017c592", h)
		}()
	}
	wg.Wait()

	before := srv.Requests(http.MethodGet, "/42/audio.mp3")
	assert.Equal(t, 1, before, "concurrent hashes of one URL share a download")

	_, err := r.Hash(context.Background(), url)
	require.NoError(t, err)
	assert.Equal(t, before, srv.Requests(http.MethodGet, "/42/audio.mp3"), "cached hash must not refetch")

	r.ResetCache()
	_, err = r.Hash(context.Background(), url)
	require.NoError(t, err)
	assert.Equal(t, before+1, srv.Requests(http.MethodGet, "/42/audio.mp3"))
}

func TestRemote_Download(t *testing.T) {
	srv := testutil.NewSoundServer(t, map[string]string{
		"42/audio.mp3":    "mp3 bytes",
		"42/manifest.json": "",
	})
	r := NewRemote(srv.URL, 5*time.Second)
	dir := t.TempDir()

	dest := filepath.Join(dir, "audio.mp3")
	n, err := r.Download(context.Background(), r.URL("42", "audio.mp3"), dest)
	require.NoError(t, err)
	assert.Equal(t, int64(len("mp3 bytes")), n)
	assert.Equal(t, "mp3 bytes", testutil.ReadFile(t, dest))

	t.Run("empty body keeps the old file", func(t *testing.T) {
		manifest := filepath.Join(dir, "manifest.json")
		testutil.WriteFile(t, manifest, `{"old":true}`)

		_, err := r.Download(context.Background(), r.URL("42", "manifest.json"), manifest)
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrEmptyDownload))
		assert.Equal(t, `{"old":true}`, testutil.ReadFile(t, manifest))

		_, statErr := os.Stat(manifest + ".tmp")
		assert.True(t, os.IsNotExist(statErr))
	})

	t.Run("missing remote file", func(t *testing.T) {
		_, err := r.Download(context.Background(), r.URL("43", "audio.mp3"), filepath.Join(dir, "x"))
		assert.Error(t, err)
	})
}

func TestLocalHash(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f")
	testutil.WriteFile(t, path, "hello")

	h, err := LocalHash(path)
	require.NoError(t, err)
	assert.Equal(t, "5d41402abc4b2a76b9719d911017c592", h)

	_, err = LocalHash(path + ".missing")
	assert.Error(t, err)
}
