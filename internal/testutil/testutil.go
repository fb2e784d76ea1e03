// Package testutil provides testing utilities for soundmachine tests.
package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
)

// SkipIfNoTmux skips the test if tmux is not installed.
func SkipIfNoTmux(t *testing.T) {
	t.Helper()
	SkipIfNoBinary(t, "tmux")
}

// SkipIfNoBinary skips the test if name is not on PATH.
func SkipIfNoBinary(t *testing.T, name string) {
	t.Helper()

	if _, err := exec.LookPath(name); err != nil {
		t.Skipf("%s not found in PATH, skipping test", name)
	}
}

// WriteFile writes content to path, creating parent directories.
func WriteFile(t *testing.T, path, content string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("failed to create directory for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write file %s: %v", path, err)
	}
}

// ReadFile returns the content of path or fails the test.
func ReadFile(t *testing.T, path string) string {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read file %s: %v", path, err)
	}
	return string(data)
}

// WriteSound creates <soundsDir>/<tag>/manifest.json and audio.mp3.
func WriteSound(t *testing.T, soundsDir, tag, manifest, audio string) {
	t.Helper()

	WriteFile(t, filepath.Join(soundsDir, tag, "manifest.json"), manifest)
	WriteFile(t, filepath.Join(soundsDir, tag, "audio.mp3"), audio)
}

// SoundServer is an in-memory remote sound store. It serves an Apache-style
// directory listing at / and file contents at /<tag>/<file>.
type SoundServer struct {
	*httptest.Server

	mu       sync.Mutex
	files    map[string]string
	requests map[string]int
	listing  int
}

// NewSoundServer starts a SoundServer with files keyed by "<tag>/<file>".
// The server is closed when the test completes.
func NewSoundServer(t *testing.T, files map[string]string) *SoundServer {
	t.Helper()

	s := &SoundServer{
		files:    make(map[string]string),
		requests: make(map[string]int),
		listing:  http.StatusOK,
	}
	for k, v := range files {
		s.files[k] = v
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

// SetFile adds or replaces a file.
func (s *SoundServer) SetFile(path, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[path] = content
}

// RemoveTag deletes every file of tag.
func (s *SoundServer) RemoveTag(tag string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.files {
		if strings.HasPrefix(k, tag+"/") {
			delete(s.files, k)
		}
	}
}

// FailListing makes the directory listing respond with status.
func (s *SoundServer) FailListing(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listing = status
}

// Requests returns how many requests with method hit path.
func (s *SoundServer) Requests(method, path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[method+" "+path]
}

func (s *SoundServer) serve(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.requests[r.Method+" "+r.URL.Path]++
	path := strings.TrimPrefix(r.URL.Path, "/")
	content, ok := s.files[path]
	listing := s.listing
	tags := s.tagsLocked()
	s.mu.Unlock()

	if path == "" {
		if listing != http.StatusOK {
			http.Error(w, "listing unavailable", listing)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintln(w, "<html><body><h1>Index of /sound-machine-storage</h1>")
		fmt.Fprintln(w, `<a href="../">../</a>`)
		for _, tag := range tags {
			fmt.Fprintf(w, "<a href=\"%s/\">%s/</a>\n", tag, tag)
		}
		fmt.Fprintln(w, "</body></html>")
		return
	}

	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Length", fmt.Sprint(len(content)))
	if r.Method == http.MethodHead {
		return
	}
	_, _ = w.Write([]byte(content))
}

func (s *SoundServer) tagsLocked() []string {
	seen := make(map[string]bool)
	for k := range s.files {
		if tag, _, found := strings.Cut(k, "/"); found {
			seen[tag] = true
		}
	}
	tags := make([]string, 0, len(seen))
	for tag := range seen {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}
