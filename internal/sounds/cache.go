package sounds

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/noshadows/soundmachine/internal/logging"
)

// Cache holds parsed manifests and waveforms per tag. Entries load lazily
// and, once Start has been called, are dropped whenever a file under the
// tag's directory changes, so a resync running in another process is picked
// up without restarting.
type Cache struct {
	lib    *Library
	logger *logging.Logger

	mu        sync.RWMutex
	manifests map[string]*Manifest // nil value caches a miss
	waveforms map[string]Waveform  // nil value caches a miss

	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	done    chan struct{}
}

// NewCache creates a cache over lib.
func NewCache(lib *Library, logger *logging.Logger) *Cache {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Cache{
		lib:       lib,
		logger:    logger,
		manifests: make(map[string]*Manifest),
		waveforms: make(map[string]Waveform),
	}
}

// Manifest returns the manifest of tag, or nil when it is missing or invalid.
func (c *Cache) Manifest(tag string) *Manifest {
	c.mu.RLock()
	m, ok := c.manifests[tag]
	c.mu.RUnlock()
	if ok {
		return m
	}

	m, err := LoadManifest(c.lib.ManifestPath(tag))
	if err != nil && !os.IsNotExist(err) {
		c.logger.Warn("failed to load manifest", "tag", tag, "error", err.Error())
	}

	c.mu.Lock()
	c.manifests[tag] = m
	c.mu.Unlock()
	return m
}

// Waveform returns the waveform of tag, or nil when there is none.
func (c *Cache) Waveform(tag string) Waveform {
	c.mu.RLock()
	w, ok := c.waveforms[tag]
	c.mu.RUnlock()
	if ok {
		return w
	}

	w, err := LoadWaveform(c.lib.WaveformPath(tag))
	if err != nil && !os.IsNotExist(err) {
		c.logger.Warn("failed to load waveform", "tag", tag, "error", err.Error())
	}

	c.mu.Lock()
	c.waveforms[tag] = w
	c.mu.Unlock()
	return w
}

// Preload loads the waveform of every valid tag.
func (c *Cache) Preload() int {
	tags, err := c.lib.Tags()
	if err != nil {
		c.logger.Warn("failed to list sounds", "error", err.Error())
		return 0
	}
	loaded := 0
	for _, tag := range tags {
		if c.Waveform(tag) != nil {
			loaded++
		}
	}
	c.logger.Info("waveform cache built", "entries", loaded)
	return loaded
}

// Invalidate drops the cached entries of tag.
func (c *Cache) Invalidate(tag string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.manifests, tag)
	delete(c.waveforms, tag)
}

// Clear drops every cached entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.manifests = make(map[string]*Manifest)
	c.waveforms = make(map[string]Waveform)
}

// Start watches the library for changes. The library directory is created
// if needed.
func (c *Cache) Start() error {
	if err := os.MkdirAll(c.lib.Dir, 0755); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(c.lib.Dir); err != nil {
		_ = watcher.Close()
		return err
	}

	entries, _ := os.ReadDir(c.lib.Dir)
	for _, e := range entries {
		if e.IsDir() && IsTag(e.Name()) {
			_ = watcher.Add(c.lib.TagDir(e.Name()))
		}
	}

	c.watcher = watcher
	c.stopCh = make(chan struct{})
	c.done = make(chan struct{})
	go c.watchLoop()
	return nil
}

// Stop stops watching. It is safe to call without Start.
func (c *Cache) Stop() {
	if c.watcher == nil {
		return
	}
	close(c.stopCh)
	_ = c.watcher.Close()
	<-c.done
	c.watcher = nil
}

func (c *Cache) watchLoop() {
	defer close(c.done)

	for {
		select {
		case <-c.stopCh:
			return

		case event, ok := <-c.watcher.Events:
			if !ok {
				return
			}
			c.handleEvent(event)

		case err, ok := <-c.watcher.Errors:
			if !ok {
				return
			}
			c.logger.Warn("sound library watch error", "error", err.Error())
		}
	}
}

func (c *Cache) handleEvent(event fsnotify.Event) {
	rel, err := filepath.Rel(c.lib.Dir, event.Name)
	if err != nil || strings.HasPrefix(rel, "..") {
		return
	}
	tag, _, _ := strings.Cut(rel, string(filepath.Separator))
	if !IsTag(tag) {
		return
	}

	// New tag directories need their own watch to see the files land.
	if rel == tag && event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			_ = c.watcher.Add(event.Name)
		}
	}

	c.Invalidate(tag)
	c.logger.Debug("sound changed", "tag", tag, "op", event.Op.String())
}
