// Package sounds manages the local sound library.
//
// Every tag has its own directory named after the numeric tag ID:
//
//	<sounds_dir>/<tag>/manifest.json
//	<sounds_dir>/<tag>/audio.mp3
//	<sounds_dir>/<tag>/waveform.json   (optional)
//
// A tag is valid only when both manifest.json and audio.mp3 are present.
package sounds

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// File names inside a tag directory.
const (
	ManifestFile = "manifest.json"
	AudioFile    = "audio.mp3"
	WaveformFile = "waveform.json"
)

// Library is a sound directory on disk.
type Library struct {
	Dir string
}

// NewLibrary returns a Library rooted at dir.
func NewLibrary(dir string) *Library {
	return &Library{Dir: dir}
}

// IsTag reports whether s is a tag ID: a non-empty string of ASCII digits.
func IsTag(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// NormalizeTag trims surrounding whitespace from a tag read off a pipe.
func NormalizeTag(s string) string {
	return strings.TrimSpace(s)
}

// TagDir returns the directory of tag.
func (l *Library) TagDir(tag string) string {
	return filepath.Join(l.Dir, tag)
}

// Path returns the path of file inside tag's directory.
func (l *Library) Path(tag, file string) string {
	return filepath.Join(l.Dir, tag, file)
}

// AudioPath returns the audio file of tag.
func (l *Library) AudioPath(tag string) string {
	return l.Path(tag, AudioFile)
}

// ManifestPath returns the manifest file of tag.
func (l *Library) ManifestPath(tag string) string {
	return l.Path(tag, ManifestFile)
}

// WaveformPath returns the waveform file of tag.
func (l *Library) WaveformPath(tag string) string {
	return l.Path(tag, WaveformFile)
}

// HasAudio reports whether tag has an audio file.
func (l *Library) HasAudio(tag string) bool {
	return fileExists(l.AudioPath(tag))
}

// Valid reports whether tag has both a manifest and an audio file.
func (l *Library) Valid(tag string) bool {
	return IsTag(tag) && fileExists(l.ManifestPath(tag)) && fileExists(l.AudioPath(tag))
}

// Tags returns the valid tags in the library, sorted. A missing library
// directory has no tags.
func (l *Library) Tags() ([]string, error) {
	entries, err := os.ReadDir(l.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var tags []string
	for _, e := range entries {
		if e.IsDir() && l.Valid(e.Name()) {
			tags = append(tags, e.Name())
		}
	}
	sort.Strings(tags)
	return tags, nil
}

// Entry describes one tag directory for listings.
type Entry struct {
	Tag      string
	HasAudio bool
	Valid    bool
}

// Entries returns every numeric tag directory, valid or not.
func (l *Library) Entries() ([]Entry, error) {
	dirents, err := os.ReadDir(l.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var entries []Entry
	for _, e := range dirents {
		if !e.IsDir() || !IsTag(e.Name()) {
			continue
		}
		entries = append(entries, Entry{
			Tag:      e.Name(),
			HasAudio: l.HasAudio(e.Name()),
			Valid:    l.Valid(e.Name()),
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Tag < entries[j].Tag })
	return entries, nil
}

// Remove deletes tag's directory.
func (l *Library) Remove(tag string) error {
	if !IsTag(tag) {
		return os.ErrInvalid
	}
	return os.RemoveAll(l.TagDir(tag))
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
