package visualizer

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noshadows/soundmachine/internal/sounds"
	"github.com/noshadows/soundmachine/internal/testutil"
)

func TestSchemeFor(t *testing.T) {
	lib := sounds.NewLibrary(t.TempDir())
	testutil.WriteFile(t, lib.ManifestPath("0009466586"), `  {"color": [12.7, 300, -4]}  `)
	testutil.WriteFile(t, lib.ManifestPath(RedTag), `{"color": [0, 255, 0]}`)
	testutil.WriteFile(t, lib.ManifestPath("0000000002"), `{"color": "purple"}`)
	testutil.WriteFile(t, filepath.Join(lib.TagDir("0000000003"), sounds.ManifestFile), `not json`)
	cache := sounds.NewCache(lib, nil)

	tests := []struct {
		name  string
		tag   string
		cache *sounds.Cache
		want  Scheme
	}{
		{"manifest color clamped", "0009466586", cache, Scheme{"manifest", sounds.Color{R: 12, G: 255, B: 0}}},
		{"manifest wins over built-in", RedTag, cache, Scheme{"manifest", sounds.Color{G: 255}}},
		{"built-in red", RedTag, nil, Scheme{"red", sounds.Color{R: 180}}},
		{"built-in blue", BlueTag, cache, Scheme{"blue", sounds.Color{B: 180}}},
		{"invalid color", "0000000002", cache, GreyScheme(180)},
		{"broken manifest", "0000000003", cache, GreyScheme(180)},
		{"unknown tag", "1234567890", cache, GreyScheme(180)},
		{"not a tag", "hello", cache, GreyScheme(180)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SchemeFor(tt.tag, tt.cache, 180))
		})
	}
}
