package sounds

import (
	"bytes"
	"encoding/json"
	"math"
	"os"

	"github.com/noshadows/soundmachine/internal/errors"
)

// Color is an RGB triple with components in 0..255.
type Color struct {
	R, G, B uint8
}

// Scale multiplies every component by f, clamped to 0..1.
func (c Color) Scale(f float64) Color {
	f = math.Max(0, math.Min(1, f))
	return Color{
		R: uint8(float64(c.R) * f),
		G: uint8(float64(c.G) * f),
		B: uint8(float64(c.B) * f),
	}
}

// Manifest is the per-tag metadata file.
type Manifest struct {
	// Color is nil when the manifest has no usable color.
	Color *Color
	Name  string
	Raw   map[string]any
}

// ParseManifest decodes manifest JSON. The color must be a three element
// array of numbers; each component is truncated to an integer and clamped to
// 0..255. Any other color value is ignored.
func ParseManifest(data []byte) (*Manifest, error) {
	var raw map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(data), &raw); err != nil {
		return nil, errors.NewValidationError("invalid manifest").WithCause(err)
	}

	m := &Manifest{Raw: raw}
	if name, ok := raw["name"].(string); ok {
		m.Name = name
	}
	if arr, ok := raw["color"].([]any); ok && len(arr) == 3 {
		var rgb [3]uint8
		valid := true
		for i, v := range arr {
			n, ok := v.(float64)
			if !ok {
				valid = false
				break
			}
			rgb[i] = clampByte(n)
		}
		if valid {
			m.Color = &Color{R: rgb[0], G: rgb[1], B: rgb[2]}
		}
	}
	return m, nil
}

// LoadManifest reads and parses the manifest at path.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseManifest(data)
}

func clampByte(v float64) uint8 {
	n := math.Trunc(v)
	switch {
	case n < 0:
		return 0
	case n > 255:
		return 255
	default:
		return uint8(n)
	}
}
