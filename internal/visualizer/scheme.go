package visualizer

import "github.com/noshadows/soundmachine/internal/sounds"

// Tags with a built-in color.
const (
	RedTag  = "0008479619"
	BlueTag = "0026068654"
)

// Scheme is the color the waveform is drawn in.
type Scheme struct {
	Name  string
	Color sounds.Color
}

// GreyScheme is shown before the first tag and for tags without a color.
func GreyScheme(brightness uint8) Scheme {
	return Scheme{Name: "grey", Color: sounds.Color{R: brightness, G: brightness, B: brightness}}
}

// SchemeFor picks the color of tag: the manifest color when the manifest has
// one, then the built-in tag colors, then grey.
func SchemeFor(tag string, cache *sounds.Cache, brightness uint8) Scheme {
	if cache != nil && sounds.IsTag(tag) {
		if m := cache.Manifest(tag); m != nil && m.Color != nil {
			return Scheme{Name: "manifest", Color: *m.Color}
		}
	}
	switch tag {
	case RedTag:
		return Scheme{Name: "red", Color: sounds.Color{R: brightness}}
	case BlueTag:
		return Scheme{Name: "blue", Color: sounds.Color{B: brightness}}
	}
	return GreyScheme(brightness)
}
