package sounds

import (
	"encoding/json"
	"os"

	"github.com/noshadows/soundmachine/internal/errors"
)

// Waveform is a tag's amplitude envelope, normalized to 0..1.
type Waveform []float64

// UnmarshalJSON accepts a bare array of numbers or an object holding one
// under "peaks" or "data".
func (w *Waveform) UnmarshalJSON(data []byte) error {
	var arr []float64
	if err := json.Unmarshal(data, &arr); err == nil {
		*w = normalize(arr)
		return nil
	}

	var obj struct {
		Peaks []float64 `json:"peaks"`
		Data  []float64 `json:"data"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return errors.NewValidationError("invalid waveform").WithCause(err)
	}
	if len(obj.Peaks) > 0 {
		*w = normalize(obj.Peaks)
	} else {
		*w = normalize(obj.Data)
	}
	return nil
}

// At returns the envelope value for frame i, cycling through the waveform.
// An empty waveform is flat at 1.
func (w Waveform) At(i int) float64 {
	if len(w) == 0 {
		return 1
	}
	if i < 0 {
		i = -i
	}
	return w[i%len(w)]
}

// LoadWaveform reads the waveform file at path.
func LoadWaveform(path string) (Waveform, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var w Waveform
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	return w, nil
}

func normalize(values []float64) Waveform {
	var peak float64
	for _, v := range values {
		if v < 0 {
			v = -v
		}
		if v > peak {
			peak = v
		}
	}
	out := make(Waveform, len(values))
	if peak == 0 {
		return out
	}
	for i, v := range values {
		if v < 0 {
			v = -v
		}
		out[i] = v / peak
	}
	return out
}
