package sounds

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaveform_Unmarshal(t *testing.T) {
	tests := []struct {
		name string
		json string
		want Waveform
	}{
		{"array", `[0, 5, -10]`, Waveform{0, 0.5, 1}},
		{"peaks", `{"peaks":[2,4]}`, Waveform{0.5, 1}},
		{"data", `{"data":[1,1]}`, Waveform{1, 1}},
		{"silent", `[0,0]`, Waveform{0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var w Waveform
			require.NoError(t, json.Unmarshal([]byte(tt.json), &w))
			assert.Equal(t, tt.want, w)
		})
	}

	var w Waveform
	assert.Error(t, json.Unmarshal([]byte(`"nope"`), &w))
}

func TestWaveform_At(t *testing.T) {
	var empty Waveform
	assert.Equal(t, 1.0, empty.At(7))

	w := Waveform{0.1, 0.2, 0.3}
	assert.Equal(t, 0.1, w.At(0))
	assert.Equal(t, 0.3, w.At(5))
	assert.Equal(t, 0.2, w.At(-1))
}
