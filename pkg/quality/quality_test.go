package quality

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAssess_CleanSignalScoresHigh(t *testing.T) {
	samples := make([]float64, 256)
	for i := range samples {
		samples[i] = 20.0
		if i%2 == 0 {
			samples[i] = -18.0
		}
	}
	a := Assess(samples)
	assert.Greater(t, a.Score, 0.5)
}

func TestAssess_FlatChannelPenalized(t *testing.T) {
	samples := make([]float64, 256) // all zero: flat line, disconnected electrode
	a := Assess(samples)
	assert.Less(t, a.Score, 0.6)
}

func TestAssess_RailedChannelPenalized(t *testing.T) {
	samples := make([]float64, 256)
	for i := range samples {
		samples[i] = 500 // outside plausible range
	}
	a := Assess(samples)
	assert.Equal(t, 1.0, a.RailedRatio)
	assert.Less(t, a.Score, 0.2)
}

func TestSignalToNoiseRatio(t *testing.T) {
	assert.InDelta(t, 10.0, SignalToNoiseRatio(10, 1), 1e-9)
	assert.Equal(t, 0.0, SignalToNoiseRatio(0, 0))
}
