package spectral

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func sineWave(freq, fs float64, n int) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = math.Sin(2 * math.Pi * freq * float64(i) / fs)
	}
	return s
}

func dominantBand(p Powers) Band {
	best := BandOrder[0]
	bestVal := p.get(best)
	for _, b := range BandOrder[1:] {
		if v := p.get(b); v > bestVal {
			best, bestVal = b, v
		}
	}
	return best
}

func bandOf(freq float64) Band {
	for _, b := range BandOrder {
		rng := DefaultBands[b]
		if freq >= rng.Low && freq < rng.High {
			return b
		}
	}
	return ""
}

// A pure sinusoid at frequency f0 should report its dominant power in
// the band containing f0, across a spread of sample rates and window
// lengths.
func TestBandPowers_SpectralRoundTrip(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		fs := rapid.SampledFrom([]float64{128, 256, 512}).Draw(rt, "fs")
		nExp := rapid.IntRange(7, 10).Draw(rt, "nExp") // N in {128,256,...,1024}
		n := 1 << nExp
		f0 := rapid.Float64Range(1.0, 45.0).Draw(rt, "f0")
		band := bandOf(f0)
		if band == "" {
			return
		}
		samples := sineWave(f0, fs, n)
		res := BandPowers(samples, fs)
		assert.Equal(rt, band, dominantBand(res.Powers))
	})
}

func TestBandPowers_InsufficientSamplesFlagged(t *testing.T) {
	samples := sineWave(10, 256, 4)
	res := BandPowers(samples, 256)
	assert.False(t, res.Sufficient)
}

func TestBandPowers_PureAndPanicFree(t *testing.T) {
	samples := sineWave(10, 256, 256)
	a := BandPowers(samples, 256)
	b := BandPowers(samples, 256)
	assert.Equal(t, a, b)

	assert.NotPanics(t, func() {
		BandPowers(nil, 256)
		BandPowers([]float64{}, 0)
		BandPowers([]float64{math.NaN()}, 256)
	})
}

func TestHannWindow_Shape(t *testing.T) {
	w := hannWindow(8)
	assert.Len(t, w, 8)
	assert.InDelta(t, 0, w[0], 1e-9)
	for _, v := range w {
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 1.0)
	}
	// symmetric
	for i := range w {
		assert.InDelta(t, w[i], w[len(w)-1-i], 1e-9)
	}
}

func TestMinSamples_PowerOfTwo(t *testing.T) {
	n := MinSamples(256)
	assert.Equal(t, n, nextPow2(n))
}
