package engine

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func sine(freq, fs float64, n int) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = 50 * math.Sin(2*math.Pi*freq*float64(i)/fs)
	}
	return s
}

func TestEngine_ComputeSteadyAlpha(t *testing.T) {
	e := New(4, [2]string{"AF7", "AF8"}, nil)
	defer e.Close()

	snaps := []Snapshot{{
		DeviceID:   "muse-1",
		SampleRate: 256,
		Channels: map[string][]float64{
			"AF7": sine(10, 256, 1024),
			"AF8": sine(10, 256, 1024),
		},
	}}
	byScale := e.ComputeMultiTimescale(snaps)
	require.Contains(t, byScale, "muse-1")
	m4s := byScale["muse-1"]["4s"]
	assert.Greater(t, m4s.Powers.Alpha, m4s.Powers.Beta)
	assert.Greater(t, m4s.Relaxation, 1.5)
}

func TestEngine_MissingFrontalChannelOmitsDevice(t *testing.T) {
	e := New(2, [2]string{"AF7", "AF8"}, nil)
	defer e.Close()

	snaps := []Snapshot{{
		DeviceID:   "muse-2",
		SampleRate: 256,
		Channels:   map[string][]float64{"AF7": sine(10, 256, 256)},
	}}
	out := e.Compute(snaps, 1, "1s")
	assert.NotContains(t, out, "muse-2")
}

// Relaxation identity: zero beta -> 0; equal alpha/beta -> 1; scaling
// both bands by k leaves relaxation unchanged.
func TestRelaxationIdentity(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		alpha := rapid.Float64Range(0, 1000).Draw(rt, "alpha")
		k := rapid.Float64Range(0.01, 100).Draw(rt, "k")

		relaxZeroBeta := relaxationOf(alpha, 0)
		assert.Equal(rt, 0.0, relaxZeroBeta)

		relaxEqual := relaxationOf(alpha, alpha)
		if alpha != 0 {
			assert.InDelta(rt, 1.0, relaxEqual, 1e-9)
		}

		if alpha != 0 {
			base := relaxationOf(alpha, alpha*0.7+0.1)
			scaled := relaxationOf(alpha*k, (alpha*0.7+0.1)*k)
			assert.InDelta(rt, base, scaled, 1e-6)
		}
	})
}

func relaxationOf(alpha, beta float64) float64 {
	if beta == 0 {
		return 0
	}
	return alpha / beta
}

// Exhaustive truth table over (fast-bal, bal-slow) sign/magnitude
// combinations.
func TestDeriveTrend_Table(t *testing.T) {
	cases := []struct {
		fast, bal, slow float64
		want            Trend
	}{
		{1.5, 1.3, 1.1, Improving},
		{1.0, 1.2, 1.4, Declining},
		{1.2, 1.21, 1.19, Stable},
		{1.0, 1.0, 1.0, Stable},
		{1.5, 1.2, 1.2, Stable},
		{1.5, 1.2, 1.5, Stable},
		{1.2, 1.2, 1.0, Stable},
		{1.2, 1.2, 1.5, Stable},
		{1.0, 1.2, 1.0, Stable},
		{1.0, 1.2, 1.2, Stable},
	}
	for _, c := range cases {
		byScale := map[string]DeviceMetrics{
			"1s": {RawRelaxation: c.fast},
			"2s": {RawRelaxation: c.bal},
			"4s": {RawRelaxation: c.slow},
		}
		assert.Equal(t, c.want, DeriveTrend(byScale), "fast=%v bal=%v slow=%v", c.fast, c.bal, c.slow)
	}
}

func TestDeriveTrend_UnknownWhenMissing(t *testing.T) {
	assert.Equal(t, Unknown, DeriveTrend(map[string]DeviceMetrics{"1s": {}, "2s": {}}))
}
