// Package quality estimates EEG channel signal quality from raw
// samples: railing, flatness, and excessive noise. Ported from
// processing/utils.py's assess_signal_quality and
// compute_signal_to_noise_ratio. It is opt-in: the orchestrator
// defaults to fill-ratio-as-quality unless a caller explicitly wires
// this package in (see DESIGN.md).
package quality

import "math"

// voltage bounds a plausible single EEG channel sample can take
// (microvolts), used to flag railed/saturated channels.
const (
	minPlausibleMicrovolts = -300.0
	maxPlausibleMicrovolts = 300.0
	// artifactStdMicrovolts flags samples whose deviation from the
	// channel mean suggests a motion or electrode-pop artifact.
	artifactStdMicrovolts = 150.0
)

// Assessment is the result of assessing one channel's sample window.
type Assessment struct {
	Score         float64 // 0..1, 1 is best
	ArtifactRatio float64 // fraction of samples flagged as artifacts
	RailedRatio   float64 // fraction of samples outside plausible voltage range
	StdDev        float64
}

// Assess scores a single channel's sample window in [0,1]. It
// combines three signals: how much of the window is railed (outside
// plausible voltage range), how much looks like a motion artifact
// (more than artifactStdMicrovolts from the mean), and whether the
// window's standard deviation is below 1 µV (a near-flat channel).
func Assess(samples []float64) Assessment {
	n := len(samples)
	if n == 0 {
		return Assessment{}
	}

	mean := 0.0
	for _, s := range samples {
		mean += s
	}
	mean /= float64(n)

	variance := 0.0
	railed := 0
	artifacts := 0
	for _, s := range samples {
		variance += (s - mean) * (s - mean)
		if s < minPlausibleMicrovolts || s > maxPlausibleMicrovolts {
			railed++
		}
		if math.Abs(s-mean) > artifactStdMicrovolts {
			artifacts++
		}
	}
	variance /= float64(n)
	std := math.Sqrt(variance)

	railedRatio := float64(railed) / float64(n)
	artifactRatio := float64(artifacts) / float64(n)

	score := 1.0 - railedRatio - 0.5*artifactRatio
	if std < 1.0 {
		// a near-flat channel is as suspect as a noisy one (likely
		// disconnected electrode).
		score -= 0.5
	}
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}

	return Assessment{Score: score, ArtifactRatio: artifactRatio, RailedRatio: railedRatio, StdDev: std}
}

// SignalToNoiseRatio computes SNR in dB given the power in a
// signal-carrying band (e.g. alpha) versus a noise-reference band
// (e.g. gamma, where cortical EEG power is normally low).
func SignalToNoiseRatio(signalPower, noisePower float64) float64 {
	if noisePower <= 0 {
		if signalPower <= 0 {
			return 0
		}
		return math.Inf(1)
	}
	return 10 * math.Log10(signalPower/noisePower)
}
