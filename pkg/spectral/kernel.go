// Package spectral implements a pure, thread-safe, panic-free function
// that turns a single channel's sample window into band powers. It is
// adapted from a Cooley-Tukey fft() originally written for IQ
// magnitude spectra, generalized to a real-input one-sided PSD
// integrated over named EEG bands.
package spectral

import "math"

// Kernel is the SpectralKernel component. It is stateless; the zero
// value is ready to use. It exists as a named type (rather than bare
// package functions) so callers hold and pass it the same way they
// hold every other leaf component (buffers.Device, recorder.Recorder).
type Kernel struct{}

// NewKernel constructs a Kernel.
func NewKernel() *Kernel { return &Kernel{} }

// Result is the outcome of a single band_powers() call.
type Result struct {
	Powers Powers
	// Sufficient is false when N was below the minimum required to
	// resolve the lowest configured band at the given sample rate:
	// bands with no contributing bins read zero and this flag should
	// drive a quality signal upstream.
	Sufficient bool
}

// BandPowers implements band_powers(samples, f_s): Hann window, real
// FFT, one-sided PSD, band integration. Pure and panic-free on finite
// input; thread-safe (no shared mutable state beyond the read-only
// window cache).
func (k *Kernel) BandPowers(samples []float64, fs float64) Result {
	return BandPowers(samples, fs)
}

// BandPowers is the free-function form of Kernel.BandPowers, usable
// without constructing a Kernel.
func BandPowers(samples []float64, fs float64) Result {
	n := len(samples)
	if n == 0 || fs <= 0 {
		return Result{Powers: Powers{}, Sufficient: false}
	}

	spectrum, paddedN := realFFT(samples)
	binHz := fs / float64(paddedN)
	half := paddedN/2 + 1 // one-sided spectrum, including Nyquist bin

	psd := make([]float64, half)
	for i := 0; i < half; i++ {
		mag := cabs(spectrum[i])
		psd[i] = (mag * mag) / float64(n)
	}

	var out Powers
	sufficient := true
	for band, rng := range DefaultBands {
		sum := 0.0
		bins := 0
		for i := 0; i < half; i++ {
			f := float64(i) * binHz
			if f >= rng.Low && f < rng.High {
				sum += psd[i]
				bins++
			}
		}
		if bins == 0 {
			out.set(band, 0)
			sufficient = false
			continue
		}
		out.set(band, sum*binHz)
	}

	return Result{Powers: out, Sufficient: sufficient}
}

func cabs(c complex128) float64 {
	re, im := real(c), imag(c)
	return math.Sqrt(re*re + im*im)
}

func roundTo(v float64, decimals int) float64 {
	mul := math.Pow(10, float64(decimals))
	return math.Round(v*mul) / mul
}

// MinSamples returns the smallest N at the given sample rate that
// guarantees at least one FFT bin lands inside every configured band,
// used by callers that want to pre-check before calling BandPowers.
func MinSamples(fs float64) int {
	lowestSpan := math.MaxFloat64
	for _, rng := range DefaultBands {
		span := rng.High - rng.Low
		if span < lowestSpan {
			lowestSpan = span
		}
	}
	if lowestSpan <= 0 || fs <= 0 {
		return 0
	}
	n := int(math.Ceil(fs / lowestSpan))
	return nextPow2(n)
}
