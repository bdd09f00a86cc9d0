package spectral

import (
	"math"
	"math/cmplx"
	"sync"
)

// windowCache caches Hann windows by length, so each window length is
// computed only once.
var windowCache sync.Map // int -> []float64

func hannWindow(n int) []float64 {
	if v, ok := windowCache.Load(n); ok {
		return v.([]float64)
	}
	w := make([]float64, n)
	if n == 1 {
		w[0] = 1
	} else {
		for i := 0; i < n; i++ {
			w[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n-1)))
		}
	}
	windowCache.Store(n, w)
	return w
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// fft is an iterative radix-2 Cooley-Tukey FFT, adapted from the
// teacher's dsp.go fft() to operate in place on a complex128 slice
// whose length must already be a power of two.
func fft(a []complex128) {
	n := len(a)
	if n <= 1 {
		return
	}
	for i, j := 1, 0; i < n; i++ {
		bit := n >> 1
		for ; j&bit != 0; bit >>= 1 {
			j ^= bit
		}
		j ^= bit
		if i < j {
			a[i], a[j] = a[j], a[i]
		}
	}
	for length := 2; length <= n; length <<= 1 {
		ang := -2 * math.Pi / float64(length)
		wlen := cmplx.Rect(1, ang)
		for i := 0; i < n; i += length {
			w := complex(1, 0)
			for k := 0; k < length/2; k++ {
				u := a[i+k]
				v := a[i+k+length/2] * w
				a[i+k] = u + v
				a[i+k+length/2] = u - v
				w *= wlen
			}
		}
	}
}

// realFFT windows samples with a cached Hann window, zero-pads to the
// next power of two (samples is typically already a power-of-two
// length under the default configuration; padding keeps arbitrary N
// callers, e.g. a non-default timescale, correct per the standard
// zero-padding technique), and returns the full complex spectrum.
// paddedN is returned alongside so the caller can derive correct bin
// spacing from the spectrum's actual length.
func realFFT(samples []float64) (spectrum []complex128, paddedN int) {
	n := len(samples)
	win := hannWindow(n)
	padded := nextPow2(n)
	buf := make([]complex128, padded)
	for i, s := range samples {
		buf[i] = complex(s*win[i], 0)
	}
	fft(buf)
	return buf, padded
}
