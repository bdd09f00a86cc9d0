package source

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// ChannelSpec configures one synthetic channel's sine generator.
type ChannelSpec struct {
	Label     string
	FreqHz    float64
	Amplitude float64
	PhaseRad  float64
}

// SineSource is a synthetic multi-channel EEG pull source: each
// channel is a pure sinusoid plus a small amount of noise, produced at
// a nominal sample rate. It is seeded with a backlog of pre-generated
// samples at construction time, modeling the staleness problem the
// startup flush exists to solve.
type SineSource struct {
	mu       sync.Mutex
	channels []ChannelSpec
	fs       float64
	noiseAmp float64
	rng      *prng

	queue      []queuedSample
	nextIndex  int64
	epoch      time.Time
	epochUnix  float64
	closed     bool
}

type queuedSample struct {
	timestamp float64
	values    []float64
}

// NewSineSource builds a simulator and seeds it with backlog worth of
// pre-generated samples, timestamped as if produced during the backlog
// span just before construction. epoch is the start of that span, so
// live samples continue from construction time onward.
func NewSineSource(channels []ChannelSpec, sampleRate float64, backlog time.Duration) *SineSource {
	s := &SineSource{
		channels: channels,
		fs:       sampleRate,
		noiseAmp: 0.02,
		rng:      newPRNG(1),
		epoch:    time.Now().Add(-backlog),
	}
	s.epochUnix = float64(s.epoch.UnixNano()) / 1e9
	backlogSamples := int(backlog.Seconds() * sampleRate)
	for i := 0; i < backlogSamples; i++ {
		s.queue = append(s.queue, s.generate(int64(i)))
	}
	s.nextIndex = int64(backlogSamples)
	return s
}

func (s *SineSource) generate(idx int64) queuedSample {
	t := float64(idx) / s.fs
	vals := make([]float64, len(s.channels))
	for i, ch := range s.channels {
		vals[i] = ch.Amplitude*math.Sin(2*math.Pi*ch.FreqHz*t+ch.PhaseRad) + s.noiseAmp*s.rng.next()
	}
	return queuedSample{timestamp: s.epochUnix + t, values: vals}
}

// Resolve reports the configured channel labels and sample rate. Name
// is accepted but ignored; the simulator always resolves successfully.
func (s *SineSource) Resolve(name string, timeout time.Duration) ([]string, float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, 0, fmt.Errorf("source %q: closed", name)
	}
	labels := make([]string, len(s.channels))
	for i, ch := range s.channels {
		labels[i] = ch.Label
	}
	return labels, s.fs, nil
}

// Pull drains up to maxSamples from the backlog queue, topping up with
// freshly generated real-time samples once the seeded backlog is
// exhausted, so the source behaves like a live, continuously producing
// device after the initial flush drains the seed.
func (s *SineSource) Pull(maxSamples int) (Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Chunk{}, fmt.Errorf("source closed")
	}
	s.topUp()
	if maxSamples <= 0 || len(s.queue) == 0 {
		return Chunk{}, nil
	}
	n := maxSamples
	if n > len(s.queue) {
		n = len(s.queue)
	}
	chunk := Chunk{
		Timestamps: make([]float64, n),
		Samples:    make([][]float64, n),
	}
	for i := 0; i < n; i++ {
		chunk.Timestamps[i] = s.queue[i].timestamp
		chunk.Samples[i] = s.queue[i].values
	}
	s.queue = s.queue[n:]
	return chunk, nil
}

// topUp generates samples up to "now" relative to epoch, simulating a
// live device that has been producing continuously since epoch.
func (s *SineSource) topUp() {
	elapsed := time.Since(s.epoch).Seconds()
	target := int64(elapsed * s.fs)
	for s.nextIndex < target {
		s.queue = append(s.queue, s.generate(s.nextIndex))
		s.nextIndex++
	}
}

// Close marks the source closed. Idempotent.
func (s *SineSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Backlog reports how many samples are currently queued, for tests
// that want to assert the startup flush actually drained something.
func (s *SineSource) Backlog() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// prng is a tiny deterministic linear congruential generator so the
// simulator's noise is reproducible across runs without importing
// math/rand for a single low-stakes use.
type prng struct{ state uint64 }

func newPRNG(seed uint64) *prng { return &prng{state: seed + 1} }

func (p *prng) next() float64 {
	p.state = p.state*6364136223846793005 + 1442695040888963407
	return (float64(p.state>>11) / float64(1<<53))*2 - 1
}

