// Package engine implements the multi-scale feature engine: a bounded
// worker pool that fans out per-device band-power extraction across
// three timescales, derives the relaxation score, and classifies the
// trend across timescales. The pool is long-lived rather than spawned
// per tick, the same spawn-goroutines-and-communicate-via-channels
// idiom used for stream and recording loops elsewhere, generalized
// into a reusable pool.
package engine

import (
	"fmt"
	"time"

	"github.com/exglab/neurofeedback/internal/logging"
	"github.com/exglab/neurofeedback/pkg/spectral"
)

// Timescales are the three fixed windows the engine maintains.
var Timescales = []struct {
	Label   string
	Seconds float64
}{
	{"1s", 1}, {"2s", 2}, {"4s", 4},
}

// Quality is the per-computation diagnostic block attached to a DeviceMetrics.
type Quality struct {
	Timescale   string
	Channels    []string
	SampleCount int
	ElapsedMS   float64
}

// DeviceMetrics is one timescale's worth of computed features for one device.
type DeviceMetrics struct {
	Powers        spectral.Powers // rounded to 2 d.p. for publication
	Relaxation    float64         // rounded to 2 d.p. for publication
	RawRelaxation float64         // full precision, trend classification only
	Quality       Quality
}

// Snapshot is one device's frontal-channel sample window, bounded by
// the rolling window by the caller (the orchestrator, reading from
// DeviceBuffers.RecentAll). The engine truncates further per
// timescale.
type Snapshot struct {
	DeviceID   string
	SampleRate float64
	Channels   map[string][]float64
}

// Trend is the cross-timescale classification.
type Trend string

const (
	Improving Trend = "IMPROVING"
	Declining Trend = "DECLINING"
	Stable    Trend = "STABLE"
	Unknown   Trend = "UNKNOWN"
)

// trendTheta is the relative-change threshold θ for trend classification.
const trendTheta = 0.05

type job struct {
	deviceID   string
	timescale  string
	timescaleS float64
	channels   map[string][]float64
	sampleRate float64
}

type result struct {
	deviceID  string
	timescale string
	metrics   DeviceMetrics
}

// Engine is MultiScaleFeatureEngine: a bounded worker pool plus the
// frontal-channel pair used for every compute() call.
type Engine struct {
	kernel  *spectral.Kernel
	frontal [2]string
	jobs    chan job
	results chan result
	done    chan struct{}
	log     *logging.Logger
}

// New starts a pool of workers workers (size >= number of devices,
// default 4) and returns a ready Engine. frontal is the pair of
// channel labels treated as the two frontal channels. log may be nil,
// in which case a device missing a frontal channel is skipped silently.
func New(workers int, frontal [2]string, log *logging.Logger) *Engine {
	if workers < 1 {
		workers = 1
	}
	e := &Engine{
		kernel:  spectral.NewKernel(),
		frontal: frontal,
		jobs:    make(chan job, workers*4),
		results: make(chan result, workers*4),
		done:    make(chan struct{}),
		log:     log,
	}
	for i := 0; i < workers; i++ {
		go e.worker()
	}
	return e
}

func (e *Engine) worker() {
	for {
		select {
		case <-e.done:
			return
		case j, ok := <-e.jobs:
			if !ok {
				return
			}
			e.results <- result{deviceID: j.deviceID, timescale: j.timescale, metrics: e.process(j)}
		}
	}
}

func (e *Engine) process(j job) DeviceMetrics {
	start := time.Now()
	n := int(j.timescaleS * j.sampleRate)

	a := truncateLast(j.channels[e.frontal[0]], n)
	b := truncateLast(j.channels[e.frontal[1]], n)

	resA := e.kernel.BandPowers(a, j.sampleRate)
	resB := e.kernel.BandPowers(b, j.sampleRate)
	avg := spectral.Average(resA.Powers, resB.Powers)

	relaxation := 0.0
	if avg.Beta != 0 {
		relaxation = avg.Alpha / avg.Beta
	}

	return DeviceMetrics{
		Powers:        avg.Round(2),
		Relaxation:    roundTo(relaxation, 2),
		RawRelaxation: relaxation,
		Quality: Quality{
			Timescale:   j.timescale,
			Channels:    []string{e.frontal[0], e.frontal[1]},
			SampleCount: len(a),
			ElapsedMS:   float64(time.Since(start).Microseconds()) / 1000.0,
		},
	}
}

func truncateLast(samples []float64, n int) []float64 {
	if n <= 0 || len(samples) == 0 {
		return nil
	}
	if n > len(samples) {
		n = len(samples)
	}
	return samples[len(samples)-n:]
}

func roundTo(v float64, decimals int) float64 {
	mul := 1.0
	for i := 0; i < decimals; i++ {
		mul *= 10
	}
	r := v * mul
	if r >= 0 {
		r += 0.5
	} else {
		r -= 0.5
	}
	return float64(int64(r)) / mul
}

// Compute runs one timescale, across every device in snapshots with
// both frontal channels present. Devices missing a frontal channel
// are omitted from the result, with a warning.
func (e *Engine) Compute(snapshots []Snapshot, timescaleS float64, label string) map[string]DeviceMetrics {
	out := make(map[string]DeviceMetrics, len(snapshots))
	pending := 0
	for _, s := range snapshots {
		if !hasFrontal(s.Channels, e.frontal) {
			e.warnMissingFrontal(s.DeviceID)
			continue
		}
		e.jobs <- job{deviceID: s.DeviceID, timescale: label, timescaleS: timescaleS, channels: s.Channels, sampleRate: s.SampleRate}
		pending++
	}
	for i := 0; i < pending; i++ {
		r := <-e.results
		out[r.deviceID] = r.metrics
	}
	return out
}

// ComputeMultiTimescale runs all three timescales across every ready
// device, result collection unordered, per-device failures isolated.
// A device missing a frontal channel is omitted from the frame with a
// warning rather than failing the whole tick.
func (e *Engine) ComputeMultiTimescale(snapshots []Snapshot) map[string]map[string]DeviceMetrics {
	out := make(map[string]map[string]DeviceMetrics, len(snapshots))
	pending := 0
	for _, s := range snapshots {
		if !hasFrontal(s.Channels, e.frontal) {
			e.warnMissingFrontal(s.DeviceID)
			continue
		}
		out[s.DeviceID] = make(map[string]DeviceMetrics, len(Timescales))
		for _, ts := range Timescales {
			e.jobs <- job{deviceID: s.DeviceID, timescale: ts.Label, timescaleS: ts.Seconds, channels: s.Channels, sampleRate: s.SampleRate}
			pending++
		}
	}
	for i := 0; i < pending; i++ {
		r := <-e.results
		out[r.deviceID][r.timescale] = r.metrics
	}
	return out
}

func hasFrontal(channels map[string][]float64, frontal [2]string) bool {
	_, okA := channels[frontal[0]]
	_, okB := channels[frontal[1]]
	return okA && okB
}

func (e *Engine) warnMissingFrontal(deviceID string) {
	if e.log == nil {
		return
	}
	e.log.Warn("%s: missing frontal channel %s/%s, omitted from this frame", deviceID, e.frontal[0], e.frontal[1])
}

// Close shuts down the worker pool. It does not drain in-flight jobs;
// callers must stop submitting before calling Close.
func (e *Engine) Close() {
	close(e.done)
}

// DeriveTrend is the pure trend classification. byTimescale holds the
// DeviceMetrics produced this tick keyed by "1s", "2s", "4s"; if any of
// the three is missing the result is Unknown. It classifies on
// RawRelaxation, never the rounded Relaxation field, so that trend
// decisions aren't distorted by publication rounding.
func DeriveTrend(byTimescale map[string]DeviceMetrics) Trend {
	fastM, fastOK := byTimescale["1s"]
	balM, balOK := byTimescale["2s"]
	slowM, slowOK := byTimescale["4s"]
	if !fastOK || !balOK || !slowOK {
		return Unknown
	}
	fast, bal, slow := fastM.RawRelaxation, balM.RawRelaxation, slowM.RawRelaxation

	switch {
	case fast > bal*(1+trendTheta) && bal > slow*(1+trendTheta):
		return Improving
	case fast < bal*(1-trendTheta) && bal < slow*(1-trendTheta):
		return Declining
	default:
		return Stable
	}
}

// String makes Trend satisfy fmt.Stringer for logging.
func (t Trend) String() string { return string(t) }

var _ fmt.Stringer = Stable
