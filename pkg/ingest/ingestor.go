// Package ingest implements one dedicated loop per device, wrapping a
// blocking pull source, performing a one-time startup flush before
// appending anything to DeviceBuffers.
package ingest

import (
	"sync"
	"time"

	"github.com/exglab/neurofeedback/internal/logging"
	"github.com/exglab/neurofeedback/pkg/buffers"
	"github.com/exglab/neurofeedback/pkg/ferrors"
	"github.com/exglab/neurofeedback/pkg/source"
)

const (
	// defaultLoopPeriod is the 20 Hz nominal ingest cadence, used when
	// New is given a non-positive ingestRateHz.
	defaultLoopPeriod = 50 * time.Millisecond
	// unhealthyThreshold is the number of consecutive pull errors
	// after which the ingestor reports itself unhealthy while still
	// running.
	unhealthyThreshold = 10
	// stopGrace bounds how long Stop waits for the loop to exit.
	stopGrace = 2 * time.Second
)

// Ingestor is StreamIngestor for a single device.
type Ingestor struct {
	name       string
	puller     source.Puller
	windowMax  time.Duration
	loopPeriod time.Duration
	log        *logging.Logger

	mu           sync.RWMutex
	labels       []string
	sampleRate   float64
	device       *buffers.Device
	flushed      int
	healthy      bool
	consecErrors int
	running      bool

	stopCh chan struct{}
	doneCh chan struct{}
}

// New constructs an Ingestor for a named device stream. windowMax is
// forwarded to the DeviceBuffers created on Start. ingestRateHz sets
// the pull loop's cadence; a non-positive value falls back to the 20
// Hz default.
func New(name string, puller source.Puller, windowMax time.Duration, ingestRateHz float64, log *logging.Logger) *Ingestor {
	period := defaultLoopPeriod
	if ingestRateHz > 0 {
		period = time.Duration(float64(time.Second) / ingestRateHz)
	}
	return &Ingestor{name: name, puller: puller, windowMax: windowMax, loopPeriod: period, log: log}
}

// Start resolves the named stream within resolveTimeout, performs the
// startup flush, then spawns the dedicated ingest loop.
func (g *Ingestor) Start(resolveTimeout time.Duration) error {
	labels, fs, err := g.puller.Resolve(g.name, resolveTimeout)
	if err != nil {
		return ferrors.Wrapf(ferrors.ErrSourceUnavailable, "%s: %v", g.name, err)
	}

	device := buffers.New(labels, fs, g.windowMax)

	g.mu.Lock()
	g.labels = labels
	g.sampleRate = fs
	g.device = device
	g.healthy = true
	g.consecErrors = 0
	g.mu.Unlock()

	flushed := g.flush()

	g.mu.Lock()
	g.flushed = flushed
	g.running = true
	g.mu.Unlock()

	if g.log != nil {
		g.log.Info("%s: started, labels=%v fs=%.1f flushed=%d", g.name, labels, fs, flushed)
	}

	g.stopCh = make(chan struct{})
	g.doneCh = make(chan struct{})
	go g.loop()
	return nil
}

// flush drains the source's backlog before any sample reaches
// DeviceBuffers, so a freshly connected device starts from live data
// instead of a stale queue.
func (g *Ingestor) flush() int {
	discarded := 0
	for {
		chunk, err := g.puller.Pull(maxChunkSamples(g.sampleRate))
		if err != nil {
			if g.log != nil {
				g.log.Warn("%s: flush pull error: %v", g.name, err)
			}
			break
		}
		if chunk.Len() == 0 {
			break
		}
		discarded += chunk.Len()
	}
	return discarded
}

func maxChunkSamples(fs float64) int {
	n := int(fs) // ~1s of samples
	if n < 1 {
		n = 256
	}
	return n
}

func (g *Ingestor) loop() {
	defer close(g.doneCh)
	ticker := time.NewTicker(g.loopPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-g.stopCh:
			return
		case <-ticker.C:
			start := time.Now()
			g.tick()
			elapsed := time.Since(start)
			if elapsed < g.loopPeriod {
				time.Sleep(g.loopPeriod - elapsed)
			}
		}
	}
}

func (g *Ingestor) tick() {
	g.mu.RLock()
	fs := g.sampleRate
	device := g.device
	g.mu.RUnlock()

	chunk, err := g.puller.Pull(maxChunkSamples(fs))
	if err != nil {
		g.mu.Lock()
		g.consecErrors++
		if g.consecErrors > unhealthyThreshold {
			g.healthy = false
		}
		g.mu.Unlock()
		if g.log != nil {
			g.log.Warn("%s: pull error: %v", g.name, err)
		}
		return
	}
	if chunk.Len() == 0 {
		return
	}
	device.AppendBatch(chunk.Timestamps, chunk.Samples)

	g.mu.Lock()
	g.consecErrors = 0
	g.healthy = true
	g.mu.Unlock()
}

// Stop signals the loop to exit and joins it within stopGrace. Idempotent.
func (g *Ingestor) Stop() {
	g.mu.Lock()
	if !g.running {
		g.mu.Unlock()
		return
	}
	g.running = false
	stopCh, doneCh := g.stopCh, g.doneCh
	g.mu.Unlock()

	close(stopCh)
	select {
	case <-doneCh:
	case <-time.After(stopGrace):
	}
	_ = g.puller.Close()
}

// Device returns the DeviceBuffers owned by this ingestor, nil before Start.
func (g *Ingestor) Device() *buffers.Device {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.device
}

// ChannelLabels is a diagnostic read of the discovered channel labels.
func (g *Ingestor) ChannelLabels() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string(nil), g.labels...)
}

// SampleRate is a diagnostic read of the discovered sample rate.
func (g *Ingestor) SampleRate() float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.sampleRate
}

// Healthy reports whether consecutive pull errors have stayed within threshold.
func (g *Ingestor) Healthy() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.healthy
}

// FlushedCount returns how many samples the startup flush discarded.
func (g *Ingestor) FlushedCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.flushed
}

// LatestAgeMS delegates to the owned DeviceBuffers.
func (g *Ingestor) LatestAgeMS(nowUnixSeconds float64) (float64, bool) {
	d := g.Device()
	if d == nil {
		return 0, false
	}
	return d.LatestAgeMS(nowUnixSeconds)
}

// FillRatio delegates to the owned DeviceBuffers.
func (g *Ingestor) FillRatio() float64 {
	d := g.Device()
	if d == nil {
		return 0
	}
	return d.FillRatio()
}
