// Package orchestrator ties every other component together: the
// compute tick, the publish tick, per-device connect/disconnect, and
// ordered teardown. It owns every other component's lifetime.
package orchestrator

import (
	"sync"
	"time"

	"github.com/exglab/neurofeedback/internal/logging"
	"github.com/exglab/neurofeedback/pkg/buffers"
	"github.com/exglab/neurofeedback/pkg/config"
	"github.com/exglab/neurofeedback/pkg/engine"
	"github.com/exglab/neurofeedback/pkg/ferrors"
	"github.com/exglab/neurofeedback/pkg/quality"
	"github.com/exglab/neurofeedback/pkg/recorder"
	"github.com/exglab/neurofeedback/pkg/session"
	"github.com/exglab/neurofeedback/pkg/source"
	"github.com/exglab/neurofeedback/pkg/transport"

	"github.com/exglab/neurofeedback/pkg/ingest"
)

// Orchestrator owns ingestors, their DeviceBuffers, the feature
// engine, the recorder, and the compute/publish ticks.
type Orchestrator struct {
	cfg   config.Config
	eng   *engine.Engine
	rec   *recorder.Recorder
	slot  *transport.LatestFrameSlot
	sess  *session.Manager
	subs  transport.Subscribers
	log   *logging.Logger
	stats rollingStats

	mu        sync.Mutex
	ingestors map[string]*ingest.Ingestor

	computeStopCh chan struct{}
	computeDoneCh chan struct{}
	publishStopCh chan struct{}
	publishDoneCh chan struct{}
	running       bool
}

// New constructs an Orchestrator. subs may be nil if no subscriber
// transport is wired yet (e.g. in unit tests that only exercise the
// compute tick).
func New(cfg config.Config, sess *session.Manager, subs transport.Subscribers, log *logging.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		eng:       engine.New(cfg.FFTWorkers, cfg.FrontalChannels, log),
		rec:       recorder.New(cfg.RecordingDir, cfg.RecorderBatchSize, log),
		slot:      transport.NewLatestFrameSlot(),
		sess:      sess,
		subs:      subs,
		log:       log,
		ingestors: make(map[string]*ingest.Ingestor),
	}
}

// ConnectDevice implements device_connect(): resolves and starts a new
// ingestor for the named stream. Returns ErrSourceUnavailable on failure.
func (o *Orchestrator) ConnectDevice(name string, puller source.Puller, resolveTimeout time.Duration) error {
	o.mu.Lock()
	if _, exists := o.ingestors[name]; exists {
		o.mu.Unlock()
		return ferrors.Wrapf(ferrors.ErrSourceUnavailable, "device %s already connected", name)
	}
	o.mu.Unlock()

	ing := ingest.New(name, puller, o.cfg.RollingWindow, o.cfg.IngestRateHz, logChild(o.log, name))
	if err := ing.Start(resolveTimeout); err != nil {
		return err
	}

	o.mu.Lock()
	o.ingestors[name] = ing
	o.mu.Unlock()
	return nil
}

func logChild(log *logging.Logger, suffix string) *logging.Logger {
	if log == nil {
		return nil
	}
	return log.With(suffix)
}

// DisconnectDevice implements device_disconnect(): stops the named
// ingestor and removes it from the ready set and the LatestFrameSlot.
func (o *Orchestrator) DisconnectDevice(name string) {
	o.mu.Lock()
	ing, ok := o.ingestors[name]
	if ok {
		delete(o.ingestors, name)
	}
	o.mu.Unlock()
	if !ok {
		return
	}
	ing.Stop()
	o.slot.Remove(name)
}

// ConnectedDevices lists currently connected device ids.
func (o *Orchestrator) ConnectedDevices() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]string, 0, len(o.ingestors))
	for id := range o.ingestors {
		out = append(out, id)
	}
	return out
}

// ConnectedChannelLabels returns each connected device's discovered
// channel labels, the shape session_start() needs to open the
// recorder's per-device files before any samples arrive.
func (o *Orchestrator) ConnectedChannelLabels() map[string][]string {
	o.mu.Lock()
	ingestors := make(map[string]*ingest.Ingestor, len(o.ingestors))
	for id, ing := range o.ingestors {
		ingestors[id] = ing
	}
	o.mu.Unlock()

	out := make(map[string][]string, len(ingestors))
	for id, ing := range ingestors {
		out[id] = ing.ChannelLabels()
	}
	return out
}

// Start spawns the compute tick and the publish tick.
func (o *Orchestrator) Start() {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return
	}
	o.running = true
	o.computeStopCh = make(chan struct{})
	o.computeDoneCh = make(chan struct{})
	o.publishStopCh = make(chan struct{})
	o.publishDoneCh = make(chan struct{})
	o.mu.Unlock()

	go o.computeLoop()
	go o.publishLoop()
}

func (o *Orchestrator) computeLoop() {
	defer close(o.computeDoneCh)
	period := time.Duration(float64(time.Second) / o.cfg.ComputeRateHz)
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-o.computeStopCh:
			return
		case <-ticker.C:
			start := time.Now()
			o.computeTick()
			elapsed := time.Since(start)
			o.stats.add(float64(elapsed.Microseconds()) / 1000.0)
			if elapsed > period {
				if o.log != nil {
					o.log.Warn("compute tick over budget: %v > %v", elapsed, period)
				}
			}
			if elapsed < period {
				time.Sleep(period - elapsed)
			}
		}
	}
}

func (o *Orchestrator) computeTick() {
	o.mu.Lock()
	ingestors := make(map[string]*ingest.Ingestor, len(o.ingestors))
	for id, ing := range o.ingestors {
		ingestors[id] = ing
	}
	o.mu.Unlock()

	snapshots := make([]engine.Snapshot, 0, len(ingestors))
	devices := make(map[string]*buffers.Device, len(ingestors))
	rawSamples := make(map[string]map[string][]float64, len(ingestors))
	for id, ing := range ingestors {
		d := ing.Device()
		if d == nil || d.State() != buffers.Ready {
			continue
		}
		samples := d.RecentAll()
		if samples == nil {
			continue
		}
		snapshots = append(snapshots, engine.Snapshot{DeviceID: id, SampleRate: d.SampleRate(), Channels: samples})
		devices[id] = d
		rawSamples[id] = samples
	}

	o.recordTick(ingestors)

	byDevice := o.eng.ComputeMultiTimescale(snapshots)

	now := float64(time.Now().UnixNano()) / 1e9
	update := make(map[string]transport.FeatureFrame, len(byDevice))
	for id, timescales := range byDevice {
		d := devices[id]
		ageMS, _ := d.LatestAgeMS(now)
		sigQuality := o.perChannelQuality(d, rawSamples[id])

		frame := transport.FeatureFrame{
			DeviceID:      id,
			EmittedAt:     now,
			DataAgeMS:     ageMS,
			SignalQuality: sigQuality,
		}
		update[id] = convertFrame(timescales, frame)
	}

	o.slot.Merge(update)
}

// recordTick drains every connected device's unbounded recording log
// every tick, regardless of whether the device has reached Ready: the
// recorder's lossless log must not depend on the rolling-window
// readiness threshold the feature engine uses. Drained records are
// appended to the recorder only while a session is active; otherwise
// they are discarded here so the log never grows unbounded between
// sessions.
func (o *Orchestrator) recordTick(ingestors map[string]*ingest.Ingestor) {
	active := o.rec.Status().Active
	for id, ing := range ingestors {
		d := ing.Device()
		if d == nil {
			continue
		}
		records := d.DrainRecording()
		if len(records) == 0 {
			continue
		}
		d.ClearRecording()
		if !active {
			continue
		}
		timestamps := make([]float64, len(records))
		samples := make([][]float64, len(records))
		for i, r := range records {
			timestamps[i] = r.Timestamp
			samples[i] = r.Sample
		}
		if err := o.rec.AppendBatch(id, timestamps, samples); err != nil && o.log != nil {
			o.log.Warn("recorder: append %s failed: %v", id, err)
		}
	}
}

// perChannelQuality defaults to fill ratio; when cfg.SignalQuality is
// set it instead feeds pkg/quality's estimator (see DESIGN.md).
func (o *Orchestrator) perChannelQuality(d *buffers.Device, samples map[string][]float64) map[string]float64 {
	labels := d.ChannelLabels()
	out := make(map[string]float64, len(labels))
	if !o.cfg.SignalQuality || samples == nil {
		fillRatio := d.FillRatio()
		for _, ch := range labels {
			out[ch] = fillRatio
		}
		return out
	}
	for _, ch := range labels {
		out[ch] = o.assessChannel(samples[ch])
	}
	return out
}

// convertFrame copies engine.DeviceMetrics per timescale into the
// transport.FeatureFrame's Timescales map.
func convertFrame(byScale map[string]engine.DeviceMetrics, frame transport.FeatureFrame) transport.FeatureFrame {
	frame.Timescales = make(map[string]transport.TimescaleMetrics, len(byScale))
	for label, m := range byScale {
		frame.Timescales[label] = transport.TimescaleMetrics{
			Relaxation: m.Relaxation,
			Alpha:      m.Powers.Alpha,
			Beta:       m.Powers.Beta,
			Theta:      m.Powers.Theta,
			Delta:      m.Powers.Delta,
			Gamma:      m.Powers.Gamma,
		}
	}
	return frame
}

func (o *Orchestrator) publishLoop() {
	defer close(o.publishDoneCh)
	period := time.Duration(float64(time.Second) / o.cfg.PublishRateHz)
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-o.publishStopCh:
			return
		case <-ticker.C:
			start := time.Now()
			o.publishTick()
			elapsed := time.Since(start)
			if elapsed < period {
				time.Sleep(period - elapsed)
			}
		}
	}
}

func (o *Orchestrator) publishTick() {
	snap := o.slot.Snapshot()
	feedbackEnabled := o.sess != nil && o.sess.FeedbackEnabled()
	data, err := transport.Serialize(snap, feedbackEnabled)
	if err != nil {
		if o.log != nil {
			o.log.Error("publish: serialize failed: %v", err)
		}
		return
	}
	if o.subs != nil {
		o.subs.Publish(data)
	}
}

// PerformanceStats reports calc_loop_avg_ms/calc_loop_max_ms, the
// performance block of a health report.
type PerformanceStats struct {
	AvgMS float64 `json:"calc_loop_avg_ms"`
	MaxMS float64 `json:"calc_loop_max_ms"`
	P95MS float64 `json:"calc_loop_p95_ms"`
}

// PerformanceStats returns the current rolling compute-tick statistics.
func (o *Orchestrator) PerformanceStats() PerformanceStats {
	return PerformanceStats{AvgMS: o.stats.avg(), MaxMS: o.stats.max(), P95MS: o.stats.percentile(95)}
}

// Health is the health() response shape: connected devices, active
// WebSocket subscriber count, whether a session is active, and the
// rolling compute-tick performance stats.
type Health struct {
	ConnectedDevices []string         `json:"connected_devices"`
	WSClients        int              `json:"ws_clients"`
	SessionActive    bool             `json:"session_active"`
	Performance      PerformanceStats `json:"performance"`
}

// HealthReport assembles the health() response.
func (o *Orchestrator) HealthReport() Health {
	h := Health{
		ConnectedDevices: o.ConnectedDevices(),
		Performance:      o.PerformanceStats(),
	}
	if hub, ok := o.subs.(*transport.Hub); ok {
		h.WSClients = hub.ClientCount()
	}
	if o.sess != nil {
		h.SessionActive = o.sess.Active() != nil
	}
	return h
}

// Recorder exposes the owned Recorder for session wiring.
func (o *Orchestrator) Recorder() *recorder.Recorder { return o.rec }

// LatestFrameSlot exposes the owned slot, e.g. for diagnostics.
func (o *Orchestrator) LatestFrameSlot() *transport.LatestFrameSlot { return o.slot }

// assessChannel is exercised only when cfg.SignalQuality is set.
func (o *Orchestrator) assessChannel(samples []float64) float64 {
	return quality.Assess(samples).Score
}

// Shutdown tears everything down in order: publish -> compute ->
// ingest -> recorder.stop -> engine.
func (o *Orchestrator) Shutdown() {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return
	}
	o.running = false
	publishStop, publishDone := o.publishStopCh, o.publishDoneCh
	computeStop, computeDone := o.computeStopCh, o.computeDoneCh
	ingestors := make(map[string]*ingest.Ingestor, len(o.ingestors))
	for id, ing := range o.ingestors {
		ingestors[id] = ing
	}
	o.ingestors = make(map[string]*ingest.Ingestor)
	o.mu.Unlock()

	close(publishStop)
	select {
	case <-publishDone:
	case <-time.After(2 * time.Second):
	}

	close(computeStop)
	select {
	case <-computeDone:
	case <-time.After(2 * time.Second):
	}

	for _, ing := range ingestors {
		ing.Stop()
	}

	if o.rec.Status().Active {
		if _, err := o.rec.Stop(); err != nil && o.log != nil {
			o.log.Warn("shutdown: recorder stop: %v", err)
		}
	}

	o.eng.Close()
}
