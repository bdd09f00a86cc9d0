// Package buffers implements per-channel bounded ring buffers plus a
// monotonically-growing recording log, with thread-safe reads of "the
// last N seconds" and age-of-latest.
package buffers

import (
	"sync"
	"time"
)

// State is the Empty -> Filling -> Ready lifecycle of a Device.
type State int

const (
	Empty State = iota
	Filling
	Ready
)

func (s State) String() string {
	switch s {
	case Empty:
		return "empty"
	case Filling:
		return "filling"
	case Ready:
		return "ready"
	default:
		return "unknown"
	}
}

// readyFillRatio is the fill_ratio threshold at which a Device becomes Ready.
const readyFillRatio = 0.9

// Record is one (timestamp, sample vector) pair in the recording log.
type Record struct {
	Timestamp float64
	Sample    []float64
}

// Device owns every buffer for a single connected device: one bounded
// ring per channel, a parallel timestamp ring, and an unbounded
// recording log. All channel rings and the timestamp ring share
// length and head position at every externally observable point.
type Device struct {
	mu       sync.Mutex
	labels   []string
	index    map[string]int
	fs       float64
	capacity int
	channels []*ring
	stamps   *ring
	recLog   []Record
}

// New constructs a Device with one ring per channel label, each sized
// to hold windowMax seconds at sampleRate.
func New(labels []string, sampleRate float64, windowMax time.Duration) *Device {
	capacity := int(windowMax.Seconds() * sampleRate)
	if capacity < 1 {
		capacity = 1
	}
	idx := make(map[string]int, len(labels))
	channels := make([]*ring, len(labels))
	for i, l := range labels {
		idx[l] = i
		channels[i] = newRing(capacity)
	}
	return &Device{
		labels:   append([]string(nil), labels...),
		index:    idx,
		fs:       sampleRate,
		capacity: capacity,
		channels: channels,
		stamps:   newRing(capacity),
	}
}

// ChannelLabels returns the device's channel labels in fixed order.
func (d *Device) ChannelLabels() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.labels...)
}

// SampleRate returns the device's nominal sample rate.
func (d *Device) SampleRate() float64 { return d.fs }

// Capacity returns the ring capacity in samples (W_max * f_s).
func (d *Device) Capacity() int { return d.capacity }

// Append adds one sample vector (len == len(labels)) at timestamp t,
// atomically across every channel ring, the timestamp ring, and the
// recording log, under a single acquisition of the device lock.
func (d *Device) Append(timestamp float64, sample []float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.appendLocked(timestamp, sample)
}

// AppendBatch appends multiple samples in order, holding the lock once.
func (d *Device) AppendBatch(timestamps []float64, samples [][]float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, t := range timestamps {
		d.appendLocked(t, samples[i])
	}
}

func (d *Device) appendLocked(timestamp float64, sample []float64) {
	for i, c := range d.channels {
		if i < len(sample) {
			c.push(sample[i])
		}
	}
	d.stamps.push(timestamp)
	cp := append([]float64(nil), sample...)
	d.recLog = append(d.recLog, Record{Timestamp: timestamp, Sample: cp})
}

// FillRatio returns len/capacity using the timestamp ring's count.
func (d *Device) FillRatio() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.capacity == 0 {
		return 0
	}
	return float64(d.stamps.count) / float64(d.capacity)
}

// State returns the buffer's Empty/Filling/Ready lifecycle state.
func (d *Device) State() State {
	ratio := d.FillRatio()
	switch {
	case ratio <= 0:
		return Empty
	case ratio >= readyFillRatio:
		return Ready
	default:
		return Filling
	}
}

// LatestAgeMS returns (now - latest_timestamp) * 1000, or ok=false if empty.
// now is unix seconds, supplied by the caller so this stays pure and testable.
func (d *Device) LatestAgeMS(nowUnixSeconds float64) (ms float64, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	latest, present := d.stamps.latest()
	if !present {
		return 0, false
	}
	return (nowUnixSeconds - latest) * 1000, true
}

// Recent returns the n = floor(durationS * f_s) most-recent samples
// per channel label, or ok=false if fewer than n are available.
// Returned slices are owned copies, never aliasing ring storage.
func (d *Device) Recent(durationS float64) (samples map[string][]float64, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := int(durationS * d.fs)
	if n <= 0 {
		return nil, false
	}
	out := make(map[string][]float64, len(d.labels))
	for i, label := range d.labels {
		vals, present := d.channels[i].last(n)
		if !present {
			return nil, false
		}
		out[label] = vals
	}
	return out, true
}

// DrainRecording returns a copy of the recording log without clearing it.
func (d *Device) DrainRecording() []Record {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Record, len(d.recLog))
	copy(out, d.recLog)
	return out
}

// ClearRecording empties the recording log.
func (d *Device) ClearRecording() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.recLog = nil
}
