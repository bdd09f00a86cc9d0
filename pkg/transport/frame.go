// Package transport implements the LatestFrameSlot, the FeatureFrame
// data model, its wire encoding, and a reference subscriber-transport
// implementation over WebSockets.
package transport

import (
	"encoding/json"
	"sort"
	"sync"
)

// TimescaleMetrics is one timescale's computed band powers and
// relaxation for a device, already rounded to two decimals for
// publication by the engine.
type TimescaleMetrics struct {
	Relaxation float64
	Alpha      float64
	Beta       float64
	Theta      float64
	Delta      float64
	Gamma      float64
}

// FeatureFrame is the per-device, per-tick record written into the
// LatestFrameSlot by the compute tick.
type FeatureFrame struct {
	DeviceID      string
	EmittedAt     float64 // unix seconds, used for the monotonicity guard
	DataAgeMS     float64
	SignalQuality map[string]float64 // per channel, in [0,1]
	Timescales    map[string]TimescaleMetrics
}

// LatestFrameSlot is a single map<device-id, FeatureFrame> read by the
// publisher and written by the compute tick, replacement semantics
// (newest wins), guarded against out-of-order writes: a newer frame
// never replaces a device entry with an older one.
type LatestFrameSlot struct {
	mu     sync.RWMutex
	frames map[string]FeatureFrame
}

// NewLatestFrameSlot constructs an empty slot.
func NewLatestFrameSlot() *LatestFrameSlot {
	return &LatestFrameSlot{frames: make(map[string]FeatureFrame)}
}

// Merge atomically replaces entries for devices present in update;
// entries for devices absent from update are retained untouched. A
// device entry is only replaced if update's EmittedAt is not older
// than the existing entry's.
func (s *LatestFrameSlot) Merge(update map[string]FeatureFrame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, frame := range update {
		if existing, ok := s.frames[id]; ok && frame.EmittedAt < existing.EmittedAt {
			continue
		}
		s.frames[id] = frame
	}
}

// Remove drops a device entry, used when an ingestor dies and the
// orchestrator removes it from the ready set.
func (s *LatestFrameSlot) Remove(deviceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.frames, deviceID)
}

// Snapshot returns a consistent copy of every device's latest frame.
func (s *LatestFrameSlot) Snapshot() map[string]FeatureFrame {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]FeatureFrame, len(s.frames))
	for id, f := range s.frames {
		out[id] = f
	}
	return out
}

// --- Wire format ---

// WireTimescale is the reduced per-timescale record published on the
// subscriber transport: relaxation, alpha, beta only.
type WireTimescale struct {
	Relaxation float64 `json:"relaxation"`
	Alpha      float64 `json:"alpha"`
	Beta       float64 `json:"beta"`
}

// WireQuality is the reduced quality block published on the wire.
type WireQuality struct {
	DataAgeMS     float64            `json:"data_age_ms"`
	SignalQuality map[string]float64 `json:"signal_quality"`
}

// WireFrame is one device's published frame.
type WireFrame struct {
	Subject          string                   `json:"subject"`
	Frontal          map[string]WireTimescale `json:"frontal"`
	Quality          WireQuality              `json:"quality"`
	FeedbackDisabled bool                     `json:"feedback_disabled,omitempty"`
}

// Serialize converts a frame snapshot into the published wire array,
// in stable device-id order, marking every frame feedback_disabled if
// feedbackEnabled is false (annotate rather than suppress; see
// DESIGN.md).
func Serialize(frames map[string]FeatureFrame, feedbackEnabled bool) ([]byte, error) {
	ids := make([]string, 0, len(frames))
	for id := range frames {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	wire := make([]WireFrame, 0, len(ids))
	for _, id := range ids {
		f := frames[id]
		wf := WireFrame{
			Subject: id,
			Frontal: make(map[string]WireTimescale, len(f.Timescales)),
			Quality: WireQuality{DataAgeMS: f.DataAgeMS, SignalQuality: f.SignalQuality},
		}
		for label, m := range f.Timescales {
			wf.Frontal[label] = WireTimescale{Relaxation: m.Relaxation, Alpha: m.Alpha, Beta: m.Beta}
		}
		if !feedbackEnabled {
			wf.FeedbackDisabled = true
		}
		wire = append(wire, wf)
	}
	return json.Marshal(wire)
}
