// Package source defines the pull-source interface the ingestor
// depends on, plus a synthetic reference implementation used by demos
// and tests. The real acquisition hardware is an external
// collaborator; this package is the one concrete implementation this
// repository ships.
package source

import "time"

// Chunk is a batch of samples returned by one Pull call, in
// chronological order.
type Chunk struct {
	Timestamps []float64   // unix seconds
	Samples    [][]float64 // Samples[i] is the channel vector at Timestamps[i]
}

// Len reports the number of samples in the chunk.
func (c Chunk) Len() int { return len(c.Timestamps) }

// Puller is the blocking pull source a StreamIngestor wraps. Resolve
// is called once at link-up; Pull is called repeatedly by the ingest
// loop, both during the startup flush (called repeatedly until it
// returns an empty chunk) and during steady-state operation; in both
// cases maxSamples is capped to ~1s of the device's rate.
type Puller interface {
	// Resolve attempts to locate and link to a named stream within
	// timeout, returning its discovered channel labels and sample rate.
	Resolve(name string, timeout time.Duration) (labels []string, sampleRate float64, err error)
	// Pull returns up to maxSamples queued samples without blocking
	// past whatever the source's internal state currently allows. An
	// empty, error-free Chunk means the source's queue is drained.
	Pull(maxSamples int) (Chunk, error)
	// Close releases the underlying source. Idempotent.
	Close() error
}
