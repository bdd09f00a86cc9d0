package buffers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func newTestDevice() *Device {
	return New([]string{"AF7", "AF8", "TP9", "TP10"}, 256, 4*time.Second)
}

// The ring never holds more than capacity samples, regardless of how
// many are appended.
func TestDevice_BufferBound(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		d := newTestDevice()
		pushes := rapid.IntRange(0, 5000).Draw(rt, "pushes")
		ts := 0.0
		for i := 0; i < pushes; i++ {
			ts += 1.0 / 256
			d.Append(ts, []float64{1, 2, 3, 4})
		}
		assert.LessOrEqual(rt, d.stamps.count, d.capacity)
		for _, c := range d.channels {
			assert.LessOrEqual(rt, c.count, d.capacity)
		}
	})
}

// Monotone timestamps: appended timestamps are non-decreasing, so the
// latest-readable timestamp always reflects the most recent append.
func TestDevice_MonotoneTimestamps(t *testing.T) {
	d := newTestDevice()
	base := 1000.0
	for i := 0; i < 10; i++ {
		d.Append(base+float64(i)*0.01, []float64{1, 2, 3, 4})
	}
	age, ok := d.LatestAgeMS(base + 0.09)
	require.True(t, ok)
	assert.InDelta(t, 0, age, 1e-6)
}

// Snapshot exactness: Recent() returns owned copies that do not alias
// ring storage, so later appends never mutate a previously returned slice.
func TestDevice_SnapshotExactness(t *testing.T) {
	d := newTestDevice()
	for i := 0; i < 300; i++ {
		v := float64(i)
		d.Append(float64(i)/256, []float64{v, v, v, v})
	}
	snap, ok := d.Recent(1.0)
	require.True(t, ok)
	require.Len(t, snap["AF7"], 256)
	want := snap["AF7"][len(snap["AF7"])-1]

	d.Append(9999, []float64{-1, -1, -1, -1})
	assert.Equal(t, want, snap["AF7"][len(snap["AF7"])-1])
}

func TestDevice_RecentInsufficientData(t *testing.T) {
	d := newTestDevice()
	d.Append(0, []float64{1, 2, 3, 4})
	_, ok := d.Recent(1.0)
	assert.False(t, ok)
}

func TestDevice_StateMachine(t *testing.T) {
	d := newTestDevice()
	assert.Equal(t, Empty, d.State())
	for i := 0; i < d.Capacity()/2; i++ {
		d.Append(float64(i), []float64{1, 2, 3, 4})
	}
	assert.Equal(t, Filling, d.State())
	for i := 0; i < d.Capacity(); i++ {
		d.Append(float64(i), []float64{1, 2, 3, 4})
	}
	assert.Equal(t, Ready, d.State())
}

func TestDevice_RecordingLog(t *testing.T) {
	d := newTestDevice()
	d.Append(1, []float64{1, 2, 3, 4})
	d.Append(2, []float64{5, 6, 7, 8})
	recs := d.DrainRecording()
	require.Len(t, recs, 2)
	assert.Equal(t, 1.0, recs[0].Timestamp)
	d.ClearRecording()
	assert.Empty(t, d.DrainRecording())
}
