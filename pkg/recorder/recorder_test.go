package recorder

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_SessionRoundTrip(t *testing.T) {
	dir := t.TempDir()
	r := New(dir, 64, nil)

	labels := map[string][]string{"muse-1": {"AF7", "AF8", "TP9", "TP10"}}
	subjects := map[string]string{"muse-1": "subj-A"}
	require.NoError(t, r.Start("sess-1", subjects, "meditation_baseline", "n/a", "tester", labels))

	const n = 768 // 3s @ 256Hz
	timestamps := make([]float64, n)
	samples := make([][]float64, n)
	for i := 0; i < n; i++ {
		timestamps[i] = float64(i) / 256
		samples[i] = []float64{1, 2, 3, 4}
	}
	require.NoError(t, r.AppendBatch("muse-1", timestamps, samples))

	status := r.Status()
	assert.True(t, status.Active)
	assert.Equal(t, n, status.Counts["muse-1"])

	// duration_seconds is wall-clock time between Start and Stop, so
	// let the session actually span the 3s of samples it recorded.
	time.Sleep(3 * time.Second)

	paths, err := r.Stop()
	require.NoError(t, err)
	require.Contains(t, paths, "muse-1")

	ids, err := r.ListSessions()
	require.NoError(t, err)
	assert.Contains(t, ids, "sess-1")

	meta, err := r.SessionMetadata("sess-1")
	require.NoError(t, err)
	assert.Equal(t, n, meta.SampleCounts["muse-1"])
	assert.InDelta(t, 3.0, meta.DurationS, 2.0)
}

func TestRecorder_DoubleStartFails(t *testing.T) {
	dir := t.TempDir()
	r := New(dir, 64, nil)
	labels := map[string][]string{"muse-1": {"AF7", "AF8"}}
	require.NoError(t, r.Start("sess-1", nil, "p", "", "", labels))
	err := r.Start("sess-2", nil, "p", "", "", labels)
	assert.Error(t, err)
	_, _ = r.Stop()
}

func TestRecorder_StopWhileInactiveFails(t *testing.T) {
	dir := t.TempDir()
	r := New(dir, 64, nil)
	_, err := r.Stop()
	assert.Error(t, err)
}
