package source

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testChannels() []ChannelSpec {
	return []ChannelSpec{
		{Label: "AF7", FreqHz: 10, Amplitude: 1},
		{Label: "AF8", FreqHz: 10, Amplitude: 1, PhaseRad: 0.1},
		{Label: "TP9", FreqHz: 5, Amplitude: 0.5},
		{Label: "TP10", FreqHz: 5, Amplitude: 0.5, PhaseRad: 0.1},
	}
}

func TestSineSource_ResolveReportsLabelsAndRate(t *testing.T) {
	src := NewSineSource(testChannels(), 256, 0)
	labels, fs, err := src.Resolve("muse-1", time.Second)
	require.NoError(t, err)
	assert.Equal(t, []string{"AF7", "AF8", "TP9", "TP10"}, labels)
	assert.Equal(t, 256.0, fs)
}

func TestSineSource_SeededBacklogDrainable(t *testing.T) {
	src := NewSineSource(testChannels(), 256, 2*time.Second)
	assert.Equal(t, 512, src.Backlog())

	total := 0
	for {
		chunk, err := src.Pull(256)
		require.NoError(t, err)
		if chunk.Len() == 0 {
			break
		}
		total += chunk.Len()
		if total > 10000 {
			t.Fatal("backlog never drained")
		}
	}
	assert.GreaterOrEqual(t, total, 512)
}

func TestSineSource_PullAfterClose(t *testing.T) {
	src := NewSineSource(testChannels(), 256, 0)
	require.NoError(t, src.Close())
	require.NoError(t, src.Close()) // idempotent
	_, err := src.Pull(10)
	assert.Error(t, err)
}

func TestSineSource_ChunkTimestampsMonotonic(t *testing.T) {
	src := NewSineSource(testChannels(), 256, time.Second)
	chunk, err := src.Pull(256)
	require.NoError(t, err)
	for i := 1; i < chunk.Len(); i++ {
		assert.GreaterOrEqual(t, chunk.Timestamps[i], chunk.Timestamps[i-1])
	}
}
