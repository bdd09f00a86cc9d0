package orchestrator

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exglab/neurofeedback/internal/logging"
	"github.com/exglab/neurofeedback/pkg/config"
	"github.com/exglab/neurofeedback/pkg/session"
	"github.com/exglab/neurofeedback/pkg/source"
	"github.com/exglab/neurofeedback/pkg/transport"
)

// recordingHub counts Publish calls and saves the last payload, standing
// in for transport.Hub without opening a real WebSocket listener.
type recordingHub struct {
	mu      sync.Mutex
	calls   int
	lastMsg []byte
}

func (r *recordingHub) Publish(msg []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.lastMsg = msg
}

func (r *recordingHub) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func testConfig() config.Config {
	cfg := config.Defaults()
	cfg.ComputeRateHz = 40
	cfg.PublishRateHz = 40
	cfg.RollingWindow = 2 * time.Second
	return cfg
}

func newTestOrchestrator(t *testing.T, hub transport.Subscribers) *Orchestrator {
	t.Helper()
	cfg := testConfig()
	catalogue, err := session.NewCatalogue()
	require.NoError(t, err)
	sess := session.NewManager(catalogue)
	log := logging.New("orchestrator_test", logging.LevelError, nopWriter{})
	return New(cfg, sess, hub, log)
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

func channels(labels ...string) []source.ChannelSpec {
	specs := make([]source.ChannelSpec, len(labels))
	freq := 10.0
	for i, l := range labels {
		specs[i] = source.ChannelSpec{Label: l, FreqHz: freq, Amplitude: 20}
		freq += 1.3
	}
	return specs
}

// failingPuller resolves successfully once, then errors on every Pull,
// simulating a device whose stream dies mid-session.
type failingPuller struct {
	labels     []string
	sampleRate float64
}

func (f *failingPuller) Resolve(name string, timeout time.Duration) ([]string, float64, error) {
	return f.labels, f.sampleRate, nil
}

func (f *failingPuller) Pull(maxSamples int) (source.Chunk, error) {
	return source.Chunk{}, fmt.Errorf("device disconnected")
}

func (f *failingPuller) Close() error { return nil }

func TestTwoDeviceIsolation(t *testing.T) {
	hub := &recordingHub{}
	orch := newTestOrchestrator(t, hub)
	orch.Start()
	defer orch.Shutdown()

	good := source.NewSineSource(channels("AF7", "AF8", "TP9", "TP10"), 256, 3*time.Second)
	require.NoError(t, orch.ConnectDevice("device-a", good, time.Second))

	bad := &failingPuller{labels: []string{"AF7", "AF8", "TP9", "TP10"}, sampleRate: 256}
	require.NoError(t, orch.ConnectDevice("device-b", bad, time.Second))

	assert.ElementsMatch(t, []string{"device-a", "device-b"}, orch.ConnectedDevices())

	// device-b's puller errors on every Pull so its buffer never fills
	// past what Resolve's zero-sample flush left it with; device-a
	// keeps accumulating and should reach Ready and start publishing.
	require.Eventually(t, func() bool {
		snap := orch.LatestFrameSlot().Snapshot()
		_, ok := snap["device-a"]
		return ok
	}, 2*time.Second, 20*time.Millisecond, "device-a should publish frames despite device-b failing")

	snap := orch.LatestFrameSlot().Snapshot()
	_, bPresent := snap["device-b"]
	assert.False(t, bPresent, "device-b never reaches Ready, so it should never appear in the slot")

	orch.DisconnectDevice("device-b")
	assert.ElementsMatch(t, []string{"device-a"}, orch.ConnectedDevices())

	snap = orch.LatestFrameSlot().Snapshot()
	_, bPresent = snap["device-b"]
	assert.False(t, bPresent, "Remove must drop any stale entry for a disconnected device")
}

func TestComputeBudgetUnderLoad(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping compute-budget regression in short mode")
	}
	hub := &recordingHub{}
	orch := newTestOrchestrator(t, hub)
	orch.Start()
	defer orch.Shutdown()

	for i := 0; i < 4; i++ {
		src := source.NewSineSource(channels("AF7", "AF8", "TP9", "TP10"), 256, 2*time.Second)
		require.NoError(t, orch.ConnectDevice(fmt.Sprintf("device-%d", i), src, time.Second))
	}

	require.Eventually(t, func() bool {
		return len(orch.LatestFrameSlot().Snapshot()) == 4
	}, 3*time.Second, 20*time.Millisecond, "all four devices should reach Ready")

	// Let over a hundred compute ticks (3s at 40Hz) accumulate stats.
	time.Sleep(3 * time.Second)

	stats := orch.PerformanceStats()
	assert.Less(t, stats.P95MS, 100.0, "p95 compute tick latency should stay under budget")
	assert.Less(t, stats.MaxMS, 150.0, "max compute tick latency should stay under budget")
}

func TestShutdownOrdering(t *testing.T) {
	hub := &recordingHub{}
	orch := newTestOrchestrator(t, hub)
	orch.Start()

	src := source.NewSineSource(channels("AF7", "AF8"), 256, 2*time.Second)
	require.NoError(t, orch.ConnectDevice("device-a", src, time.Second))

	require.Eventually(t, func() bool {
		return len(orch.LatestFrameSlot().Snapshot()) == 1
	}, 2*time.Second, 20*time.Millisecond)

	publishedBefore := hub.count()
	assert.Greater(t, publishedBefore, 0, "publish loop should have run at least once before shutdown")

	orch.Shutdown()

	// Shutdown stops publish and compute before anything else; no
	// further frames should land on the hub once it returns.
	countAfterShutdown := hub.count()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, countAfterShutdown, hub.count(), "no publish activity should occur after Shutdown returns")

	// Shutdown is idempotent.
	orch.Shutdown()
}

func TestHealthReport(t *testing.T) {
	hub := transport.NewHub()
	orch := newTestOrchestrator(t, hub)
	orch.Start()
	defer orch.Shutdown()

	h := orch.HealthReport()
	assert.Empty(t, h.ConnectedDevices)
	assert.False(t, h.SessionActive)

	src := source.NewSineSource(channels("AF7", "AF8"), 256, 2*time.Second)
	require.NoError(t, orch.ConnectDevice("device-a", src, time.Second))

	h = orch.HealthReport()
	assert.Equal(t, []string{"device-a"}, h.ConnectedDevices)
}
