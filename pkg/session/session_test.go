package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	cat, err := NewCatalogue()
	require.NoError(t, err)
	return NewManager(cat)
}

func TestCatalogue_ListBuiltins(t *testing.T) {
	cat, err := NewCatalogue()
	require.NoError(t, err)
	protos := cat.List()
	names := make([]string, len(protos))
	for i, p := range protos {
		names[i] = p.Key
	}
	assert.Contains(t, names, "meditation_baseline")
	assert.Contains(t, names, "quick_test")
	assert.Contains(t, names, "eyes_open_closed")
}

func TestManager_StartStopLifecycle(t *testing.T) {
	m := newTestManager(t)
	cfg, err := m.Start("quick_test", map[string]string{"muse-1": "P001"}, "n", "tester")
	require.NoError(t, err)
	assert.NotEmpty(t, cfg.SessionID)

	_, err = m.Start("quick_test", nil, "", "")
	assert.Error(t, err, "double start must fail")

	_, err = m.Stop()
	require.NoError(t, err)

	_, err = m.Stop()
	assert.Error(t, err, "stop while inactive must fail")
}

func TestManager_StatusReflectsPhase(t *testing.T) {
	m := newTestManager(t)
	_, err := m.Start("quick_test", map[string]string{"muse-1": "P001"}, "", "")
	require.NoError(t, err)

	status := m.Status(time.Now(), []string{"muse-1"})
	assert.True(t, status.Active)
	assert.Equal(t, "Test", status.Phase)
	assert.True(t, status.FeedbackEnabled)
}

func TestManager_AdvancePhaseOnElapsed(t *testing.T) {
	m := newTestManager(t)
	_, err := m.Start("eyes_open_closed", map[string]string{"muse-1": "P001"}, "", "")
	require.NoError(t, err)

	start := m.Active().phaseStartedAt
	advanced := m.Advance(start.Add(61 * time.Second))
	assert.True(t, advanced)
	status := m.Status(start.Add(61*time.Second), nil)
	assert.Equal(t, "Eyes Closed 1", status.Phase)
}

func TestProtocol_Validate(t *testing.T) {
	p := Protocol{}
	errs := p.Validate()
	assert.NotEmpty(t, errs)
}
