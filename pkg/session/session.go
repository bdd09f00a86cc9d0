package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/exglab/neurofeedback/pkg/ferrors"
)

// LifecyclePhase enumerates the session lifecycle states, ported from
// the original's SessionPhase enum.
type LifecyclePhase string

const (
	Idle      LifecyclePhase = "idle"
	Baseline  LifecyclePhase = "baseline"
	Training  LifecyclePhase = "training"
	Cooldown  LifecyclePhase = "cooldown"
	Paused    LifecyclePhase = "paused"
	Completed LifecyclePhase = "completed"
)

// Config is a running session's configuration: session id, protocol,
// device -> subject mapping, start timestamp, notes/experimenter, and
// a phase cursor (index into Protocol.Phases plus phase-start
// timestamp).
type Config struct {
	SessionID    string
	Protocol     Protocol
	SubjectIDs   map[string]string
	StartTime    time.Time
	Notes        string
	Experimenter string

	phaseIndex     int
	phaseStartedAt time.Time
}

// Status is the session_status() response shape.
type Status struct {
	Active          bool     `json:"active"`
	SessionID       string   `json:"session_id,omitempty"`
	Protocol        string   `json:"protocol,omitempty"`
	Phase           string   `json:"phase"`
	ElapsedS        float64  `json:"elapsed_s"`
	RemainingS      float64  `json:"remaining_s"`
	Devices         []string `json:"devices"`
	FeedbackEnabled bool     `json:"feedback_enabled"`
	Instructions    string   `json:"instructions,omitempty"`
}

// Manager owns the single active session, created on session_start iff
// no session is active, destroyed on session_stop.
type Manager struct {
	mu        sync.Mutex
	catalogue *Catalogue
	active    *Config
}

// NewManager constructs a Manager over the given protocol catalogue.
func NewManager(catalogue *Catalogue) *Manager {
	return &Manager{catalogue: catalogue}
}

// Start begins a session iff none is active.
func (m *Manager) Start(protocolName string, subjectIDs map[string]string, notes, experimenter string) (*Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active != nil {
		return nil, ferrors.Wrap(ferrors.ErrSessionConflict, "session already active")
	}
	proto, ok := m.catalogue.Get(protocolName)
	if !ok {
		return nil, ferrors.Wrapf(ferrors.ErrSessionConflict, "unknown protocol %q", protocolName)
	}
	now := time.Now()
	cfg := &Config{
		SessionID:      uuid.NewString(),
		Protocol:       proto,
		SubjectIDs:     subjectIDs,
		StartTime:      now,
		Notes:          notes,
		Experimenter:   experimenter,
		phaseIndex:     0,
		phaseStartedAt: now,
	}
	m.active = cfg
	return cfg, nil
}

// Stop ends the active session. Fails if none is active.
func (m *Manager) Stop() (*Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return nil, ferrors.Wrap(ferrors.ErrSessionConflict, "no active session")
	}
	cfg := m.active
	m.active = nil
	return cfg, nil
}

// Active returns the active session config, or nil.
func (m *Manager) Active() *Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Advance moves the phase cursor forward as wall-clock time passes
// the current phase's duration, returning true if it advanced.
func (m *Manager) Advance(now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg := m.active
	if cfg == nil {
		return false
	}
	advanced := false
	for cfg.phaseIndex < len(cfg.Protocol.Phases) {
		ph := cfg.Protocol.Phases[cfg.phaseIndex]
		elapsed := now.Sub(cfg.phaseStartedAt).Seconds()
		if elapsed < ph.DurationSeconds {
			break
		}
		if cfg.phaseIndex == len(cfg.Protocol.Phases)-1 {
			break
		}
		cfg.phaseIndex++
		cfg.phaseStartedAt = cfg.phaseStartedAt.Add(time.Duration(ph.DurationSeconds * float64(time.Second)))
		advanced = true
	}
	return advanced
}

// FeedbackEnabled reports whether the current phase has feedback
// enabled, the signal the publish tick reads before each publish.
func (m *Manager) FeedbackEnabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil || m.active.phaseIndex >= len(m.active.Protocol.Phases) {
		return false
	}
	return m.active.Protocol.Phases[m.active.phaseIndex].FeedbackEnabled
}

// Status assembles session_status(), given the current device ids.
func (m *Manager) Status(now time.Time, devices []string) Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return Status{Active: false, Phase: string(Idle)}
	}
	cfg := m.active
	elapsed := now.Sub(cfg.StartTime).Seconds()
	var phaseName, instructions string
	var remaining float64
	feedback := false
	if cfg.phaseIndex < len(cfg.Protocol.Phases) {
		ph := cfg.Protocol.Phases[cfg.phaseIndex]
		phaseName = ph.Name
		instructions = ph.Instructions
		feedback = ph.FeedbackEnabled
		phaseElapsed := now.Sub(cfg.phaseStartedAt).Seconds()
		remaining = ph.DurationSeconds - phaseElapsed
		if remaining < 0 {
			remaining = 0
		}
	}
	return Status{
		Active:          true,
		SessionID:       cfg.SessionID,
		Protocol:        cfg.Protocol.Name,
		Phase:           phaseName,
		ElapsedS:        elapsed,
		RemainingS:      remaining,
		Devices:         devices,
		FeedbackEnabled: feedback,
		Instructions:    instructions,
	}
}
