// Package session implements session configuration, the protocol
// catalogue, and session lifecycle, ported from session/manager.py.
// ProtocolPhase and ExperimentalProtocol are ported directly, the YAML
// catalogue replacing the Python module's BUILTIN_PROTOCOLS literal.
package session

import "time"

// Phase is a single timed phase within a Protocol.
type Phase struct {
	Name             string  `yaml:"name"`
	DurationSeconds  float64 `yaml:"duration_seconds"`
	Instructions     string  `yaml:"instructions"`
	FeedbackEnabled  bool    `yaml:"feedback_enabled"`
}

// Protocol is a complete experimental protocol specification.
type Protocol struct {
	Key            string            `yaml:"-"`
	Name           string            `yaml:"name"`
	Description    string            `yaml:"description"`
	Phases         []Phase           `yaml:"phases"`
	MinDevices     int               `yaml:"min_devices"`
	MaxDevices     int               `yaml:"max_devices"`
	FeedbackConfig map[string]string `yaml:"feedback_config"`
}

// TotalDuration sums every phase's duration.
func (p Protocol) TotalDuration() time.Duration {
	var total float64
	for _, ph := range p.Phases {
		total += ph.DurationSeconds
	}
	return time.Duration(total * float64(time.Second))
}

// Validate reports configuration errors, ported from the original's
// ExperimentalProtocol.validate().
func (p Protocol) Validate() []string {
	var errs []string
	if p.Name == "" {
		errs = append(errs, "protocol name is required")
	}
	if len(p.Phases) == 0 {
		errs = append(errs, "protocol must have at least one phase")
	}
	if p.MinDevices < 1 {
		errs = append(errs, "min_devices must be >= 1")
	}
	if p.MaxDevices < p.MinDevices {
		errs = append(errs, "max_devices must be >= min_devices")
	}
	for i, ph := range p.Phases {
		if ph.DurationSeconds <= 0 {
			errs = append(errs, "phase "+ph.Name+" must have positive duration")
			_ = i
		}
	}
	return errs
}

// BuiltinCatalogueYAML is the default protocol catalogue, the Go-native
// equivalent of the original's BUILTIN_PROTOCOLS dict literal, loaded
// at startup unless an override file is supplied.
const BuiltinCatalogueYAML = `
meditation_baseline:
  name: "Meditation Baseline"
  description: "Simple baseline recording with eyes closed meditation"
  min_devices: 1
  max_devices: 4
  feedback_config:
    target_metric: relaxation
    target_threshold: "1.5"
    timescale: 4s
  phases:
    - name: Baseline
      duration_seconds: 120
      instructions: "Sit comfortably with eyes closed. Focus on your breath."
      feedback_enabled: false
    - name: Training
      duration_seconds: 600
      instructions: "Continue meditating. The feedback will guide you toward a relaxed state."
      feedback_enabled: true
    - name: Cooldown
      duration_seconds: 120
      instructions: "Final baseline. Eyes closed, natural breathing."
      feedback_enabled: false

quick_test:
  name: "Quick Test"
  description: "Short test session for validation (30 seconds)"
  min_devices: 1
  max_devices: 4
  feedback_config:
    target_metric: relaxation
    target_threshold: "1.5"
    timescale: 4s
  phases:
    - name: Test
      duration_seconds: 30
      instructions: "Short test with feedback enabled"
      feedback_enabled: true

eyes_open_closed:
  name: "Eyes Open/Closed"
  description: "Classic EEG paradigm for validating alpha rhythm"
  min_devices: 1
  max_devices: 4
  phases:
    - name: "Eyes Open"
      duration_seconds: 60
      instructions: "Keep eyes open, looking at a fixed point"
      feedback_enabled: false
    - name: "Eyes Closed 1"
      duration_seconds: 60
      instructions: "Close eyes and relax"
      feedback_enabled: false
    - name: "Eyes Open 2"
      duration_seconds: 60
      instructions: "Open eyes, looking at a fixed point"
      feedback_enabled: false
    - name: "Eyes Closed 2"
      duration_seconds: 60
      instructions: "Close eyes and relax"
      feedback_enabled: false
`
