// Package config is the configuration layer: sample rate, FFT worker
// count, compute/publish/ingest rates, rolling window, recorder batch
// size, frontal channel labels. Loaded from flags via
// github.com/spf13/pflag, with a custom Value type (durationFlag) for
// the rolling-window duration so operators can pass "4s" instead of a
// raw float.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

// Config holds every runtime tunable for the engine.
type Config struct {
	SampleRateHz      float64
	FFTWorkers        int
	ComputeRateHz     float64
	PublishRateHz     float64
	IngestRateHz      float64
	RollingWindow     time.Duration
	RecorderBatchSize int
	FrontalChannels   [2]string
	ProtocolFile      string
	RecordingDir      string
	ListenAddr        string
	SignalQuality     bool
}

// Defaults returns the out-of-the-box configuration.
func Defaults() Config {
	return Config{
		SampleRateHz:      256,
		FFTWorkers:        4,
		ComputeRateHz:     10,
		PublishRateHz:     10,
		IngestRateHz:      20,
		RollingWindow:     4 * time.Second,
		RecorderBatchSize: 256,
		FrontalChannels:   [2]string{"AF7", "AF8"},
		RecordingDir:      "./recordings",
		ListenAddr:        ":8080",
	}
}

// durationFlag adapts a time.Duration to pflag.Value, accepting plain
// seconds ("4") or a Go duration string ("4s").
type durationFlag struct{ d *time.Duration }

func (f durationFlag) String() string {
	if f.d == nil {
		return "0s"
	}
	return f.d.String()
}

func (f durationFlag) Set(value string) error {
	value = strings.TrimSpace(value)
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		*f.d = time.Duration(secs * float64(time.Second))
		return nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value, err)
	}
	*f.d = parsed
	return nil
}

func (f durationFlag) Type() string { return "duration" }

// RegisterFlags binds cfg's fields to fs, seeded with cfg's current
// values as defaults.
func RegisterFlags(fs *pflag.FlagSet, cfg *Config) {
	fs.Float64Var(&cfg.SampleRateHz, "sample-rate", cfg.SampleRateHz, "device sample rate in Hz")
	fs.IntVar(&cfg.FFTWorkers, "fft-workers", cfg.FFTWorkers, "feature engine worker pool size")
	fs.Float64Var(&cfg.ComputeRateHz, "compute-rate", cfg.ComputeRateHz, "compute tick rate in Hz")
	fs.Float64Var(&cfg.PublishRateHz, "publish-rate", cfg.PublishRateHz, "publish tick rate in Hz")
	fs.Float64Var(&cfg.IngestRateHz, "ingest-rate", cfg.IngestRateHz, "ingest loop rate in Hz")
	fs.Var(durationFlag{&cfg.RollingWindow}, "rolling-window", "rolling buffer window (e.g. 4s)")
	fs.IntVar(&cfg.RecorderBatchSize, "batch-size", cfg.RecorderBatchSize, "recorder per-device batch size")
	fs.StringVar(&cfg.FrontalChannels[0], "frontal-a", cfg.FrontalChannels[0], "first frontal channel label")
	fs.StringVar(&cfg.FrontalChannels[1], "frontal-b", cfg.FrontalChannels[1], "second frontal channel label")
	fs.StringVar(&cfg.ProtocolFile, "protocols", cfg.ProtocolFile, "optional YAML protocol catalogue override")
	fs.StringVar(&cfg.RecordingDir, "recording-dir", cfg.RecordingDir, "directory for session recordings")
	fs.StringVar(&cfg.ListenAddr, "listen", cfg.ListenAddr, "HTTP/WebSocket listen address")
	fs.BoolVar(&cfg.SignalQuality, "signal-quality", cfg.SignalQuality, "feed pkg/quality estimates into per-channel quality instead of fill ratio")
}
