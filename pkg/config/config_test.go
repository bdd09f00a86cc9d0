package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/spf13/pflag"
)

func TestRegisterFlags_OverridesDefaults(t *testing.T) {
	cfg := Defaults()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs, &cfg)

	require.NoError(t, fs.Parse([]string{"--sample-rate=512", "--rolling-window=2s", "--fft-workers=8"}))

	assert.Equal(t, 512.0, cfg.SampleRateHz)
	assert.Equal(t, 2*time.Second, cfg.RollingWindow)
	assert.Equal(t, 8, cfg.FFTWorkers)
}

func TestDurationFlag_AcceptsPlainSeconds(t *testing.T) {
	cfg := Defaults()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs, &cfg)
	require.NoError(t, fs.Parse([]string{"--rolling-window=3"}))
	assert.Equal(t, 3*time.Second, cfg.RollingWindow)
}

func TestDurationFlag_RejectsGarbage(t *testing.T) {
	cfg := Defaults()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs, &cfg)
	assert.Error(t, fs.Parse([]string{"--rolling-window=not-a-duration"}))
}
