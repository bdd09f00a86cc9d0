// Command eegsim runs a synthetic EEG device standalone, printing
// pulled chunks as newline-delimited JSON, for exercising or
// demonstrating an ingestor/orchestrator without real hardware.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/exglab/neurofeedback/pkg/source"
)

func main() {
	fs := pflag.NewFlagSet(os.Args[0], pflag.ExitOnError)
	channels := fs.String("channels", "AF7,AF8,TP9,TP10", "comma-separated channel labels")
	sampleRate := fs.Float64("sample-rate", 256, "sample rate in Hz")
	pullHz := fs.Float64("pull-rate", 20, "how often to pull a chunk, in Hz")
	fs.Parse(os.Args[1:])

	labels := strings.Split(*channels, ",")
	specs := make([]source.ChannelSpec, len(labels))
	freq := 10.0
	for i, label := range labels {
		specs[i] = source.ChannelSpec{Label: strings.TrimSpace(label), FreqHz: freq, Amplitude: 20}
		freq += 1.3
	}

	src := source.NewSineSource(specs, *sampleRate, 0)
	fmt.Fprintf(os.Stderr, "eegsim: streaming channels=%v fs=%.1f\n", labels, *sampleRate)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	period := time.Duration(float64(time.Second) / *pullHz)
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	enc := json.NewEncoder(os.Stdout)
	for {
		select {
		case <-stop:
			_ = src.Close()
			return
		case <-ticker.C:
			chunk, err := src.Pull(64)
			if err != nil {
				fmt.Fprintf(os.Stderr, "eegsim: pull error: %v\n", err)
				continue
			}
			if chunk.Len() == 0 {
				continue
			}
			for i, ts := range chunk.Timestamps {
				row := map[string]interface{}{"timestamp": ts}
				for ci, label := range labels {
					if ci < len(chunk.Samples[i]) {
						row[strings.TrimSpace(label)] = chunk.Samples[i][ci]
					}
				}
				_ = enc.Encode(row)
			}
		}
	}
}
