// Command neurofeedbackd is the real-time neurofeedback server: it
// exposes HTTP endpoints for device connect/disconnect, session
// control, protocol listing and health, and streams computed features
// to WebSocket subscribers at the publish rate.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/exglab/neurofeedback/internal/logging"
	"github.com/exglab/neurofeedback/pkg/config"
	"github.com/exglab/neurofeedback/pkg/orchestrator"
	"github.com/exglab/neurofeedback/pkg/session"
	"github.com/exglab/neurofeedback/pkg/source"
	"github.com/exglab/neurofeedback/pkg/transport"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "status" {
		runStatus(os.Args[2:])
		return
	}
	runServer(os.Args[1:])
}

func runServer(args []string) {
	cfg := config.Defaults()
	fs := pflag.NewFlagSet("neurofeedbackd", pflag.ExitOnError)
	config.RegisterFlags(fs, &cfg)
	simDevices := fs.StringSlice("sim-device", nil, "name:channels e.g. muse-1:AF7,AF8,TP9,TP10 (repeatable)")
	verbose := fs.Bool("verbose", false, "enable debug logging")
	fs.Parse(args)

	level := logging.LevelInfo
	if *verbose {
		level = logging.LevelDebug
	}
	log := logging.New("neurofeedbackd", level, os.Stderr)

	catalogue, err := session.NewCatalogue()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load built-in protocol catalogue: %v\n", err)
		os.Exit(1)
	}
	if cfg.ProtocolFile != "" {
		data, err := os.ReadFile(cfg.ProtocolFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to read protocol file: %v\n", err)
			os.Exit(1)
		}
		loaded, err := session.LoadCatalogue(data)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to parse protocol file: %v\n", err)
			os.Exit(1)
		}
		catalogue = loaded
	}
	sess := session.NewManager(catalogue)

	hub := transport.NewHub()
	orch := orchestrator.New(cfg, sess, hub, log)
	orch.Start()

	for _, spec := range *simDevices {
		name, channels, ok := parseSimSpec(spec)
		if !ok {
			log.Warn("skipping malformed --sim-device %q", spec)
			continue
		}
		src := source.NewSineSource(channels, cfg.SampleRateHz, cfg.RollingWindow)
		if err := orch.ConnectDevice(name, src, 2*time.Second); err != nil {
			log.Error("failed to connect simulated device %s: %v", name, err)
		}
	}

	srv := newAPIServer(orch, sess, catalogue, hub, log)
	httpSrv := &http.Server{Addr: cfg.ListenAddr, Handler: srv}

	go func() {
		log.Info("listening on %s", cfg.ListenAddr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info("shutting down")
	orch.Shutdown()
	_ = httpSrv.Close()
}

func parseSimSpec(spec string) (name string, channels []source.ChannelSpec, ok bool) {
	idx := -1
	for i, r := range spec {
		if r == ':' {
			idx = i
			break
		}
	}
	if idx < 0 {
		return "", nil, false
	}
	name = spec[:idx]
	labels := spec[idx+1:]
	if name == "" || labels == "" {
		return "", nil, false
	}
	freq := 10.0
	start := 0
	for i := 0; i <= len(labels); i++ {
		if i == len(labels) || labels[i] == ',' {
			label := labels[start:i]
			if label != "" {
				channels = append(channels, source.ChannelSpec{Label: label, FreqHz: freq, Amplitude: 20, PhaseRad: 0})
				freq += 1.3
			}
			start = i + 1
		}
	}
	if len(channels) == 0 {
		return "", nil, false
	}
	return name, channels, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

var errMissingField = errors.New("missing required field")

func decodeJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}
