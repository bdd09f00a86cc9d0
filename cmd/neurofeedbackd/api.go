package main

import (
	"net/http"
	"time"

	"github.com/exglab/neurofeedback/internal/logging"
	"github.com/exglab/neurofeedback/pkg/orchestrator"
	"github.com/exglab/neurofeedback/pkg/session"
	"github.com/exglab/neurofeedback/pkg/source"
	"github.com/exglab/neurofeedback/pkg/transport"
)

func newAPIServer(orch *orchestrator.Orchestrator, sess *session.Manager, catalogue *session.Catalogue, hub *transport.Hub, log *logging.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/devices", handleDevices(orch))
	mux.HandleFunc("/api/devices/connect", handleDeviceConnect(orch, log))
	mux.HandleFunc("/api/devices/disconnect", handleDeviceDisconnect(orch))
	mux.HandleFunc("/api/session/start", handleSessionStart(sess, orch, log))
	mux.HandleFunc("/api/session/stop", handleSessionStop(sess, orch, log))
	mux.HandleFunc("/api/session/status", handleSessionStatus(sess, orch))
	mux.HandleFunc("/api/protocols", handleProtocols(catalogue))
	mux.HandleFunc("/api/health", handleHealth(orch))
	mux.HandleFunc("/ws", hub.ServeHTTP)

	return mux
}

func handleDevices(orch *orchestrator.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"devices": orch.ConnectedDevices()})
	}
}

// deviceConnectRequest describes a synthetic device to connect. Real
// acquisition hardware is an external collaborator behind
// source.Puller; this server ships only the synthetic source, so
// connect requests describe channels for pkg/source.SineSource rather
// than naming a physical device driver.
type deviceConnectRequest struct {
	Name       string   `json:"name"`
	Channels   []string `json:"channels"`
	SampleRate float64  `json:"sample_rate"`
}

func handleDeviceConnect(orch *orchestrator.Orchestrator, log *logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req deviceConnectRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if req.Name == "" || len(req.Channels) == 0 {
			writeError(w, http.StatusBadRequest, errMissingField)
			return
		}
		fs := req.SampleRate
		if fs <= 0 {
			fs = 256
		}
		specs := make([]source.ChannelSpec, len(req.Channels))
		freq := 10.0
		for i, label := range req.Channels {
			specs[i] = source.ChannelSpec{Label: label, FreqHz: freq, Amplitude: 20}
			freq += 1.3
		}
		src := source.NewSineSource(specs, fs, 4*time.Second)
		if err := orch.ConnectDevice(req.Name, src, 2*time.Second); err != nil {
			writeError(w, http.StatusConflict, err)
			return
		}
		log.Info("device connected: %s", req.Name)
		writeJSON(w, http.StatusOK, map[string]interface{}{"connected": req.Name})
	}
}

func handleDeviceDisconnect(orch *orchestrator.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			Name string `json:"name"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		orch.DisconnectDevice(req.Name)
		writeJSON(w, http.StatusOK, map[string]interface{}{"disconnected": req.Name})
	}
}

func handleSessionStart(sess *session.Manager, orch *orchestrator.Orchestrator, log *logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			Protocol     string            `json:"protocol"`
			SubjectIDs   map[string]string `json:"subject_ids"`
			Notes        string            `json:"notes"`
			Experimenter string            `json:"experimenter"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		cfg, err := sess.Start(req.Protocol, req.SubjectIDs, req.Notes, req.Experimenter)
		if err != nil {
			writeError(w, http.StatusConflict, err)
			return
		}
		channelLabels := orch.ConnectedChannelLabels()
		if err := orch.Recorder().Start(cfg.SessionID, req.SubjectIDs, cfg.Protocol.Name, req.Notes, req.Experimenter, channelLabels); err != nil {
			if _, stopErr := sess.Stop(); stopErr != nil && log != nil {
				log.Warn("session start: rollback after recorder start failure: %v", stopErr)
			}
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"session_id": cfg.SessionID})
	}
}

func handleSessionStop(sess *session.Manager, orch *orchestrator.Orchestrator, log *logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		cfg, err := sess.Stop()
		if err != nil {
			writeError(w, http.StatusConflict, err)
			return
		}
		paths, err := orch.Recorder().Stop()
		if err != nil && log != nil {
			log.Warn("session stop: recorder stop: %v", err)
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"session_id": cfg.SessionID, "recordings": paths})
	}
}

func handleSessionStatus(sess *session.Manager, orch *orchestrator.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess.Advance(time.Now())
		status := sess.Status(time.Now(), orch.ConnectedDevices())
		writeJSON(w, http.StatusOK, status)
	}
}

func handleProtocols(catalogue *session.Catalogue) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"protocols": catalogue.List()})
	}
}

func handleHealth(orch *orchestrator.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, orch.HealthReport())
	}
}
