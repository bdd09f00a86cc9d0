// Package recorder implements per-device in-memory sample batching
// flushed to a per-session, per-device Parquet tabular file, plus a
// JSON session-metadata record. The row shape is a fixed struct with
// one timestamp plus up to maxChannels EEG channel columns, written
// via parquet.GenericWriter[row]; the device's actual channel label
// order is carried as Parquet key/value metadata, since channel
// count/labels are only known at connect time rather than compile
// time.
package recorder

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/segmentio/parquet-go"

	"github.com/exglab/neurofeedback/internal/logging"
	"github.com/exglab/neurofeedback/pkg/ferrors"
)

// DefaultBatchSize is the per-device in-memory batch size, roughly
// 1 second at 256 Hz.
const DefaultBatchSize = 256

// maxChannels bounds the fixed Parquet row shape. The target headband
// has 4 channels; this leaves headroom for larger montages without
// needing a dynamically generated struct type.
const maxChannels = 8

// row is the fixed Parquet schema: one timestamp plus up to
// maxChannels channel columns. Unused trailing columns are zero for
// devices with fewer channels; the metadata record and the file's own
// "channels" key/value entry document how many are meaningful.
type row struct {
	Timestamp float64 `parquet:"timestamp"`
	Ch0       float64 `parquet:"ch0"`
	Ch1       float64 `parquet:"ch1"`
	Ch2       float64 `parquet:"ch2"`
	Ch3       float64 `parquet:"ch3"`
	Ch4       float64 `parquet:"ch4"`
	Ch5       float64 `parquet:"ch5"`
	Ch6       float64 `parquet:"ch6"`
	Ch7       float64 `parquet:"ch7"`
}

func (r *row) setChannel(i int, v float64) {
	switch i {
	case 0:
		r.Ch0 = v
	case 1:
		r.Ch1 = v
	case 2:
		r.Ch2 = v
	case 3:
		r.Ch3 = v
	case 4:
		r.Ch4 = v
	case 5:
		r.Ch5 = v
	case 6:
		r.Ch6 = v
	case 7:
		r.Ch7 = v
	}
}

// Metadata is the session-metadata record written as metadata.json.
type Metadata struct {
	SessionID     string              `json:"session_id"`
	StartTime     float64             `json:"start_time"`
	EndTime       float64             `json:"end_time,omitempty"`
	SubjectIDs    map[string]string   `json:"subject_ids"`
	ChannelLabels map[string][]string `json:"channel_labels"`
	SampleCounts  map[string]int      `json:"sample_counts"`
	DurationS     float64             `json:"duration_seconds"`
	Protocol      string              `json:"protocol"`
	Notes         string              `json:"notes,omitempty"`
	Experimenter  string              `json:"experimenter,omitempty"`
}

type deviceState struct {
	labels    []string
	file      *os.File
	writer    *parquet.GenericWriter[row]
	batch     []row
	batchSize int
	count     int
	degraded  bool
}

// Recorder is the Recorder component. One Recorder instance serves one
// session at a time.
type Recorder struct {
	mu        sync.Mutex
	baseDir   string
	batchSize int
	log       *logging.Logger

	active  bool
	sessID  string
	meta    Metadata
	devices map[string]*deviceState
	startAt time.Time
}

// New constructs a Recorder writing session directories under baseDir.
func New(baseDir string, batchSize int, log *logging.Logger) *Recorder {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Recorder{baseDir: baseDir, batchSize: batchSize, log: log}
}

// Start begins a new session. Fails with ErrSessionConflict if a
// session is already active.
func (r *Recorder) Start(sessionID string, subjectIDs map[string]string, protocol, notes, experimenter string, channelLabels map[string][]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active {
		return ferrors.Wrap(ferrors.ErrSessionConflict, "recorder already started")
	}

	dir := filepath.Join(r.baseDir, sessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return ferrors.Wrapf(ferrors.ErrRecorderIO, "mkdir %s: %v", dir, err)
	}

	devices := make(map[string]*deviceState, len(channelLabels))
	for deviceID, labels := range channelLabels {
		if len(labels) > maxChannels {
			return ferrors.Wrapf(ferrors.ErrRecorderIO, "device %s: %d channels exceeds max %d", deviceID, len(labels), maxChannels)
		}
		ds, err := newDeviceState(dir, deviceID, subjectIDs[deviceID], labels, r.batchSize)
		if err != nil {
			return ferrors.Wrapf(ferrors.ErrRecorderIO, "device %s: %v", deviceID, err)
		}
		devices[deviceID] = ds
	}

	r.active = true
	r.sessID = sessionID
	r.startAt = time.Now()
	r.devices = devices
	r.meta = Metadata{
		SessionID:     sessionID,
		StartTime:     float64(r.startAt.UnixNano()) / 1e9,
		SubjectIDs:    subjectIDs,
		ChannelLabels: channelLabels,
		SampleCounts:  map[string]int{},
		Protocol:      protocol,
		Notes:         notes,
		Experimenter:  experimenter,
	}
	return nil
}

func newDeviceState(dir, deviceID, subjectID string, labels []string, batchSize int) (*deviceState, error) {
	name := fmt.Sprintf("%s_%s.parquet", deviceID, subjectID)
	path := filepath.Join(dir, name)
	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	labelJSON, _ := json.Marshal(labels)
	writer := parquet.NewGenericWriter[row](file,
		parquet.KeyValueMetadata("channels", string(labelJSON)),
	)

	return &deviceState{
		labels:    labels,
		file:      file,
		writer:    writer,
		batchSize: batchSize,
	}, nil
}

// Append appends one sample for deviceID, flushing the batch when it
// reaches batchSize.
func (r *Recorder) Append(deviceID string, timestamp float64, sample []float64) error {
	return r.AppendBatch(deviceID, []float64{timestamp}, [][]float64{sample})
}

// AppendBatch appends multiple samples for deviceID in order.
func (r *Recorder) AppendBatch(deviceID string, timestamps []float64, samples [][]float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.active {
		return ferrors.Wrap(ferrors.ErrSessionConflict, "recorder not started")
	}
	ds, ok := r.devices[deviceID]
	if !ok {
		return ferrors.Wrapf(ferrors.ErrMissingChannel, "unknown device %s", deviceID)
	}

	for i, ts := range timestamps {
		var rr row
		rr.Timestamp = ts
		for ci := range ds.labels {
			if ci < len(samples[i]) {
				rr.setChannel(ci, samples[i][ci])
			}
		}
		ds.batch = append(ds.batch, rr)
		if len(ds.batch) >= ds.batchSize {
			if err := r.flushDevice(deviceID, ds); err != nil {
				return err
			}
		}
	}
	r.meta.SampleCounts[deviceID] += len(timestamps)
	return nil
}

func (r *Recorder) flushDevice(deviceID string, ds *deviceState) error {
	if len(ds.batch) == 0 {
		return nil
	}
	if _, err := ds.writer.Write(ds.batch); err != nil {
		ds.degraded = true
		if r.log != nil {
			r.log.Warn("recorder: flush %s failed: %v", deviceID, err)
		}
		return ferrors.Wrapf(ferrors.ErrRecorderIO, "flush %s: %v", deviceID, err)
	}
	ds.count += len(ds.batch)
	ds.batch = ds.batch[:0]
	return nil
}

// Status reports the current session id (if any) and per-device
// counts, used by session_status()/health().
type Status struct {
	Active  bool
	Session string
	Counts  map[string]int
}

// Status returns the recorder's current status.
func (r *Recorder) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[string]int, len(r.devices))
	for id, ds := range r.devices {
		counts[id] = ds.count + len(ds.batch)
	}
	return Status{Active: r.active, Session: r.sessID, Counts: counts}
}

// Stop flushes every device batch, closes every file, writes the final
// metadata record, and clears recorder state. Returns the per-device
// file paths written.
func (r *Recorder) Stop() (map[string]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.active {
		return nil, ferrors.Wrap(ferrors.ErrSessionConflict, "recorder not started")
	}

	paths := make(map[string]string, len(r.devices))
	var firstErr error
	for deviceID, ds := range r.devices {
		if err := r.flushDevice(deviceID, ds); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := ds.writer.Close(); err != nil && firstErr == nil {
			firstErr = ferrors.Wrapf(ferrors.ErrRecorderIO, "close writer %s: %v", deviceID, err)
		}
		if err := ds.file.Sync(); err != nil && firstErr == nil {
			firstErr = ferrors.Wrapf(ferrors.ErrRecorderIO, "sync %s: %v", deviceID, err)
		}
		name := ds.file.Name()
		_ = ds.file.Close()
		paths[deviceID] = name
	}

	end := time.Now()
	r.meta.EndTime = float64(end.UnixNano()) / 1e9
	r.meta.DurationS = end.Sub(r.startAt).Seconds()
	if err := r.writeMetadata(); err != nil && firstErr == nil {
		firstErr = err
	}

	r.active = false
	r.devices = nil
	return paths, firstErr
}

func (r *Recorder) writeMetadata() error {
	dir := filepath.Join(r.baseDir, r.sessID)
	path := filepath.Join(dir, "metadata.json")
	data, err := json.MarshalIndent(r.meta, "", "  ")
	if err != nil {
		return ferrors.Wrapf(ferrors.ErrRecorderIO, "marshal metadata: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return ferrors.Wrapf(ferrors.ErrRecorderIO, "write metadata: %v", err)
	}
	return nil
}

// ListSessions lists session ids with a metadata.json under baseDir
// (ported from original_source's session/storage.py list_sessions).
func (r *Recorder) ListSessions() ([]string, error) {
	entries, err := os.ReadDir(r.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, ferrors.Wrapf(ferrors.ErrRecorderIO, "list sessions: %v", err)
	}
	var ids []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(r.baseDir, e.Name(), "metadata.json")); err == nil {
			ids = append(ids, e.Name())
		}
	}
	return ids, nil
}

// SessionMetadata reads back a previously written metadata record
// (ported from original_source's session/storage.py get_session_metadata).
func (r *Recorder) SessionMetadata(sessionID string) (Metadata, error) {
	var m Metadata
	path := filepath.Join(r.baseDir, sessionID, "metadata.json")
	data, err := os.ReadFile(path)
	if err != nil {
		return m, ferrors.Wrapf(ferrors.ErrRecorderIO, "read metadata %s: %v", sessionID, err)
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, ferrors.Wrapf(ferrors.ErrRecorderIO, "unmarshal metadata %s: %v", sessionID, err)
	}
	return m, nil
}
