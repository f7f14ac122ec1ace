// Package joblog writes one JSON record per job under a log
// directory. Records are advisory: writers treat failures as
// loggable, never as job failures, and readers tolerate missing
// files.
package joblog

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Record is the on-disk shape of one job's log entry.
type Record struct {
	JobID     string `json:"job_id"`
	Device    string `json:"device"`
	Source    string `json:"source,omitempty"`
	Program   string `json:"program,omitempty"`
	GateCount int    `json:"gate_count"`
	Depth     int    `json:"depth"`
	Qubits    int    `json:"qubits"`
	Shots     int    `json:"shots"`

	Status    string `json:"status"`
	Summary   string `json:"summary,omitempty"`
	Error     string `json:"error,omitempty"`
	ElapsedMS int64  `json:"elapsed_ms,omitempty"`

	SubmittedAt time.Time  `json:"submitted_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
}

// Writer maintains per-job records in a directory, one file per job id.
type Writer struct {
	dir    string
	logger *slog.Logger
}

// New creates the log directory if needed and returns a Writer.
func New(dir string, logger *slog.Logger) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create job log dir %s: %w", dir, err)
	}
	return &Writer{dir: dir, logger: logger.With("component", "joblog")}, nil
}

// Dir returns the log directory.
func (w *Writer) Dir() string {
	return w.dir
}

func (w *Writer) path(jobID string) string {
	// Job ids are UUIDs; refuse anything that could escape the dir.
	name := filepath.Base(jobID)
	return filepath.Join(w.dir, name+".json")
}

// Submit records a newly submitted job.
func (w *Writer) Submit(job Record) error {
	if job.Status == "" {
		job.Status = "QUEUED"
	}
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = time.Now().UTC()
	}
	return w.write(job.JobID, &job)
}

// Complete marks the job's record successful.
func (w *Writer) Complete(jobID, summary string, elapsedMS int64) error {
	rec, err := w.load(jobID)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	rec.Status = "COMPLETED"
	rec.Summary = summary
	rec.ElapsedMS = elapsedMS
	rec.FinishedAt = &now
	return w.write(jobID, rec)
}

// Error marks the job's record failed, retaining the error text.
func (w *Writer) Error(jobID, msg string) error {
	rec, err := w.load(jobID)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	rec.Status = "FAILED"
	rec.Error = msg
	rec.FinishedAt = &now
	return w.write(jobID, rec)
}

// Read returns the record for jobID, or an error if none exists.
func (w *Writer) Read(jobID string) (*Record, error) {
	data, err := os.ReadFile(w.path(jobID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("no log record for job %s", jobID)
		}
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode log record for job %s: %w", jobID, err)
	}
	return &rec, nil
}

// List returns the job ids that have log records, unordered.
func (w *Writer) List() ([]string, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(e.Name(), ".json"))
	}
	return ids, nil
}

// load returns the existing record, or a minimal one when the submit
// record was lost.
func (w *Writer) load(jobID string) (*Record, error) {
	rec, err := w.Read(jobID)
	if err == nil {
		return rec, nil
	}
	w.logger.Warn("job log record missing, recreating", "job_id", jobID)
	return &Record{JobID: jobID, SubmittedAt: time.Now().UTC()}, nil
}

func (w *Writer) write(jobID string, rec *Record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encode log record for job %s: %w", jobID, err)
	}
	if err := os.WriteFile(w.path(jobID), data, 0o644); err != nil {
		return fmt.Errorf("write log record for job %s: %w", jobID, err)
	}
	return nil
}
