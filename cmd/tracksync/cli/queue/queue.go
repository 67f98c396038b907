// Package queue implements the durable work queue that decouples event hooks
// from the daemon. The queue is an append-only JSONL file: hooks append one
// line and exit; the single daemon process rewrites the file to update record
// status. Invalid lines are skipped at read time, so a torn concurrent append
// can never poison the queue.
package queue

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Kind identifies what event a queue record carries.
type Kind string

const (
	KindSessionStop Kind = "session_stop"
	KindPRCreated   Kind = "pr_created"
)

// Status is the processing state of a queue record.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusProcessed  Status = "processed"
	StatusFailed     Status = "failed"
)

// DefaultMaxRetries is how many times a failed record is retried before it
// is left as failed.
const DefaultMaxRetries = 3

// Record is one line of the queue file. Kind-specific payload fields are
// flattened into the record, matching the wire format hooks write.
type Record struct {
	ID         string    `json:"id"`
	Kind       Kind      `json:"kind"`
	Timestamp  time.Time `json:"timestamp"`
	Status     Status    `json:"status"`
	RetryCount int       `json:"retry_count,omitempty"`
	Error      string    `json:"error,omitempty"`

	// session_stop and pr_created payloads.
	SessionID      string `json:"session_id,omitempty"`
	TranscriptPath string `json:"transcript_path,omitempty"`
	CWD            string `json:"cwd,omitempty"`
	PRURL          string `json:"pr_url,omitempty"`
}

// Queue is a handle on the queue file. Hooks only call Append; the daemon is
// the sole caller of the rewrite operations.
type Queue struct {
	path string
}

// New returns a queue backed by the given file path.
func New(path string) *Queue {
	return &Queue{path: path}
}

// Path returns the queue file path.
func (q *Queue) Path() string {
	return q.path
}

// Append assigns the record a fresh ID, creation timestamp and pending
// status, then appends it as a single JSON line. The write is one small
// buffer on a local filesystem; concurrent appenders interleave whole lines.
func (q *Queue) Append(rec *Record) error {
	if err := os.MkdirAll(filepath.Dir(q.path), 0o750); err != nil {
		return fmt.Errorf("failed to create queue directory: %w", err)
	}

	rec.ID = uuid.NewString()
	rec.Timestamp = time.Now().UTC()
	rec.Status = StatusPending

	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode queue record: %w", err)
	}
	line = append(line, '\n')

	f, err := os.OpenFile(q.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600) //nolint:gosec // path comes from paths package
	if err != nil {
		return fmt.Errorf("failed to open queue file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("failed to append queue record: %w", err)
	}
	return nil
}

// ReadAll loads every parseable record in file order. Blank and malformed
// lines are skipped. A missing file is an empty queue.
func (q *Queue) ReadAll() ([]Record, error) {
	f, err := os.Open(q.path) //nolint:gosec // path comes from paths package
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open queue file: %w", err)
	}
	defer f.Close()

	var records []Record
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			continue // skip malformed lines
		}
		if rec.ID == "" {
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan queue file: %w", err)
	}
	return records, nil
}

// ReadPending returns records with pending status, in file order.
func (q *Queue) ReadPending() ([]Record, error) {
	return q.filter(func(r Record) bool { return r.Status == StatusPending })
}

// ReadRetryable returns failed records that have retries left.
func (q *Queue) ReadRetryable(maxRetries int) ([]Record, error) {
	return q.filter(func(r Record) bool {
		return r.Status == StatusFailed && r.RetryCount < maxRetries
	})
}

func (q *Queue) filter(keep func(Record) bool) ([]Record, error) {
	all, err := q.ReadAll()
	if err != nil {
		return nil, err
	}
	var out []Record
	for _, rec := range all {
		if keep(rec) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// UpdateStatus rewrites the queue file with the target record's status
// changed. Marking a record failed increments its retry count and stores the
// error text.
func (q *Queue) UpdateStatus(id string, status Status, errMsg string) error {
	return q.rewrite(id, func(rec *Record) {
		rec.Status = status
		if status == StatusFailed {
			rec.RetryCount++
			rec.Error = errMsg
		} else {
			rec.Error = ""
		}
	})
}

// Reset moves a record back to pending without touching its retry count.
// This is the explicit operator retry.
func (q *Queue) Reset(id string) error {
	return q.rewrite(id, func(rec *Record) {
		rec.Status = StatusPending
		rec.Error = ""
	})
}

func (q *Queue) rewrite(id string, mutate func(*Record)) error {
	all, err := q.ReadAll()
	if err != nil {
		return err
	}

	found := false
	for i := range all {
		if all[i].ID == id {
			mutate(&all[i])
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("queue record %s not found", id)
	}
	return q.writeAll(all)
}

// CleanupOld drops processed records older than the threshold, rewriting the
// file. Pending, processing and failed records are always kept.
func (q *Queue) CleanupOld(olderThan time.Duration) (int, error) {
	all, err := q.ReadAll()
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-olderThan)
	kept := all[:0]
	dropped := 0
	for _, rec := range all {
		if rec.Status == StatusProcessed && rec.Timestamp.Before(cutoff) {
			dropped++
			continue
		}
		kept = append(kept, rec)
	}
	if dropped == 0 {
		return 0, nil
	}
	if err := q.writeAll(kept); err != nil {
		return 0, err
	}
	return dropped, nil
}

// writeAll replaces the queue file contents via a temp file and rename so a
// crash mid-rewrite never truncates the queue.
func (q *Queue) writeAll(records []Record) error {
	if err := os.MkdirAll(filepath.Dir(q.path), 0o750); err != nil {
		return fmt.Errorf("failed to create queue directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(q.path), ".queue-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp queue file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck // best-effort cleanup on early return

	w := bufio.NewWriter(tmp)
	for _, rec := range records {
		line, err := json.Marshal(rec)
		if err != nil {
			tmp.Close()
			return fmt.Errorf("failed to encode queue record: %w", err)
		}
		if _, err := w.Write(append(line, '\n')); err != nil {
			tmp.Close()
			return fmt.Errorf("failed to write queue record: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to flush queue file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp queue file: %w", err)
	}

	if err := os.Rename(tmpName, q.path); err != nil {
		return fmt.Errorf("failed to replace queue file: %w", err)
	}
	return nil
}
