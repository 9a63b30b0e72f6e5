// Package journal records check-in attempts on the kiosk.
//
// Entries are appended to a local JSON Lines file. They can be exported as a
// zstd-compressed stream, mirrored to a DynamoDB table shared by a fleet of
// kiosks, and uploaded to S3 for offline review.
package journal

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog/log"
)

// Entry is one recorded attempt outcome.
type Entry struct {
	ID        string    `json:"id" dynamodbav:"id"`
	At        time.Time `json:"at" dynamodbav:"at"`
	SessionID string    `json:"sessionId" dynamodbav:"sessionId"`
	KioskID   string    `json:"kioskId,omitempty" dynamodbav:"kioskId,omitempty"`
	ClassID   int64     `json:"classId,omitempty" dynamodbav:"classId,omitempty"`
	Outcome   string    `json:"outcome" dynamodbav:"outcome"`
	Detail    string    `json:"detail,omitempty" dynamodbav:"detail,omitempty"`
	AcquireMs int64     `json:"acquireMs,omitempty" dynamodbav:"acquireMs,omitempty"`
	SubmitMs  int64     `json:"submitMs,omitempty" dynamodbav:"submitMs,omitempty"`
}

// Journal is an append-only JSON Lines file. Safe for concurrent use within
// one process.
type Journal struct {
	path string
	mu   sync.Mutex
}

// Open returns the journal at path, creating its directory.
func Open(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}
	return &Journal{path: path}, nil
}

// Path returns the backing file.
func (j *Journal) Path() string { return j.path }

// Append assigns an ID and timestamp when missing and writes e.
func (j *Journal) Append(e Entry) (Entry, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	line, err := json.Marshal(e)
	if err != nil {
		return e, fmt.Errorf("marshal entry: %w", err)
	}
	line = append(line, '\n')

	j.mu.Lock()
	defer j.mu.Unlock()
	f, err := os.OpenFile(j.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return e, fmt.Errorf("open journal: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(line); err != nil {
		return e, fmt.Errorf("append journal: %w", err)
	}
	log.Debug().Str("id", e.ID).Str("outcome", e.Outcome).Msg("Journal entry appended")
	return e, nil
}

// List returns up to limit entries, newest first. limit <= 0 returns all.
// Unreadable lines are skipped.
func (j *Journal) List(limit int) ([]Entry, error) {
	entries, err := j.readAll()
	if err != nil {
		return nil, err
	}
	for i, k := 0, len(entries)-1; i < k; i, k = i+1, k-1 {
		entries[i], entries[k] = entries[k], entries[i]
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// Export writes every entry, oldest first, as zstd-compressed JSON Lines and
// returns the number of entries written.
func (j *Journal) Export(w io.Writer) (int, error) {
	entries, err := j.readAll()
	if err != nil {
		return 0, err
	}

	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return 0, fmt.Errorf("create zstd writer: %w", err)
	}
	jw := json.NewEncoder(enc)
	for _, e := range entries {
		if err := jw.Encode(e); err != nil {
			enc.Close()
			return 0, fmt.Errorf("write entry: %w", err)
		}
	}
	if err := enc.Close(); err != nil {
		return 0, fmt.Errorf("finish zstd stream: %w", err)
	}
	log.Info().Int("entries", len(entries)).Msg("Journal exported")
	return len(entries), nil
}

// ReadExport decodes a stream produced by Export.
func ReadExport(r io.Reader) ([]Entry, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("create zstd reader: %w", err)
	}
	defer dec.Close()
	return decodeLines(dec)
}

func (j *Journal) readAll() ([]Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	f, err := os.Open(j.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	defer f.Close()
	return decodeLines(f)
}

func decodeLines(r io.Reader) ([]Entry, error) {
	var entries []Entry
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			log.Warn().Err(err).Int("line", lineNo).Msg("Skipping unreadable journal line")
			continue
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read journal: %w", err)
	}
	return entries, nil
}
