package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/fpang/qr-checkin/internal/journal"
	"github.com/fpang/qr-checkin/internal/metrics"
	"github.com/fpang/qr-checkin/internal/scanner"
)

func TestParseMarks(t *testing.T) {
	marks, err := parseMarks([]string{"17=present", "18=ausente", "19=1"})
	if err != nil {
		t.Fatalf("parseMarks() error: %v", err)
	}
	want := []struct {
		id      int64
		present bool
	}{{17, true}, {18, false}, {19, true}}
	if len(marks) != len(want) {
		t.Fatalf("got %d marks", len(marks))
	}
	for i, w := range want {
		if marks[i].UserID != w.id || marks[i].Present != w.present {
			t.Errorf("mark %d = %+v, want %+v", i, marks[i], w)
		}
	}

	for _, bad := range []string{"17", "x=present", "0=present", "17=maybe"} {
		if _, err := parseMarks([]string{bad}); err == nil {
			t.Errorf("parseMarks(%q) should fail", bad)
		}
	}
}

func TestRecordOutcome(t *testing.T) {
	var sink bytes.Buffer
	metrics.SetOutput(&sink)
	t.Cleanup(func() { metrics.SetOutput(nil) })

	jrnl, err := journal.Open(filepath.Join(t.TempDir(), "journal.jsonl"))
	if err != nil {
		t.Fatal(err)
	}

	recordOutcome(context.Background(), jrnl, nil, "hall-a", scanner.Report{
		SessionID: "s1",
		Outcome:   scanner.OutcomeCheckedIn,
		ClassID:   42,
		Acquire:   120 * time.Millisecond,
		Submit:    300 * time.Millisecond,
		At:        time.Now(),
	})

	entries, err := jrnl.List(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("journal has %d entries", len(entries))
	}
	e := entries[0]
	if e.KioskID != "hall-a" || e.ClassID != 42 || e.Outcome != "checked_in" || e.SubmitMs != 300 {
		t.Errorf("entry = %+v", e)
	}

	var doc map[string]interface{}
	if err := json.Unmarshal(bytes.TrimSpace(sink.Bytes()), &doc); err != nil {
		t.Fatalf("metrics output is not one JSON document: %v\n%s", err, sink.String())
	}
	if doc["Result"] != "checked_in" || doc["CheckInResult"] != float64(1) || doc["SubmitMs"] != float64(300) {
		t.Errorf("metrics doc = %v", doc)
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		outcome scanner.Outcome
		want    int
	}{
		{scanner.OutcomeCheckedIn, 0},
		{scanner.OutcomeTimeout, 1},
		{scanner.OutcomeCameraError, 1},
		{scanner.OutcomeCancelled, 1},
	}
	for _, tt := range tests {
		if got := exitCode(scanner.Report{Outcome: tt.outcome}); got != tt.want {
			t.Errorf("exitCode(%s) = %d, want %d", tt.outcome, got, tt.want)
		}
	}
}
