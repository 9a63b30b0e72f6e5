package metrics

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func decodeDoc(t *testing.T, data []byte) map[string]interface{} {
	t.Helper()
	var doc map[string]interface{}
	if err := json.Unmarshal(bytes.TrimSpace(data), &doc); err != nil {
		t.Fatalf("output is not one JSON document: %v\n%s", err, data)
	}
	return doc
}

func metricSetOf(t *testing.T, doc map[string]interface{}) map[string]interface{} {
	t.Helper()
	aws, ok := doc["_aws"].(map[string]interface{})
	if !ok {
		t.Fatal("missing _aws directive")
	}
	sets, ok := aws["CloudWatchMetrics"].([]interface{})
	if !ok || len(sets) != 1 {
		t.Fatalf("CloudWatchMetrics = %v", aws["CloudWatchMetrics"])
	}
	return sets[0].(map[string]interface{})
}

func TestKioskDimensionFromEnv(t *testing.T) {
	t.Setenv(KioskEnv, "front-desk")
	data, err := New(Namespace).Count("X").Document()
	if err != nil {
		t.Fatal(err)
	}
	doc := decodeDoc(t, data)
	if doc["Kiosk"] != "front-desk" {
		t.Errorf("Kiosk = %v", doc["Kiosk"])
	}
	dims := metricSetOf(t, doc)["Dimensions"].([]interface{})[0].([]interface{})
	if len(dims) != 1 || dims[0] != "Kiosk" {
		t.Errorf("Dimensions = %v", dims)
	}
}

func TestDocumentLayout(t *testing.T) {
	t.Setenv(KioskEnv, "")
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	data, err := New(Namespace).
		At(at).
		Dimension("Result", "checked_in").
		Dimension("Camera", "rear").
		Metric("SubmitMs", 1234.5, UnitMilliseconds).
		Count("CheckInResult").
		Property("sessionId", "abc-123").
		Document()
	if err != nil {
		t.Fatalf("Document() error: %v", err)
	}

	doc := decodeDoc(t, data)
	if ts := doc["_aws"].(map[string]interface{})["Timestamp"]; ts != float64(at.UnixMilli()) {
		t.Errorf("Timestamp = %v", ts)
	}
	set := metricSetOf(t, doc)
	if set["Namespace"] != Namespace {
		t.Errorf("Namespace = %v", set["Namespace"])
	}
	dims := set["Dimensions"].([]interface{})[0].([]interface{})
	if len(dims) != 2 || dims[0] != "Camera" || dims[1] != "Result" {
		t.Errorf("dimension keys should be sorted, got %v", dims)
	}
	metrics := set["Metrics"].([]interface{})
	if len(metrics) != 2 || metrics[0].(map[string]interface{})["Name"] != "SubmitMs" {
		t.Errorf("metrics should keep recording order, got %v", metrics)
	}

	want := map[string]interface{}{
		"Result":        "checked_in",
		"SubmitMs":      1234.5,
		"CheckInResult": float64(1),
		"sessionId":     "abc-123",
	}
	for k, v := range want {
		if doc[k] != v {
			t.Errorf("%s = %v, want %v", k, doc[k], v)
		}
	}
}

func TestMetricOverwrite(t *testing.T) {
	data, _ := New("Test").Metric("A", 1, UnitCount).Metric("A", 5, UnitMilliseconds).Document()
	doc := decodeDoc(t, data)
	metrics := metricSetOf(t, doc)["Metrics"].([]interface{})
	if len(metrics) != 1 || doc["A"] != float64(5) {
		t.Errorf("metrics = %v, A = %v", metrics, doc["A"])
	}
	if metrics[0].(map[string]interface{})["Unit"] != UnitMilliseconds {
		t.Errorf("unit = %v", metrics[0])
	}
}

func TestFlushEmptyWritesNothing(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(nil)

	New("Test").Property("only", "property").Flush()
	if buf.Len() != 0 {
		t.Errorf("expected no output, got %s", buf.String())
	}
}

func TestDurationSkipsZero(t *testing.T) {
	data, _ := New("Test").
		Duration("AcquireMs", 250*time.Millisecond).
		Duration("SubmitMs", 0).
		Document()
	doc := decodeDoc(t, data)
	if doc["AcquireMs"] != float64(250) {
		t.Errorf("AcquireMs = %v", doc["AcquireMs"])
	}
	if _, ok := doc["SubmitMs"]; ok {
		t.Error("zero durations should be skipped")
	}
}

func TestRecordCheckIn(t *testing.T) {
	t.Setenv(KioskEnv, "")
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(nil)

	RecordCheckIn(CheckIn{Result: "submit_failed", SessionID: "s1", ClassID: 7, Acquire: 90 * time.Millisecond, Submit: 400 * time.Millisecond})
	RecordCheckIn(CheckIn{Result: "timeout", SessionID: "s2"})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(lines))
	}
	first := decodeDoc(t, []byte(lines[0]))
	if first["Result"] != "submit_failed" || first["SubmitMs"] != float64(400) || first["classId"] != float64(7) {
		t.Errorf("first = %v", first)
	}
	second := decodeDoc(t, []byte(lines[1]))
	if _, ok := second["classId"]; ok {
		t.Error("classId should be omitted when unknown")
	}
	if _, ok := second["AcquireMs"]; ok {
		t.Error("AcquireMs should be omitted when zero")
	}
}

func TestOpenFileAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics.jsonl")
	f, err := OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile() error: %v", err)
	}
	defer SetOutput(nil)

	New("Test").Count("A").Flush()
	New("Test").Count("B").Flush()
	f.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if lines := strings.Count(string(data), "\n"); lines != 2 {
		t.Errorf("expected 2 lines, got %d", lines)
	}
}
