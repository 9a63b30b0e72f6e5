// Package metrics writes CloudWatch Embedded Metric Format (EMF) documents for
// check-in kiosks. Each document is one JSON line appended to a sink, usually
// a file tailed by the CloudWatch agent, which turns it into metrics without
// any API calls from the kiosk.
//
// See: https://docs.aws.amazon.com/AmazonCloudWatch/latest/monitoring/CloudWatch_Embedded_Metric_Format_Specification.html
package metrics

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Namespace is the CloudWatch namespace for check-in metrics.
const Namespace = "QrAttendance"

// KioskEnv names the environment variable carrying the kiosk identifier,
// added to every document as the Kiosk dimension.
const KioskEnv = "CHECKIN_KIOSK_ID"

// CloudWatch units used by the kiosk.
const (
	UnitMilliseconds = "Milliseconds"
	UnitCount        = "Count"
)

type metricDef struct {
	Name string `json:"Name"`
	Unit string `json:"Unit"`
}

// directive is the _aws block of a document.
type directive struct {
	Timestamp         int64       `json:"Timestamp"`
	CloudWatchMetrics []metricSet `json:"CloudWatchMetrics"`
}

type metricSet struct {
	Namespace  string      `json:"Namespace"`
	Dimensions [][]string  `json:"Dimensions"`
	Metrics    []metricDef `json:"Metrics"`
}

// Recorder builds a single document. Not safe for concurrent use.
type Recorder struct {
	namespace  string
	at         time.Time
	dimensions map[string]string
	metrics    []metricDef
	fields     map[string]interface{}
}

// New starts a document in namespace, with the Kiosk dimension when
// CHECKIN_KIOSK_ID is set.
func New(namespace string) *Recorder {
	r := &Recorder{
		namespace:  namespace,
		dimensions: make(map[string]string),
		fields:     make(map[string]interface{}),
	}
	if kiosk := os.Getenv(KioskEnv); kiosk != "" {
		r.dimensions["Kiosk"] = kiosk
	}
	return r
}

// At overrides the document timestamp (default: flush time).
func (r *Recorder) At(t time.Time) *Recorder {
	r.at = t
	return r
}

// Dimension sets a dimension. Dimensions become filterable attributes of
// every metric in the document.
func (r *Recorder) Dimension(key, value string) *Recorder {
	r.dimensions[key] = value
	return r
}

// Metric records value under name. Recording a name twice keeps the last value.
func (r *Recorder) Metric(name string, value float64, unit string) *Recorder {
	for i := range r.metrics {
		if r.metrics[i].Name == name {
			r.metrics[i].Unit = unit
			r.fields[name] = value
			return r
		}
	}
	r.metrics = append(r.metrics, metricDef{Name: name, Unit: unit})
	r.fields[name] = value
	return r
}

// Count records a count of one.
func (r *Recorder) Count(name string) *Recorder {
	return r.Metric(name, 1, UnitCount)
}

// Duration records d in milliseconds. Zero durations are skipped.
func (r *Recorder) Duration(name string, d time.Duration) *Recorder {
	if d <= 0 {
		return r
	}
	return r.Metric(name, float64(d.Milliseconds()), UnitMilliseconds)
}

// Property adds a searchable field that is not a metric.
func (r *Recorder) Property(key string, value interface{}) *Recorder {
	r.fields[key] = value
	return r
}

// Document returns the JSON document, or nil when no metric was recorded.
func (r *Recorder) Document() ([]byte, error) {
	if len(r.metrics) == 0 {
		return nil, nil
	}

	keys := make([]string, 0, len(r.dimensions))
	for k := range r.dimensions {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	at := r.at
	if at.IsZero() {
		at = time.Now()
	}

	doc := make(map[string]interface{}, len(r.fields)+len(keys)+1)
	for k, v := range r.fields {
		doc[k] = v
	}
	for _, k := range keys {
		doc[k] = r.dimensions[k]
	}
	doc["_aws"] = directive{
		Timestamp: at.UnixMilli(),
		CloudWatchMetrics: []metricSet{{
			Namespace:  r.namespace,
			Dimensions: [][]string{keys},
			Metrics:    r.metrics,
		}},
	}
	return json.Marshal(doc)
}

// Flush writes the document to the sink as one line. A recorder with no
// metrics writes nothing.
func (r *Recorder) Flush() {
	data, err := r.Document()
	if err != nil {
		log.Warn().Err(err).Str("namespace", r.namespace).Msg("Failed to encode metrics")
		return
	}
	if data == nil {
		return
	}
	out.write(data)
}

// CheckIn is the metric view of one scan outcome.
type CheckIn struct {
	Result    string
	SessionID string
	ClassID   int64
	Acquire   time.Duration
	Submit    time.Duration
	At        time.Time
}

// RecordCheckIn emits CheckInResult (dimension Result) with the AcquireMs and
// SubmitMs timings of c.
func RecordCheckIn(c CheckIn) {
	r := New(Namespace).
		At(c.At).
		Dimension("Result", c.Result).
		Count("CheckInResult").
		Duration("AcquireMs", c.Acquire).
		Duration("SubmitMs", c.Submit).
		Property("sessionId", c.SessionID)
	if c.ClassID > 0 {
		r.Property("classId", c.ClassID)
	}
	r.Flush()
}

type sink struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *sink) write(line []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := fmt.Fprintf(s.w, "%s\n", line); err != nil {
		log.Warn().Err(err).Msg("Failed to write metrics")
	}
}

var out = &sink{w: io.Discard}

// SetOutput directs documents to w. A nil w disables emission.
func SetOutput(w io.Writer) {
	if w == nil {
		w = io.Discard
	}
	out.mu.Lock()
	out.w = w
	out.mu.Unlock()
}

// OpenFile appends documents to the file at path. The caller closes the
// returned file on exit.
func OpenFile(path string) (io.Closer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open metrics file: %w", err)
	}
	SetOutput(f)
	return f, nil
}
