package observability

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"
)

func newTestMetrics() *Metrics {
	return &Metrics{
		apiRequests:      NewCounterVec("api_requests_total", "h", []string{"method", "route", "status"}),
		apiLatency:       NewHistogramVec("api_request_seconds", "h", []string{"method", "route"}, []float64{0.1, 1}),
		stageTransitions: NewCounterVec("transitions_total", "h", []string{"from", "to"}),
		embedCalls:       NewCounterVec("embed_calls_total", "h", []string{"status"}),
		embedLatency:     NewHistogramVec("embed_call_seconds", "h", []string{"status"}, nil),
		chunksEmbedded:   NewCounter("chunks_embedded_total", "h"),
		quizSubmissions:  NewCounterVec("quiz_submissions_total", "h", []string{"quiz_type", "passed"}),
		awards:           NewCounterVec("awards_total", "h", []string{"event_type", "outcome"}),
		achievements:     NewCounterVec("achievements_total", "h", []string{"achievement_id"}),
	}
}

func TestMetricsWritePrometheus(t *testing.T) {
	m := newTestMetrics()
	m.ObserveAPI("GET", "/api/points", 200, 50*time.Millisecond)
	m.ObserveEmbedCall(nil, time.Second, 3)
	m.ObserveEmbedCall(errors.New("boom"), time.Second, 0)
	m.ObserveQuizSubmission("LEVEL_TEST", true)

	var buf bytes.Buffer
	if err := m.WritePrometheus(&buf); err != nil {
		t.Fatalf("WritePrometheus: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		`api_requests_total{method="GET",route="/api/points",status="200"} 1.000000`,
		`api_request_seconds_bucket{method="GET",route="/api/points",le="0.1"} 1`,
		`embed_calls_total{status="error"} 1.000000`,
		`chunks_embedded_total 3.000000`,
		`quiz_submissions_total{quiz_type="level_test",passed="true"} 1.000000`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
}

func TestMetricsNilReceiverIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveAPI("GET", "/", 200, time.Millisecond)
	m.ObserveAward("quiz_passed", "awarded")
	if err := m.WritePrometheus(&bytes.Buffer{}); err != nil {
		t.Fatalf("nil WritePrometheus: %v", err)
	}
}
