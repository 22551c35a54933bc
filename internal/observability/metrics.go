package observability

import (
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/yungbote/lumen-backend/internal/platform/envutil"
	"github.com/yungbote/lumen-backend/internal/platform/logger"
)

// Metrics holds process counters exported in Prometheus text format.
// All methods are safe on a nil receiver so callers need not check Enabled.
type Metrics struct {
	apiRequests      *CounterVec
	apiLatency       *HistogramVec
	stageTransitions *CounterVec
	embedCalls       *CounterVec
	embedLatency     *HistogramVec
	chunksEmbedded   *CounterVec
	quizSubmissions  *CounterVec
	awards           *CounterVec
	achievements     *CounterVec
	ingestJobs       *CounterVec
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Enabled() bool {
	return envutil.Bool("METRICS_ENABLED", false)
}

func Current() *Metrics {
	return instance
}

func Init(log *logger.Logger) *Metrics {
	initOnce.Do(func() {
		instance = &Metrics{
			apiRequests:      NewCounterVec("lumen_api_requests_total", "HTTP requests", []string{"method", "route", "status"}),
			apiLatency:       NewHistogramVec("lumen_api_request_seconds", "HTTP request latency", []string{"method", "route"}, nil),
			stageTransitions: NewCounterVec("lumen_ingest_transitions_total", "Document stage transitions", []string{"from", "to"}),
			embedCalls:       NewCounterVec("lumen_embed_calls_total", "Embedding provider calls", []string{"status"}),
			embedLatency:     NewHistogramVec("lumen_embed_call_seconds", "Embedding provider latency", []string{"status"}, []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30}),
			chunksEmbedded:   NewCounter("lumen_chunks_embedded_total", "Chunks that received a vector"),
			quizSubmissions:  NewCounterVec("lumen_quiz_submissions_total", "Graded quiz attempts", []string{"quiz_type", "passed"}),
			awards:           NewCounterVec("lumen_points_awards_total", "Points award attempts", []string{"event_type", "outcome"}),
			achievements:     NewCounterVec("lumen_achievements_granted_total", "Achievements granted", []string{"achievement_id"}),
			ingestJobs:       NewCounterVec("lumen_ingest_jobs_total", "Background ingest runs", []string{"outcome"}),
		}
		if log != nil {
			log.Info("metrics initialized")
		}
	})
	return instance
}

func (m *Metrics) WriteHTTP(w http.ResponseWriter, _ *http.Request) {
	if m == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_ = m.WritePrometheus(w)
}

func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	writers := []interface{ WritePrometheus(io.Writer) error }{
		m.apiRequests, m.apiLatency, m.stageTransitions, m.embedCalls,
		m.embedLatency, m.chunksEmbedded, m.quizSubmissions, m.awards, m.achievements,
		m.ingestJobs,
	}
	for _, wr := range writers {
		if err := wr.WritePrometheus(w); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) ObserveAPI(method, route string, status int, dur time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "UNKNOWN"
	}
	if route == "" {
		route = "unknown"
	}
	m.apiRequests.Inc(method, route, strconv.Itoa(status))
	m.apiLatency.Observe(dur.Seconds(), method, route)
}

func (m *Metrics) ObserveStageTransition(from, to string) {
	if m == nil {
		return
	}
	m.stageTransitions.Inc(from, to)
}

func (m *Metrics) ObserveEmbedCall(err error, dur time.Duration, embedded int) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.embedCalls.Inc(status)
	m.embedLatency.Observe(dur.Seconds(), status)
	if embedded > 0 {
		m.chunksEmbedded.Add(float64(embedded))
	}
}

func (m *Metrics) ObserveQuizSubmission(quizType string, passed bool) {
	if m == nil {
		return
	}
	m.quizSubmissions.Inc(strings.ToLower(quizType), strconv.FormatBool(passed))
}

// ObserveAward records outcome "awarded", "duplicate" or "error".
func (m *Metrics) ObserveAward(eventType, outcome string) {
	if m == nil {
		return
	}
	m.awards.Inc(eventType, outcome)
}

func (m *Metrics) ObserveAchievement(id string) {
	if m == nil {
		return
	}
	m.achievements.Inc(id)
}

// ObserveIngestJob records outcome "completed", "failed", "partial", "skipped"
// or "error" for one background ingest run.
func (m *Metrics) ObserveIngestJob(outcome string) {
	if m == nil {
		return
	}
	m.ingestJobs.Inc(outcome)
}
