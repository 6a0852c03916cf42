// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	ReplayedRecords   prometheus.Counter
	ReplayRunsStarted prometheus.Counter
	ReplayFailures    *prometheus.CounterVec // label: class
	ViewerMessages    prometheus.Counter
	BlankRejected     prometheus.Counter
	Reactions         *prometheus.CounterVec // label: icon
	SessionsCreated   prometheus.Counter
	SessionsReaped    prometheus.Counter
	StreamResumes     *prometheus.CounterVec // label: transport

	// Histograms (seconds)
	ReplayRunDuration  prometheus.Observer
	ScriptLoadDuration prometheus.Observer

	// Gauges
	ActiveSessions    prometheus.Gauge
	StreamSubscribers prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		ReplayedRecords = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_replayed_records_total", Help: "Scripted records appended by the replay sequencer"})
		ReplayRunsStarted = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_replay_runs_started_total", Help: "Replay runs started"})
		ReplayFailures = promauto.NewCounterVec(prometheus.CounterOpts{Name: "chat_replay_failures_total", Help: "Replay runs halted by a failed step"}, []string{"class"})
		ViewerMessages = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_viewer_messages_total", Help: "Messages submitted by viewers"})
		BlankRejected = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_blank_messages_rejected_total", Help: "Blank viewer submissions rejected"})
		Reactions = promauto.NewCounterVec(prometheus.CounterOpts{Name: "chat_reactions_total", Help: "Reaction button activations"}, []string{"icon"})
		SessionsCreated = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_sessions_created_total", Help: "Chat sessions created"})
		SessionsReaped = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_sessions_reaped_total", Help: "Idle chat sessions closed by the reaper"})
		StreamResumes = promauto.NewCounterVec(prometheus.CounterOpts{Name: "chat_stream_resumes_total", Help: "Streams resubscribed after falling behind the chat log"}, []string{"transport"})
		ReplayRunDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "chat_replay_run_duration_seconds", Help: "Wall time of a replay run", Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600}})
		ScriptLoadDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "chat_script_load_duration_seconds", Help: "Time to produce a session script", Buckets: prometheus.DefBuckets})
		ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{Name: "chat_sessions_active", Help: "Currently open chat sessions"})
		StreamSubscribers = promauto.NewGauge(prometheus.GaugeOpts{Name: "chat_stream_subscribers", Help: "Open SSE and websocket streams"})
	})
}

// IncReplayed counts one appended scripted record.
func IncReplayed() {
	if ReplayedRecords != nil {
		ReplayedRecords.Inc()
	}
}

// IncReplayStarted counts one replay run.
func IncReplayStarted() {
	if ReplayRunsStarted != nil {
		ReplayRunsStarted.Inc()
	}
}

// IncReplayFailure counts one halted replay under the given error class.
func IncReplayFailure(class string) {
	if ReplayFailures != nil {
		ReplayFailures.WithLabelValues(class).Inc()
	}
}

// IncViewerMessage counts one viewer submission.
func IncViewerMessage() {
	if ViewerMessages != nil {
		ViewerMessages.Inc()
	}
}

// IncBlankRejected counts one rejected blank submission.
func IncBlankRejected() {
	if BlankRejected != nil {
		BlankRejected.Inc()
	}
}

// IncReaction counts one activation of the reaction button showing icon.
func IncReaction(icon string) {
	if Reactions != nil {
		Reactions.WithLabelValues(icon).Inc()
	}
}

// IncStreamResume counts a stream that fell behind and resubscribed.
func IncStreamResume(transport string) {
	if StreamResumes != nil {
		StreamResumes.WithLabelValues(transport).Inc()
	}
}

// IncSessionsCreated counts one new session.
func IncSessionsCreated() {
	if SessionsCreated != nil {
		SessionsCreated.Inc()
	}
}

// AddSessionsReaped counts sessions closed for inactivity.
func AddSessionsReaped(n int) {
	if SessionsReaped != nil && n > 0 {
		SessionsReaped.Add(float64(n))
	}
}

// SetActiveSessions records the current number of open sessions.
func SetActiveSessions(n int) {
	if ActiveSessions != nil {
		ActiveSessions.Set(float64(n))
	}
}

// AddStreamSubscribers adjusts the open stream gauge by delta.
func AddStreamSubscribers(delta int) {
	if StreamSubscribers != nil {
		StreamSubscribers.Add(float64(delta))
	}
}

// ObserveDuration records d in seconds in obs if non-nil.
func ObserveDuration(obs prometheus.Observer, d time.Duration) {
	if obs != nil {
		obs.Observe(d.Seconds())
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
