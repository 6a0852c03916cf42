package telemetry

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestMetricsInitialized(t *testing.T) {
	Init()
	Init() // idempotent

	if ReplayRunDuration == nil || ScriptLoadDuration == nil {
		t.Fatal("histograms not initialized")
	}
	if ReplayedRecords == nil || ReplayFailures == nil || Reactions == nil || StreamResumes == nil {
		t.Fatal("counters not initialized")
	}
	if ActiveSessions == nil || StreamSubscribers == nil {
		t.Fatal("gauges not initialized")
	}
}

func TestCounterHelpers(t *testing.T) {
	Init()

	tests := []struct {
		name    string
		counter prometheus.Collector
		inc     func()
		want    float64
	}{
		{"replayed", ReplayedRecords, IncReplayed, 1},
		{"runs", ReplayRunsStarted, IncReplayStarted, 1},
		{"viewer", ViewerMessages, IncViewerMessage, 1},
		{"blank", BlankRejected, IncBlankRejected, 1},
		{"created", SessionsCreated, IncSessionsCreated, 1},
		{"reaped", SessionsReaped, func() { AddSessionsReaped(3); AddSessionsReaped(0) }, 3},
		{"failure", ReplayFailures.WithLabelValues("closed"), func() { IncReplayFailure("closed") }, 1},
		{"reaction", Reactions.WithLabelValues("🔥"), func() { IncReaction("🔥") }, 1},
		{"resume", StreamResumes.WithLabelValues("sse"), func() { IncStreamResume("sse") }, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := testutil.ToFloat64(tt.counter)
			tt.inc()
			if got := testutil.ToFloat64(tt.counter) - before; got != tt.want {
				t.Errorf("delta = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGaugeHelpers(t *testing.T) {
	Init()

	SetActiveSessions(4)
	if got := testutil.ToFloat64(ActiveSessions); got != 4 {
		t.Errorf("active sessions = %v, want 4", got)
	}

	before := testutil.ToFloat64(StreamSubscribers)
	AddStreamSubscribers(2)
	AddStreamSubscribers(-1)
	if got := testutil.ToFloat64(StreamSubscribers) - before; got != 1 {
		t.Errorf("stream subscribers delta = %v, want 1", got)
	}
}

func TestTimeFuncRecordsObservation(t *testing.T) {
	histogram := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "test_duration_seconds",
		Help:    "Test histogram",
		Buckets: prometheus.DefBuckets,
	})

	executed := false
	duration := TimeFunc(histogram, func() {
		executed = true
		time.Sleep(10 * time.Millisecond)
	})
	if !executed {
		t.Error("TimeFunc did not execute provided function")
	}
	if duration < 10*time.Millisecond {
		t.Errorf("TimeFunc duration = %v, want >= 10ms", duration)
	}

	metric := &dto.Metric{}
	if err := histogram.Write(metric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}
	if metric.Histogram.GetSampleCount() != 1 {
		t.Errorf("sample count = %d, want 1", metric.Histogram.GetSampleCount())
	}

	// nil observers are ignored
	TimeFunc(nil, func() {})
	ObserveDuration(nil, time.Second)
}

func TestLoggerWithCorr(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))

	ctx := WithCorrelation(context.Background(), "abc-123")
	if got := GetCorrelation(ctx); got != "abc-123" {
		t.Fatalf("GetCorrelation = %q", got)
	}
	LoggerWithCorr(ctx).Info("hello")
	if !strings.Contains(buf.String(), "corr=abc-123") {
		t.Errorf("log line missing correlation id: %q", buf.String())
	}
	if GetCorrelation(context.Background()) != "" {
		t.Error("empty context returned a correlation id")
	}
}

func TestSetupLogging(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	tests := []struct {
		level, format string
		want          []string
	}{
		{"debug", "json", []string{`"level":"DEBUG"`, `"msg":"ready"`}},
		{"info", "text", []string{"level=INFO", "msg=ready"}},
		{"loud", "", []string{"unknown LOG_LEVEL", "value=loud"}},
	}
	for _, tt := range tests {
		t.Run(tt.level+"/"+tt.format, func(t *testing.T) {
			var buf bytes.Buffer
			logger := SetupLogging(&buf, tt.level, tt.format)
			logger.Info("ready")
			if tt.level == "debug" {
				logger.Debug("ready")
			}
			for _, want := range tt.want {
				if !strings.Contains(buf.String(), want) {
					t.Errorf("output %q missing %q", buf.String(), want)
				}
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
		ok   bool
	}{
		{"", slog.LevelInfo, true},
		{"DEBUG", slog.LevelDebug, true},
		{"warn", slog.LevelWarn, true},
		{"error", slog.LevelError, true},
		{"verbose", slog.LevelInfo, false},
	}
	for _, tt := range tests {
		if got, ok := ParseLevel(tt.in); got != tt.want || ok != tt.ok {
			t.Errorf("ParseLevel(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}
