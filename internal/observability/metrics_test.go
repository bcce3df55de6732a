package observability_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap/zapcore"

	"github.com/znerol74/call/internal/observability"
)

func TestMetricsRecord(t *testing.T) {
	m := observability.NewMetrics(prometheus.NewRegistry())

	m.SessionStarted()
	m.SessionStarted()
	m.SessionRemoved()
	m.SessionEnded("completed")
	m.TurnAppended("user")
	m.ToolInvoked("end_call", true)
	m.ToolInvoked("api_call", false)
	m.ObserveGeneration("reply", 300*time.Millisecond)
	m.SummaryFailed()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.SessionsStarted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionsActive))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionsEnded.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Turns.WithLabelValues("user")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ToolInvocations.WithLabelValues("api_call", "error")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.GenerationLatency))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SummaryFailures))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *observability.Metrics
	m.SessionStarted()
	m.SessionRemoved()
	m.SessionEnded("failed")
	m.TurnAppended("tool")
	m.ToolInvoked("x", false)
	m.ObserveGeneration("summary", time.Second)
	m.SummaryFailed()
}

func TestSetupTracingWritesSpans(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := observability.SetupTracing(&buf)
	require.NoError(t, err)

	_, span := otel.Tracer(observability.TracerName).Start(context.Background(), "session.submit")
	span.End()

	require.NoError(t, shutdown(context.Background()))
	assert.Contains(t, buf.String(), "session.submit")
}

func TestSetupTracingDisabled(t *testing.T) {
	shutdown, err := observability.SetupTracing(nil)
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestNewLogger(t *testing.T) {
	logger, err := observability.NewLogger("debug", "console")
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))

	logger, err = observability.NewLogger("warn", "json")
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))

	_, err = observability.NewLogger("loud", "json")
	assert.Error(t, err)
	_, err = observability.NewLogger("info", "xml")
	assert.Error(t, err)
}
