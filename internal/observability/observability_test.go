package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/action-gate/config"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.ObservabilityConfig
		wantErr bool
		level   zapcore.Level
	}{
		{"json info", config.ObservabilityConfig{LogLevel: "info", LogFormat: "json"}, false, zapcore.InfoLevel},
		{"console debug", config.ObservabilityConfig{LogLevel: "DEBUG", LogFormat: "console"}, false, zapcore.DebugLevel},
		{"default format", config.ObservabilityConfig{LogLevel: "warn"}, false, zapcore.WarnLevel},
		{"bad level", config.ObservabilityConfig{LogLevel: "loud"}, true, 0},
		{"bad format", config.ObservabilityConfig{LogLevel: "info", LogFormat: "xml"}, true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := NewLogger(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, logger.Core().Enabled(tt.level))
			assert.False(t, logger.Core().Enabled(tt.level-1))
		})
	}
}

func TestWithRequest(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	base := zap.New(core)

	WithRequest(context.Background(), base).Info("plain")
	assert.Empty(t, logs.All()[0].Context)

	ctx := context.WithValue(context.Background(), chimw.RequestIDKey, "req-42")
	traceID := oteltrace.TraceID{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
	sc := oteltrace.NewSpanContext(oteltrace.SpanContextConfig{TraceID: traceID, SpanID: oteltrace.SpanID{1}})
	ctx = oteltrace.ContextWithSpanContext(ctx, sc)

	WithRequest(ctx, base).Info("annotated")
	fields := logs.All()[1].ContextMap()
	assert.Equal(t, "req-42", fields["request_id"])
	assert.Equal(t, traceID.String(), fields["trace_id"])
}

func sampleDecision(s sdktrace.Sampler) sdktrace.SamplingDecision {
	return s.ShouldSample(sdktrace.SamplingParameters{
		ParentContext: context.Background(),
		TraceID:       oteltrace.TraceID{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16},
		Name:          "gating-test",
	}).Decision
}

func TestParseSampler(t *testing.T) {
	assert.Equal(t, sdktrace.Drop, sampleDecision(parseSampler("always_off", 1)))
	assert.Equal(t, sdktrace.RecordAndSample, sampleDecision(parseSampler("always_on", 0)))
	assert.Equal(t, sdktrace.RecordAndSample, sampleDecision(parseSampler("traceidratio", 2)))
	assert.Equal(t, sdktrace.Drop, sampleDecision(parseSampler("traceidratio", -1)))
	assert.Equal(t, sdktrace.Drop, sampleDecision(parseSampler("parentbased", 0)))
	assert.Equal(t, sdktrace.RecordAndSample, sampleDecision(parseSampler("", 1)))
}

func TestInitTracing_NoEndpoint(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), config.ObservabilityConfig{TraceRatio: 1}, zap.NewNop())
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInstrumentClient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := InstrumentClient(nil)
	require.NotNil(t, client.Transport)

	resp, err := client.Get(server.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestHTTPMiddleware(t *testing.T) {
	handler := HTTPMiddleware("")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusAccepted, rec.Code)
}
