// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/jllopis/concord/pkg/errors"
)

func TestSetupNone(t *testing.T) {
	shutdown, err := Setup(context.Background(), Config{ServiceName: "concord-test", Version: "v0.0.1", Exporter: ExporterNone})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestSetupPrometheusRegistersCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	shutdown, err := Setup(context.Background(), Config{
		ServiceName: "concord-test",
		Exporter:    ExporterPrometheus,
		Registerer:  reg,
	})
	require.NoError(t, err)
	defer func() { _ = shutdown(context.Background()) }()

	m, err := NewMetrics()
	require.NoError(t, err)
	m.RecordAgentRun(context.Background(), "hr-agent", "responded")

	families, err := reg.Gather()
	require.NoError(t, err)
	var names []string
	for _, mf := range families {
		names = append(names, mf.GetName())
	}
	assert.True(t, containsPrefix(names, "concord_agent_runs"), "families: %v", names)
}

func containsPrefix(names []string, prefix string) bool {
	for _, name := range names {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

func TestSetupRejectsBadExporters(t *testing.T) {
	_, err := Setup(context.Background(), Config{Exporter: "carrier-pigeon"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "prometheus")

	_, err = Setup(context.Background(), Config{Exporter: ExporterOTLP})
	assert.ErrorContains(t, err, "otlp endpoint is required")
}

func TestExportersSorted(t *testing.T) {
	assert.Equal(t, []string{"none", "otlp", "prometheus", "stdout"}, Exporters())
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record), buf.String())
	return record
}

func TestLoggerStampsIdentityAndSpan(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, LogConfig{Level: "info", Format: "json", Service: "concord", Version: "1.2.3"})

	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	Component(logger, "router").InfoContext(ctx, "router.call.start")
	span.End()

	record := decodeLine(t, &buf)
	assert.Equal(t, "concord", record["service"])
	assert.Equal(t, "1.2.3", record["version"])
	assert.Equal(t, "router", record["component"])
	assert.Equal(t, span.SpanContext().TraceID().String(), record["trace_id"])
	assert.Equal(t, span.SpanContext().SpanID().String(), record["span_id"])
	assert.NotContains(t, record, "source", "call site is recorded at debug only")
	assert.True(t, strings.HasSuffix(record["time"].(string), "Z"), record["time"])
}

func TestLoggerExpandsTypedErrors(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, LogConfig{Format: "json"})

	logger.Error("request failed", "error", errors.New(errors.CodeTimeout, "agent did not answer in time", nil).WithRecoverable(true))
	record := decodeLine(t, &buf)
	detail, ok := record["error"].(map[string]any)
	require.True(t, ok, "got %v", record["error"])
	assert.Equal(t, "TIMEOUT", detail["code"])
	assert.Equal(t, true, detail["recoverable"])

	buf.Reset()
	logger.Error("request failed", "error", fmt.Errorf("disk full"))
	assert.Equal(t, "disk full", decodeLine(t, &buf)["error"])
}

func TestLoggerCapsLongValues(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, LogConfig{Format: "json"})

	logger.Info("agent.request.received", "content", strings.Repeat("x", 4*maxLogValue))
	content := decodeLine(t, &buf)["content"].(string)
	assert.Len(t, []rune(content), maxLogValue)
	assert.True(t, strings.HasSuffix(content, "..."))
}

func TestLoggerDebugAddsSource(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(&buf, LogConfig{Level: "debug", Format: "json"}).Debug("governance.check")
	assert.Contains(t, decodeLine(t, &buf), "source")
}

func TestSetupLoggingInstallsDefault(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	var buf bytes.Buffer
	logger := SetupLogging(&buf, LogConfig{Format: "text"})
	assert.Same(t, logger, slog.Default())
	slog.Info("concord.ready")
	assert.Contains(t, buf.String(), "msg=concord.ready")
}

func TestLogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":    slog.LevelDebug,
		"INFO":     slog.LevelInfo,
		"WARNING":  slog.LevelWarn,
		" error ":  slog.LevelError,
		"nonsense": slog.LevelInfo,
		"":         slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, LogLevel(in), in)
	}
}
