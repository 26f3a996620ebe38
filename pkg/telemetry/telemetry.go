// Copyright 2026 © The Concord Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Exporter names accepted in telemetry.exporter.
const (
	ExporterStdout     = "stdout"
	ExporterOTLP       = "otlp"
	ExporterPrometheus = "prometheus"
	ExporterNone       = "none"
)

// ServiceNamespace groups every concord process in trace backends.
const ServiceNamespace = "concord"

const (
	spanBatchTimeout = time.Second
	pushInterval     = 30 * time.Second
)

// ShutdownFunc flushes and stops the providers installed by Setup.
type ShutdownFunc func(context.Context) error

// Config selects where concord sends spans and metrics.
type Config struct {
	ServiceName  string
	Version      string
	Exporter     string
	OTLPEndpoint string
	OTLPInsecure bool
	// Registerer receives the collector of the prometheus exporter. Nil
	// means prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer
}

// providers is one tracer and meter provider pair built for an exporter.
type providers struct {
	tracer *sdktrace.TracerProvider
	meter  *sdkmetric.MeterProvider
}

type exporterFactory func(ctx context.Context, res *resource.Resource, cfg Config) (providers, error)

var exporters = map[string]exporterFactory{
	ExporterStdout:     stdoutProviders,
	ExporterOTLP:       otlpProviders,
	ExporterPrometheus: prometheusProviders,
	ExporterNone:       localProviders,
}

// Exporters lists the accepted exporter names.
func Exporters() []string {
	names := make([]string, 0, len(exporters))
	for name := range exporters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Setup installs the global tracer and meter providers for cfg.Exporter,
// stdout when empty, and W3C trace context propagation so agent calls join
// the caller's trace.
func Setup(ctx context.Context, cfg Config) (ShutdownFunc, error) {
	exporter := cfg.Exporter
	if exporter == "" {
		exporter = ExporterStdout
	}
	build, ok := exporters[exporter]
	if !ok {
		return nil, fmt.Errorf("unknown telemetry exporter %q (want one of %v)", exporter, Exporters())
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.Version),
		semconv.ServiceNamespace(ServiceNamespace),
	))
	if err != nil {
		return nil, fmt.Errorf("telemetry resource: %w", err)
	}

	p, err := build(ctx, res, cfg)
	if err != nil {
		return nil, fmt.Errorf("%s exporter: %w", exporter, err)
	}
	otel.SetTracerProvider(p.tracer)
	otel.SetMeterProvider(p.meter)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return func(ctx context.Context) error {
		return errors.Join(p.tracer.Shutdown(ctx), p.meter.Shutdown(ctx))
	}, nil
}

func stdoutProviders(_ context.Context, res *resource.Resource, _ Config) (providers, error) {
	spans, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return providers{}, err
	}
	metrics, err := stdoutmetric.New()
	if err != nil {
		return providers{}, err
	}
	return pushProviders(res, spans, metrics), nil
}

func otlpProviders(ctx context.Context, res *resource.Resource, cfg Config) (providers, error) {
	if cfg.OTLPEndpoint == "" {
		return providers{}, errors.New("otlp endpoint is required")
	}
	traceOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint)}
	metricOpts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint)}
	if cfg.OTLPInsecure {
		traceOpts = append(traceOpts, otlptracegrpc.WithInsecure())
		metricOpts = append(metricOpts, otlpmetricgrpc.WithInsecure())
	}

	spans, err := otlptracegrpc.New(ctx, traceOpts...)
	if err != nil {
		return providers{}, err
	}
	metrics, err := otlpmetricgrpc.New(ctx, metricOpts...)
	if err != nil {
		return providers{}, err
	}
	return pushProviders(res, spans, metrics), nil
}

// pushProviders batches spans and pushes metrics on a fixed interval.
func pushProviders(res *resource.Resource, spans sdktrace.SpanExporter, metrics sdkmetric.Exporter) providers {
	return providers{
		tracer: sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(spans, sdktrace.WithBatchTimeout(spanBatchTimeout)),
			sdktrace.WithResource(res),
		),
		meter: sdkmetric.NewMeterProvider(
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metrics, sdkmetric.WithInterval(pushInterval))),
			sdkmetric.WithResource(res),
		),
	}
}

// prometheusProviders serves metrics from the /metrics collector. Spans
// stay in process so log records still carry trace ids.
func prometheusProviders(_ context.Context, res *resource.Resource, cfg Config) (providers, error) {
	var opts []otelprom.Option
	if cfg.Registerer != nil {
		opts = append(opts, otelprom.WithRegisterer(cfg.Registerer))
	}
	reader, err := otelprom.New(opts...)
	if err != nil {
		return providers{}, err
	}
	return providers{
		tracer: sdktrace.NewTracerProvider(sdktrace.WithResource(res)),
		meter:  sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader), sdkmetric.WithResource(res)),
	}, nil
}

func localProviders(_ context.Context, res *resource.Resource, _ Config) (providers, error) {
	return providers{
		tracer: sdktrace.NewTracerProvider(sdktrace.WithResource(res)),
		meter:  sdkmetric.NewMeterProvider(sdkmetric.WithResource(res)),
	}, nil
}
