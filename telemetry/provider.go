// Package telemetry adapts OpenTelemetry into the minimal core.Telemetry
// surface the domain packages (delegation and gateway) actually call:
// StartSpan and RecordMetric. It does not attempt to reproduce the
// teacher's full tracing/metrics/rate-limiting toolkit — only the slice
// of it a server process needs to export real spans.
//
// Grounded on itsneelabh/gomind's pkg/telemetry/otel.go (resource
// construction, otlptracegrpc exporter, stdouttrace fallback when no
// collector endpoint is configured) and telemetry/otel.go's
// core.Telemetry adapter shape (StartSpan/RecordMetric/Shutdown, the
// shutdown-guarded Provider struct).
package telemetry

import (
	"context"
	"fmt"
	"os"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/nexuscore/nexus/core"
)

// Provider implements core.Telemetry over an OpenTelemetry
// TracerProvider. Metrics use the process-global MeterProvider (a noop
// if none was set elsewhere) since no domain package needs exported
// metrics beyond what RecordMetric's counters/histograms capture
// in-process for now.
type Provider struct {
	tracer trace.Tracer
	meter  metric.Meter

	traceProvider *sdktrace.TracerProvider

	mu           sync.Mutex
	instruments  map[string]metric.Float64Counter
	histograms   map[string]metric.Float64Histogram
	shutdownOnce sync.Once
}

// NewProvider builds a Provider for serviceName. When endpoint is
// non-empty it exports spans via OTLP/gRPC; otherwise it falls back to
// a stdout exporter, matching the teacher's "noop-like local dev"
// behavior without silently dropping every span.
func NewProvider(serviceName, endpoint string) (*Provider, error) {
	if serviceName == "" {
		return nil, fmt.Errorf("telemetry: service name is required")
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceNameKey.String(serviceName),
		semconv.ServiceVersionKey.String("1.0.0"),
	)

	var exporter sdktrace.SpanExporter
	var err error
	if endpoint != "" {
		exporter, err = otlptracegrpc.New(context.Background(),
			otlptracegrpc.WithEndpoint(endpoint),
			otlptracegrpc.WithInsecure(),
		)
	} else {
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
	}
	if err != nil {
		return nil, fmt.Errorf("telemetry: create span exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return &Provider{
		tracer:        tp.Tracer(serviceName),
		meter:         otel.Meter(serviceName),
		traceProvider: tp,
		instruments:   make(map[string]metric.Float64Counter),
		histograms:    make(map[string]metric.Float64Histogram),
	}, nil
}

// StartSpan implements core.Telemetry.
func (p *Provider) StartSpan(ctx context.Context, name string) (context.Context, core.Span) {
	ctx, span := p.tracer.Start(ctx, name)
	return ctx, &otelSpan{span: span}
}

// RecordMetric implements core.Telemetry. Names starting or ending with
// "count", "total", "errors", or "success" are recorded as monotonic counters;
// everything else (timings, scores, gauges) as histograms — the same
// name-pattern heuristic the teacher's OTelProvider used. Instruments
// are created once per name and reused.
func (p *Provider) RecordMetric(name string, value float64, labels map[string]string) {
	attrs := make([]attribute.KeyValue, 0, len(labels))
	for k, v := range labels {
		attrs = append(attrs, attribute.String(k, v))
	}
	opt := metric.WithAttributes(attrs...)

	if isCounterMetric(name) {
		c, err := p.counterFor(name)
		if err == nil {
			c.Add(context.Background(), value, opt)
		}
		return
	}

	h, err := p.histogramFor(name)
	if err == nil {
		h.Record(context.Background(), value, opt)
	}
}

func isCounterMetric(name string) bool {
	for _, substr := range []string{"count", "total", "errors", "success"} {
		if len(name) >= len(substr) &&
			(name[len(name)-len(substr):] == substr || name[:len(substr)] == substr) {
			return true
		}
	}
	return false
}

func (p *Provider) counterFor(name string) (metric.Float64Counter, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.instruments[name]; ok {
		return c, nil
	}
	c, err := p.meter.Float64Counter(name)
	if err != nil {
		return nil, err
	}
	p.instruments[name] = c
	return c, nil
}

func (p *Provider) histogramFor(name string) (metric.Float64Histogram, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if h, ok := p.histograms[name]; ok {
		return h, nil
	}
	h, err := p.meter.Float64Histogram(name)
	if err != nil {
		return nil, err
	}
	p.histograms[name] = h
	return h, nil
}

// Shutdown flushes and stops the underlying TracerProvider. Safe to
// call more than once.
func (p *Provider) Shutdown(ctx context.Context) error {
	var err error
	p.shutdownOnce.Do(func() {
		err = p.traceProvider.Shutdown(ctx)
	})
	return err
}

type otelSpan struct {
	span trace.Span
}

func (s *otelSpan) End() { s.span.End() }

func (s *otelSpan) SetAttribute(key string, value interface{}) {
	switch v := value.(type) {
	case string:
		s.span.SetAttributes(attribute.String(key, v))
	case int:
		s.span.SetAttributes(attribute.Int(key, v))
	case int64:
		s.span.SetAttributes(attribute.Int64(key, v))
	case float64:
		s.span.SetAttributes(attribute.Float64(key, v))
	case bool:
		s.span.SetAttributes(attribute.Bool(key, v))
	default:
		s.span.SetAttributes(attribute.String(key, fmt.Sprintf("%v", v)))
	}
}

func (s *otelSpan) RecordError(err error) { s.span.RecordError(err) }

// EnableTelemetry builds a core.Telemetry for serviceName, preferring
// endpoint, then OTEL_EXPORTER_OTLP_ENDPOINT, then falling back to a
// stdout exporter so spans are never silently dropped in local dev.
func EnableTelemetry(serviceName, endpoint string, log core.Logger) (core.Telemetry, error) {
	if endpoint == "" {
		endpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	}

	provider, err := NewProvider(serviceName, endpoint)
	if err != nil {
		return nil, err
	}

	if log != nil {
		log.Info("telemetry enabled", map[string]interface{}{"service": serviceName, "endpoint": endpoint})
	}
	return provider, nil
}
