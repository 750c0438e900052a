// AngelaMos | 2026
// telemetry.go

package core

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/flightscheduly/backend/internal/config"
)

const (
	instrumentationName = "github.com/flightscheduly/backend"
	defaultSampleRate   = 0.1
	exportTimeout       = 5 * time.Second
	flushTimeout        = 10 * time.Second
)

// Telemetry owns the process tracer provider. With tracing disabled it is
// empty and Shutdown is a no-op, while spans started through StartSpan go to
// otel's global no-op provider.
type Telemetry struct {
	provider *sdktrace.TracerProvider
}

func NewTelemetry(
	ctx context.Context,
	otelCfg config.OtelConfig,
	appCfg config.AppConfig,
) (*Telemetry, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if !otelCfg.Enabled || otelCfg.Endpoint == "" {
		return &Telemetry{}, nil
	}

	exporter, err := otlptracegrpc.New(ctx, exporterOptions(otelCfg)...)
	if err != nil {
		return nil, fmt.Errorf("create otlp exporter: %w", err)
	}

	res, err := serviceResource(ctx, otelCfg, appCfg)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(exportTimeout)),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(samplerFor(otelCfg.SampleRate)),
	)
	otel.SetTracerProvider(tp)

	return &Telemetry{provider: tp}, nil
}

func exporterOptions(cfg config.OtelConfig) []otlptracegrpc.Option {
	creds := credentials.NewClientTLSFromCert(nil, "")
	if cfg.Insecure {
		creds = insecure.NewCredentials()
	}

	return []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
		otlptracegrpc.WithTimeout(exportTimeout),
		otlptracegrpc.WithTLSCredentials(creds),
	}
}

func serviceResource(
	ctx context.Context,
	otelCfg config.OtelConfig,
	appCfg config.AppConfig,
) (*resource.Resource, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(otelCfg.ServiceName),
			semconv.ServiceVersion(appCfg.Version),
			semconv.DeploymentEnvironment(appCfg.Environment),
		),
		resource.WithHost(),
		resource.WithProcess(),
	)
	if err != nil {
		return nil, fmt.Errorf("create otel resource: %w", err)
	}
	return res, nil
}

// samplerFor follows the caller's sampling decision and samples new root
// traces at rate, falling back to 10% for out-of-range values.
func samplerFor(rate float64) sdktrace.Sampler {
	if rate <= 0 || rate > 1 {
		rate = defaultSampleRate
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))
}

func (t *Telemetry) Enabled() bool {
	return t != nil && t.provider != nil
}

// Shutdown flushes buffered spans.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if !t.Enabled() {
		return nil
	}

	flushCtx, cancel := context.WithTimeout(ctx, flushTimeout)
	defer cancel()

	if err := t.provider.Shutdown(flushCtx); err != nil {
		return fmt.Errorf("shutdown tracer provider: %w", err)
	}
	return nil
}

func StartSpan(
	ctx context.Context,
	name string,
	attrs ...attribute.KeyValue,
) (context.Context, trace.Span) {
	return otel.Tracer(instrumentationName).Start(
		ctx,
		name,
		trace.WithAttributes(attrs...),
	)
}

// EndSpan records err, if any, and ends span.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func TraceIDFromContext(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return ""
	}
	return sc.TraceID().String()
}

func AddSpanEvent(
	ctx context.Context,
	name string,
	attrs ...attribute.KeyValue,
) {
	trace.SpanFromContext(ctx).AddEvent(name, trace.WithAttributes(attrs...))
}
