// Package otel wires OpenTelemetry tracing for the forecasting pipeline:
// one OTLP/gRPC exporter, a batched tracer provider, and the attribute
// keys shared by the pipeline stages.
package otel

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

// Config holds tracing configuration.
type Config struct {
	Enabled           bool    `json:"enabled" mapstructure:"enabled"`
	ServiceName       string  `json:"service_name" mapstructure:"service_name"`
	ServiceVersion    string  `json:"service_version" mapstructure:"service_version"`
	Environment       string  `json:"environment" mapstructure:"environment"`
	CollectorEndpoint string  `json:"collector_endpoint" mapstructure:"collector_endpoint"`
	SamplingRate      float64 `json:"sampling_rate" mapstructure:"sampling_rate"`
}

// DefaultConfig returns tracing defaults with export disabled.
func DefaultConfig() Config {
	return Config{
		Enabled:           false,
		ServiceName:       "forecast",
		ServiceVersion:    "1.0.0",
		Environment:       "production",
		CollectorEndpoint: "localhost:4317",
		SamplingRate:      1.0,
	}
}

// InitTracer installs the global tracer provider. When disabled it returns
// nil and spans become no-ops through the default provider.
func InitTracer(ctx context.Context, cfg Config) (*sdktrace.TracerProvider, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.CollectorEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(5*time.Second)),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(cfg.SamplingRate)),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return tp, nil
}

// Shutdown flushes and stops the tracer provider.
func Shutdown(ctx context.Context, tp *sdktrace.TracerProvider) error {
	if tp == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return tp.Shutdown(ctx)
}

// Attribute keys shared by the pipeline spans.
const (
	AttrRunID   = attribute.Key("run.id")
	AttrAdapter = attribute.Key("model.adapter")
	AttrFold    = attribute.Key("validation.fold")
	AttrHorizon = attribute.Key("forecast.horizon")
)
