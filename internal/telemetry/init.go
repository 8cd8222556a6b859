// Package telemetry wires OpenTelemetry tracing for the overlay: a
// resource tagged with the node's id, and a stdout or OTLP exporter
// chosen by configuration. Grounded on the teacher's own telemetry/init.go,
// minus the jaeger exporter branch (imported by the teacher but never
// declared in its go.mod, so excluded here per DESIGN.md) and adapted from
// the teacher's KV-store domain.ID to this system's ringid.ID.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"

	"chordring/internal/config"
	"chordring/internal/logger"
	"chordring/internal/ringid"
)

// IDAttributes renders a ring id as a span/resource attribute set under key.
func IDAttributes(key string, id ringid.ID) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(key, id.String()),
		attribute.Int(key+".tiny", int(id.Tiny())),
	}
}

// Init builds and installs the global TracerProvider per cfg, tagging every
// span's resource with this peer's node id. Returns a shutdown func to
// flush and stop the exporter; a no-op if tracing is disabled.
func Init(cfg config.TelemetryConfig, serviceName string, nodeID ringid.ID, lgr logger.Logger) func(context.Context) error {
	if !cfg.Tracing.Enabled {
		lgr.Debug("tracing disabled")
		return func(context.Context) error { return nil }
	}

	attrs := append(
		[]attribute.KeyValue{semconv.ServiceNameKey.String(serviceName)},
		IDAttributes("dht.node.id", nodeID)...,
	)
	res, err := resource.New(context.Background(), resource.WithAttributes(attrs...))
	if err != nil {
		lgr.Error("telemetry: failed to build resource, tracing disabled", logger.F("err", err))
		return func(context.Context) error { return nil }
	}

	var tp *sdktrace.TracerProvider
	switch cfg.Tracing.Exporter {
	case "stdout":
		exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			lgr.Error("telemetry: failed to init stdout exporter, tracing disabled", logger.F("err", err))
			return func(context.Context) error { return nil }
		}
		tp = sdktrace.NewTracerProvider(sdktrace.WithBatcher(exp), sdktrace.WithResource(res))
	case "otlp":
		exp, err := otlptracegrpc.New(context.Background(),
			otlptracegrpc.WithInsecure(),
			otlptracegrpc.WithEndpoint(cfg.Tracing.Endpoint),
		)
		if err != nil {
			lgr.Error("telemetry: failed to init otlp exporter, tracing disabled", logger.F("err", err))
			return func(context.Context) error { return nil }
		}
		tp = sdktrace.NewTracerProvider(sdktrace.WithBatcher(exp), sdktrace.WithResource(res))
	default:
		lgr.Error("telemetry: unsupported exporter, tracing disabled", logger.F("exporter", cfg.Tracing.Exporter))
		return func(context.Context) error { return nil }
	}

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	lgr.Info("tracing initialized", logger.F("exporter", cfg.Tracing.Exporter), logger.F("service", fmt.Sprint(serviceName)))
	return tp.Shutdown
}
