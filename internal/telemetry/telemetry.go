// Package telemetry sets up optional OpenTelemetry tracing and provides a
// span helper for mesh statement handling; internal/meshctx does not call
// that helper.
//
// Grounded on flavio-simonelli-KoordeDHT/internal/telemetry/init.go's
// InitTracer and internal/node/telemetry/attribute.go's id-attribute
// helper. The teacher also wires jaeger and otlp exporters over grpc;
// this mesh node only ships the stdout exporter (see DESIGN.md for why
// the grpc-backed exporters were dropped), so InitTracer here supports
// just the "stdout" case plus a disabled no-op.
package telemetry

import (
	"context"
	"fmt"
	"log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"thingset-mesh-go/internal/config"
	"thingset-mesh-go/internal/meshid"
)

const tracerName = "thingset-mesh/meshctx"

var tracer = otel.Tracer(tracerName)

// NodeIDAttributes renders id the same way the teacher renders its node
// identifiers: hex plus decimal, for span and log correlation.
func NodeIDAttributes(prefix string, id meshid.NodeID) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(prefix+".hex", fmt.Sprintf("0x%016x", uint64(id))),
		attribute.Int64(prefix+".dec", int64(id)),
	}
}

// InitTracer installs a global TracerProvider per cfg and returns its
// shutdown func. Disabled tracing (the default) returns a no-op.
func InitTracer(cfg config.TelemetryConfig, serviceName string, self meshid.NodeID) func(context.Context) error {
	if !cfg.Tracing.Enabled {
		return func(context.Context) error { return nil }
	}

	attrs := append(
		[]attribute.KeyValue{attribute.String("service.name", serviceName)},
		NodeIDAttributes("mesh.node.id", self)...,
	)
	res, err := resource.New(context.Background(), resource.WithAttributes(attrs...))
	if err != nil {
		log.Fatalf("telemetry: build resource: %v", err)
	}

	var tp *sdktrace.TracerProvider
	switch cfg.Tracing.Exporter {
	case "stdout", "":
		exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			log.Fatalf("telemetry: stdout exporter: %v", err)
		}
		tp = sdktrace.NewTracerProvider(sdktrace.WithBatcher(exp), sdktrace.WithResource(res))
	default:
		log.Fatalf("telemetry: unsupported exporter %q", cfg.Tracing.Exporter)
	}

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return tp.Shutdown
}

// StartStatementSpan opens a span around handling one heartbeat or
// originator statement, tagging it with the origin node id.
func StartStatementSpan(ctx context.Context, kind string, origin meshid.NodeID) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, "meshctx."+kind, trace.WithSpanKind(trace.SpanKindServer))
	span.SetAttributes(NodeIDAttributes("mesh.origin", origin)...)
	return ctx, span
}
