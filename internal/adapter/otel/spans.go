package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "codesense"

// StartSessionSpan starts a span covering a language server's launch and
// initialize handshake.
func StartSessionSpan(ctx context.Context, sessionID, language, root string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "session",
		trace.WithAttributes(
			attribute.String("session.id", sessionID),
			attribute.String("session.language", language),
			attribute.String("session.root", root),
		),
	)
}

// StartRequestSpan starts a span for a single language server request.
func StartRequestSpan(ctx context.Context, language, method string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "request",
		trace.WithAttributes(
			attribute.String("request.language", language),
			attribute.String("request.method", method),
		),
	)
}

// StartToolSpan starts a span for an MCP tool invocation.
func StartToolSpan(ctx context.Context, tool string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "tool",
		trace.WithAttributes(
			attribute.String("tool.name", tool),
		),
	)
}
