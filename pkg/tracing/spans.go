package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
)

// DBSpanConfig describes a database operation for span attributes
type DBSpanConfig struct {
	Operation string // SELECT, INSERT, UPDATE, DELETE
	Table     string
}

// StartDBSpan starts a span for a database operation
func StartDBSpan(ctx context.Context, cfg DBSpanConfig) (context.Context, trace.Span) {
	tracer := GetTracer("paygo.db")
	ctx, span := tracer.Start(ctx, cfg.Operation+" "+cfg.Table,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			semconv.DBSystemPostgreSQL,
			semconv.DBOperation(cfg.Operation),
			semconv.DBSQLTable(cfg.Table),
		),
	)
	return ctx, span
}

// EndDBSpan records the outcome of a database operation and ends the span
func EndDBSpan(span trace.Span, err error, rowsAffected int64) {
	if rowsAffected >= 0 {
		span.SetAttributes(attribute.Int64("db.rows_affected", rowsAffected))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// StartVendorSpan starts a span for an outbound vendor API call
func StartVendorSpan(ctx context.Context, vendor, operation string) (context.Context, trace.Span) {
	tracer := GetTracer("paygo.vendor")
	return tracer.Start(ctx, vendor+"."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("vendor.name", vendor),
			attribute.String("vendor.operation", operation),
		),
	)
}

// EndVendorSpan records the outcome of a vendor call and ends the span
func EndVendorSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
