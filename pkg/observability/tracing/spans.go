// Package tracing provides OpenTelemetry tracing for document store operations.
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentationName is the tracer scope used for connector spans.
const InstrumentationName = "github.com/nimburion/couchconnector"

// SpanOperation represents a traced document operation.
type SpanOperation string

// Span operation constants
const (
	SpanOperationDocGet       SpanOperation = "doc.get"
	SpanOperationDocPut       SpanOperation = "doc.put"
	SpanOperationDocDelete    SpanOperation = "doc.delete"
	SpanOperationDocBulkGet   SpanOperation = "doc.bulk_get"
	SpanOperationDocBulkDel   SpanOperation = "doc.bulk_delete"
	SpanOperationDesignSync   SpanOperation = "design.sync"
	SpanOperationDBAutoupdate SpanOperation = "db.autoupdate"
	SpanOperationDBMigrate    SpanOperation = "db.automigrate"
	SpanOperationDBConnect    SpanOperation = "db.connect"
)

// StartDocumentSpan creates a client span for a document store operation.
// The span is named "DOC <operation>" or "DOC <operation> <database>".
func StartDocumentSpan(ctx context.Context, operation SpanOperation, opts ...DocumentSpanOption) (context.Context, trace.Span) {
	tracer := otel.Tracer(InstrumentationName)

	spanOpts := &documentSpanOptions{
		attributes: []attribute.KeyValue{
			attribute.String("db.system", "couchdb"),
			attribute.String("db.operation", string(operation)),
		},
	}
	for _, opt := range opts {
		opt(spanOpts)
	}

	spanName := fmt.Sprintf("DOC %s", operation)
	if spanOpts.database != "" {
		spanName = fmt.Sprintf("DOC %s %s", operation, spanOpts.database)
	}

	ctx, span := tracer.Start(ctx, spanName, trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(spanOpts.attributes...)
	return ctx, span
}

// DocumentSpanOption configures a document span.
type DocumentSpanOption func(*documentSpanOptions)

type documentSpanOptions struct {
	database   string
	attributes []attribute.KeyValue
}

// WithDatabase sets the database name.
func WithDatabase(name string) DocumentSpanOption {
	return func(opts *documentSpanOptions) {
		opts.database = name
		opts.attributes = append(opts.attributes, attribute.String("db.name", name))
	}
}

// WithModel sets the host model the operation was issued for.
func WithModel(model string) DocumentSpanOption {
	return func(opts *documentSpanOptions) {
		opts.attributes = append(opts.attributes, attribute.String("db.model", model))
	}
}

// WithDocumentID sets the target document identifier.
func WithDocumentID(id string) DocumentSpanOption {
	return func(opts *documentSpanOptions) {
		opts.attributes = append(opts.attributes, attribute.String("db.document.id", id))
	}
}

// WithKeyCount sets the number of keys a bulk operation fans out to.
func WithKeyCount(n int) DocumentSpanOption {
	return func(opts *documentSpanOptions) {
		opts.attributes = append(opts.attributes, attribute.Int("db.document.key_count", n))
	}
}

// End records err (if any) on the span and ends it.
func End(span trace.Span, err error) {
	if err != nil {
		RecordError(span, err)
	} else {
		RecordSuccess(span)
	}
	span.End()
}

// RecordError records an error in the span and sets the span status to error.
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// RecordSuccess sets the span status to OK.
func RecordSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}
