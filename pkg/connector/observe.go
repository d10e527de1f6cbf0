package connector

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/nimburion/couchconnector/pkg/observability/metrics"
	"github.com/nimburion/couchconnector/pkg/observability/tracing"
)

// operation tracks one connector call in metrics and tracing.
type operation struct {
	name  tracing.SpanOperation
	start time.Time
	span  trace.Span
}

func (c *Connector) begin(ctx context.Context, op tracing.SpanOperation, model string, opts ...tracing.DocumentSpanOption) (context.Context, *operation) {
	opts = append([]tracing.DocumentSpanOption{tracing.WithDatabase(c.database)}, opts...)
	if model != "" {
		opts = append(opts, tracing.WithModel(model))
	}
	ctx, span := tracing.StartDocumentSpan(ctx, op, opts...)
	return ctx, &operation{name: op, start: time.Now(), span: span}
}

func (o *operation) end(err error) {
	metrics.RecordStoreOperation(string(o.name), outcome(err), time.Since(o.start))
	tracing.End(o.span, err)
}

func outcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.Is(err, ErrNotFound):
		return metrics.OutcomeNotFound
	case errors.Is(err, ErrConflict):
		return metrics.OutcomeConflict
	default:
		return metrics.OutcomeError
	}
}
