package cache

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/agentuity/go-memo/cache"

func (m *Memo[T]) startSpan(ctx context.Context, key Key, args []any) (context.Context, trace.Span) {
	return m.tracer.Start(ctx, "memo.produce",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("memo.id", m.id),
			attribute.String("memo.key", key.String()),
			attribute.Int("memo.args", len(args)),
		),
	)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
