package database

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/baker-beach/market-index/pkg/database"

// QueryTracer wraps database calls in client spans and warns about queries
// slower than SlowThreshold. A zero threshold disables the warning.
type QueryTracer struct {
	SlowThreshold time.Duration
	Logger        *slog.Logger
}

// Start opens a span for operation. Call the returned function with the
// operation's error once it completes.
//
//	ctx, end := tracer.Start(ctx, "GetProduct", query)
//	defer func() { end(err) }()
func (q QueryTracer) Start(ctx context.Context, operation, statement string) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := otel.Tracer(tracerName).Start(ctx, "db."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.operation", operation),
			attribute.String("db.statement", statement),
		),
	)

	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()

		if q.SlowThreshold <= 0 || q.Logger == nil {
			return
		}
		if elapsed := time.Since(start); elapsed >= q.SlowThreshold {
			q.Logger.WarnContext(ctx, "slow query detected",
				slog.String("operation", operation),
				slog.Duration("duration", elapsed),
			)
		}
	}
}
