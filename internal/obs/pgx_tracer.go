package obs

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/autobidder/internal/tenant"
)

type pgxQueryKey struct{}

type pgxQuery struct {
	span      trace.Span
	operation string
	start     time.Time
}

// PGXTracer implements pgx.QueryTracer. It opens a span per statement and feeds
// DBQueryDuration when domain metrics are registered.
type PGXTracer struct{}

// TraceQueryStart starts a span for the SQL statement.
func (PGXTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	op := operation(data.SQL)
	ctx, span := otel.Tracer("db.pgx").Start(ctx, "pgx "+op, trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", op),
		attribute.String("db.statement", truncateSQL(data.SQL)),
	)
	if id, ok := tenant.From(ctx); ok {
		span.SetAttributes(attribute.String("tenant.id", id))
	}
	return context.WithValue(ctx, pgxQueryKey{}, pgxQuery{span: span, operation: op, start: time.Now()})
}

// TraceQueryEnd ends the span and records any error.
func (PGXTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	q, ok := ctx.Value(pgxQueryKey{}).(pgxQuery)
	if !ok {
		return
	}
	result := "ok"
	if data.Err != nil && !errors.Is(data.Err, pgx.ErrNoRows) {
		result = "error"
		q.span.RecordError(data.Err)
		q.span.SetStatus(codes.Error, data.Err.Error())
	}
	q.span.End()
	if DBQueryDuration != nil {
		DBQueryDuration.WithLabelValues(q.operation, result).Observe(DurationMillis(time.Since(q.start)))
	}
}

func operation(sql string) string {
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return "UNKNOWN"
	}
	op := strings.ToUpper(fields[0])
	if op == "WITH" {
		return "CTE"
	}
	return op
}

func truncateSQL(sql string) string {
	trimmed := strings.TrimSpace(sql)
	if len(trimmed) > 300 {
		return trimmed[:300] + "..."
	}
	return trimmed
}
