package client

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/satishbabariya/liteorm/internal/debug"
	"github.com/satishbabariya/liteorm/query/builder"
)

// Kind identifies the execution path of a statement.
type Kind string

const (
	KindQuery Kind = "query"
	KindRun   Kind = "run"
	KindExec  Kind = "exec"
)

// QueryEvent represents a statement execution event
type QueryEvent struct {
	Kind     Kind
	Query    string
	Args     []any
	Rows     int64
	Duration time.Duration
	Error    error
	Start    time.Time
	End      time.Time
}

// Middleware is a function that intercepts statements
type Middleware func(ctx context.Context, event *QueryEvent, next func() error) error

// execute runs exec through the middleware chain. The event is complete
// (duration, rows and error set) once next returns.
func execute(ctx context.Context, mws []Middleware, kind Kind, stmt builder.Statement, exec func(*QueryEvent) error) error {
	event := &QueryEvent{
		Kind:  kind,
		Query: stmt.SQL,
		Args:  stmt.Params,
		Start: time.Now(),
	}

	index := 0
	var next func() error
	next = func() error {
		if index >= len(mws) {
			err := exec(event)
			event.End = time.Now()
			event.Duration = event.End.Sub(event.Start)
			event.Error = err
			debug.Statement(event.Query, event.Args, event.Duration, err)
			return err
		}
		mw := mws[index]
		index++
		return mw(ctx, event, next)
	}
	return next()
}

// LoggingMiddleware logs every statement with logger.
func LoggingMiddleware(logger *slog.Logger) Middleware {
	return func(ctx context.Context, event *QueryEvent, next func() error) error {
		err := next()
		attrs := []any{
			slog.String("kind", string(event.Kind)),
			slog.String("sql", event.Query),
			slog.Any("params", event.Args),
			slog.Duration("duration", event.Duration),
		}
		if err != nil {
			logger.ErrorContext(ctx, "statement failed", append(attrs, slog.Any("error", err))...)
			return err
		}
		logger.InfoContext(ctx, "statement", append(attrs, slog.Int64("rows", event.Rows))...)
		return nil
	}
}

// TimingMiddleware reports the duration of every statement
func TimingMiddleware(onTiming func(query string, duration time.Duration)) Middleware {
	return func(ctx context.Context, event *QueryEvent, next func() error) error {
		err := next()
		if onTiming != nil {
			onTiming(event.Query, event.Duration)
		}
		return err
	}
}

// ErrorMiddleware reports failed statements
func ErrorMiddleware(onError func(query string, err error)) Middleware {
	return func(ctx context.Context, event *QueryEvent, next func() error) error {
		err := next()
		if err != nil && onError != nil {
			onError(event.Query, err)
		}
		return err
	}
}

const instrumentationName = "github.com/satishbabariya/liteorm/runtime/client"

// TracingMiddleware records a span per statement.
func TracingMiddleware(tp trace.TracerProvider) Middleware {
	tracer := tp.Tracer(instrumentationName)
	return func(ctx context.Context, event *QueryEvent, next func() error) error {
		name := sqlKeyword(event.Query)
		if name == "" {
			name = string(event.Kind)
		}
		_, span := tracer.Start(ctx, "sqlite "+name,
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(
				attribute.String("db.system", "sqlite"),
				attribute.String("db.statement", event.Query),
				attribute.Int("db.params", len(event.Args)),
			),
		)
		defer span.End()

		err := next()
		span.SetAttributes(attribute.Int64("db.rows", event.Rows))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
		span.SetStatus(codes.Ok, "")
		return nil
	}
}

// MetricsMiddleware records statement durations and failures. It returns an
// error when the instruments cannot be created.
func MetricsMiddleware(mp metric.MeterProvider) (Middleware, error) {
	meter := mp.Meter(instrumentationName)
	duration, err := meter.Float64Histogram("db.client.duration",
		metric.WithUnit("ms"),
		metric.WithDescription("Statement execution time"))
	if err != nil {
		return nil, err
	}
	failures, err := meter.Int64Counter("db.client.errors",
		metric.WithDescription("Failed statements"))
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context, event *QueryEvent, next func() error) error {
		err := next()
		attrs := metric.WithAttributes(attribute.String("db.operation", string(event.Kind)))
		duration.Record(ctx, float64(event.Duration.Microseconds())/1000, attrs)
		if err != nil {
			failures.Add(ctx, 1, attrs)
		}
		return err
	}, nil
}
