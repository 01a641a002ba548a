package logging

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Span represents one step of a request, such as a call to an upstream service.
type Span struct {
	name   string
	logger *slog.Logger
	start  time.Time
	err    error
}

// StartSpan derives a child span from ctx. The returned context carries a
// logger tagged with the trace, span and parent span identifiers.
func StartSpan(ctx context.Context, name string) (context.Context, *Span) {
	if ctx == nil {
		ctx = context.Background()
	}

	logger := FromContext(ctx)

	traceID := stringFrom(ctx, traceIDKey)
	if traceID == "" {
		traceID = uuid.NewString()
		ctx = withString(ctx, traceIDKey, traceID)
		logger = logger.With(slog.String("trace_id", traceID))
	}

	parentSpanID := stringFrom(ctx, spanIDKey)
	spanID := uuid.NewString()

	logger = logger.With(
		slog.String("span_id", spanID),
		slog.String("span_name", name),
	)
	if parentSpanID != "" {
		logger = logger.With(slog.String("parent_span_id", parentSpanID))
	}

	ctx = WithLogger(ctx, logger)
	ctx = withString(ctx, spanIDKey, spanID)

	return ctx, &Span{name: name, logger: logger, start: time.Now()}
}

// Fail marks the span as failed; End will report the error.
func (s *Span) Fail(err error) {
	if s == nil || err == nil {
		return
	}
	s.err = err
}

// End finalizes the span and emits a completion log entry.
func (s *Span) End() {
	if s == nil {
		return
	}
	elapsed := slog.Duration("duration", time.Since(s.start))
	if s.err != nil {
		s.logger.Warn("span failed", elapsed, slog.String("error", s.err.Error()))
		return
	}
	s.logger.Debug("span completed", elapsed)
}
