package observe

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
	"go.opentelemetry.io/otel/trace"
)

// codeWriter remembers the status code written through it.
type codeWriter struct {
	http.ResponseWriter
	code int
}

func (w *codeWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// Instrument wraps the admin mux. Each request gets a server span continuing
// any incoming W3C trace context, an X-Trace-ID response header, a sample in
// [Metrics.HTTPRequestDuration] and a log line. Requests are labelled with
// the mux pattern that matched (e.g. "GET /readyz"), or "unmatched", so
// stray paths cannot grow the label set.
//
// Probes and scrapes arrive every few seconds, so only 5xx responses log
// above debug.
func Instrument(m *Metrics, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		ctx, span := StartSpan(ctx, "admin "+r.Method,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				semconv.HTTPRequestMethodKey.String(r.Method),
				semconv.URLPath(r.URL.Path),
			),
		)
		defer span.End()

		if id := TraceID(ctx); id != "" {
			w.Header().Set("X-Trace-ID", id)
		}

		cw := &codeWriter{ResponseWriter: w, code: http.StatusOK}
		r = r.WithContext(ctx)
		next.ServeHTTP(cw, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		elapsed := time.Since(start)
		span.SetName("admin " + route)
		span.SetAttributes(semconv.HTTPResponseStatusCode(cw.code))
		m.HTTPRequestDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(
			attribute.String("method", r.Method),
			attribute.String("route", route),
			attribute.String("code", strconv.Itoa(cw.code)),
		))

		level := slog.LevelDebug
		if cw.code >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		Logger(ctx).LogAttrs(ctx, level, "observe: admin request",
			slog.String("route", route),
			slog.Int("status", cw.code),
			slog.Duration("elapsed", elapsed),
		)
	})
}
