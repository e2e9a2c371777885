package observe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// withRecordedSpans installs an in-memory tracer provider and the trace
// context propagator for the duration of the test. Tests using it must not
// run in parallel.
func withRecordedSpans(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	prevTP, prevProp := otel.GetTracerProvider(), otel.GetTextMapPropagator()
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(prevTP)
		otel.SetTextMapPropagator(prevProp)
	})
	return exp
}

func adminMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	mux.HandleFunc("GET /metrics", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("# empty\n"))
	})
	return mux
}

func TestInstrument_RecordsRouteAndCode(t *testing.T) {
	exp := withRecordedSpans(t)
	m, collect := manualMetrics(t)
	h := Instrument(m, adminMux())

	for _, path := range []string{"/readyz", "/metrics", "/nope/1", "/nope/2"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Header().Get("X-Trace-ID") == "" {
			t.Errorf("%s: missing X-Trace-ID", path)
		}
	}

	hist, ok := collect()["orbtalk.http.request.duration"].Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("http duration histogram not exported")
	}
	counts := make(map[string]uint64)
	for _, dp := range hist.DataPoints {
		route, _ := dp.Attributes.Value(attribute.Key("route"))
		code, _ := dp.Attributes.Value(attribute.Key("code"))
		counts[route.AsString()+" "+code.AsString()] += dp.Count
	}
	want := map[string]uint64{
		"GET /readyz 503":  1,
		"GET /metrics 200": 1,
		"unmatched 404":    2,
	}
	for k, v := range want {
		if counts[k] != v {
			t.Errorf("samples[%s] = %d, want %d (all: %v)", k, counts[k], v, counts)
		}
	}

	spans := exp.GetSpans()
	if len(spans) != 4 {
		t.Fatalf("spans = %d, want 4", len(spans))
	}
	if spans[0].Name != "admin GET /readyz" {
		t.Errorf("span name = %q", spans[0].Name)
	}
}

func TestInstrument_ContinuesIncomingTrace(t *testing.T) {
	withRecordedSpans(t)
	m, _ := manualMetrics(t)
	h := Instrument(m, adminMux())

	const traceID = "4bf92f3577b34da6a3ce929d0e0e4736"
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("traceparent", "00-"+traceID+"-00f067aa0ba902b7-01")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Trace-ID"); got != traceID {
		t.Errorf("X-Trace-ID = %q, want %q", got, traceID)
	}
}
