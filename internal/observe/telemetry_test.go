package observe

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestSetup_ExportsToRegistry(t *testing.T) {
	prevMP, prevTP, prevProp := otel.GetMeterProvider(), otel.GetTracerProvider(), otel.GetTextMapPropagator()
	t.Cleanup(func() {
		otel.SetMeterProvider(prevMP)
		otel.SetTracerProvider(prevTP)
		otel.SetTextMapPropagator(prevProp)
	})

	spans := tracetest.NewInMemoryExporter()
	reg := prometheus.NewRegistry()
	tel, err := Setup(context.Background(),
		WithServiceVersion("v9.9.9"),
		WithRegistry(reg),
		WithSpanExporter(spans),
	)
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if tel.Registry() != reg {
		t.Error("Registry does not return the configured registry")
	}

	m, err := NewMetrics(otel.GetMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	m.RecordFrameReceived(context.Background(), "handshake")
	_, span := StartSpan(context.Background(), "probe")
	span.End()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{"orbtalk_frames_received_total", "go_goroutines"} {
		if !names[want] {
			t.Errorf("registry lacks %s", want)
		}
	}

	if err := tel.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	got := spans.GetSpans()
	if len(got) != 1 || got[0].Name != "probe" {
		t.Fatalf("exported spans = %v, want one named probe", got)
	}
	var version string
	for _, kv := range got[0].Resource.Attributes() {
		if kv.Key == "service.version" {
			version = kv.Value.AsString()
		}
	}
	if version != "v9.9.9" {
		t.Errorf("service.version = %q", version)
	}
}

func TestServiceResource_MergesWithSDKDefaults(t *testing.T) {
	t.Parallel()
	res, err := serviceResource("orbtalk", "v1.2.3")
	if err != nil {
		t.Fatalf("serviceResource: %v", err)
	}
	want := map[string]string{
		"service.name":           "orbtalk",
		"service.version":        "v1.2.3",
		"telemetry.sdk.language": "go",
	}
	got := make(map[string]string)
	for _, kv := range res.Attributes() {
		got[string(kv.Key)] = kv.Value.Emit()
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %q, want %q", k, got[k], v)
		}
	}
}

func TestSetup_WithoutRuntimeMetrics(t *testing.T) {
	prevMP, prevTP := otel.GetMeterProvider(), otel.GetTracerProvider()
	t.Cleanup(func() {
		otel.SetMeterProvider(prevMP)
		otel.SetTracerProvider(prevTP)
	})

	tel, err := Setup(context.Background(), WithoutRuntimeMetrics())
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	defer tel.Shutdown(context.Background())

	families, err := tel.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, f := range families {
		if strings.HasPrefix(f.GetName(), "go_") || strings.HasPrefix(f.GetName(), "process_") {
			t.Errorf("runtime metric %s registered", f.GetName())
		}
	}
}

func TestLogger_CarriesTraceIDs(t *testing.T) {
	withRecordedSpans(t)
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	Logger(context.Background()).Info("plain")
	if strings.Contains(buf.String(), "trace_id") {
		t.Errorf("logger without span added trace_id: %s", buf.String())
	}

	buf.Reset()
	ctx, span := StartSpan(context.Background(), "op")
	defer span.End()
	Logger(ctx).Info("traced")
	if !strings.Contains(buf.String(), "trace_id="+TraceID(ctx)) {
		t.Errorf("log line lacks trace_id: %s", buf.String())
	}
	if len(TraceID(ctx)) != 32 {
		t.Errorf("TraceID = %q, want 32 hex chars", TraceID(ctx))
	}
	if TraceID(context.Background()) != "" {
		t.Error("TraceID without span should be empty")
	}
}
