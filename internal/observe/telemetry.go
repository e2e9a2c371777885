package observe

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
)

// Telemetry owns the SDK providers installed by [Setup].
type Telemetry struct {
	registry *prometheus.Registry
	meters   *sdkmetric.MeterProvider
	tracers  *sdktrace.TracerProvider
}

type setupOptions struct {
	service  string
	version  string
	spans    sdktrace.SpanExporter
	runtime  bool
	registry *prometheus.Registry
}

// SetupOption configures [Setup].
type SetupOption func(*setupOptions)

// WithServiceVersion sets the service.version resource attribute.
func WithServiceVersion(v string) SetupOption {
	return func(o *setupOptions) { o.version = v }
}

// WithSpanExporter batches finished spans to exp. Without one, spans are
// sampled and recorded but go nowhere.
func WithSpanExporter(exp sdktrace.SpanExporter) SetupOption {
	return func(o *setupOptions) { o.spans = exp }
}

// WithRegistry sets the Prometheus registry the exporter registers on.
// Default: a fresh registry.
func WithRegistry(r *prometheus.Registry) SetupOption {
	return func(o *setupOptions) { o.registry = r }
}

// WithoutRuntimeMetrics leaves the Go runtime and process collectors off
// the registry.
func WithoutRuntimeMetrics() SetupOption {
	return func(o *setupOptions) { o.runtime = false }
}

// Setup installs global meter and tracer providers and the W3C trace-context
// propagator. Metrics are exported through a Prometheus registry, which the
// admin server serves via [Telemetry.Registry]. Call [Telemetry.Shutdown]
// before exit.
func Setup(ctx context.Context, opts ...SetupOption) (*Telemetry, error) {
	o := setupOptions{service: "orbtalk", runtime: true}
	for _, fn := range opts {
		fn(&o)
	}
	if o.registry == nil {
		o.registry = prometheus.NewRegistry()
	}

	res, err := serviceResource(o.service, o.version)
	if err != nil {
		return nil, err
	}

	if o.runtime {
		if err := o.registry.Register(collectors.NewGoCollector()); err != nil {
			return nil, fmt.Errorf("observe: register go collector: %w", err)
		}
		if err := o.registry.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
			return nil, fmt.Errorf("observe: register process collector: %w", err)
		}
	}

	exp, err := promexporter.New(promexporter.WithRegisterer(o.registry))
	if err != nil {
		return nil, fmt.Errorf("observe: prometheus exporter: %w", err)
	}

	tpOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if o.spans != nil {
		tpOpts = append(tpOpts, sdktrace.WithBatcher(o.spans))
	}

	t := &Telemetry{
		registry: o.registry,
		meters:   sdkmetric.NewMeterProvider(sdkmetric.WithResource(res), sdkmetric.WithReader(exp)),
		tracers:  sdktrace.NewTracerProvider(tpOpts...),
	}
	otel.SetMeterProvider(t.meters)
	otel.SetTracerProvider(t.tracers)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	return t, nil
}

// serviceResource describes this process on top of the SDK defaults. The
// service attributes carry no schema URL, so the merge cannot conflict with
// whichever schema the SDK's default resource uses.
func serviceResource(service, version string) (*resource.Resource, error) {
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		semconv.ServiceName(service),
		semconv.ServiceVersion(version),
	))
	if err != nil {
		return nil, fmt.Errorf("observe: resource: %w", err)
	}
	return res, nil
}

// Registry returns the Prometheus registry holding the exported metrics.
func (t *Telemetry) Registry() *prometheus.Registry { return t.registry }

// Shutdown flushes pending spans and stops both providers.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	return errors.Join(t.tracers.Shutdown(ctx), t.meters.Shutdown(ctx))
}
