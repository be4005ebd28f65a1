package otel

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// TracerName scopes the spans emitted around transaction execution.
const TracerName = "vaultchain/core"

const (
	defaultService  = "vaultd"
	defaultEndpoint = "localhost:4318"
	metricInterval  = 15 * time.Second
	spanBatchWindow = 2 * time.Second
)

// Config selects which vaultd signals are exported over OTLP/HTTP.
type Config struct {
	ServiceName string
	Environment string
	// BaseToken tags every exported signal so deployments sharing a collector stay apart.
	BaseToken string
	Endpoint  string
	Insecure  bool
	Headers   map[string]string
	Metrics   bool
	Traces    bool
}

func (c Config) Enabled() bool { return c.Metrics || c.Traces }

func (c Config) withDefaults() Config {
	if c.ServiceName == "" {
		c.ServiceName = defaultService
	}
	if c.Endpoint == "" {
		c.Endpoint = defaultEndpoint
	}
	return c
}

func (c Config) resource() (*resource.Resource, error) {
	attrs := []attribute.KeyValue{semconv.ServiceNameKey.String(c.ServiceName)}
	if c.Environment != "" {
		attrs = append(attrs, semconv.DeploymentEnvironmentKey.String(c.Environment))
	}
	if c.BaseToken != "" {
		attrs = append(attrs, attribute.String("vault.base_token", c.BaseToken))
	}
	return resource.Merge(resource.Default(), resource.NewSchemaless(attrs...))
}

// Telemetry owns the providers installed by Init.
type Telemetry struct {
	closers []func(context.Context) error
}

// Shutdown flushes and stops the providers in reverse install order.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}
	var errs []error
	for i := len(t.closers) - 1; i >= 0; i-- {
		errs = append(errs, t.closers[i](ctx))
	}
	t.closers = nil
	return errors.Join(errs...)
}

// Init installs the global tracer and meter providers for vaultd. A disabled
// config leaves the no-op globals untouched.
func Init(ctx context.Context, cfg Config) (*Telemetry, error) {
	tel := &Telemetry{}
	if !cfg.Enabled() {
		return tel, nil
	}
	cfg = cfg.withDefaults()
	res, err := cfg.resource()
	if err != nil {
		return nil, errors.Join(errors.New("otel: resource"), err)
	}
	if cfg.Traces {
		tp, err := newTracerProvider(ctx, cfg, res)
		if err != nil {
			return nil, err
		}
		otel.SetTracerProvider(tp)
		tel.closers = append(tel.closers, tp.Shutdown)
	}
	if cfg.Metrics {
		mp, err := newMeterProvider(ctx, cfg, res)
		if err != nil {
			_ = tel.Shutdown(ctx)
			return nil, err
		}
		otel.SetMeterProvider(mp)
		tel.closers = append(tel.closers, mp.Shutdown)
	}
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	return tel, nil
}

func newTracerProvider(ctx context.Context, cfg Config, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(cfg.Headers))
	}
	exp, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, errors.Join(errors.New("otel: trace exporter"), err)
	}
	return sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exp, sdktrace.WithBatchTimeout(spanBatchWindow)),
	), nil
}

func newMeterProvider(ctx context.Context, cfg Config, res *resource.Resource) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlpmetrichttp.WithHeaders(cfg.Headers))
	}
	exp, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, errors.Join(errors.New("otel: metric exporter"), err)
	}
	reader := sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(metricInterval))
	return sdkmetric.NewMeterProvider(sdkmetric.WithResource(res), sdkmetric.WithReader(reader)), nil
}

// ParseHeaders reads the collector headers from the config string form
// "key=value,key2=value2". Malformed pairs are skipped.
func ParseHeaders(raw string) map[string]string {
	out := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			continue
		}
		out[key] = strings.TrimSpace(value)
	}
	return out
}
