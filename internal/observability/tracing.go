package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/jkaninda/api-vault-mcp/internal/config"
)

const defaultServiceName = "api-vault-mcp"

// Resource attribute keys describing how this server reaches the store.
const (
	attrStoreBinary = attribute.Key("api_vault.binary")
	attrTransport   = attribute.Key("api_vault_mcp.transport")
)

// ServiceInfo identifies the running server on every exported span.
type ServiceInfo struct {
	Version     string // Build version, e.g. "v0.3.0" or "dev".
	Transport   string // MCP transport: "stdio" or "http".
	StoreBinary string // Resolved api-vault executable. Empty when unknown.
}

// TracerSetup holds the OTel TracerProvider and a named tracer.
// It is not installed as the global provider; callers get it injected.
type TracerSetup struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
	resource *resource.Resource
}

// NewTracerSetup creates a TracerProvider exporting over OTLP. A nil or
// disabled config yields a nil setup, whose Tracer is a no-op.
func NewTracerSetup(ctx context.Context, cfg *config.TracingConfig, info ServiceInfo) (*TracerSetup, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}

	res, err := newResource(cfg.ServiceName, info)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	exporter, err := newExporter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating OTLP exporter: %w", err)
	}

	sampleRate := cfg.SampleRate
	if sampleRate <= 0 {
		sampleRate = 1.0
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(sampleRate))),
	)

	return &TracerSetup{
		provider: tp,
		tracer:   tp.Tracer(serviceNameOrDefault(cfg.ServiceName), trace.WithInstrumentationVersion(info.Version)),
		resource: res,
	}, nil
}

// newResource describes the service. Empty fields are left out rather than
// exported as blank attributes.
func newResource(serviceName string, info ServiceInfo) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{semconv.ServiceName(serviceNameOrDefault(serviceName))}
	if info.Version != "" {
		attrs = append(attrs, semconv.ServiceVersion(info.Version))
	}
	if info.Transport != "" {
		attrs = append(attrs, attrTransport.String(info.Transport))
	}
	if info.StoreBinary != "" {
		attrs = append(attrs, attrStoreBinary.String(info.StoreBinary))
	}
	return resource.New(context.Background(), resource.WithAttributes(attrs...))
}

func newExporter(ctx context.Context, cfg *config.TracingConfig) (sdktrace.SpanExporter, error) {
	if cfg.Protocol == "http" {
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		return otlptracehttp.New(ctx, opts...)
	}
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	return otlptracegrpc.New(ctx, opts...)
}

func serviceNameOrDefault(name string) string {
	if name == "" {
		return defaultServiceName
	}
	return name
}

// Tracer returns the named tracer, or a no-op tracer when tracing is off.
func (t *TracerSetup) Tracer() trace.Tracer {
	if t == nil {
		return noop.NewTracerProvider().Tracer("")
	}
	return t.tracer
}

// Resource returns the resource attached to exported spans.
func (t *TracerSetup) Resource() *resource.Resource {
	if t == nil {
		return nil
	}
	return t.resource
}

// Shutdown flushes any pending spans and shuts down the TracerProvider.
func (t *TracerSetup) Shutdown(ctx context.Context) error {
	if t == nil || t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}
