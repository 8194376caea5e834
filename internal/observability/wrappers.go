package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jkaninda/api-vault-mcp/internal/accesslog"
	"github.com/jkaninda/api-vault-mcp/internal/store"
)

// --- InstrumentedStore ---

// InstrumentedStore wraps a store.Client with metrics and tracing.
type InstrumentedStore struct {
	inner   store.Client
	metrics *MetricsCollector
	tracer  trace.Tracer
}

var _ store.Client = (*InstrumentedStore)(nil)

// NewInstrumentedStore wraps a store client with observability.
func NewInstrumentedStore(inner store.Client, metrics *MetricsCollector, ts *TracerSetup) *InstrumentedStore {
	var tracer trace.Tracer
	if ts != nil {
		tracer = ts.Tracer()
	}
	return &InstrumentedStore{inner: inner, metrics: metrics, tracer: tracer}
}

// Get never puts the credential value on a span or label; only the name.
func (s *InstrumentedStore) Get(ctx context.Context, name string) (string, error) {
	ctx, end := s.start(ctx, "get", attribute.String("credential.name", name))
	value, err := s.inner.Get(ctx, name)
	end(err)
	return value, err
}

func (s *InstrumentedStore) List(ctx context.Context) ([]store.CredentialSummary, error) {
	ctx, end := s.start(ctx, "list")
	items, err := s.inner.List(ctx)
	if err == nil && s.tracer != nil {
		trace.SpanFromContext(ctx).SetAttributes(attribute.Int("credential.count", len(items)))
	}
	end(err)
	return items, err
}

func (s *InstrumentedStore) start(ctx context.Context, command string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	var span trace.Span
	if s.tracer != nil {
		attrs = append(attrs, attribute.String("store.command", command))
		ctx, span = s.tracer.Start(ctx, "store."+command, trace.WithAttributes(attrs...))
	}
	begin := time.Now()

	return ctx, func(err error) {
		if s.metrics != nil {
			s.metrics.StoreCommandsTotal.WithLabelValues(command, statusLabel(err)).Inc()
			s.metrics.StoreCommandDuration.WithLabelValues(command).Observe(time.Since(begin).Seconds())
		}
		if span != nil {
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}
			span.End()
		}
	}
}

// --- InstrumentedLog ---

// AccessLog is the subset of *accesslog.Log the tool layer uses.
type AccessLog interface {
	Append(ctx context.Context, credential, project string) error
	History(ctx context.Context, credential string) ([]accesslog.Entry, error)
}

// InstrumentedLog wraps an access log with append metrics and tracing.
type InstrumentedLog struct {
	inner   AccessLog
	metrics *MetricsCollector
	tracer  trace.Tracer
}

var _ AccessLog = (*InstrumentedLog)(nil)

// NewInstrumentedLog wraps an access log with observability.
func NewInstrumentedLog(inner AccessLog, metrics *MetricsCollector, ts *TracerSetup) *InstrumentedLog {
	var tracer trace.Tracer
	if ts != nil {
		tracer = ts.Tracer()
	}
	return &InstrumentedLog{inner: inner, metrics: metrics, tracer: tracer}
}

func (l *InstrumentedLog) Append(ctx context.Context, credential, project string) error {
	var span trace.Span
	if l.tracer != nil {
		ctx, span = l.tracer.Start(ctx, "access_log.append",
			trace.WithAttributes(attribute.String("credential.name", credential)))
		defer span.End()
	}

	err := l.inner.Append(ctx, credential, project)

	if l.metrics != nil {
		l.metrics.AccessLogAppendsTotal.WithLabelValues(statusLabel(err)).Inc()
	}
	if err != nil && span != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (l *InstrumentedLog) History(ctx context.Context, credential string) ([]accesslog.Entry, error) {
	if l.tracer != nil {
		var span trace.Span
		ctx, span = l.tracer.Start(ctx, "access_log.history")
		defer span.End()
	}
	return l.inner.History(ctx, credential)
}
