package leaseinstrument

import (
	"context"
	"time"

	"github.com/hackborn/lease"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ------------------------------------------------------------
// INSTRUMENTED-PORT

// Option configures Wrap.
type Option func(*instrumentedPort)

// WithTracerProvider replaces the global tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(p *instrumentedPort) {
		p.tracer = tp.Tracer(tracerName)
	}
}

// Wrap answers port with a span, metrics and a debug log line around every
// call. m and log may be nil.
func Wrap(port lease.Port, m *Metrics, log *zap.Logger, opts ...Option) lease.Port {
	if log == nil {
		log = zap.NewNop()
	}
	p := &instrumentedPort{port: port, metrics: m, log: log, tracer: otel.Tracer(tracerName)}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type instrumentedPort struct {
	port    lease.Port
	metrics *Metrics
	log     *zap.Logger
	tracer  trace.Tracer
}

func (p *instrumentedPort) ReadOwner(ctx context.Context, name string) (owner lease.Owner, err error) {
	ctx, done := p.start(ctx, opReadOwner, name)
	defer func() { done(err, zap.Stringer("owner", owner)) }()
	return p.port.ReadOwner(ctx, name)
}

func (p *instrumentedPort) WriteOwner(ctx context.Context, name string, owner lease.Owner) (err error) {
	ctx, done := p.start(ctx, opWriteOwner, name)
	defer func() { done(err, zap.Stringer("owner", owner)) }()
	return p.port.WriteOwner(ctx, name, owner)
}

func (p *instrumentedPort) ReadCounter(ctx context.Context, name string) (counter lease.Counter, err error) {
	ctx, done := p.start(ctx, opReadCounter, name)
	defer func() { done(err, zap.Stringer("counter", counter)) }()
	return p.port.ReadCounter(ctx, name)
}

func (p *instrumentedPort) WriteCounter(ctx context.Context, name string, counter lease.Counter) (err error) {
	ctx, done := p.start(ctx, opWriteCounter, name)
	defer func() { done(err, zap.Stringer("counter", counter)) }()
	return p.port.WriteCounter(ctx, name, counter)
}

// start opens a span for op and answers the function that closes it.
func (p *instrumentedPort) start(ctx context.Context, op, name string) (context.Context, func(error, zap.Field)) {
	step := lease.StepFrom(ctx)
	ctx, span := p.tracer.Start(ctx, "lease."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("lease.lock", name),
			attribute.String("lease.op", op),
			attribute.String("lease.step", step.String()),
		))
	began := time.Now()
	return ctx, func(err error, value zap.Field) {
		elapsed := time.Since(began)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		if p.metrics != nil {
			p.metrics.observeStorage(op, step, err, elapsed)
		}
		if ce := p.log.Check(zap.DebugLevel, "storage "+op); ce != nil {
			ce.Write(zap.String("lock", name), zap.Stringer("step", step), value, zap.Duration("elapsed", elapsed), zap.Error(err))
		}
	}
}

// ------------------------------------------------------------
// CONST and VAR

const (
	tracerName = "github.com/hackborn/lease/instrument"

	opReadOwner    = "read_owner"
	opWriteOwner   = "write_owner"
	opReadCounter  = "read_counter"
	opWriteCounter = "write_counter"
)
