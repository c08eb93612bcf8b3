package leaseinstrument

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hackborn/lease"
	leasemem "github.com/hackborn/lease/mem"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// TestAcquireIsInstrumented runs one acquisition through an instrumented
// port and checks every signal.
func TestAcquireIsInstrumented(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	core, logs := observer.New(zapcore.DebugLevel)

	port := Wrap(leasemem.NewPort(), m, zap.New(core), WithTracerProvider(tp))
	engine, err := lease.NewEngine(lease.EngineOpts{Lock: "deploy", Budget: time.Minute, Observer: m}, port)
	require.NoError(t, err)

	o := engine.Acquire(context.Background(), "userA")
	require.True(t, o.Succeeded(), o.String())

	assert.Equal(t, 1.0, testutil.ToFloat64(m.acquires.WithLabelValues("Acquired", "none")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.storageOps.WithLabelValues(opReadCounter, "initial-counter", statusSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.storageOps.WithLabelValues(opReadOwner, "final-check", statusSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.storageOps.WithLabelValues(opWriteCounter, "counter-write", statusSuccess)))
	assert.Equal(t, 6, testutil.CollectAndCount(m.storageOps))

	spans := rec.Ended()
	require.Len(t, spans, 6)
	assert.Equal(t, "lease."+opReadCounter, spans[0].Name())
	attrs := make(map[string]string)
	for _, kv := range spans[0].Attributes() {
		attrs[string(kv.Key)] = kv.Value.AsString()
	}
	assert.Equal(t, map[string]string{"lease.lock": "deploy", "lease.op": opReadCounter, "lease.step": "initial-counter"}, attrs)

	assert.Equal(t, 6, logs.FilterField(zap.String("lock", "deploy")).Len())
}

// TestFailuresAreInstrumented verifies storage failures are counted and
// marked on the span.
func TestFailuresAreInstrumented(t *testing.T) {
	errDown := errors.New("storage is down")
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))

	port := Wrap(failingPort{err: errDown}, m, nil, WithTracerProvider(tp))
	engine, err := lease.NewEngine(lease.EngineOpts{Lock: "deploy", Budget: time.Minute, Observer: m}, port)
	require.NoError(t, err)

	o := engine.Acquire(context.Background(), "userA")
	assert.Equal(t, lease.KindTransport, o.Kind)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.acquires.WithLabelValues("NotAcquired", "transport")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.storageOps.WithLabelValues(opReadCounter, "initial-counter", statusError)))

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, errDown.Error(), spans[0].Status().Description)
}

// TestNewMetricsRejectsDuplicates verifies registration errors are answered.
func TestNewMetricsRejectsDuplicates(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewMetrics(reg)
	require.NoError(t, err)
	_, err = NewMetrics(reg)
	assert.Error(t, err)
}

// ------------------------------------------------------------
// SUPPORT

type failingPort struct {
	err error
}

func (p failingPort) ReadOwner(context.Context, string) (lease.Owner, error) {
	return lease.NoOwner, p.err
}

func (p failingPort) WriteOwner(context.Context, string, lease.Owner) error {
	return p.err
}

func (p failingPort) ReadCounter(context.Context, string) (lease.Counter, error) {
	return lease.Undefined, p.err
}

func (p failingPort) WriteCounter(context.Context, string, lease.Counter) error {
	return p.err
}
