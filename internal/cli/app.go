package cli

import (
	"context"
	"errors"

	"github.com/hackborn/lease"
	leaseinstrument "github.com/hackborn/lease/instrument"
	"github.com/hackborn/lease/internal/config"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// app wires one command run: logging, tracing, metrics, storage and the
// engine.
type app struct {
	log     *zap.Logger
	clock   lease.Clock
	engine  *lease.Engine
	closers []func(context.Context) error
}

func newApp(ctx context.Context, cfg config.Config) (_ *app, err error) {
	log, err := newLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}
	a := &app{log: log, clock: lease.SystemClock{}}
	defer func() {
		if err != nil {
			err = errors.Join(err, a.close(ctx))
		}
	}()

	if cfg.OTLPEndpoint != "" {
		shutdown, err := initTracer(ctx, cfg.OTLPEndpoint)
		if err != nil {
			return a, err
		}
		a.closers = append(a.closers, shutdown)
	}

	reg := prometheus.NewRegistry()
	metrics, err := leaseinstrument.NewMetrics(reg)
	if err != nil {
		return a, err
	}
	if cfg.MetricsFile != "" {
		a.closers = append(a.closers, func(context.Context) error {
			return prometheus.WriteToTextfile(cfg.MetricsFile, reg)
		})
	}

	port, closePort, err := openPort(ctx, cfg)
	if err != nil {
		return a, err
	}
	if closePort != nil {
		a.closers = append(a.closers, func(context.Context) error { return closePort() })
	}

	opts := lease.EngineOpts{
		Lock:     cfg.Lock,
		Budget:   cfg.Budget,
		Clock:    a.clock,
		Logger:   log,
		Observer: metrics,
	}
	a.engine, err = lease.NewEngine(opts, leaseinstrument.Wrap(port, metrics, log))
	return a, err
}

// close runs the closers in reverse order.
func (a *app) close(ctx context.Context) error {
	var err error
	for i := len(a.closers) - 1; i >= 0; i-- {
		err = errors.Join(err, a.closers[i](ctx))
	}
	a.closers = nil
	// Sync fails on terminals, there is nothing useful to do about it.
	_ = a.log.Sync()
	return err
}
