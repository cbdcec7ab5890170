// Copyright 2025-2026 Hookscope Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// included in the LICENSE file of this repository.

package agent

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hookscope/hookscope/pkg/config"
	"github.com/hookscope/hookscope/pkg/health"
	"github.com/hookscope/hookscope/pkg/hook"
	"github.com/hookscope/hookscope/pkg/sink"
	"go.uber.org/zap"
)

// Agent wires the hook engine, sinks, and health server together from
// configuration. It owns one registry over one runtime; traced work runs
// through Trace, which brackets it in a scope.
type Agent struct {
	cfg    atomic.Pointer[config.Config]
	logger *zap.Logger

	registry *hook.Registry
	stats    *health.Stats

	healthServer *health.Server

	mu    sync.Mutex
	sinks hook.Sink
	otlp  *sink.OTLP // non-nil when the OTLP sink is enabled

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates an agent over the given runtime capability.
func New(cfg *config.Config, rt hook.Runtime, logger *zap.Logger) (*Agent, error) {
	a := &Agent{logger: logger}
	a.cfg.Store(cfg)

	nesting := hook.NestingChain
	if cfg.Engine.Nesting == "reject" {
		nesting = hook.NestingReject
	}
	a.registry = hook.NewRegistry(rt,
		hook.WithNesting(nesting),
		hook.WithLogger(logger),
	)
	a.stats = health.NewStats(a.registry)

	sinks, otlp, err := buildSinks(cfg, logger)
	if err != nil {
		return nil, err
	}
	a.sinks = sinks
	a.otlp = otlp

	return a, nil
}

// buildSinks assembles the configured sink fan-out. The OTLP sink is
// returned separately so the agent can manage its export lifecycle.
func buildSinks(cfg *config.Config, logger *zap.Logger) (hook.Sink, *sink.OTLP, error) {
	var members []hook.Sink

	if cfg.Sinks.Stdout.Enabled {
		members = append(members, sink.NewStdout(cfg.Sinks.Stdout.Format))
	}
	if cfg.Sinks.Logger.Enabled {
		members = append(members, sink.NewLogger(logger))
	}

	var otlp *sink.OTLP
	if cfg.Sinks.OTLP.Enabled {
		var err error
		otlp, err = sink.NewOTLP(sink.OTLPOptions{
			Endpoint:      cfg.Sinks.OTLP.Endpoint,
			Insecure:      cfg.Sinks.OTLP.Insecure,
			Headers:       cfg.Sinks.OTLP.Headers,
			ServiceName:   cfg.ServiceName,
			BatchSize:     cfg.Sinks.OTLP.BatchSize,
			FlushInterval: cfg.Sinks.OTLP.FlushInterval,
		}, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("create otlp sink: %w", err)
		}
		members = append(members, otlp)
	}

	if len(members) == 0 {
		return nil, nil, fmt.Errorf("no sinks enabled")
	}
	return sink.NewMulti(members...), otlp, nil
}

// Start begins the agent's background subsystems.
func (a *Agent) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	a.ctx = ctx
	a.cancel = cancel

	cfg := a.cfg.Load()

	if a.otlp != nil {
		if err := a.otlp.Start(ctx); err != nil {
			return fmt.Errorf("start otlp sink: %w", err)
		}
	}

	if cfg.Health.Enabled {
		a.healthServer = health.NewServer(cfg.Health.Port, "dev", a.stats, a.logger)
		if err := a.healthServer.Start(ctx); err != nil {
			a.logger.Warn("health server start error", zap.Error(err))
		} else {
			a.healthServer.SetReady(true)
		}
	}

	a.logger.Info("agent started",
		zap.String("nesting", cfg.Engine.Nesting),
		zap.Bool("stdout", cfg.Sinks.Stdout.Enabled),
		zap.Bool("otlp", cfg.Sinks.OTLP.Enabled),
		zap.Bool("health", cfg.Health.Enabled),
	)
	return nil
}

// Trace runs fn with the configured sinks observing the calling thread.
// The hook is removed on every exit path, including a panic in fn.
// Contained sink failures are logged after the scope exits; fn's own
// error passes through unchanged.
func (a *Agent) Trace(fn func() error) (err error) {
	a.mu.Lock()
	sinks := a.sinks
	a.mu.Unlock()

	scope := hook.NewScope(a.registry, sinks)
	if enterErr := scope.Enter(); enterErr != nil {
		return enterErr
	}
	a.stats.ScopesEntered.Add(1)

	defer func() {
		exitErr := scope.Exit()
		a.stats.ScopesExited.Add(1)
		for _, f := range scope.Failures() {
			a.logger.Warn("sink failure contained",
				zap.String("function", f.Event.Loc.Function),
				zap.Error(f.Err),
			)
		}
		if err == nil {
			err = exitErr
		}
	}()
	return fn()
}

// Registry exposes the hook registry, e.g. for direct scope management.
func (a *Agent) Registry() *hook.Registry {
	return a.registry
}

// Stats exposes the agent's self-monitoring counters.
func (a *Agent) Stats() *health.Stats {
	return a.stats
}

// Reload applies a changed configuration. Sinks are rebuilt and take
// effect for subsequent scopes; a nesting policy change requires a
// restart and is only logged.
func (a *Agent) Reload(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	old := a.cfg.Load()
	if old.Engine.Nesting != cfg.Engine.Nesting {
		a.logger.Warn("engine.nesting changed; restart required to apply",
			zap.String("current", old.Engine.Nesting),
			zap.String("new", cfg.Engine.Nesting),
		)
	}

	sinks, otlp, err := buildSinks(cfg, a.logger)
	if err != nil {
		return err
	}
	if otlp != nil && a.ctx != nil {
		if err := otlp.Start(a.ctx); err != nil {
			return fmt.Errorf("start otlp sink: %w", err)
		}
	}

	a.mu.Lock()
	oldOTLP := a.otlp
	a.sinks = sinks
	a.otlp = otlp
	a.mu.Unlock()

	if oldOTLP != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := oldOTLP.Shutdown(ctx); err != nil {
			a.logger.Warn("old otlp sink shutdown error", zap.Error(err))
		}
	}

	a.cfg.Store(cfg)
	a.logger.Info("configuration reloaded")
	return nil
}

// Stop shuts down the agent's subsystems gracefully.
func (a *Agent) Stop() error {
	if a.cancel != nil {
		a.cancel()
	}

	if a.healthServer != nil {
		a.healthServer.SetReady(false)
		if err := a.healthServer.Stop(); err != nil {
			a.logger.Warn("health server stop error", zap.Error(err))
		}
	}

	a.mu.Lock()
	otlp := a.otlp
	a.mu.Unlock()
	if otlp != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := otlp.Shutdown(ctx); err != nil {
			a.logger.Warn("otlp sink shutdown error", zap.Error(err))
		}
	}

	a.logger.Info("agent stopped")
	return nil
}
