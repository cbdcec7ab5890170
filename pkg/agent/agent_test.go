// Copyright 2025-2026 Hookscope Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// included in the LICENSE file of this repository.

package agent

import (
	"errors"
	"testing"

	"github.com/hookscope/hookscope/pkg/config"
	"github.com/hookscope/hookscope/pkg/script"
	"go.uber.org/zap"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Sinks.Stdout.Enabled = false
	cfg.Sinks.Logger.Enabled = true
	cfg.Health.Enabled = false
	return cfg
}

func testAgent(t *testing.T) (*Agent, *script.Runtime) {
	t.Helper()
	rt := script.New(nil)
	a, err := New(testConfig(), rt, zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a, rt
}

func TestNewRequiresASink(t *testing.T) {
	cfg := testConfig()
	cfg.Sinks.Logger.Enabled = false
	if _, err := New(cfg, script.New(nil), zap.NewNop()); err == nil {
		t.Fatal("New with no sinks succeeded")
	}
}

func TestTraceBracketsWork(t *testing.T) {
	a, rt := testAgent(t)
	rt.Define("work", "w.scr", 1, func(f *script.Frame) error {
		f.Line(2)
		return nil
	})

	if err := a.Trace(func() error { return rt.Call("work") }); err != nil {
		t.Fatalf("Trace: %v", err)
	}

	if a.Registry().Installed() {
		t.Fatal("hook still installed after Trace")
	}
	snap := a.Stats().Snapshot()
	if snap.ScopesEntered != 1 || snap.ScopesExited != 1 {
		t.Fatalf("scope counters: %+v", snap)
	}
	if snap.EventsDispatched != 3 {
		t.Fatalf("EventsDispatched = %d, want 3 (call, line, return)", snap.EventsDispatched)
	}
}

func TestTracePropagatesError(t *testing.T) {
	a, rt := testAgent(t)
	wantErr := errors.New("work failed")
	rt.Define("bad", "b.scr", 1, func(f *script.Frame) error { return wantErr })

	err := a.Trace(func() error { return rt.Call("bad") })
	if !errors.Is(err, wantErr) {
		t.Fatalf("Trace = %v, want %v", err, wantErr)
	}
	if a.Registry().Installed() {
		t.Fatal("hook still installed after failed Trace")
	}
}

func TestTraceReleasesOnPanic(t *testing.T) {
	a, rt := testAgent(t)
	rt.Define("noop", "n.scr", 1, func(f *script.Frame) error { return nil })

	didPanic := false
	func() {
		defer func() {
			if recover() != nil {
				didPanic = true
			}
		}()
		a.Trace(func() error { panic("workload bug") })
	}()

	if !didPanic {
		t.Fatal("panic did not propagate out of Trace")
	}
	if a.Registry().Installed() {
		t.Fatal("hook still installed after panic in Trace")
	}
	snap := a.Stats().Snapshot()
	if snap.ScopesExited != 1 {
		t.Fatalf("ScopesExited = %d, want 1", snap.ScopesExited)
	}
}

func TestReloadRejectsInvalidConfig(t *testing.T) {
	a, _ := testAgent(t)
	bad := testConfig()
	bad.Engine.Nesting = "bogus"
	if err := a.Reload(bad); err == nil {
		t.Fatal("Reload with invalid config succeeded")
	}
}

func TestReloadSwapsSinks(t *testing.T) {
	a, rt := testAgent(t)
	rt.Define("noop", "n.scr", 1, func(f *script.Frame) error { return nil })

	next := testConfig()
	if err := a.Reload(next); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if err := a.Trace(func() error { return rt.Call("noop") }); err != nil {
		t.Fatalf("Trace after reload: %v", err)
	}
}
