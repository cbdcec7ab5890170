// Copyright 2025-2026 Hookscope Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// included in the LICENSE file of this repository.

package main

import (
	"context"
	"errors"
	"time"

	"github.com/hookscope/hookscope/pkg/agent"
	"github.com/hookscope/hookscope/pkg/script"
	"go.uber.org/zap"
)

// runWorkload drives a small scripted program through the agent in a
// loop, so the binary produces a steady stream of traced frames until
// shutdown. It stands in for a real instrumented runtime.
func runWorkload(ctx context.Context, a *agent.Agent, rt *script.Runtime, logger *zap.Logger) {
	defineDemo(rt)

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	iteration := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		iteration++
		entry := "handle_request"
		if iteration%7 == 0 {
			entry = "flaky_handler"
		}

		err := a.Trace(func() error {
			return rt.Call(entry)
		})
		if err != nil && !errors.Is(err, errBackendDown) {
			logger.Warn("workload iteration failed", zap.Error(err))
		}
	}
}

var errBackendDown = errors.New("backend unavailable")

// defineDemo registers a three-level scripted program: a request handler
// calling a query function calling a serializer, plus a handler whose
// query fails so exception frames show up in the trace output.
func defineDemo(rt *script.Runtime) {
	rt.Define("serialize_row", "demo/store.scr", 40, func(f *script.Frame) error {
		f.Line(41)
		f.Line(42)
		return nil
	})

	rt.Define("run_query", "demo/store.scr", 10, func(f *script.Frame) error {
		f.Line(11)
		for i := 0; i < 3; i++ {
			if err := f.Call("serialize_row"); err != nil {
				return err
			}
		}
		f.Line(15)
		return nil
	})

	rt.Define("failing_query", "demo/store.scr", 60, func(f *script.Frame) error {
		f.Line(61)
		return errBackendDown
	})

	rt.Define("handle_request", "demo/server.scr", 5, func(f *script.Frame) error {
		f.Line(6)
		if err := f.Call("run_query"); err != nil {
			return err
		}
		f.Line(8)
		return nil
	})

	rt.Define("flaky_handler", "demo/server.scr", 20, func(f *script.Frame) error {
		f.Line(21)
		return f.Call("failing_query")
	})
}
