// Copyright 2025-2026 Hookscope Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// included in the LICENSE file of this repository.

package hook

import "fmt"

// Scope brackets a region of traced execution: Enter installs the sink,
// Exit uninstalls it — exactly once, on every path. Enter and Exit must
// run on the same thread.
type Scope struct {
	reg  *Registry
	sink Sink

	handle  *Handle
	entered bool
	exited  bool
}

// NewScope creates a scope that will deliver events to sink while
// entered.
func NewScope(reg *Registry, sink Sink) *Scope {
	return &Scope{reg: reg, sink: sink}
}

// Enter installs the scope's sink on the calling thread. A scope can be
// entered at most once.
func (s *Scope) Enter() error {
	if s.entered {
		return fmt.Errorf("scope already entered")
	}
	handle, err := s.reg.Install(s.sink)
	if err != nil {
		return err
	}
	s.handle = handle
	s.entered = true
	return nil
}

// Exit uninstalls the scope's sink, restoring whatever hook was active
// before Enter. It is safe to call on a scope that never entered, and a
// second Exit is a no-op: the uninstall happens exactly once.
func (s *Scope) Exit() error {
	if !s.entered || s.exited {
		return nil
	}
	s.exited = true
	return s.reg.Uninstall(s.handle)
}

// Run executes fn between Enter and Exit. The uninstall happens before
// Run returns on every path, including a panic inside fn, which is then
// re-raised. fn's error takes precedence over an Exit error.
func (s *Scope) Run(fn func() error) (err error) {
	if enterErr := s.Enter(); enterErr != nil {
		return enterErr
	}
	defer func() {
		exitErr := s.Exit()
		if err == nil {
			err = exitErr
		}
	}()
	return fn()
}

// Failures returns the sink failure diagnostics contained during this
// scope. Call after Exit; the scope's events have all been dispatched by
// then.
func (s *Scope) Failures() []SinkFailure {
	return s.handle.Failures()
}
