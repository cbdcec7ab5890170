// Copyright 2025-2026 Hookscope Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// included in the LICENSE file of this repository.

package hook

import (
	"fmt"
	"time"
)

// SinkFailure is the diagnostic record for a panic contained inside a
// sink's OnEvent. It is reported through the owning handle/scope rather
// than raised into the observed program.
type SinkFailure struct {
	Time  time.Time
	Event Event
	Err   error
}

// dispatch is the callback registered with the runtime. It runs
// synchronously on the traced thread, potentially millions of times per
// second, so the common path takes no locks and performs no heap
// allocation: the event is a stack value and the method value itself was
// allocated once, at install time.
func (in *installation) dispatch(frame FrameID, kind Kind, file string, line int, function string) Action {
	ts := in.state

	// Reentrancy guard: the sink itself may execute traced code. Nested
	// events are suppressed, not delivered, so the dispatcher can never
	// recurse into the sink.
	if ts.reentry > 0 {
		ts.suppressed.Add(1)
		return ActionContinue
	}
	if in.stopped {
		ts.dropped.Add(1)
		return ActionContinue
	}

	ts.reentry++
	ev := Event{
		Kind:  kind,
		Frame: frame,
		Loc:   Location{File: file, Line: line, Function: function},
		Time:  time.Now(),
	}
	dir := in.invoke(ev)
	ts.reentry--

	ts.dispatched.Add(1)
	switch dir {
	case SkipFrame:
		ts.skips.Add(1)
		return ActionSkipFrame
	case Stop:
		in.stopped = true
		return ActionContinue
	default:
		return ActionContinue
	}
}

// invoke calls the sink, containing panics. A panicking sink yields one
// diagnostic and is treated as if it returned Stop; the failure never
// propagates into the traced program's control flow.
func (in *installation) invoke(ev Event) (d Directive) {
	defer func() {
		if r := recover(); r != nil {
			in.state.failures.Add(1)
			in.diag = append(in.diag, SinkFailure{
				Time:  time.Now(),
				Event: ev,
				Err:   fmt.Errorf("sink panic on %s event: %v", ev.Kind, r),
			})
			d = Stop
		}
	}()
	return in.sink.OnEvent(ev)
}
