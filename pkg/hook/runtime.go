// Copyright 2025-2026 Hookscope Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// included in the LICENSE file of this repository.

package hook

// Action is the dispatcher's instruction back to the runtime after each
// event. It is the runtime-facing projection of a Directive: Stop is
// handled entirely inside the dispatcher, so the runtime only ever needs
// to know whether to keep emitting line-level events for a frame.
type Action int

const (
	// ActionContinue keeps emitting all events for the current frame.
	ActionContinue Action = iota
	// ActionSkipFrame stops line-level events for the current frame.
	// Call/Return boundaries are still emitted.
	ActionSkipFrame
)

// Callback is the raw function shape the runtime invokes once per traced
// event, synchronously on the thread executing the traced code.
type Callback func(frame FrameID, kind Kind, file string, line int, function string) Action

// Runtime is the consumed capability of the traced runtime: a mechanism
// to read, replace, and restore the trace callback of the calling thread.
// The engine stores returned callbacks opaquely and replays them without
// interpreting them.
//
// All three methods operate on the calling thread's slot only. The
// reference implementation lives in pkg/script; production runtimes
// adapt their native instrumentation API behind this interface.
type Runtime interface {
	// ThreadID identifies the calling thread of execution. IDs are
	// stable for the thread's lifetime and never reused while the
	// thread is live.
	ThreadID() uint64

	// Swap installs cb as the calling thread's active trace callback
	// and returns the callback that was active before, which may be
	// nil. The read and the replacement are a single step.
	Swap(cb Callback) Callback

	// Active returns the calling thread's active trace callback, or
	// nil if none is installed.
	Active() Callback
}
