// Copyright 2025-2026 Hookscope Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// included in the LICENSE file of this repository.

package hook

import "time"

// Kind identifies the type of a traced execution event.
type Kind int

const (
	KindCall Kind = iota
	KindReturn
	KindLine
	KindException
)

func (k Kind) String() string {
	switch k {
	case KindCall:
		return "CALL"
	case KindReturn:
		return "RETURN"
	case KindLine:
		return "LINE"
	case KindException:
		return "EXCEPTION"
	default:
		return "UNKNOWN"
	}
}

// FrameID is the opaque identity of an execution frame, assigned by the
// runtime. Two events carry the same FrameID iff they describe the same
// frame activation.
type FrameID uint64

// Location is a source position inside the observed program.
type Location struct {
	File     string
	Line     int
	Function string
}

// Event is one observed execution event. It is constructed once per
// runtime callback and passed to the sink by value; sinks that need it
// beyond the call must copy it.
type Event struct {
	Kind  Kind
	Frame FrameID
	Loc   Location
	Time  time.Time // carries a monotonic reading
}

// Directive is the sink's instruction back to the dispatcher.
type Directive int

const (
	// Continue keeps full event delivery.
	Continue Directive = iota
	// SkipFrame stops line-level events for the current frame while
	// still delivering Call/Return boundaries.
	SkipFrame
	// Stop disables further delivery for the remainder of the scope.
	// The hook stays installed; subsequent events are dropped cheaply.
	Stop
)

func (d Directive) String() string {
	switch d {
	case SkipFrame:
		return "skip-frame"
	case Stop:
		return "stop"
	default:
		return "continue"
	}
}

// Sink consumes trace events. OnEvent runs synchronously on the traced
// thread, once per event, so it must be fast. A panic inside OnEvent is
// contained by the dispatcher and converted into a diagnostic plus an
// implicit Stop; it never reaches the observed program.
type Sink interface {
	OnEvent(Event) Directive
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Event) Directive

func (f SinkFunc) OnEvent(ev Event) Directive { return f(ev) }
