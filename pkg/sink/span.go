// Copyright 2025-2026 Hookscope Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// included in the LICENSE file of this repository.

package sink

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/hookscope/hookscope/pkg/hook"
)

// Span is one completed frame activation: a Call event paired with its
// Return, carrying whatever happened in between.
type Span struct {
	TraceID      string
	SpanID       string
	ParentSpanID string
	Name         string
	File         string
	Line         int
	Frame        hook.FrameID
	StartTime    time.Time
	EndTime      time.Time
	Duration     time.Duration
	LineEvents   int
	Failed       bool // an Exception event was observed in this frame
}

// Assembler pairs Call/Return events into spans. Events for one scope
// arrive in-order on a single thread, so open frames form a stack: a
// Call pushes, the matching Return pops and completes the span. Frames
// within one root call share a trace; a new root call starts a new
// trace.
type Assembler struct {
	onSpan func(*Span)

	traceID string
	stack   []*Span
}

// NewAssembler creates an assembler that invokes onSpan for every
// completed span, innermost first.
func NewAssembler(onSpan func(*Span)) *Assembler {
	return &Assembler{onSpan: onSpan}
}

// Feed consumes one trace event.
func (a *Assembler) Feed(ev hook.Event) {
	switch ev.Kind {
	case hook.KindCall:
		if len(a.stack) == 0 {
			a.traceID = GenerateTraceID()
		}
		s := &Span{
			TraceID:   a.traceID,
			SpanID:    GenerateSpanID(),
			Name:      ev.Loc.Function,
			File:      ev.Loc.File,
			Line:      ev.Loc.Line,
			Frame:     ev.Frame,
			StartTime: ev.Time,
		}
		if len(a.stack) > 0 {
			s.ParentSpanID = a.stack[len(a.stack)-1].SpanID
		}
		a.stack = append(a.stack, s)

	case hook.KindLine:
		if top := a.top(ev.Frame); top != nil {
			top.LineEvents++
			top.Line = ev.Loc.Line
		}

	case hook.KindException:
		if top := a.top(ev.Frame); top != nil {
			top.Failed = true
			top.Line = ev.Loc.Line
		}

	case hook.KindReturn:
		// Pop to the returning frame. Unmatched inner frames (possible
		// if the hook was installed mid-call) complete alongside it.
		for len(a.stack) > 0 {
			s := a.stack[len(a.stack)-1]
			a.stack[len(a.stack)-1] = nil
			a.stack = a.stack[:len(a.stack)-1]
			s.EndTime = ev.Time
			s.Duration = s.EndTime.Sub(s.StartTime)
			a.onSpan(s)
			if s.Frame == ev.Frame {
				break
			}
		}
	}
}

// Depth returns the number of open frames.
func (a *Assembler) Depth() int { return len(a.stack) }

func (a *Assembler) top(frame hook.FrameID) *Span {
	if len(a.stack) == 0 {
		return nil
	}
	top := a.stack[len(a.stack)-1]
	if top.Frame != frame {
		return nil
	}
	return top
}

// GenerateTraceID generates a random 32-character hex trace ID.
func GenerateTraceID() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// GenerateSpanID generates a random 16-character hex span ID.
func GenerateSpanID() string {
	b := make([]byte, 8)
	rand.Read(b)
	return hex.EncodeToString(b)
}
