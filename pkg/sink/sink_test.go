// Copyright 2025-2026 Hookscope Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// included in the LICENSE file of this repository.

package sink

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/hookscope/hookscope/pkg/hook"
)

func ev(kind hook.Kind, frame hook.FrameID, fn string, line int) hook.Event {
	return hook.Event{
		Kind:  kind,
		Frame: frame,
		Loc:   hook.Location{File: "app.scr", Line: line, Function: fn},
		Time:  time.Now(),
	}
}

func TestMultiFanOut(t *testing.T) {
	var a, b int
	m := NewMulti(
		hook.SinkFunc(func(hook.Event) hook.Directive { a++; return hook.Continue }),
		nil,
		hook.SinkFunc(func(hook.Event) hook.Directive { b++; return hook.Continue }),
	)
	if m.Len() != 2 {
		t.Fatalf("Len() = %d, want 2 (nil member dropped)", m.Len())
	}
	m.OnEvent(ev(hook.KindCall, 1, "f", 1))
	if a != 1 || b != 1 {
		t.Fatalf("members ran %d/%d times, want 1/1", a, b)
	}
}

func TestMultiMergesMostRestrictiveDirective(t *testing.T) {
	m := NewMulti(
		hook.SinkFunc(func(hook.Event) hook.Directive { return hook.Continue }),
		hook.SinkFunc(func(hook.Event) hook.Directive { return hook.SkipFrame }),
		hook.SinkFunc(func(hook.Event) hook.Directive { return hook.Continue }),
	)
	if got := m.OnEvent(ev(hook.KindCall, 1, "f", 1)); got != hook.SkipFrame {
		t.Fatalf("merged directive = %v, want skip-frame", got)
	}

	m = NewMulti(
		hook.SinkFunc(func(hook.Event) hook.Directive { return hook.SkipFrame }),
		hook.SinkFunc(func(hook.Event) hook.Directive { return hook.Stop }),
	)
	if got := m.OnEvent(ev(hook.KindCall, 1, "f", 1)); got != hook.Stop {
		t.Fatalf("merged directive = %v, want stop", got)
	}
}

func TestAssemblerPairsCallReturn(t *testing.T) {
	var spans []*Span
	a := NewAssembler(func(s *Span) { spans = append(spans, s) })

	start := time.Now()
	a.Feed(hook.Event{Kind: hook.KindCall, Frame: 1,
		Loc: hook.Location{File: "app.scr", Line: 5, Function: "outer"}, Time: start})
	a.Feed(hook.Event{Kind: hook.KindLine, Frame: 1,
		Loc: hook.Location{File: "app.scr", Line: 6, Function: "outer"}, Time: start})
	a.Feed(hook.Event{Kind: hook.KindCall, Frame: 2,
		Loc: hook.Location{File: "app.scr", Line: 20, Function: "inner"}, Time: start})
	a.Feed(hook.Event{Kind: hook.KindReturn, Frame: 2,
		Loc: hook.Location{File: "app.scr", Line: 21, Function: "inner"}, Time: start.Add(time.Millisecond)})
	a.Feed(hook.Event{Kind: hook.KindReturn, Frame: 1,
		Loc: hook.Location{File: "app.scr", Line: 8, Function: "outer"}, Time: start.Add(2 * time.Millisecond)})

	if len(spans) != 2 {
		t.Fatalf("got %d spans, want 2", len(spans))
	}
	inner, outer := spans[0], spans[1]
	if inner.Name != "inner" || outer.Name != "outer" {
		t.Fatalf("span order %q, %q; want inner first", inner.Name, outer.Name)
	}
	if inner.TraceID != outer.TraceID {
		t.Fatal("nested spans do not share a trace id")
	}
	if inner.ParentSpanID != outer.SpanID {
		t.Fatalf("inner parent = %q, want outer span id %q", inner.ParentSpanID, outer.SpanID)
	}
	if outer.ParentSpanID != "" {
		t.Fatalf("root span has parent %q", outer.ParentSpanID)
	}
	if outer.LineEvents != 1 {
		t.Fatalf("outer LineEvents = %d, want 1", outer.LineEvents)
	}
	if outer.Duration != 2*time.Millisecond {
		t.Fatalf("outer duration = %v, want 2ms", outer.Duration)
	}
	if a.Depth() != 0 {
		t.Fatalf("Depth() = %d after full unwind, want 0", a.Depth())
	}
}

func TestAssemblerMarksFailedSpans(t *testing.T) {
	var spans []*Span
	a := NewAssembler(func(s *Span) { spans = append(spans, s) })

	now := time.Now()
	a.Feed(hook.Event{Kind: hook.KindCall, Frame: 1,
		Loc: hook.Location{Function: "bad", Line: 1}, Time: now})
	a.Feed(hook.Event{Kind: hook.KindException, Frame: 1,
		Loc: hook.Location{Function: "bad", Line: 3}, Time: now})
	a.Feed(hook.Event{Kind: hook.KindReturn, Frame: 1,
		Loc: hook.Location{Function: "bad", Line: 3}, Time: now})

	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	if !spans[0].Failed {
		t.Fatal("span not marked failed after exception event")
	}
	if spans[0].Line != 3 {
		t.Fatalf("span line = %d, want 3 (last observed)", spans[0].Line)
	}
}

func TestAssemblerNewTracePerRootCall(t *testing.T) {
	var spans []*Span
	a := NewAssembler(func(s *Span) { spans = append(spans, s) })

	now := time.Now()
	for frame := hook.FrameID(1); frame <= 2; frame++ {
		a.Feed(hook.Event{Kind: hook.KindCall, Frame: frame,
			Loc: hook.Location{Function: "f"}, Time: now})
		a.Feed(hook.Event{Kind: hook.KindReturn, Frame: frame,
			Loc: hook.Location{Function: "f"}, Time: now})
	}
	if len(spans) != 2 {
		t.Fatalf("got %d spans, want 2", len(spans))
	}
	if spans[0].TraceID == spans[1].TraceID {
		t.Fatal("separate root calls share a trace id")
	}
}

func TestStdoutTextFormat(t *testing.T) {
	var buf bytes.Buffer
	s := NewWriter("text", &buf)
	if got := s.OnEvent(ev(hook.KindCall, 7, "handler", 12)); got != hook.Continue {
		t.Fatalf("OnEvent = %v, want continue", got)
	}
	out := buf.String()
	for _, want := range []string{"CALL", "app.scr:12", "handler", "frame=7"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output %q missing %q", out, want)
		}
	}
}

func TestStdoutJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	s := NewWriter("json", &buf)
	s.OnEvent(ev(hook.KindLine, 3, "loop", 44))

	var decoded map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded["kind"] != "LINE" || decoded["function"] != "loop" {
		t.Fatalf("unexpected fields: %v", decoded)
	}
	if decoded["line"].(float64) != 44 {
		t.Fatalf("line = %v, want 44", decoded["line"])
	}
}

func TestGenerateIDs(t *testing.T) {
	tid := GenerateTraceID()
	sid := GenerateSpanID()
	if len(tid) != 32 {
		t.Fatalf("trace id length = %d, want 32", len(tid))
	}
	if len(sid) != 16 {
		t.Fatalf("span id length = %d, want 16", len(sid))
	}
	if GenerateTraceID() == tid {
		t.Fatal("trace ids not unique")
	}
}
