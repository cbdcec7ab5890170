// Copyright 2025-2026 Hookscope Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// included in the LICENSE file of this repository.

package script

import (
	"errors"
	"testing"

	"github.com/hookscope/hookscope/pkg/hook"
)

type recorded struct {
	kind     hook.Kind
	frame    hook.FrameID
	line     int
	function string
}

func record(events *[]recorded) hook.Callback {
	return func(frame hook.FrameID, kind hook.Kind, file string, line int, function string) hook.Action {
		*events = append(*events, recorded{kind: kind, frame: frame, line: line, function: function})
		return hook.ActionContinue
	}
}

func TestCallEmitsEventSequence(t *testing.T) {
	rt := New(nil)
	rt.Define("add", "math.scr", 10, func(f *Frame) error {
		f.Line(11)
		f.Line(12)
		return nil
	})

	var events []recorded
	prev := rt.Swap(record(&events))
	defer rt.Swap(prev)

	if err := rt.Call("add"); err != nil {
		t.Fatalf("Call: %v", err)
	}

	want := []struct {
		kind hook.Kind
		line int
	}{
		{hook.KindCall, 10},
		{hook.KindLine, 11},
		{hook.KindLine, 12},
		{hook.KindReturn, 12},
	}
	if len(events) != len(want) {
		t.Fatalf("got %d events, want %d", len(events), len(want))
	}
	for i, w := range want {
		if events[i].kind != w.kind || events[i].line != w.line {
			t.Fatalf("event %d = %v@%d, want %v@%d", i, events[i].kind, events[i].line, w.kind, w.line)
		}
		if events[i].function != "add" {
			t.Fatalf("event %d function = %q, want add", i, events[i].function)
		}
		if events[i].frame != events[0].frame {
			t.Fatal("frame id changed within one activation")
		}
	}
}

func TestErrorEmitsException(t *testing.T) {
	rt := New(nil)
	wantErr := errors.New("boom")
	rt.Define("bad", "bad.scr", 1, func(f *Frame) error {
		f.Line(2)
		return wantErr
	})

	var events []recorded
	prev := rt.Swap(record(&events))
	defer rt.Swap(prev)

	if err := rt.Call("bad"); !errors.Is(err, wantErr) {
		t.Fatalf("Call = %v, want %v", err, wantErr)
	}

	kinds := make([]hook.Kind, len(events))
	for i, ev := range events {
		kinds[i] = ev.kind
	}
	want := []hook.Kind{hook.KindCall, hook.KindLine, hook.KindException, hook.KindReturn}
	if len(kinds) != len(want) {
		t.Fatalf("got kinds %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("got kinds %v, want %v", kinds, want)
		}
	}
}

func TestNestedCallsGetDistinctFrames(t *testing.T) {
	rt := New(nil)
	rt.Define("child", "c.scr", 1, func(f *Frame) error { return nil })
	rt.Define("parent", "p.scr", 1, func(f *Frame) error {
		return f.Call("child")
	})

	var events []recorded
	prev := rt.Swap(record(&events))
	defer rt.Swap(prev)

	if err := rt.Call("parent"); err != nil {
		t.Fatalf("Call: %v", err)
	}

	// parent CALL, child CALL, child RETURN, parent RETURN
	if len(events) != 4 {
		t.Fatalf("got %d events, want 4", len(events))
	}
	if events[0].frame == events[1].frame {
		t.Fatal("parent and child share a frame id")
	}
	if events[1].frame != events[2].frame || events[0].frame != events[3].frame {
		t.Fatal("call/return frame ids do not pair up")
	}
}

func TestSkipFrameStopsLineEventsOnly(t *testing.T) {
	rt := New(nil)
	rt.Define("inner", "s.scr", 10, func(f *Frame) error {
		f.Line(11)
		return nil
	})
	rt.Define("outer", "s.scr", 1, func(f *Frame) error {
		f.Line(2)
		if err := f.Call("inner"); err != nil {
			return err
		}
		f.Line(4)
		return nil
	})

	var events []recorded
	prev := rt.Swap(func(frame hook.FrameID, kind hook.Kind, file string, line int, function string) hook.Action {
		events = append(events, recorded{kind: kind, frame: frame, line: line, function: function})
		if kind == hook.KindCall && function == "outer" {
			return hook.ActionSkipFrame
		}
		return hook.ActionContinue
	})
	defer rt.Swap(prev)

	if err := rt.Call("outer"); err != nil {
		t.Fatalf("Call: %v", err)
	}

	// Skipping the outer frame suppresses its Line events but not its
	// boundaries, and the inner frame traces normally.
	for _, ev := range events {
		if ev.kind == hook.KindLine && ev.function == "outer" {
			t.Fatalf("got line event for skipped frame: %+v", ev)
		}
	}
	var innerLines int
	for _, ev := range events {
		if ev.kind == hook.KindLine && ev.function == "inner" {
			innerLines++
		}
	}
	if innerLines != 1 {
		t.Fatalf("inner frame emitted %d line events, want 1", innerLines)
	}
}

func TestUndefinedFunction(t *testing.T) {
	rt := New(nil)
	if err := rt.Call("missing"); err == nil {
		t.Fatal("Call of undefined function succeeded")
	}
}

func TestNoCallbackIsSilent(t *testing.T) {
	rt := New(nil)
	rt.Define("quiet", "q.scr", 1, func(f *Frame) error {
		f.Line(2)
		return nil
	})
	if err := rt.Call("quiet"); err != nil {
		t.Fatalf("Call without callback: %v", err)
	}
}

func TestThreadIDStable(t *testing.T) {
	rt := New(nil)
	a, b := rt.ThreadID(), rt.ThreadID()
	if a == 0 || a != b {
		t.Fatalf("ThreadID unstable: %d then %d", a, b)
	}

	done := make(chan uint64, 1)
	go func() { done <- rt.ThreadID() }()
	if other := <-done; other == a {
		t.Fatal("two live goroutines share a thread id")
	}
}
