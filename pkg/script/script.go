// Copyright 2025-2026 Hookscope Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// included in the LICENSE file of this repository.

// Package script provides a miniature traced runtime implementing the
// hook.Runtime capability. It exists so the hook engine can be exercised
// end to end — in tests and in the demo binary — without a real
// instrumented interpreter: scripts are named Go functions that emit
// Call/Line/Return/Exception events through whatever trace callback is
// active on the calling goroutine.
package script

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/hookscope/hookscope/pkg/hook"
	"go.uber.org/zap"
)

// Runtime is a deterministic event source. Each goroutine has its own
// trace callback slot, so independent goroutines can be hooked and
// unhooked independently, matching the per-thread model of real traced
// runtimes.
type Runtime struct {
	logger *zap.Logger
	frames atomic.Uint64

	mu      sync.Mutex
	threads map[uint64]*thread
	funcs   map[string]*Func
}

// thread holds one goroutine's callback slot. Only the owning goroutine
// reads or writes cb, so emission needs no locking.
type thread struct {
	cb hook.Callback
}

// Func is a defined script function.
type Func struct {
	name string
	file string
	line int
	body func(*Frame) error
}

// New creates an empty script runtime.
func New(logger *zap.Logger) *Runtime {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runtime{
		logger:  logger,
		threads: make(map[uint64]*thread),
		funcs:   make(map[string]*Func),
	}
}

// Define registers a script function under name, located at file:line.
// The body receives a Frame for emitting line-level events and making
// nested calls.
func (r *Runtime) Define(name, file string, line int, body func(*Frame) error) {
	r.mu.Lock()
	r.funcs[name] = &Func{name: name, file: file, line: line, body: body}
	r.mu.Unlock()
	r.logger.Debug("script function defined",
		zap.String("name", name),
		zap.String("file", file),
		zap.Int("line", line),
	)
}

// Call executes the named function on the calling goroutine, emitting a
// Call event before the body, Line events as the body reports them, and
// a Return event after — preceded by an Exception event if the body
// returned an error.
func (r *Runtime) Call(name string) error {
	return r.call(r.thread(), name)
}

func (r *Runtime) call(t *thread, name string) error {
	r.mu.Lock()
	fn := r.funcs[name]
	r.mu.Unlock()
	if fn == nil {
		return fmt.Errorf("call %q: undefined function", name)
	}

	f := &Frame{rt: r, th: t, fn: fn, id: hook.FrameID(r.frames.Add(1)), line: fn.line}
	f.emit(hook.KindCall, fn.line)
	err := fn.body(f)
	if err != nil {
		f.emit(hook.KindException, f.line)
	}
	f.emit(hook.KindReturn, f.line)
	return err
}

// ThreadID implements hook.Runtime. Goroutine IDs satisfy the contract:
// stable for the goroutine's lifetime, never reused while it is live.
func (r *Runtime) ThreadID() uint64 {
	return goid()
}

// Swap implements hook.Runtime: it installs cb as the calling
// goroutine's trace callback and returns the previous one.
func (r *Runtime) Swap(cb hook.Callback) hook.Callback {
	t := r.thread()
	prev := t.cb
	t.cb = cb
	return prev
}

// Active implements hook.Runtime.
func (r *Runtime) Active() hook.Callback {
	return r.thread().cb
}

func (r *Runtime) thread() *thread {
	id := goid()
	r.mu.Lock()
	t := r.threads[id]
	if t == nil {
		t = &thread{}
		r.threads[id] = t
	}
	r.mu.Unlock()
	return t
}

// Frame is one activation of a script function.
type Frame struct {
	rt   *Runtime
	th   *thread
	fn   *Func
	id   hook.FrameID
	line int
	skip bool // line events suppressed after ActionSkipFrame
}

// Line reports that execution reached source line n, emitting a Line
// event unless the active callback asked to skip this frame.
func (f *Frame) Line(n int) {
	f.line = n
	f.emit(hook.KindLine, n)
}

// Call makes a nested call from this frame. The callee gets its own
// frame; a skip on the caller does not carry over.
func (f *Frame) Call(name string) error {
	return f.rt.call(f.th, name)
}

func (f *Frame) emit(kind hook.Kind, line int) {
	cb := f.th.cb
	if cb == nil {
		return
	}
	if kind == hook.KindLine && f.skip {
		return
	}
	if cb(f.id, kind, f.fn.file, line, f.fn.name) == hook.ActionSkipFrame {
		f.skip = true
	}
}

// goid parses the current goroutine's ID out of the stack header
// ("goroutine N [running]:"). Only used on cold paths: thread slot
// lookup and ThreadID.
func goid() uint64 {
	var buf [32]byte
	n := runtime.Stack(buf[:], false)
	s := buf[:n]
	const prefix = "goroutine "
	if len(s) <= len(prefix) {
		return 0
	}
	s = s[len(prefix):]
	var id uint64
	for i := 0; i < len(s) && s[i] >= '0' && s[i] <= '9'; i++ {
		id = id*10 + uint64(s[i]-'0')
	}
	return id
}
