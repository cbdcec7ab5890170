// Copyright 2025-2026 Hookscope Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// included in the LICENSE file of this repository.

package hook

import (
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// NestingPolicy controls what happens when Install is called on a thread
// that already has an active installation.
type NestingPolicy int

const (
	// NestingChain stacks installations. The inner install captures the
	// outer dispatcher as its previous hook, so the innermost sink
	// receives events until it is uninstalled, then delivery returns to
	// the outer sink. Uninstall order must be LIFO.
	NestingChain NestingPolicy = iota
	// NestingReject fails a second install with ErrAlreadyInstalled.
	NestingReject
)

// Registry owns per-thread hook state for one runtime. Install and
// Uninstall must be called on the thread whose hook they manage; the
// dispatch path that results touches only state owned by that thread and
// takes no locks. The registry's mutex guards bookkeeping metadata only,
// for cross-thread introspection.
type Registry struct {
	rt      Runtime
	logger  *zap.Logger
	nesting NestingPolicy
	seq     atomic.Uint64

	mu      sync.Mutex
	threads map[uint64]*threadState
}

// threadState is the per-thread hook state. The stack and reentrancy
// counter are mutated only on the owning thread (stack under the
// registry mutex so introspection sees a consistent depth). Counters are
// atomics so other threads may read them without touching the dispatch
// path.
type threadState struct {
	tid   uint64
	stack []*installation // install order; active installation is last

	reentry int // dispatch reentrancy depth, owning thread only

	dispatched atomic.Int64
	suppressed atomic.Int64
	dropped    atomic.Int64
	failures   atomic.Int64
	skips      atomic.Int64
}

// installation binds one installed sink to its thread state and the
// callback that was active before it. The dispatch method value of an
// installation is what actually gets registered with the runtime.
type installation struct {
	state   *threadState
	sink    Sink
	prev    Callback
	seq     uint64
	stopped bool // set after a Stop directive or sink failure
	diag    []SinkFailure
}

// Handle is the opaque token returned by Install. It proves ownership of
// one specific installation and is required to uninstall it.
type Handle struct {
	inst *installation
}

// Failures returns diagnostics for sink failures contained during this
// installation. At most one entry is recorded: the first failure
// implicitly stops delivery.
func (h *Handle) Failures() []SinkFailure {
	if h == nil || h.inst == nil {
		return nil
	}
	out := make([]SinkFailure, len(h.inst.diag))
	copy(out, h.inst.diag)
	return out
}

// Option configures a Registry.
type Option func(*Registry)

// WithNesting sets the nesting policy. The default is NestingChain.
func WithNesting(p NestingPolicy) Option {
	return func(r *Registry) { r.nesting = p }
}

// WithLogger sets the logger used for install/uninstall bookkeeping.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Registry) { r.logger = logger }
}

// NewRegistry creates a registry over the given runtime capability.
func NewRegistry(rt Runtime, opts ...Option) *Registry {
	r := &Registry{
		rt:      rt,
		logger:  zap.NewNop(),
		threads: make(map[uint64]*threadState),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Install registers a dispatcher for sink as the calling thread's trace
// callback. The previously active callback (possibly none) is captured
// in the returned handle and restored, exactly, by the matching
// Uninstall. Under NestingReject a second install on an already hooked
// thread fails with ErrAlreadyInstalled and changes nothing.
func (r *Registry) Install(sink Sink) (*Handle, error) {
	if sink == nil {
		return nil, fmt.Errorf("install: nil sink")
	}
	tid := r.rt.ThreadID()

	r.mu.Lock()
	defer r.mu.Unlock()

	ts := r.threads[tid]
	if ts == nil {
		ts = &threadState{tid: tid}
		r.threads[tid] = ts
	}

	if r.nesting == NestingReject && len(ts.stack) > 0 {
		return nil, fmt.Errorf("thread %d: %w", tid, ErrAlreadyInstalled)
	}

	inst := &installation{
		state: ts,
		sink:  sink,
		seq:   r.seq.Add(1),
	}
	inst.prev = r.rt.Swap(inst.dispatch)
	ts.stack = append(ts.stack, inst)

	r.logger.Debug("hook installed",
		zap.Uint64("thread", tid),
		zap.Uint64("seq", inst.seq),
		zap.Int("depth", len(ts.stack)),
	)
	return &Handle{inst: inst}, nil
}

// Uninstall removes the installation identified by handle and restores
// the callback that was active before the matching Install. The handle
// must come from the most recent install on the calling thread; anything
// else — a stale handle, another thread's handle, a second uninstall —
// fails with ErrMismatchedHandle and mutates nothing.
func (r *Registry) Uninstall(handle *Handle) error {
	if handle == nil || handle.inst == nil {
		return ErrMismatchedHandle
	}
	tid := r.rt.ThreadID()

	r.mu.Lock()
	defer r.mu.Unlock()

	ts := r.threads[tid]
	if ts == nil || len(ts.stack) == 0 {
		return fmt.Errorf("thread %d: %w", tid, ErrMismatchedHandle)
	}
	top := ts.stack[len(ts.stack)-1]
	if top != handle.inst {
		return fmt.Errorf("thread %d: %w", tid, ErrMismatchedHandle)
	}

	r.rt.Swap(top.prev)
	ts.stack[len(ts.stack)-1] = nil
	ts.stack = ts.stack[:len(ts.stack)-1]

	r.logger.Debug("hook uninstalled",
		zap.Uint64("thread", tid),
		zap.Uint64("seq", top.seq),
		zap.Int("depth", len(ts.stack)),
	)
	return nil
}

// Installed reports whether the calling thread has an active
// installation.
func (r *Registry) Installed() bool {
	return r.Depth() > 0
}

// Depth returns the calling thread's installation nesting depth.
func (r *Registry) Depth() int {
	tid := r.rt.ThreadID()
	r.mu.Lock()
	defer r.mu.Unlock()
	ts := r.threads[tid]
	if ts == nil {
		return 0
	}
	return len(ts.stack)
}

// ThreadStatus is a point-in-time view of one thread's hook state, for
// diagnostics. Reading it never blocks dispatch.
type ThreadStatus struct {
	ThreadID   uint64
	Depth      int
	Dispatched int64
	Suppressed int64
	Dropped    int64
	Failures   int64
	Skips      int64
}

// Threads returns the status of every thread the registry has seen,
// including threads whose hooks are currently uninstalled.
func (r *Registry) Threads() []ThreadStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]ThreadStatus, 0, len(r.threads))
	for _, ts := range r.threads {
		out = append(out, ThreadStatus{
			ThreadID:   ts.tid,
			Depth:      len(ts.stack),
			Dispatched: ts.dispatched.Load(),
			Suppressed: ts.suppressed.Load(),
			Dropped:    ts.dropped.Load(),
			Failures:   ts.failures.Load(),
			Skips:      ts.skips.Load(),
		})
	}
	return out
}
