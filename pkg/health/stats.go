// Copyright 2025-2026 Hookscope Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// included in the LICENSE file of this repository.

package health

import (
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hookscope/hookscope/pkg/hook"
	"github.com/shirou/gopsutil/v3/process"
)

// HookSource exposes per-thread hook state for diagnostics. Implemented
// by *hook.Registry.
type HookSource interface {
	Threads() []hook.ThreadStatus
}

// Stats tracks self-monitoring counters for the tracer.
type Stats struct {
	startTime time.Time
	source    HookSource
	self      *process.Process

	ScopesEntered atomic.Int64
	ScopesExited  atomic.Int64
}

// NewStats creates a Stats instance reading hook counters from source,
// which may be nil if no registry is attached yet.
func NewStats(source HookSource) *Stats {
	// Self process handle for overhead reporting; nil on failure, the
	// snapshot then simply omits CPU/RSS.
	self, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		self = nil
	}
	return &Stats{
		startTime: time.Now(),
		source:    source,
		self:      self,
	}
}

// Uptime returns how long the tracer has been running.
func (s *Stats) Uptime() time.Duration {
	return time.Since(s.startTime)
}

// Snapshot is a point-in-time copy of all counters.
type Snapshot struct {
	UptimeSeconds  float64
	Goroutines     int
	MemoryRSSBytes uint64
	CPUPercent     float64

	TrackedThreads int // threads the registry has seen
	HookedThreads  int // threads with an active installation

	EventsDispatched int64
	EventsSuppressed int64
	EventsDropped    int64
	SinkFailures     int64
	FramesSkipped    int64

	ScopesEntered int64
	ScopesExited  int64
}

// Snapshot aggregates current stats across all tracked threads.
func (s *Stats) Snapshot() Snapshot {
	snap := Snapshot{
		UptimeSeconds: s.Uptime().Seconds(),
		Goroutines:    runtime.NumGoroutine(),
		ScopesEntered: s.ScopesEntered.Load(),
		ScopesExited:  s.ScopesExited.Load(),
	}

	if s.self != nil {
		if mem, err := s.self.MemoryInfo(); err == nil && mem != nil {
			snap.MemoryRSSBytes = mem.RSS
		}
		if cpu, err := s.self.CPUPercent(); err == nil {
			snap.CPUPercent = cpu
		}
	}

	if s.source != nil {
		for _, ts := range s.source.Threads() {
			snap.TrackedThreads++
			if ts.Depth > 0 {
				snap.HookedThreads++
			}
			snap.EventsDispatched += ts.Dispatched
			snap.EventsSuppressed += ts.Suppressed
			snap.EventsDropped += ts.Dropped
			snap.SinkFailures += ts.Failures
			snap.FramesSkipped += ts.Skips
		}
	}
	return snap
}

// PrometheusMetrics returns stats in Prometheus text exposition format.
func (s *Stats) PrometheusMetrics() string {
	snap := s.Snapshot()

	var b strings.Builder
	writeMetric(&b, "hookscope_uptime_seconds", "gauge", "Tracer uptime in seconds", snap.UptimeSeconds)
	writeMetric(&b, "hookscope_goroutines", "gauge", "Number of goroutines", float64(snap.Goroutines))
	writeMetric(&b, "hookscope_memory_rss_bytes", "gauge", "Resident memory in bytes", float64(snap.MemoryRSSBytes))
	writeMetric(&b, "hookscope_cpu_percent", "gauge", "Tracer CPU usage percent", snap.CPUPercent)
	writeMetric(&b, "hookscope_tracked_threads", "gauge", "Threads the registry has seen", float64(snap.TrackedThreads))
	writeMetric(&b, "hookscope_hooked_threads", "gauge", "Threads with an active hook", float64(snap.HookedThreads))
	writeMetric(&b, "hookscope_events_dispatched_total", "counter", "Events delivered to sinks", float64(snap.EventsDispatched))
	writeMetric(&b, "hookscope_events_suppressed_total", "counter", "Events suppressed by the reentrancy guard", float64(snap.EventsSuppressed))
	writeMetric(&b, "hookscope_events_dropped_total", "counter", "Events dropped after a Stop directive", float64(snap.EventsDropped))
	writeMetric(&b, "hookscope_sink_failures_total", "counter", "Sink panics contained by the dispatcher", float64(snap.SinkFailures))
	writeMetric(&b, "hookscope_frames_skipped_total", "counter", "SkipFrame directives applied", float64(snap.FramesSkipped))
	writeMetric(&b, "hookscope_scopes_entered_total", "counter", "Trace scopes entered", float64(snap.ScopesEntered))
	writeMetric(&b, "hookscope_scopes_exited_total", "counter", "Trace scopes exited", float64(snap.ScopesExited))
	return b.String()
}

func writeMetric(b *strings.Builder, name, typ, help string, value float64) {
	b.WriteString("# HELP ")
	b.WriteString(name)
	b.WriteByte(' ')
	b.WriteString(help)
	b.WriteByte('\n')
	b.WriteString("# TYPE ")
	b.WriteString(name)
	b.WriteByte(' ')
	b.WriteString(typ)
	b.WriteByte('\n')
	b.WriteString(name)
	b.WriteByte(' ')
	b.WriteString(strconv.FormatFloat(value, 'f', -1, 64))
	b.WriteByte('\n')
}
