// Copyright 2025-2026 Hookscope Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// included in the LICENSE file of this repository.

package sink

import "github.com/hookscope/hookscope/pkg/hook"

// Multi fans one event stream out to several sinks. The merged directive
// is the most restrictive one any sink returned: a single Stop stops the
// scope for everyone, a SkipFrame skips the frame for everyone.
type Multi struct {
	sinks []hook.Sink
}

// NewMulti creates a fan-out sink. Nil members are dropped.
func NewMulti(sinks ...hook.Sink) *Multi {
	m := &Multi{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// Len returns the number of member sinks.
func (m *Multi) Len() int { return len(m.sinks) }

// OnEvent implements hook.Sink.
func (m *Multi) OnEvent(ev hook.Event) hook.Directive {
	merged := hook.Continue
	for _, s := range m.sinks {
		if d := s.OnEvent(ev); d > merged {
			merged = d
		}
	}
	return merged
}
