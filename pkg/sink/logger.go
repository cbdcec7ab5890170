// Copyright 2025-2026 Hookscope Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// included in the LICENSE file of this repository.

package sink

import (
	"github.com/hookscope/hookscope/pkg/hook"
	"go.uber.org/zap"
)

// Logger writes every event to a zap logger at debug level.
type Logger struct {
	logger *zap.Logger
}

// NewLogger creates a logging sink.
func NewLogger(logger *zap.Logger) *Logger {
	return &Logger{logger: logger}
}

// OnEvent implements hook.Sink. It always returns Continue.
func (l *Logger) OnEvent(ev hook.Event) hook.Directive {
	l.logger.Debug("trace event",
		zap.String("kind", ev.Kind.String()),
		zap.Uint64("frame", uint64(ev.Frame)),
		zap.String("file", ev.Loc.File),
		zap.Int("line", ev.Loc.Line),
		zap.String("function", ev.Loc.Function),
	)
	return hook.Continue
}
