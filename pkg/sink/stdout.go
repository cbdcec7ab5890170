package sink

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/hookscope/hookscope/pkg/hook"
)

// Stdout prints every event to a writer for debugging, one line each.
type Stdout struct {
	format string // "text" or "json"
	w      io.Writer
}

// NewStdout creates a stdout sink. Format defaults to "text".
func NewStdout(format string) *Stdout {
	if format == "" {
		format = "text"
	}
	return &Stdout{format: format, w: os.Stdout}
}

// NewWriter creates a sink printing to w, for tests.
func NewWriter(format string, w io.Writer) *Stdout {
	s := NewStdout(format)
	s.w = w
	return s
}

// OnEvent implements hook.Sink. It always returns Continue.
func (s *Stdout) OnEvent(ev hook.Event) hook.Directive {
	if s.format == "json" {
		b, _ := json.Marshal(map[string]interface{}{
			"kind":     ev.Kind.String(),
			"frame":    uint64(ev.Frame),
			"file":     ev.Loc.File,
			"line":     ev.Loc.Line,
			"function": ev.Loc.Function,
			"time":     ev.Time.Format(time.RFC3339Nano),
		})
		fmt.Fprintf(s.w, "%s\n", b)
	} else {
		fmt.Fprintf(s.w, "[%-9s] %s:%d %s frame=%d\n",
			ev.Kind, ev.Loc.File, ev.Loc.Line, ev.Loc.Function, ev.Frame,
		)
	}
	return hook.Continue
}
