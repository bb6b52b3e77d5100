package agent

import (
	"strings"

	"github.com/omidshahri/glassmind/internal/stream"
)

const (
	thoughtPrefix = "THOUGHT:"
	finalPrefix   = "FINAL:"
)

// Classifier routes reasoning lines from the model onto a run's stream.
// Lines starting with THOUGHT: become thought events, lines starting with
// FINAL: become final_answer events and flip the run into final mode.
// Anything else is dropped so token fragments never surface as thoughts.
type Classifier struct {
	run  *stream.Run
	emit func(stream.Event)
}

func NewClassifier(run *stream.Run, emit func(stream.Event)) *Classifier {
	return &Classifier{run: run, emit: emit}
}

// Line classifies one line. Prefix matching is case-insensitive; a prefix
// with no content after it sets state without emitting.
func (c *Classifier) Line(raw string) {
	line := strings.TrimSpace(raw)
	if line == "" {
		return
	}
	upper := strings.ToUpper(line)
	switch {
	case strings.HasPrefix(upper, thoughtPrefix):
		content := strings.TrimSpace(line[len(thoughtPrefix):])
		if content != "" {
			c.emit(stream.Thought(content))
		}
	case strings.HasPrefix(upper, finalPrefix):
		content := strings.TrimSpace(line[len(finalPrefix):])
		c.run.FinalMode = true
		if content != "" {
			c.run.FinalAnswerSent = true
			c.emit(stream.Event{Type: stream.TypeFinalAnswer, Text: content})
		}
	}
}
