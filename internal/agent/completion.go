package agent

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/omidshahri/glassmind/internal/stream"
	"github.com/omidshahri/glassmind/models"
)

const fallbackFinalAnswer = "I have completed my research and analysis. " +
	"Please refer to my thoughts above for the comprehensive findings."

// streamAnswer opens a streaming completion and feeds its output line by line
// through the classifier. It guarantees a final_answer (falling back when the
// model never produced a FINAL: line) and exactly one complete event on
// success. A stream failure is returned to the caller and nothing terminal is
// emitted here.
func (a *Agent) streamAnswer(ctx context.Context, run *stream.Run, messages []models.Message) error {
	answer, err := a.provider.StreamCompletion(ctx, a.model(run), messages)
	if err != nil {
		return fmt.Errorf("completion stream: %w", err)
	}
	defer answer.Close()

	emit := func(ev stream.Event) { a.registry.Emit(run.ID, ev) }
	classifier := NewClassifier(run, emit)

	emit(stream.Thought("Analyzing information and context..."))
	emit(stream.Thought("Processing information and generating comprehensive response..."))

	var currentLine string
	lines := 0
	capped := false
	for {
		delta, err := answer.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("completion stream: %w", err)
		}
		if capped {
			// keep draining so the stream terminates cleanly
			continue
		}
		currentLine += delta
		for strings.Contains(currentLine, "\n") {
			parts := strings.SplitN(currentLine, "\n", 2)
			line := parts[0]
			currentLine = parts[1]
			if strings.TrimSpace(line) == "" {
				continue
			}
			classifier.Line(line)
			lines++
			if lines > a.cfg.Agent.MaxThoughts {
				a.logger.Printf("run %s reached max classified lines", run.ID)
				capped = true
				break
			}
		}
	}

	// a statement that ends without a trailing newline still counts
	if !capped && strings.TrimSpace(currentLine) != "" {
		classifier.Line(currentLine)
	}

	if !run.FinalAnswerSent {
		a.logger.Printf("run %s produced no final answer, sending fallback", run.ID)
		emit(stream.Event{Type: stream.TypeFinalAnswer, Text: fallbackFinalAnswer})
	}

	emit(stream.Complete("Answer complete"))
	return nil
}
