package stream

import "time"

// Type identifies an event on a run's stream.
type Type string

const (
	TypeThought          Type = "thought"
	TypePage             Type = "page"
	TypeToken            Type = "token"
	TypeFinalAnswerToken Type = "final_answer_token"
	TypeFinalAnswer      Type = "final_answer"
	TypeCitation         Type = "citation"
	TypeToolUse          Type = "tool_use"
	TypeToolResult       Type = "tool_result"
	TypeError            Type = "error"
	TypeComplete         Type = "complete"
	TypeHeartbeat        Type = "heartbeat"
)

// Tool names used in tool_use/tool_result events.
const (
	ToolGoogleSearch = "google_search"
	ToolWebScraper   = "web_scraper"
	ToolEmbedding    = "embedding"
)

// Event is a single frame on a run's stream. Timestamp and RunID are stamped
// by the registry on emission.
type Event struct {
	Type      Type   `json:"type"`
	Text      string `json:"text,omitempty"`
	URL       string `json:"url,omitempty"`
	Title     string `json:"title,omitempty"`
	Favicon   string `json:"favicon,omitempty"`
	Tool      string `json:"tool,omitempty"`
	Action    string `json:"action,omitempty"`
	Details   string `json:"details,omitempty"`
	Result    string `json:"result,omitempty"`
	Message   string `json:"message,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	RunID     string `json:"run_id,omitempty"`
}

// Terminal reports whether this event ends the run's stream.
func (e Event) Terminal() bool {
	return e.Type == TypeComplete || e.Type == TypeError
}

// Thought builds a thought event.
func Thought(text string) Event { return Event{Type: TypeThought, Text: text} }

// Page builds a page event announcing a visited source.
func Page(url, title, favicon string) Event {
	return Event{Type: TypePage, URL: url, Title: title, Favicon: favicon}
}

// Citation builds a citation event for a stored source.
func Citation(url, title, favicon string) Event {
	return Event{Type: TypeCitation, URL: url, Title: title, Favicon: favicon}
}

// ToolUse builds a tool_use event.
func ToolUse(tool, action, details string) Event {
	return Event{Type: TypeToolUse, Tool: tool, Action: action, Details: details}
}

// ToolResult builds a tool_result event.
func ToolResult(tool, result string) Event {
	return Event{Type: TypeToolResult, Tool: tool, Result: result}
}

// Errorf builds an error event. The message is what the client sees.
func Errorf(message string) Event { return Event{Type: TypeError, Message: message} }

// Complete builds the success terminal event.
func Complete(text string) Event { return Event{Type: TypeComplete, Text: text} }

func heartbeat(now time.Time, runID string) Event {
	return Event{Type: TypeHeartbeat, Timestamp: now.UTC().Format(time.RFC3339Nano), RunID: runID}
}
