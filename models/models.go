package models

// Message represents a message in a conversation
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionStream delivers incremental content deltas from a streaming
// completion. Recv returns io.EOF once the model is done.
type CompletionStream interface {
	Recv() (string, error)
	Close() error
}
