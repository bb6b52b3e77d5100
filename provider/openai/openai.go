package openai_provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/omidshahri/glassmind/config"
	"github.com/omidshahri/glassmind/models"
)

// client implements the provider interface using OpenAI's API
type client struct {
	apiKey              string
	baseURL             string
	maxCompletionTokens int
	embeddingModel      string
	httpClient          *http.Client
	// streamClient carries no timeout; a streaming completion may outlive
	// any fixed request deadline and is bounded by ctx instead.
	streamClient *http.Client
}

// request represents a request to the OpenAI chat completions API
type request struct {
	Model               string           `json:"model"`
	Messages            []models.Message `json:"messages"`
	MaxCompletionTokens int              `json:"max_completion_tokens,omitempty"`
	Stream              bool             `json:"stream,omitempty"`
}

// response represents a response from the OpenAI API
type response struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// NewOpenAIClient creates a new OpenAI client
func NewOpenAIClient(cfg config.OpenAIConfig) *client {
	return &client{
		apiKey:              cfg.APIKey,
		baseURL:             strings.TrimRight(cfg.BaseURL, "/"),
		maxCompletionTokens: cfg.MaxCompletionTokens,
		embeddingModel:      cfg.EmbeddingModel,
		httpClient:          &http.Client{Timeout: cfg.Timeout},
		streamClient:        &http.Client{},
	}
}

func (c *client) newRequest(ctx context.Context, path string, body any) (*http.Request, error) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+path, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	return req, nil
}

// Complete sends a chat completion request and returns the full content.
func (c *client) Complete(ctx context.Context, model string, messages []models.Message) (string, error) {
	req, err := c.newRequest(ctx, "/chat/completions", request{
		Model:               model,
		Messages:            messages,
		MaxCompletionTokens: c.maxCompletionTokens,
	})
	if err != nil {
		return "", err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API returned status: %d", resp.StatusCode)
	}

	var openaiResp response
	if err := json.NewDecoder(resp.Body).Decode(&openaiResp); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if len(openaiResp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}
	return openaiResp.Choices[0].Message.Content, nil
}

// StreamCompletion opens a streaming chat completion. The returned stream
// yields content deltas until io.EOF.
func (c *client) StreamCompletion(ctx context.Context, model string, messages []models.Message) (models.CompletionStream, error) {
	req, err := c.newRequest(ctx, "/chat/completions", request{
		Model:               model,
		Messages:            messages,
		MaxCompletionTokens: c.maxCompletionTokens,
		Stream:              true,
	})
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("API returned status: %d", resp.StatusCode)
	}

	return &chatStream{body: resp.Body, scanner: bufio.NewScanner(resp.Body)}, nil
}

// chatStream parses the SSE frames of a streaming chat completion.
type chatStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// Recv returns the next non-empty content delta, io.EOF at end of stream.
func (s *chatStream) Recv() (string, error) {
	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			return "", io.EOF
		}
		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return "", fmt.Errorf("failed to parse stream chunk: %w", err)
		}
		if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
			continue
		}
		return chunk.Choices[0].Delta.Content, nil
	}
	if err := s.scanner.Err(); err != nil {
		return "", fmt.Errorf("stream read failed: %w", err)
	}
	return "", io.EOF
}

func (s *chatStream) Close() error { return s.body.Close() }

// CreateEmbedding generates an embedding for the given texts using OpenAI's API
func (c *client) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	req, err := c.newRequest(ctx, "/embeddings", map[string]interface{}{
		"model": c.embeddingModel,
		"input": texts,
	})
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API returned status: %d", resp.StatusCode)
	}

	var openaiResp struct {
		Data []struct {
			Object    string    `json:"object"`
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&openaiResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	vecs := make([][]float32, len(openaiResp.Data))
	for i, d := range openaiResp.Data {
		vecs[i] = d.Embedding
	}
	return vecs, nil
}
