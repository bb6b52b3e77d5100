package memory

import (
	"context"
	"time"
)

// Chunk is one stored slice of a fetched page.
type Chunk struct {
	DocID      string    `json:"doc_id"`
	URL        string    `json:"url"`
	Title      string    `json:"title"`
	Text       string    `json:"text"`
	Embedding  []float32 `json:"embedding"`
	ChunkIndex int       `json:"chunk_index"`
	IngestedAt time.Time `json:"ingested_at"`
}

// Match is a retrieval hit returned by SearchSimilar.
type Match struct {
	URL   string
	Title string
	Text  string
	Score float64
}

// Embedder turns texts into vectors. Satisfied by the LLM provider.
type Embedder interface {
	CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error)
}

// Cache is an optional URL-keyed store of embedded chunks, letting repeated
// queries skip re-fetching embeddings for a page. All methods are best-effort
// from the store's point of view.
type Cache interface {
	Get(ctx context.Context, url string) ([]Chunk, bool, error)
	Put(ctx context.Context, url string, chunks []Chunk) error
	Prune(ctx context.Context) (int, error)
	Close() error
}

// nopCache is the disabled cache backend.
type nopCache struct{}

func (nopCache) Get(context.Context, string) ([]Chunk, bool, error) { return nil, false, nil }
func (nopCache) Put(context.Context, string, []Chunk) error         { return nil }
func (nopCache) Prune(context.Context) (int, error)                 { return 0, nil }
func (nopCache) Close() error                                       { return nil }

// NewNopCache returns a cache that never hits.
func NewNopCache() Cache { return nopCache{} }
