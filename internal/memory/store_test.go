package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/omidshahri/glassmind/utils"
)

// fakeEmbedder maps marker words in the text to fixed vectors so tests can
// control the similarity ordering.
type fakeEmbedder struct {
	vecs     map[string][]float32
	failNext bool
	calls    int
}

func (f *fakeEmbedder) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.failNext {
		return nil, errors.New("embedding backend down")
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{1, 0}
		for marker, vec := range f.vecs {
			if strings.Contains(t, marker) {
				out[i] = vec
				break
			}
		}
	}
	return out, nil
}

func pad(s string) string {
	return s + strings.Repeat(" lorem ipsum dolor sit amet filler text", 3)
}

func newTestStore(t *testing.T, emb Embedder, opts Options) *Store {
	t.Helper()
	s, err := NewStore(emb, nil, opts)
	require.NoError(t, err)
	return s
}

func TestEmbedAndStoreRoundTrip(t *testing.T) {
	emb := &fakeEmbedder{}
	s := newTestStore(t, emb, Options{})

	n, err := s.EmbedAndStore(context.Background(), pad("go concurrency patterns"), "https://example.com/go", "Go Patterns")
	require.NoError(t, err)
	require.Equal(t, 1, n)

	matches, err := s.SearchSimilar(context.Background(), "concurrency", 6, 2)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	require.Equal(t, "https://example.com/go", matches[0].URL)
	require.Equal(t, "Go Patterns", matches[0].Title)
	require.Contains(t, matches[0].Text, "go concurrency patterns")
}

func TestEmbedAndStoreReusesKnownURL(t *testing.T) {
	emb := &fakeEmbedder{}
	s := newTestStore(t, emb, Options{})

	_, err := s.EmbedAndStore(context.Background(), pad("first body"), "https://example.com/p", "t")
	require.NoError(t, err)
	callsAfterFirst := emb.calls

	n, err := s.EmbedAndStore(context.Background(), pad("different body entirely"), "https://example.com/p", "t")
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, callsAfterFirst, emb.calls, "second store of the same URL must not re-embed")
	require.Equal(t, 1, s.Size())
}

func TestEmbedAndStoreSkipsTinyChunks(t *testing.T) {
	emb := &fakeEmbedder{}
	s := newTestStore(t, emb, Options{})

	n, err := s.EmbedAndStore(context.Background(), "too short", "https://example.com/short", "t")
	require.NoError(t, err)
	require.Zero(t, n)
	require.Zero(t, s.Size())
}

func TestSearchSimilarDomainDiversity(t *testing.T) {
	emb := &fakeEmbedder{vecs: map[string][]float32{
		"alpha": {1, 0},
		"beta":  {0.8, 0.6},
		"gamma": {0.6, 0.8},
		"query": {1, 0},
	}}
	s := newTestStore(t, emb, Options{})

	domains := map[string]string{"a.com": "alpha", "b.com": "beta", "c.com": "gamma"}
	for domain, marker := range domains {
		for i := 0; i < 3; i++ {
			url := fmt.Sprintf("https://%s/p%d", domain, i)
			_, err := s.EmbedAndStore(context.Background(), pad(marker+" content"), url, marker)
			require.NoError(t, err)
		}
	}

	matches, err := s.SearchSimilar(context.Background(), "query", 6, 2)
	require.NoError(t, err)
	require.Len(t, matches, 6)

	perDomain := map[string]int{}
	for _, m := range matches {
		perDomain[utils.Domain(m.URL)]++
	}
	for domain, n := range perDomain {
		require.LessOrEqual(t, n, 2, "domain %s exceeded cap", domain)
	}
	require.Len(t, perDomain, 3)
	// best-scoring domain leads
	require.Equal(t, "a.com", utils.Domain(matches[0].URL))
}

func TestSearchSimilarKeywordFallback(t *testing.T) {
	emb := &fakeEmbedder{}
	s := newTestStore(t, emb, Options{})

	_, err := s.EmbedAndStore(context.Background(), pad("distributed consensus with raft"), "https://example.com/raft", "Raft")
	require.NoError(t, err)

	emb.failNext = true
	matches, err := s.SearchSimilar(context.Background(), "raft", 6, 2)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	require.Equal(t, "https://example.com/raft", matches[0].URL)
}

func TestMakeChunksOverlap(t *testing.T) {
	text := strings.Repeat("x", 2500)
	chunks := makeChunks(text, 1000, 200)
	require.True(t, len(chunks) >= 3)
	require.Len(t, chunks[0], 1000)
	var total int
	for _, c := range chunks {
		total += len(c)
	}
	// overlapping windows cover the whole text
	require.GreaterOrEqual(t, total, len(text))
}

func TestMakeChunksShortText(t *testing.T) {
	require.Equal(t, []string{"hello"}, makeChunks("  hello  ", 1000, 200))
	require.Nil(t, makeChunks("   ", 1000, 200))
}

func TestCosine(t *testing.T) {
	require.InDelta(t, 1.0, cosine([]float32{1, 0}, []float32{2, 0}), 1e-9)
	require.InDelta(t, 0.0, cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	require.Zero(t, cosine([]float32{0, 0}, []float32{1, 1}))
}
