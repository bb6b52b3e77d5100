package memory

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"log"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/blevesearch/bleve"
	"github.com/omidshahri/glassmind/utils"
)

const rrfK = 60 // reciprocal-rank-fusion constant

// Options bounds chunking and retrieval behaviour.
type Options struct {
	ChunkChars    int
	ChunkOverlap  int
	MinChunkChars int
	// Hybrid fuses BM25 and vector ranks instead of pure cosine ordering.
	Hybrid bool
}

// Store holds embedded page chunks for one process: an in-memory vector list
// for cosine ranking plus a bleve index for BM25. Chunks for a URL are stored
// once and reused on later queries.
type Store struct {
	embedder Embedder
	cache    Cache
	opts     Options
	logger   *log.Logger

	mu      sync.RWMutex
	index   bleve.Index
	meta    map[string]Chunk
	vectors []vecEntry
	byURL   map[string][]string
}

type vecEntry struct {
	docID string
	vec   []float32
}

func NewStore(embedder Embedder, cache Cache, opts Options) (*Store, error) {
	if opts.ChunkChars <= 0 {
		opts.ChunkChars = 1000
	}
	if opts.ChunkOverlap < 0 || opts.ChunkOverlap >= opts.ChunkChars {
		opts.ChunkOverlap = 200
	}
	if opts.MinChunkChars <= 0 {
		opts.MinChunkChars = 50
	}
	if cache == nil {
		cache = NewNopCache()
	}
	index, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create index: %w", err)
	}
	return &Store{
		embedder: embedder,
		cache:    cache,
		opts:     opts,
		logger:   log.New(log.Writer(), "[MEMORY] ", log.LstdFlags),
		index:    index,
		meta:     map[string]Chunk{},
		byURL:    map[string][]string{},
	}, nil
}

// EmbedAndStore chunks the content, embeds the chunks and indexes them under
// the URL. A URL already in the store is reused untouched; the cache is
// consulted and filled best-effort. Returns the number of chunks backing the
// URL after the call.
func (s *Store) EmbedAndStore(ctx context.Context, content, url, title string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ids, ok := s.byURL[url]; ok {
		return len(ids), nil
	}

	if cached, ok, err := s.cache.Get(ctx, url); err != nil {
		s.logger.Printf("cache get failed for %s: %v", url, err)
	} else if ok && len(cached) > 0 {
		if err := s.insertLocked(cached); err != nil {
			return 0, err
		}
		return len(cached), nil
	}

	hash := sha1Hex(url)
	var texts []string
	for _, part := range makeChunks(content, s.opts.ChunkChars, s.opts.ChunkOverlap) {
		if len(strings.TrimSpace(part)) < s.opts.MinChunkChars {
			continue
		}
		texts = append(texts, part)
	}
	if len(texts) == 0 {
		return 0, nil
	}

	vecs, err := s.embedder.CreateEmbedding(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embedding failed: %w", err)
	}
	if len(vecs) != len(texts) {
		return 0, fmt.Errorf("embedding returned %d vectors for %d chunks", len(vecs), len(texts))
	}

	now := time.Now()
	chunks := make([]Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = Chunk{
			DocID:      fmt.Sprintf("%s#%03d", hash, i),
			URL:        url,
			Title:      title,
			Text:       text,
			Embedding:  vecs[i],
			ChunkIndex: i,
			IngestedAt: now,
		}
	}
	if err := s.insertLocked(chunks); err != nil {
		return 0, err
	}
	if err := s.cache.Put(ctx, url, chunks); err != nil {
		s.logger.Printf("cache put failed for %s: %v", url, err)
	}
	return len(chunks), nil
}

func (s *Store) insertLocked(chunks []Chunk) error {
	for _, c := range chunks {
		if err := s.index.Index(c.DocID, map[string]string{"text": c.Text, "title": c.Title}); err != nil {
			return fmt.Errorf("failed to index chunk: %w", err)
		}
		s.meta[c.DocID] = c
		s.vectors = append(s.vectors, vecEntry{docID: c.DocID, vec: c.Embedding})
		s.byURL[c.URL] = append(s.byURL[c.URL], c.DocID)
	}
	return nil
}

// Size reports the number of stored chunks.
func (s *Store) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.meta)
}

// SearchSimilar ranks stored chunks against the query and returns at most
// topK matches with at most maxPerDomain per domain, best score first; ties
// keep insertion order. When embedding the query fails the BM25 index answers
// instead.
func (s *Store) SearchSimilar(ctx context.Context, query string, topK, maxPerDomain int) ([]Match, error) {
	if topK <= 0 {
		return nil, nil
	}

	qvecs, err := s.embedder.CreateEmbedding(ctx, []string{query})
	if err != nil || len(qvecs) != 1 {
		s.logger.Printf("query embedding failed, falling back to keyword search: %v", err)
		hits, err := s.bm25Search(query, topK*3)
		if err != nil {
			return nil, err
		}
		return s.capDomains(hits, topK, maxPerDomain), nil
	}

	s.mu.RLock()
	ranked := s.vectorRankLocked(qvecs[0])
	s.mu.RUnlock()

	if s.opts.Hybrid {
		keyword, err := s.bm25Search(query, topK*3)
		if err == nil {
			ranked = fuseRRF(ranked, keyword)
		}
	}
	return s.capDomains(ranked, topK, maxPerDomain), nil
}

type rankedHit struct {
	docID string
	score float64
	rank  int
}

func (s *Store) vectorRankLocked(q []float32) []rankedHit {
	hits := make([]rankedHit, 0, len(s.vectors))
	for _, v := range s.vectors {
		hits = append(hits, rankedHit{docID: v.docID, score: cosine(q, v.vec)})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	for i := range hits {
		hits[i].rank = i + 1
	}
	return hits
}

func (s *Store) bm25Search(q string, k int) ([]rankedHit, error) {
	query := bleve.NewMatchQuery(q)
	req := bleve.NewSearchRequestOptions(query, k, 0, false)
	res, err := s.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("keyword search failed: %w", err)
	}
	var out []rankedHit
	for i, hit := range res.Hits {
		out = append(out, rankedHit{docID: hit.ID, score: hit.Score, rank: i + 1})
	}
	return out, nil
}

func fuseRRF(a, b []rankedHit) []rankedHit {
	type agg struct {
		hit   rankedHit
		score float64
	}
	m := map[string]*agg{}
	order := []string{}
	add := func(list []rankedHit) {
		for _, h := range list {
			x, ok := m[h.docID]
			if !ok {
				x = &agg{hit: h}
				m[h.docID] = x
				order = append(order, h.docID)
			}
			x.score += 1.0 / float64(rrfK+h.rank)
		}
	}
	add(a)
	add(b)
	out := make([]rankedHit, 0, len(order))
	for _, id := range order {
		out = append(out, rankedHit{docID: id, score: m[id].score})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].score > out[j].score })
	for i := range out {
		out[i].rank = i + 1
	}
	return out
}

func (s *Store) capDomains(hits []rankedHit, topK, maxPerDomain int) []Match {
	s.mu.RLock()
	defer s.mu.RUnlock()

	perDomain := map[string]int{}
	out := make([]Match, 0, topK)
	for _, h := range hits {
		chunk, ok := s.meta[h.docID]
		if !ok {
			continue
		}
		domain := utils.Domain(chunk.URL)
		if maxPerDomain > 0 && perDomain[domain] >= maxPerDomain {
			continue
		}
		perDomain[domain]++
		out = append(out, Match{URL: chunk.URL, Title: chunk.Title, Text: chunk.Text, Score: h.score})
		if len(out) >= topK {
			break
		}
	}
	return out
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		ai := float64(a[i])
		bi := float64(b[i])
		dot += ai * bi
		na += ai * ai
		nb += bi * bi
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func sha1Hex(s string) string {
	h := sha1.Sum([]byte(s))
	return hex.EncodeToString(h[:])
}

func makeChunks(text string, approx, overlap int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) <= approx {
		return []string{text}
	}
	var chunks []string
	for start := 0; start < len(text); {
		end := start + approx
		if end > len(text) {
			end = len(text)
		}
		chunks = append(chunks, text[start:end])
		if end == len(text) {
			break
		}
		start = end - overlap
		if start < 0 {
			start = 0
		}
	}
	return chunks
}
