package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/omidshahri/glassmind/config"
	"github.com/omidshahri/glassmind/internal/agent"
	"github.com/omidshahri/glassmind/internal/memory"
	"github.com/omidshahri/glassmind/internal/stream"
	"github.com/omidshahri/glassmind/internal/telemetry"
	"github.com/omidshahri/glassmind/models"
	fetchmodels "github.com/omidshahri/glassmind/tools/web_fetch/models"
	searchmodels "github.com/omidshahri/glassmind/tools/web_search/models"
)

type stubStream struct {
	deltas []string
	pos    int
}

func (s *stubStream) Recv() (string, error) {
	if s.pos >= len(s.deltas) {
		return "", io.EOF
	}
	d := s.deltas[s.pos]
	s.pos++
	return d, nil
}

func (s *stubStream) Close() error { return nil }

type stubProvider struct{}

func (stubProvider) Complete(ctx context.Context, model string, msgs []models.Message) (string, error) {
	return "rewritten", nil
}

func (stubProvider) StreamCompletion(ctx context.Context, model string, msgs []models.Message) (models.CompletionStream, error) {
	return &stubStream{deltas: []string{"THOUGHT: thinking\n", "FINAL: done\n"}}, nil
}

func (stubProvider) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

type noSearcher struct{}

func (noSearcher) Discover(ctx context.Context, q string, k int) ([]searchmodels.Result, error) {
	return nil, nil
}

type noFetcher struct{}

func (noFetcher) Exec(ctx context.Context, url string) (fetchmodels.Result, error) {
	return fetchmodels.Result{}, nil
}

func testServerConfig() *config.Config {
	return &config.Config{
		LLM: config.LLMConfig{OpenAI: config.OpenAIConfig{CompletionModel: "o4-mini", RewriteModel: "gpt-4.1-nano"}},
		Agent: config.AgentConfig{
			MaxSearchQueries: 5, ResultsPerQuery: 5, PageCandidates: 3,
			MaxPageFetches: 10, MaxThoughts: 50, TopK: 6, MaxPerDomain: 2,
			Heartbeat: 50 * time.Millisecond,
		},
	}
}

func newTestApp(t *testing.T) (*echo.Echo, *stream.Registry) {
	t.Helper()
	cfg := testServerConfig()
	registry := stream.NewRegistry()
	store, err := memory.NewStore(stubProvider{}, nil, memory.Options{})
	require.NoError(t, err)
	ag := agent.New(cfg, registry, stubProvider{}, noSearcher{}, noFetcher{}, store, telemetry.New())

	e := echo.New()
	e.HideBanner = true
	NewRunsHandler(cfg, registry, ag).Register(e.Group("/v1"))
	return e, registry
}

func TestCreateQueryReturnsRunID(t *testing.T) {
	e, _ := newTestApp(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/query", strings.NewReader(`{"query":"test"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp queryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.RunID)
}

func TestCreateQueryRequiresQuery(t *testing.T) {
	e, _ := newTestApp(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/query", strings.NewReader(`{"query":"  "}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStreamUnknownRunIs404(t *testing.T) {
	e, _ := newTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/stream/nope", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStreamDeliversEventsAndCloses(t *testing.T) {
	e, registry := newTestApp(t)
	srv := httptest.NewServer(e)
	defer srv.Close()

	registry.Register("r1", "q", "")
	registry.Emit("r1", stream.Thought("first"))
	registry.Emit("r1", stream.Complete("Answer complete"))

	resp, err := http.Get(srv.URL + "/v1/stream/r1")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	text := string(body)

	require.Contains(t, text, `"type":"thought"`)
	require.Contains(t, text, `"text":"first"`)
	require.Contains(t, text, `"type":"complete"`)
	require.Contains(t, text, `"run_id":"r1"`)
	// terminal event is followed by one keep-alive comment
	require.True(t, strings.HasSuffix(text, ": keep-alive\n\n"), "missing trailing keep-alive: %q", text)
	// heartbeats never use data frames
	require.NotContains(t, text, `"type":"heartbeat"`)

	// the run is released once the stream closed
	_, err = registry.Attach("r1")
	require.Error(t, err)
}

func TestStreamHeartbeatsWhileIdle(t *testing.T) {
	e, registry := newTestApp(t)
	srv := httptest.NewServer(e)
	defer srv.Close()

	registry.Register("r1", "q", "")

	resp, err := http.Get(srv.URL + "/v1/stream/r1")
	require.NoError(t, err)
	defer resp.Body.Close()

	// read until a heartbeat comment shows up, then finish the run
	buf := make([]byte, 64)
	n, err := resp.Body.Read(buf)
	require.NoError(t, err)
	require.Contains(t, string(buf[:n]), ": keep-alive")

	registry.Emit("r1", stream.Complete("done"))
	rest, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(rest), `"type":"complete"`)
}

func TestEndToEndQueryStream(t *testing.T) {
	e, _ := newTestApp(t)
	srv := httptest.NewServer(e)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/query", echo.MIMEApplicationJSON, strings.NewReader(`{"query":"what is 2+2?"}`))
	require.NoError(t, err)
	var qr queryResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&qr))
	resp.Body.Close()

	streamResp, err := http.Get(srv.URL + "/v1/stream/" + qr.RunID)
	require.NoError(t, err)
	defer streamResp.Body.Close()

	body, err := io.ReadAll(streamResp.Body)
	require.NoError(t, err)
	text := string(body)
	require.Contains(t, text, `"type":"final_answer"`)
	require.Contains(t, text, `"type":"complete"`)
	require.Equal(t, 1, strings.Count(text, `"type":"complete"`))
}
