package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/omidshahri/glassmind/config"
	"github.com/omidshahri/glassmind/internal/agent"
	"github.com/omidshahri/glassmind/internal/stream"
)

var runsTracer = otel.Tracer("glassmind/internal/server/runs")

type queryRequest struct {
	Query string `json:"query"`
	Model string `json:"model,omitempty"`
}

type queryResponse struct {
	RunID string `json:"run_id"`
}

// RunsHandler owns the query/stream endpoints.
type RunsHandler struct {
	cfg      *config.Config
	registry *stream.Registry
	agent    *agent.Agent
	logger   *log.Logger
}

func NewRunsHandler(cfg *config.Config, registry *stream.Registry, ag *agent.Agent) *RunsHandler {
	return &RunsHandler{
		cfg:      cfg,
		registry: registry,
		agent:    ag,
		logger:   log.New(log.Writer(), "[RUNS] ", log.LstdFlags),
	}
}

func (h *RunsHandler) Register(g *echo.Group) {
	g.POST("/query", h.createQuery)
	g.GET("/stream/:run_id", h.stream)
}

// createQuery registers a fresh run and kicks off processing in the
// background before replying with the run ID.
func (h *RunsHandler) createQuery(c echo.Context) error {
	_, span := runsTracer.Start(c.Request().Context(), "RunsHandler.createQuery")
	defer span.End()

	var req queryRequest
	if err := c.Bind(&req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "bad request")
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Query) == "" {
		span.SetStatus(codes.Error, "query required")
		return echo.NewHTTPError(http.StatusBadRequest, "query required")
	}

	runID := uuid.NewString()
	span.SetAttributes(attribute.String("run_id", runID))
	h.logger.Printf("created run %s for query %q", runID, req.Query)

	run := h.registry.Register(runID, req.Query, req.Model)
	// the producer outlives this request; it is bounded by its own work,
	// not the client connection
	go h.agent.ProcessQuery(context.Background(), run)

	return c.JSON(http.StatusOK, queryResponse{RunID: runID})
}

// stream replays a run's events as server-sent events. Heartbeats become
// comment frames; the terminal event is followed by one keep-alive comment
// and then the connection closes. Attaching to an unknown run is a 404.
func (h *RunsHandler) stream(c echo.Context) error {
	req := c.Request()
	ctx := req.Context()
	runID := c.Param("run_id")

	ctx, span := runsTracer.Start(ctx, "RunsHandler.stream",
		trace.WithAttributes(attribute.String("run_id", runID)))
	defer span.End()
	c.SetRequest(req.WithContext(ctx))

	consumer, err := h.registry.Attach(runID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	// sole cleanup path, covering terminal events and disconnects alike
	defer consumer.Close()

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set(echo.HeaderCacheControl, "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)
	flusher, ok := resp.Writer.(http.Flusher)
	if !ok {
		span.SetStatus(codes.Error, "streaming unsupported")
		return echo.NewHTTPError(http.StatusServiceUnavailable, "streaming unsupported")
	}

	for {
		if ctx.Err() != nil {
			h.logger.Printf("client disconnected from run %s", runID)
			return nil
		}

		ev := consumer.Next(h.cfg.Agent.Heartbeat)
		if ev.Type == stream.TypeHeartbeat {
			if _, err := resp.Write([]byte(": keep-alive\n\n")); err != nil {
				return nil
			}
			flusher.Flush()
			continue
		}

		data, err := json.Marshal(ev)
		if err != nil {
			span.RecordError(err)
			h.logger.Printf("failed to encode event for run %s: %v", runID, err)
			continue
		}
		if _, err := resp.Write([]byte("data: " + string(data) + "\n\n")); err != nil {
			return nil
		}
		flusher.Flush()

		if ev.Terminal() {
			_, _ = resp.Write([]byte(": keep-alive\n\n"))
			flusher.Flush()
			return nil
		}
	}
}
