package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/omidshahri/glassmind/config"
	"github.com/omidshahri/glassmind/internal/agent"
	"github.com/omidshahri/glassmind/internal/memory"
	"github.com/omidshahri/glassmind/internal/stream"
	"github.com/omidshahri/glassmind/internal/telemetry"
	"github.com/omidshahri/glassmind/provider"
	"github.com/omidshahri/glassmind/tools/web_fetch"
	"github.com/omidshahri/glassmind/tools/web_search"
)

// Run wires all dependencies and serves until a shutdown signal arrives.
func Run(cfg *config.Config) error {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	// Unified HTTP error handler with structured JSON and logging
	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	}))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status":    "healthy",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Shared dependencies (top-level DI)
	tele := telemetry.New()

	registry := stream.NewRegistry()
	registry.OnEmit = func(ev stream.Event) { tele.EventEmitted(string(ev.Type)) }

	llmProvider, err := provider.NewProvider(cfg.LLM)
	if err != nil {
		return err
	}

	if err := cfg.Search.Validate(); err != nil {
		return err
	}
	searcher, err := web_search.NewWebSearcher(web_search.Provider(cfg.Search.Provider), cfg.Search.APIKey)
	if err != nil {
		return err
	}
	throttled := web_search.NewThrottled(searcher, cfg.Search.Delay)

	fetcher, err := web_fetch.NewWebFetcher(web_fetch.FetcherType(cfg.Fetch.Backend), cfg.Fetch.Timeout, cfg.Fetch.MaxChars)
	if err != nil {
		return err
	}
	limited := web_fetch.NewDomainLimited(fetcher, cfg.Fetch.DomainDelay)

	cache, err := memory.NewCache(cfg.Memory)
	if err != nil {
		return err
	}
	defer cache.Close()

	store, err := memory.NewStore(llmProvider, cache, memory.Options{
		ChunkChars:    cfg.Memory.ChunkChars,
		ChunkOverlap:  cfg.Memory.ChunkOverlap,
		MinChunkChars: cfg.Memory.MinChunkChars,
		Hybrid:        cfg.Memory.Hybrid,
	})
	if err != nil {
		return err
	}

	ag := agent.New(cfg, registry, llmProvider, throttled, limited, store, tele)

	v1 := e.Group("/v1")
	if secret := cfg.Server.JWTSecret; secret != "" {
		v1.Use(authMiddleware([]byte(secret)))
	}
	NewRunsHandler(cfg, registry, ag).Register(v1)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := e.Start(cfg.Server.Address); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if cfg.Memory.Cache == "postgres" {
		janitor, err := memory.NewJanitor(cfg.Memory.PruneSchedule, cache)
		if err != nil {
			return err
		}
		g.Go(func() error {
			if err := janitor.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
