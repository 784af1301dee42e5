// Package ops serves the operational HTTP surface: health, queue
// statistics, dead letters, cursor positions, and pending-job
// cancellation. The pipeline itself is driven by the poller and the
// queue, never by HTTP.
package ops

import (
	"context"
	"net/http"
	"time"

	"github.com/nexusintelligences-a11y/plataformacompleta-1-sub005/internal/cursor"
	"github.com/nexusintelligences-a11y/plataformacompleta-1-sub005/internal/queue"
	"github.com/nexusintelligences-a11y/plataformacompleta-1-sub005/platform/config"
	"github.com/nexusintelligences-a11y/plataformacompleta-1-sub005/platform/httpkit"
	"github.com/nexusintelligences-a11y/plataformacompleta-1-sub005/platform/logger"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// QueueInspector is the queue surface exposed over HTTP.
// *queue.Queue satisfies it.
type QueueInspector interface {
	Name() string
	Stats(ctx context.Context) (queue.Stats, error)
	DeadLetters(ctx context.Context) ([]queue.DeadLetter, error)
	Cancel(ctx context.Context, jobID string) error
}

// CursorLister lists stored cursors. *cursor.Store satisfies it.
type CursorLister interface {
	List() ([]cursor.Cursor, error)
}

// HealthChecker exposes minimal functionality for readiness checks.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Server is the ops HTTP server.
type Server struct {
	engine *gin.Engine
	addr   string
	log    *logger.Logger
}

// NewServer builds the ops server with its routes mounted.
func NewServer(cfg config.HTTPConfig, env string, queues []QueueInspector, cursors CursorLister, health HealthChecker, log *logger.Logger) *Server {
	if env != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(httpkit.RequestLogger(log))
	engine.Use(httpkit.SecurityHeaders())
	engine.Use(cors.New(cors.Config{
		AllowOrigins: cfg.GetCORSOrigins(),
		AllowMethods: []string{http.MethodGet, http.MethodDelete},
		AllowHeaders: []string{"Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	limiter := httpkit.NewIPRateLimiter(rate.Limit(10), 20, log)
	engine.Use(limiter.RateLimit())

	h := &handler{queues: queues, cursors: cursors, health: health}

	engine.GET("/healthz", h.healthz)

	v1 := engine.Group("/api/v1")
	v1.GET("/queues/:name/stats", h.queueStats)
	v1.GET("/queues/:name/dead-letters", h.deadLetters)
	v1.DELETE("/queues/:name/jobs/:id", h.cancelJob)
	v1.GET("/cursors", h.listCursors)

	return &Server{
		engine: engine,
		addr:   cfg.GetHTTPAddr(),
		log:    log,
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// Engine exposes the router for tests.
func (s *Server) Engine() *gin.Engine { return s.engine }
