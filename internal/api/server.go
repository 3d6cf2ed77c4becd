// Package api implements keyperd's REST front end: a thin gin layer that
// exposes every registered Collection as a generic set of HTTP endpoints,
// so a keyper process can itself act as another process's Data Source.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/keyperdb/keyper/internal/db"
	"github.com/keyperdb/keyper/internal/logging"
	"github.com/keyperdb/keyper/internal/ratelimit"
	"github.com/keyperdb/keyper/pkg/config"
)

// Server is keyperd's HTTP front end.
type Server struct {
	router     *gin.Engine
	registry   *db.DB
	cfg        *config.Config
	httpServer *http.Server
	log        *logging.Logger
}

// NewServer builds a Server wired to registry, with collections lazily
// backed by sqlitesource (one Source per collection name, sharing the
// configured database file).
func NewServer(registry *db.DB, cfg *config.Config) *Server {
	log := logging.GetLogger("api")
	log.Info("initializing REST API server")

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	if cfg.Server.CORS {
		log.Debug("enabling CORS")
		router.Use(cors.New(cors.Config{
			AllowAllOrigins: true,
			AllowMethods:    []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
			AllowHeaders:    []string{"Origin", "Content-Type", "Accept", "Authorization", "X-API-Key"},
			ExposeHeaders:   []string{"Content-Length", "Retry-After"},
			MaxAge:          12 * time.Hour,
		}))
	}

	rlCfg := ratelimit.DefaultConfig()
	rlCfg.Global.RequestsPerSecond = float64(cfg.Server.RateRPS)
	rlCfg.Global.BurstSize = cfg.Server.RateBurst
	limiter := ratelimit.NewLimiter(rlCfg)
	router.Use(RateLimitMiddleware(limiter))
	router.Use(MaxBodySizeMiddleware(DefaultBodyLimit))

	h := &handlers{registry: registry, cfg: cfg, log: log}

	s := &Server{router: router, registry: registry, cfg: cfg, log: log}
	s.setupRoutes(h)
	return s
}

func (s *Server) setupRoutes(h *handlers) {
	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/health", h.health)

		coll := v1.Group("/collections/:collection")
		{
			coll.GET("", h.query)
			coll.POST("", h.create)
			coll.GET("/:pk", h.getOne)
			coll.PATCH("/:pk", h.update)
			coll.DELETE("/:pk", h.delete)
		}
	}
}

// Start runs the HTTP server until ctx is cancelled, then shuts it down
// within shutdownTimeout.
func (s *Server) Start(ctx context.Context, shutdownTimeout time.Duration) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.httpServer = &http.Server{Addr: addr, Handler: s.router}

	errChan := make(chan error, 1)
	go func() {
		s.log.Info("starting REST API server", "address", addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.log.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}
}

// Stop gracefully stops the server.
func (s *Server) Stop(ctx context.Context) error {
	s.log.Info("stopping REST API server")
	if s.httpServer == nil {
		return nil
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.log.Error("server shutdown error", "error", err)
		return err
	}
	s.log.Info("REST API server stopped")
	return nil
}

// Router returns the underlying gin engine, for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}
