// Package api exposes the HTTP surface: the signed decision webhook, the
// Room-2 widget endpoints, the read-only monitoring API, and the health
// probe.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/opentriagem/triagem/pkg/config"
	"github.com/opentriagem/triagem/pkg/database"
	"github.com/opentriagem/triagem/pkg/models"
	"github.com/opentriagem/triagem/pkg/repo"
	"github.com/opentriagem/triagem/pkg/services"
	"github.com/opentriagem/triagem/pkg/version"
)

// Server wires the handlers and owns the http.Server lifecycle.
type Server struct {
	repos      *repo.Repos
	db         *database.Client
	decisions  *services.DoctorDecisionService
	monitoring *services.MonitoringService
	cfg        config.Config
	logger     *slog.Logger
	httpSrv    *http.Server
}

func NewServer(repos *repo.Repos, db *database.Client, decisions *services.DoctorDecisionService,
	monitoring *services.MonitoringService, cfg config.Config, logger *slog.Logger) *Server {
	return &Server{
		repos:      repos,
		db:         db,
		decisions:  decisions,
		monitoring: monitoring,
		cfg:        cfg,
		logger:     logger.With("component", "api"),
	}
}

// Router assembles the gin engine with all routes and middleware.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", s.handleHealth)

	r.POST("/callbacks/triage-decision", s.requireSignature(), s.handleDecisionWebhook)

	widget := r.Group("/widget/room2", s.requireBearer(models.RoleAdmin))
	widget.POST("/bootstrap", s.handleWidgetBootstrap)
	widget.POST("/submit", s.handleWidgetSubmit)

	mon := r.Group("/monitoring", s.requireBearer(""))
	mon.GET("/cases", s.handleListCases)
	mon.GET("/cases/:case_id", s.handleCaseDetail)
	mon.GET("/queue", s.handleQueueStats)

	return r
}

// Start begins serving in a goroutine.
func (s *Server) Start() {
	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.HTTP.Port,
		Handler:           s.Router(),
		ReadHeaderTimeout: s.cfg.HTTP.RequestTimeout,
	}
	go func() {
		s.logger.Info("http server listening", "port", s.cfg.HTTP.Port)
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("http server failed", "error", err)
		}
	}()
}

// Stop drains in-flight requests within the timeout.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	health, err := s.db.Health(ctx)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "database": health, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "version": version.Full(), "database": health})
}
