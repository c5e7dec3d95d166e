// Package server exposes the briefing and maintenance operations over
// HTTP, plus a gRPC health endpoint.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/koompi/nimmit-assistant/pkg/briefing"
	nimerrors "github.com/koompi/nimmit-assistant/pkg/errors"
	"github.com/koompi/nimmit-assistant/pkg/maintenance"
	"github.com/koompi/nimmit-assistant/pkg/models"
)

const identityKey = "nimmit.identity"

// BriefingService is the briefing API the server exposes.
type BriefingService interface {
	Send(ctx context.Context, clientID, message, sessionID string) (*briefing.TurnResult, error)
	GetActive(ctx context.Context, clientID string) (*models.BriefingSession, error)
	Abandon(ctx context.Context, clientID string) error
}

// MaintenanceService is the maintenance API the server exposes.
type MaintenanceService interface {
	Run(ctx context.Context, id string) (*maintenance.Summary, error)
	RunAll(ctx context.Context) map[string]maintenance.Outcome
	List() []maintenance.TaskInfo
}

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options wires a Server.
type Options struct {
	Briefings      BriefingService
	Maintenance    MaintenanceService
	Auth           Authenticator
	SchedulerToken string
	Store          Pinger
	Logger         *slog.Logger
}

// Server is the HTTP API.
type Server struct {
	briefings      BriefingService
	maintenance    MaintenanceService
	auth           Authenticator
	schedulerToken string
	store          Pinger
	logger         *slog.Logger
	router         *gin.Engine
}

// New creates the server and registers its routes.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))

	s := &Server{
		briefings:      opts.Briefings,
		maintenance:    opts.Maintenance,
		auth:           opts.Auth,
		schedulerToken: opts.SchedulerToken,
		store:          opts.Store,
		logger:         logger,
		router:         router,
	}

	router.GET("/healthz", s.handleHealth)

	api := router.Group("/api/v1", s.identify)
	{
		b := api.Group("/briefings", s.requireIdentity)
		b.POST("/messages", s.handleSendMessage)
		b.GET("/active", s.handleGetActive)
		b.POST("/abandon", s.handleAbandon)

		m := api.Group("/maintenance", s.requireMaintenanceAccess)
		m.GET("/tasks", s.handleListTasks)
		m.POST("/tasks/:id/run", s.handleRunTask)
		m.POST("/run", s.handleRunAll)
	}

	return s
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// identify resolves the caller, if any, and rejects bad credentials.
func (s *Server) identify(c *gin.Context) {
	if s.auth == nil {
		c.Next()
		return
	}
	id, err := s.auth.Authenticate(c.Request)
	if err != nil {
		s.writeError(c, err)
		c.Abort()
		return
	}
	if id != nil {
		c.Set(identityKey, id)
	}
	c.Next()
}

func (s *Server) requireIdentity(c *gin.Context) {
	if identityFrom(c) == nil {
		s.writeError(c, nimerrors.NewUnauthorized("Authenticate", "authentication required"))
		c.Abort()
		return
	}
	c.Next()
}

// requireMaintenanceAccess admits the scheduler credential or an admin.
func (s *Server) requireMaintenanceAccess(c *gin.Context) {
	if schedulerTokenValid(s.schedulerToken, c.GetHeader(SchedulerTokenHeader)) {
		c.Next()
		return
	}
	id := identityFrom(c)
	if id == nil {
		s.writeError(c, nimerrors.NewUnauthorized("Authorize", "authentication required"))
		c.Abort()
		return
	}
	if id.Role != RoleAdmin {
		s.writeError(c, nimerrors.NewForbidden("Authorize", "maintenance requires the admin role"))
		c.Abort()
		return
	}
	c.Next()
}

func identityFrom(c *gin.Context) *Identity {
	v, ok := c.Get(identityKey)
	if !ok {
		return nil
	}
	id, _ := v.(*Identity)
	return id
}

// writeError maps err onto an HTTP status. Internal details are logged,
// not returned.
func (s *Server) writeError(c *gin.Context, err error) {
	var status int
	switch nimerrors.KindOf(err) {
	case nimerrors.KindUnauthorized:
		status = http.StatusUnauthorized
	case nimerrors.KindForbidden:
		status = http.StatusForbidden
	case nimerrors.KindValidation:
		status = http.StatusBadRequest
	case nimerrors.KindNotFound:
		status = http.StatusNotFound
	default:
		s.logger.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	msg := err.Error()
	var be *nimerrors.BriefingError
	if nimerrors.As(err, &be) {
		msg = be.Message
	}
	c.JSON(status, gin.H{"error": msg})
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}
