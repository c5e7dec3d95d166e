package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	nimerrors "github.com/koompi/nimmit-assistant/pkg/errors"
)

type sendMessageRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId"`
}

func (s *Server) handleSendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, nimerrors.NewValidation("SendMessage", "request body must be a JSON object"))
		return
	}

	res, err := s.briefings.Send(c.Request.Context(), identityFrom(c).ID, req.Message, req.SessionID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleGetActive(c *gin.Context) {
	sess, err := s.briefings.GetActive(c.Request.Context(), identityFrom(c).ID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	// A nil session encodes as null.
	c.JSON(http.StatusOK, gin.H{"session": sess})
}

func (s *Server) handleAbandon(c *gin.Context) {
	if err := s.briefings.Abandon(c.Request.Context(), identityFrom(c).ID); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) handleListTasks(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tasks": s.maintenance.List()})
}

func (s *Server) handleRunTask(c *gin.Context) {
	sum, err := s.maintenance.Run(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (s *Server) handleRunAll(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"results": s.maintenance.RunAll(c.Request.Context())})
}

func (s *Server) handleHealth(c *gin.Context) {
	if s.store != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := s.store.Ping(ctx); err != nil {
			s.logger.Warn("health check failed", "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
