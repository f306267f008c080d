package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"docbulk/internal/controller"

	"github.com/gin-gonic/gin"
)

const readyTimeout = 3 * time.Second

// componentState renders a health check result. Optional components that
// were never configured do not fail readiness.
func componentState(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, controller.ErrNotConfigured):
		return "disabled"
	default:
		return "down"
	}
}

func (s *Server) readyHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readyTimeout)
	defer cancel()

	res := gin.H{
		"database": componentState(s.sc.DBHealth()),
		"cache":    componentState(s.sc.CacheHealth(ctx)),
		"rabbit":   componentState(s.sc.RabbitHealth()),
		"storage":  componentState(s.sc.StorageHealth(ctx)),
	}

	for _, state := range res {
		if state == "down" {
			c.JSON(http.StatusServiceUnavailable, res)
			return
		}
	}

	c.JSON(http.StatusOK, res)
}

func (s *Server) onlineHandler(c *gin.Context) {
	c.String(http.StatusOK, s.sc.Online())
}
