package server

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func (s *Server) RegisterRoutes() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	if len(s.config.CORS.AllowedOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     s.config.CORS.AllowedOrigins,
			AllowMethods:     s.config.CORS.AllowedMethods,
			AllowHeaders:     s.config.CORS.AllowedHeaders,
			AllowCredentials: s.config.CORS.AllowCredentials,
			MaxAge:           time.Duration(s.config.CORS.MaxAge) * time.Second,
		}))
	}

	r.GET("/health", s.onlineHandler)
	r.GET("/ready", s.readyHandler)

	jobs := r.Group("/jobs", s.AuthMiddleware())
	jobs.POST("", s.CreateJobHandler)
	jobs.GET("", s.ListJobsHandler)
	jobs.GET("/types", s.ListJobTypesHandler)
	jobs.GET("/:id", s.GetJobHandler)

	return r
}
