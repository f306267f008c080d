package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"docbulk/internal/controller"
	"docbulk/internal/database"
	"docbulk/internal/model"

	"github.com/gin-gonic/gin"
)

const (
	defaultPageSize = 20
	maxPageSize     = 200
)

// JobResponse represents a job record returned by the API
type JobResponse struct {
	ID          string           `json:"id"`
	Type        string           `json:"type"`
	Status      string           `json:"status"`
	Progress    int              `json:"progress"`
	Request     model.JobRequest `json:"request"`
	Metrics     model.JobMetrics `json:"metrics"`
	FailedURIs  []string         `json:"failedUris,omitempty"`
	ErrorList   []string         `json:"errorList,omitempty"`
	CreatedAt   string           `json:"createdAt"`
	UpdatedAt   string           `json:"updatedAt"`
	CompletedAt string           `json:"completedAt,omitempty"`
}

// CreateJobHandler validates and enqueues a job request
func (s *Server) CreateJobHandler(c *gin.Context) {
	var req model.JobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	job, err := s.jc.CreateJob(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, controller.ErrInvalidRequest) || errors.Is(err, controller.ErrUnknownKind) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create job: " + err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, convertJobToResponse(job))
}

// GetJobHandler returns a specific job by ID
func (s *Server) GetJobHandler(c *gin.Context) {
	job, err := s.jc.GetJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, database.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get job: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, convertJobToResponse(job))
}

// ListJobsHandler returns jobs newest first, optionally filtered by status and type
func (s *Server) ListJobsHandler(c *gin.Context) {
	limit, offset := getPaginationParams(c)

	filter := database.JobFilter{
		Status: model.JobStatus(c.Query("status")),
		Type:   c.Query("type"),
	}
	if filter.Status != "" && !isValidJobStatus(filter.Status) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid job status"})
		return
	}

	jobs, err := s.jc.ListJobs(c.Request.Context(), filter, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list jobs: " + err.Error()})
		return
	}

	response := make([]JobResponse, 0, len(jobs))
	for _, job := range jobs {
		response = append(response, convertJobToResponse(job))
	}

	c.JSON(http.StatusOK, response)
}

func (s *Server) ListJobTypesHandler(c *gin.Context) {
	c.JSON(http.StatusOK, s.jc.GetAvailableJobTypes())
}

// convertJobToResponse converts a job model to a response format
func convertJobToResponse(job *model.Job) JobResponse {
	response := JobResponse{
		ID:         job.ID.Hex(),
		Type:       job.Type,
		Status:     string(job.Status),
		Progress:   progressPercent(job.Metrics),
		Request:    job.Request,
		Metrics:    job.Metrics,
		FailedURIs: job.FailedURIs,
		ErrorList:  job.ErrorList,
		CreatedAt:  job.CreatedAt.Format(time.RFC3339),
		UpdatedAt:  job.UpdatedAt.Format(time.RFC3339),
	}
	if job.CompletedAt != nil {
		response.CompletedAt = job.CompletedAt.Format(time.RFC3339)
	}
	return response
}

func progressPercent(metrics model.JobMetrics) int {
	if metrics.TotalItems == 0 {
		return 0
	}
	return metrics.Processed() * 100 / metrics.TotalItems
}

// getPaginationParams extracts pagination parameters from request
func getPaginationParams(c *gin.Context) (int, int) {
	limit := defaultPageSize
	offset := 0

	if limitStr := c.Query("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 {
			limit = min(parsedLimit, maxPageSize)
		}
	}

	if offsetStr := c.Query("offset"); offsetStr != "" {
		if parsedOffset, err := strconv.Atoi(offsetStr); err == nil && parsedOffset >= 0 {
			offset = parsedOffset
		}
	}

	return limit, offset
}

// isValidJobStatus checks if a job status is valid
func isValidJobStatus(status model.JobStatus) bool {
	switch status {
	case model.StatusQueued, model.StatusProcessing, model.StatusCompleted, model.StatusFailed:
		return true
	}
	return false
}
