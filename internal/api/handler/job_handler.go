package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/banguyen/weathercards/internal/api/dto"
	"github.com/banguyen/weathercards/internal/domain"
	"github.com/banguyen/weathercards/internal/jobstore"
	"github.com/banguyen/weathercards/internal/metrics"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// CreateJob handles POST /api/v1/jobs
// Accepts a card job and enqueues its dispatch message. Returns 202: the work
// happens asynchronously and progress is read from GET /api/v1/jobs/:job_id.
func (h *JobHandler) CreateJob(c *gin.Context) {
	var req dto.CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "search_keyword is required and max_items must be between 1 and 100",
		})
		return
	}

	job := &domain.Job{
		JobID:         uuid.New().String(),
		Status:        domain.JobStatusPending,
		SearchKeyword: req.SearchKeyword,
		City:          req.City,
		MaxItems:      req.MaxItems,
		CreatedAt:     time.Now().UTC(),
	}

	if err := h.store.Create(c.Request.Context(), job); err != nil {
		h.logger.Error("Failed to create job", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to create job",
		})
		return
	}

	msg := domain.DispatchMessage{
		JobID:         job.JobID,
		SearchKeyword: job.SearchKeyword,
		MaxItems:      job.MaxItems,
		City:          job.City,
	}
	if err := h.publisher.PublishDispatch(c.Request.Context(), msg); err != nil {
		h.logger.Error("Failed to publish dispatch message",
			slog.String("job_id", job.JobID),
			slog.String("error", err.Error()),
		)
		// The record exists but nothing will pick it up; fail it so the
		// client is not left polling a job that never starts.
		if _, failErr := jobstore.MarkFailed(c.Request.Context(), h.store, job.JobID, "failed to enqueue job"); failErr != nil {
			h.logger.Error("Failed to mark unenqueued job as failed",
				slog.String("job_id", job.JobID),
				slog.String("error", failErr.Error()),
			)
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to enqueue job",
		})
		return
	}

	metrics.JobsSubmitted.Inc()
	h.logger.Info("Job accepted",
		slog.String("job_id", job.JobID),
		slog.String("search_keyword", job.SearchKeyword),
		slog.Int("max_items", job.MaxItems),
	)

	c.JSON(http.StatusAccepted, dto.CreateJobResponse{
		JobID:  job.JobID,
		Status: string(job.Status),
	})
}

// GetJob handles GET /api/v1/jobs/:job_id
// Returns the job status document, read through the Redis cache.
func (h *JobHandler) GetJob(c *gin.Context) {
	jobID := c.Param("job_id")

	if _, err := uuid.Parse(jobID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "job_id must be a valid UUID",
		})
		return
	}

	if payload, ok, err := h.cache.GetJobStatus(c.Request.Context(), jobID); err != nil {
		h.logger.Warn("Job status cache read failed",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
	} else if ok {
		c.Data(http.StatusOK, "application/json; charset=utf-8", payload)
		return
	}

	job, err := h.store.Get(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Job not found",
			})
			return
		}
		h.logger.Error("Failed to get job",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get job",
		})
		return
	}

	resp := dto.StatusFromJob(job)
	payload, err := json.Marshal(resp)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to encode job status",
		})
		return
	}

	if err := h.cache.SetJobStatus(c.Request.Context(), jobID, payload, h.statusTTL); err != nil {
		h.logger.Warn("Job status cache write failed",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
	}

	c.Data(http.StatusOK, "application/json; charset=utf-8", payload)
}

// ListJobs handles GET /api/v1/jobs
// Lists jobs newest first with keyset pagination.
func (h *JobHandler) ListJobs(c *gin.Context) {
	var req dto.ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = 20
	}
	if req.PageSize > 100 {
		req.PageSize = 100
	}

	cursor, err := DecodeJobCursor(req.Cursor)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid cursor",
		})
		return
	}

	filter := jobstore.JobFilter{
		Status:   req.Status,
		PageSize: req.PageSize,
		Cursor:   cursor,
	}

	jobs, err := h.lister.List(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list jobs", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list jobs",
		})
		return
	}

	hasMore := len(jobs) > req.PageSize
	if hasMore {
		jobs = jobs[:req.PageSize]
	}

	page := make([]dto.StatusResponse, len(jobs))
	for i, job := range jobs {
		page[i] = dto.StatusFromJob(job)
	}

	var nextCursor string
	if hasMore {
		last := jobs[len(jobs)-1]
		nextCursor = EncodeJobCursor(&jobstore.JobCursor{
			CreatedAt: last.CreatedAt,
			JobID:     last.JobID,
		})
	}

	c.JSON(http.StatusOK, dto.ListJobsResponse{
		Jobs:       page,
		NextCursor: nextCursor,
	})
}
