// Package dto defines the request and response shapes of the HTTP API.
package dto

import (
	"time"

	"github.com/banguyen/weathercards/internal/domain"
)

// CreateJobRequest is the body of POST /api/v1/jobs.
type CreateJobRequest struct {
	SearchKeyword string `json:"search_keyword" binding:"required"`
	City          string `json:"city"`
	MaxItems      int    `json:"max_items" binding:"required,min=1,max=100"`
}

// CreateJobResponse acknowledges an accepted job.
type CreateJobResponse struct {
	JobID  string `json:"jobId"`
	Status string `json:"status"`
}

// StatusResponse is the job status document returned by GET and LIST. The
// same shape is cached verbatim in Redis.
type StatusResponse struct {
	JobID              string   `json:"jobId"`
	Status             string   `json:"status"`
	SearchKeyword      string   `json:"searchKeyword"`
	City               string   `json:"city,omitempty"`
	TotalItems         int      `json:"totalItems"`
	ProcessedItems     int      `json:"processedItems"`
	ProgressPercentage float64  `json:"progressPercentage"`
	ResultURLs         []string `json:"resultUrls"`
	TotalImages        int      `json:"totalImages"`
	CreatedAt          string   `json:"createdAt"`
	CompletedAt        string   `json:"completedAt,omitempty"`
	DurationSeconds    float64  `json:"durationSeconds,omitempty"`
	ErrorMessage       string   `json:"errorMessage,omitempty"`
}

// ListJobsRequest holds the query parameters of GET /api/v1/jobs.
type ListJobsRequest struct {
	Status   string `form:"status"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

// ListJobsResponse is a page of jobs plus the cursor for the next one.
type ListJobsResponse struct {
	Jobs       []StatusResponse `json:"jobs"`
	NextCursor string           `json:"next_cursor,omitempty"`
}

// StatusFromJob maps the stored record onto the API document.
func StatusFromJob(job *domain.Job) StatusResponse {
	resp := StatusResponse{
		JobID:              job.JobID,
		Status:             string(job.Status),
		SearchKeyword:      job.SearchKeyword,
		City:               job.City,
		TotalItems:         job.TotalItems,
		ProcessedItems:     job.ProcessedItems,
		ProgressPercentage: job.ProgressPercentage(),
		ResultURLs:         job.ResultURLs,
		TotalImages:        len(job.ResultURLs),
		CreatedAt:          job.CreatedAt.UTC().Format(time.RFC3339),
		ErrorMessage:       job.ErrorMessage,
	}
	if resp.ResultURLs == nil {
		resp.ResultURLs = []string{}
	}
	if job.CompletedAt != nil {
		resp.CompletedAt = job.CompletedAt.UTC().Format(time.RFC3339)
		resp.DurationSeconds = job.DurationSeconds()
	}
	return resp
}
