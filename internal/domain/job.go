package domain

import "time"

// JobStatus is the lifecycle state of a job.
type JobStatus string

// Job status constants
const (
	JobStatusPending    JobStatus = "PENDING"
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusCompleted  JobStatus = "COMPLETED"
	JobStatusFailed     JobStatus = "FAILED"
)

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Job is the shared job record. One row per submitted job; mutated by the
// dispatcher (status, total items) and concurrently by every worker through
// the conditional-update path keyed on Version.
type Job struct {
	JobID            string
	Status           JobStatus
	SearchKeyword    string
	City             string
	MaxItems         int
	TotalItems       int
	ProcessedItems   int
	ResultURLs       []string
	ProcessedItemIDs []string
	ErrorMessage     string
	CreatedAt        time.Time
	DispatchedAt     *time.Time
	CompletedAt      *time.Time

	// Version is the store's optimistic-concurrency token. A conditional
	// update only succeeds when the stored version still matches.
	Version int64
}

// HasProcessedItem reports whether the item was already counted. Used as the
// idempotency check under at-least-once redelivery.
func (j *Job) HasProcessedItem(itemID string) bool {
	for _, id := range j.ProcessedItemIDs {
		if id == itemID {
			return true
		}
	}
	return false
}

// ProgressPercentage returns processed/total as a percentage, 0 before the
// dispatcher has set the total.
func (j *Job) ProgressPercentage() float64 {
	if j.TotalItems <= 0 {
		return 0
	}
	return float64(j.ProcessedItems) / float64(j.TotalItems) * 100
}

// DurationSeconds returns the wall time from creation to completion, or 0 for
// jobs that have not reached a terminal state.
func (j *Job) DurationSeconds() float64 {
	if j.CompletedAt == nil {
		return 0
	}
	return j.CompletedAt.Sub(j.CreatedAt).Seconds()
}
