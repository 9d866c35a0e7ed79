package jobstore

import (
	"context"
	"errors"
	"time"

	"github.com/banguyen/weathercards/internal/domain"
)

// Store is the job record store. Implementations must support optimistic
// concurrency: Update only succeeds when the stored version still equals
// job.Version, and bumps the version on success.
type Store interface {
	// Create inserts a new job record, failing with domain.ErrJobExists if
	// the key is already taken.
	Create(ctx context.Context, job *domain.Job) error

	// Get returns the current job record, or domain.ErrJobNotFound.
	Get(ctx context.Context, jobID string) (*domain.Job, error)

	// Update writes the record conditioned on job.Version matching the
	// stored version. Returns domain.ErrVersionConflict when a concurrent
	// writer got there first.
	Update(ctx context.Context, job *domain.Job) error
}

// mutate runs a read-modify-conditional-write loop until the write lands or
// the mutation decides there is nothing to do. Conflicts trigger a reread;
// the loop only gives up when the context is canceled.
func mutate(ctx context.Context, s Store, jobID string, fn func(*domain.Job) bool) (*domain.Job, error) {
	for {
		job, err := s.Get(ctx, jobID)
		if err != nil {
			return nil, err
		}

		if !fn(job) {
			return job, nil
		}

		err = s.Update(ctx, job)
		if err == nil {
			return job, nil
		}
		if !errors.Is(err, domain.ErrVersionConflict) {
			return nil, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
	}
}

// AdvanceProgress is the fan-in operation: it counts one processed item and
// detects completion. Safe to call concurrently from many workers of the same
// job, and idempotent per item ID so a redelivered work-item message is not
// double counted. An empty resultURL counts the item without recording a
// result. Returns the record as written.
func AdvanceProgress(ctx context.Context, s Store, jobID, itemID, resultURL string) (*domain.Job, error) {
	return mutate(ctx, s, jobID, func(job *domain.Job) bool {
		if job.Status.Terminal() {
			// Late delivery after completion or failure; informational only.
			return false
		}
		if job.HasProcessedItem(itemID) {
			return false
		}

		job.ProcessedItems++
		job.ProcessedItemIDs = append(job.ProcessedItemIDs, itemID)
		if resultURL != "" {
			job.ResultURLs = append(job.ResultURLs, resultURL)
		}

		if job.Status == domain.JobStatusProcessing && job.TotalItems > 0 && job.ProcessedItems >= job.TotalItems {
			job.Status = domain.JobStatusCompleted
			now := time.Now().UTC()
			job.CompletedAt = &now
		}
		return true
	})
}

// MarkProcessing claims a pending job for dispatch. The boolean reports
// whether this call performed the transition; false means another delivery
// already moved the job out of PENDING.
func MarkProcessing(ctx context.Context, s Store, jobID string) (*domain.Job, bool, error) {
	claimed := false
	job, err := mutate(ctx, s, jobID, func(job *domain.Job) bool {
		if job.Status != domain.JobStatusPending {
			claimed = false
			return false
		}
		job.Status = domain.JobStatusProcessing
		now := time.Now().UTC()
		job.DispatchedAt = &now
		claimed = true
		return true
	})
	return job, claimed, err
}

// SetTotalItems persists the selected item count. Must complete before any
// work-item message is published, otherwise a fast worker could observe
// processed == total with the wrong total.
func SetTotalItems(ctx context.Context, s Store, jobID string, total int) (*domain.Job, error) {
	return mutate(ctx, s, jobID, func(job *domain.Job) bool {
		if job.Status.Terminal() {
			return false
		}
		job.TotalItems = total
		return true
	})
}

// MarkFailed moves the job to its failed terminal state with a user-visible
// message. No-op when the job is already terminal.
func MarkFailed(ctx context.Context, s Store, jobID, message string) (*domain.Job, error) {
	return mutate(ctx, s, jobID, func(job *domain.Job) bool {
		if job.Status.Terminal() {
			return false
		}
		job.Status = domain.JobStatusFailed
		job.ErrorMessage = message
		now := time.Now().UTC()
		job.CompletedAt = &now
		return true
	})
}

// cloneJob returns a deep copy so callers can mutate freely between read and
// conditional write.
func cloneJob(job *domain.Job) *domain.Job {
	out := *job
	out.ResultURLs = append([]string(nil), job.ResultURLs...)
	out.ProcessedItemIDs = append([]string(nil), job.ProcessedItemIDs...)
	if job.DispatchedAt != nil {
		t := *job.DispatchedAt
		out.DispatchedAt = &t
	}
	if job.CompletedAt != nil {
		t := *job.CompletedAt
		out.CompletedAt = &t
	}
	return &out
}
