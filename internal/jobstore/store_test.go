package jobstore

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banguyen/weathercards/internal/domain"
)

func newProcessingJob(t *testing.T, store Store, totalItems int) *domain.Job {
	t.Helper()

	job := &domain.Job{
		JobID:         "0b81c097-6f6a-4a52-9c9e-1f4de3f1a001",
		Status:        domain.JobStatusProcessing,
		SearchKeyword: "clouds",
		MaxItems:      totalItems,
		TotalItems:    totalItems,
		CreatedAt:     time.Now().UTC(),
	}
	require.NoError(t, store.Create(context.Background(), job))
	return job
}

func TestMemoryStore_CreateAndGet(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	job := &domain.Job{
		JobID:     "job-1",
		Status:    domain.JobStatusPending,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, store.Create(ctx, job))
	assert.Equal(t, int64(1), job.Version)

	got, err := store.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusPending, got.Status)

	// Duplicate key
	err = store.Create(ctx, &domain.Job{JobID: "job-1"})
	assert.ErrorIs(t, err, domain.ErrJobExists)

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
}

func TestMemoryStore_UpdateVersionConflict(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	job := &domain.Job{JobID: "job-1", Status: domain.JobStatusPending, CreatedAt: time.Now().UTC()}
	require.NoError(t, store.Create(ctx, job))

	first, err := store.Get(ctx, "job-1")
	require.NoError(t, err)
	second, err := store.Get(ctx, "job-1")
	require.NoError(t, err)

	first.ProcessedItems = 1
	require.NoError(t, store.Update(ctx, first))

	second.ProcessedItems = 1
	err = store.Update(ctx, second)
	assert.ErrorIs(t, err, domain.ErrVersionConflict)
}

func TestAdvanceProgress_ConcurrentNoLostUpdates(t *testing.T) {
	const items = 50

	store := NewMemoryStore()
	ctx := context.Background()
	job := newProcessingJob(t, store, items)

	var wg sync.WaitGroup
	for i := 0; i < items; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			itemID := fmt.Sprintf("station-%d", i)
			url := fmt.Sprintf("https://cdn.example.com/%s.jpg", itemID)
			_, err := AdvanceProgress(ctx, store, job.JobID, itemID, url)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	final, err := store.Get(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, items, final.ProcessedItems)
	assert.Equal(t, domain.JobStatusCompleted, final.Status)
	require.NotNil(t, final.CompletedAt)
	assert.Len(t, final.ResultURLs, items)
	assert.Len(t, final.ProcessedItemIDs, items)
}

func TestAdvanceProgress_DuplicateItemIsIdempotent(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	job := newProcessingJob(t, store, 3)

	_, err := AdvanceProgress(ctx, store, job.JobID, "station-1", "https://cdn.example.com/1.jpg")
	require.NoError(t, err)

	// Simulated at-least-once redelivery of the same work item.
	_, err = AdvanceProgress(ctx, store, job.JobID, "station-1", "https://cdn.example.com/1-dup.jpg")
	require.NoError(t, err)

	final, err := store.Get(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, 1, final.ProcessedItems)
	assert.Equal(t, []string{"https://cdn.example.com/1.jpg"}, final.ResultURLs)
	assert.Equal(t, domain.JobStatusProcessing, final.Status)
}

func TestAdvanceProgress_EmptyURLCountsWithoutResult(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	job := newProcessingJob(t, store, 2)

	_, err := AdvanceProgress(ctx, store, job.JobID, "station-1", "https://cdn.example.com/1.jpg")
	require.NoError(t, err)
	_, err = AdvanceProgress(ctx, store, job.JobID, "station-2", "")
	require.NoError(t, err)

	final, err := store.Get(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, 2, final.ProcessedItems)
	assert.Equal(t, domain.JobStatusCompleted, final.Status)
	assert.Len(t, final.ResultURLs, 1)
}

func TestAdvanceProgress_TerminalJobIsUntouched(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	job := newProcessingJob(t, store, 1)

	_, err := MarkFailed(ctx, store, job.JobID, "no stations matched the requested city")
	require.NoError(t, err)

	got, err := AdvanceProgress(ctx, store, job.JobID, "station-1", "https://cdn.example.com/1.jpg")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, got.Status)
	assert.Equal(t, 0, got.ProcessedItems)
}

func TestAdvanceProgress_JobNotFound(t *testing.T) {
	store := NewMemoryStore()
	_, err := AdvanceProgress(context.Background(), store, "missing", "station-1", "")
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
}

func TestMarkProcessing(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	job := &domain.Job{
		JobID:     "job-1",
		Status:    domain.JobStatusPending,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, store.Create(ctx, job))

	got, claimed, err := MarkProcessing(ctx, store, job.JobID)
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.Equal(t, domain.JobStatusProcessing, got.Status)
	assert.NotNil(t, got.DispatchedAt)

	// Duplicate dispatch delivery must not claim again.
	_, claimed, err = MarkProcessing(ctx, store, job.JobID)
	require.NoError(t, err)
	assert.False(t, claimed)
}

func TestMarkFailed_TerminalStatesAreSticky(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	job := newProcessingJob(t, store, 1)

	_, err := AdvanceProgress(ctx, store, job.JobID, "station-1", "https://cdn.example.com/1.jpg")
	require.NoError(t, err)

	got, err := MarkFailed(ctx, store, job.JobID, "too late")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, got.Status)
	assert.Empty(t, got.ErrorMessage)
}

func TestSetTotalItems(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	job := &domain.Job{
		JobID:     "job-1",
		Status:    domain.JobStatusProcessing,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, store.Create(ctx, job))

	got, err := SetTotalItems(ctx, store, job.JobID, 7)
	require.NoError(t, err)
	assert.Equal(t, 7, got.TotalItems)
}
