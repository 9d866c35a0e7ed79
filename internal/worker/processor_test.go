package worker

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/jpeg"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/banguyen/weathercards/internal/compositor"
	"github.com/banguyen/weathercards/internal/domain"
	"github.com/banguyen/weathercards/internal/jobstore"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeImages struct {
	url         string
	data        []byte
	randomErr   error
	downloadErr error
	randomCalls int
}

func (f *fakeImages) Random(_ context.Context, _ string) (string, error) {
	f.randomCalls++
	if f.randomErr != nil {
		return "", f.randomErr
	}
	return f.url, nil
}

func (f *fakeImages) Download(_ context.Context, _ string) ([]byte, error) {
	if f.downloadErr != nil {
		return nil, f.downloadErr
	}
	return f.data, nil
}

type fakeObjects struct {
	puts       map[string][]byte
	putErr     error
	presignErr error
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{puts: make(map[string][]byte)}
}

func (f *fakeObjects) Put(_ context.Context, name string, data []byte, _ string) error {
	if f.putErr != nil {
		return f.putErr
	}
	f.puts[name] = data
	return nil
}

func (f *fakeObjects) GetReadReference(_ context.Context, name string, _ time.Duration) (string, error) {
	if f.presignErr != nil {
		return "", f.presignErr
	}
	return "https://cards.example.com/" + name, nil
}

func sampleJPEG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 320, 240)), nil))
	return buf.Bytes()
}

func seedProcessingJob(t *testing.T, store jobstore.Store, totalItems int) *domain.Job {
	t.Helper()
	job := &domain.Job{
		JobID:         uuid.New().String(),
		Status:        domain.JobStatusProcessing,
		SearchKeyword: "sunset",
		TotalItems:    totalItems,
	}
	require.NoError(t, store.Create(context.Background(), job))
	return job
}

func newTestProcessor(t *testing.T, store jobstore.Store, images ImageSource, objects *fakeObjects) *Processor {
	t.Helper()
	comp, err := compositor.New(compositor.DefaultConfig())
	require.NoError(t, err)
	return NewProcessor(&ProcessorConfig{
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		Store:      store,
		Images:     images,
		Compositor: comp,
		Objects:    objects,
		PresignTTL: time.Hour,
	})
}

func workItem(jobID, stationID string) domain.WorkItemMessage {
	temp := 18.5
	return domain.WorkItemMessage{
		JobID:         jobID,
		StationID:     stationID,
		StationName:   "De Bilt",
		Temperature:   &temp,
		Region:        "Utrecht",
		SearchKeyword: "sunset",
	}
}

func TestProcessItem_StoresCardAndAdvancesProgress(t *testing.T) {
	store := jobstore.NewMemoryStore()
	job := seedProcessingJob(t, store, 3)
	objects := newFakeObjects()
	images := &fakeImages{url: "https://img.example.com/1", data: sampleJPEG(t)}
	p := newTestProcessor(t, store, images, objects)

	err := p.ProcessItem(context.Background(), workItem(job.JobID, "6260"))
	require.NoError(t, err)

	require.Len(t, objects.puts, 1)
	updated, err := store.Get(context.Background(), job.JobID)
	require.NoError(t, err)
	assert.Equal(t, 1, updated.ProcessedItems)
	assert.Equal(t, domain.JobStatusProcessing, updated.Status)
	require.Len(t, updated.ResultURLs, 1)
	assert.Contains(t, updated.ResultURLs[0], "jobs/"+job.JobID+"/6260-")
	assert.True(t, updated.HasProcessedItem("6260"))
}

func TestProcessItem_LastItemCompletesJob(t *testing.T) {
	store := jobstore.NewMemoryStore()
	job := seedProcessingJob(t, store, 3)
	objects := newFakeObjects()

	// Two items render normally; the third degrades to a placeholder because
	// the image provider is down. The placeholder still counts.
	healthy := &fakeImages{url: "https://img.example.com/1", data: sampleJPEG(t)}
	broken := &fakeImages{randomErr: errors.New("429 too many requests")}

	p1 := newTestProcessor(t, store, healthy, objects)
	p2 := newTestProcessor(t, store, broken, objects)

	require.NoError(t, p1.ProcessItem(context.Background(), workItem(job.JobID, "6260")))
	require.NoError(t, p1.ProcessItem(context.Background(), workItem(job.JobID, "6240")))
	require.NoError(t, p2.ProcessItem(context.Background(), workItem(job.JobID, "6391")))

	updated, err := store.Get(context.Background(), job.JobID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, updated.Status)
	assert.Equal(t, 3, updated.ProcessedItems)
	assert.Len(t, updated.ResultURLs, 3)
	assert.NotNil(t, updated.CompletedAt)
	assert.Len(t, objects.puts, 3)
}

func TestProcessItem_DuplicateDeliveryCountsOnce(t *testing.T) {
	store := jobstore.NewMemoryStore()
	job := seedProcessingJob(t, store, 3)
	objects := newFakeObjects()
	images := &fakeImages{url: "https://img.example.com/1", data: sampleJPEG(t)}
	p := newTestProcessor(t, store, images, objects)

	item := workItem(job.JobID, "6260")
	require.NoError(t, p.ProcessItem(context.Background(), item))
	require.NoError(t, p.ProcessItem(context.Background(), item))

	updated, _ := store.Get(context.Background(), job.JobID)
	assert.Equal(t, 1, updated.ProcessedItems)
	assert.Len(t, updated.ResultURLs, 1)
	// The duplicate was skipped before rendering, so no second upload.
	assert.Len(t, objects.puts, 1)
	assert.Equal(t, 1, images.randomCalls)
}

func TestProcessItem_MissingJobIsAcked(t *testing.T) {
	store := jobstore.NewMemoryStore()
	objects := newFakeObjects()
	p := newTestProcessor(t, store, &fakeImages{data: sampleJPEG(t)}, objects)

	err := p.ProcessItem(context.Background(), workItem(uuid.New().String(), "6260"))
	require.NoError(t, err)
	assert.Empty(t, objects.puts)
}

func TestProcessItem_TerminalJobIsSkipped(t *testing.T) {
	store := jobstore.NewMemoryStore()
	job := &domain.Job{
		JobID:  uuid.New().String(),
		Status: domain.JobStatusFailed,
	}
	require.NoError(t, store.Create(context.Background(), job))
	objects := newFakeObjects()
	p := newTestProcessor(t, store, &fakeImages{data: sampleJPEG(t)}, objects)

	err := p.ProcessItem(context.Background(), workItem(job.JobID, "6260"))
	require.NoError(t, err)
	assert.Empty(t, objects.puts)
}

func TestProcessItem_StorageFailureIsRetryable(t *testing.T) {
	store := jobstore.NewMemoryStore()
	job := seedProcessingJob(t, store, 3)
	objects := newFakeObjects()
	objects.putErr = errors.New("bucket unavailable")
	images := &fakeImages{url: "https://img.example.com/1", data: sampleJPEG(t)}
	p := newTestProcessor(t, store, images, objects)

	err := p.ProcessItem(context.Background(), workItem(job.JobID, "6260"))
	require.Error(t, err)
	var retryable *domain.RetryableError
	assert.ErrorAs(t, err, &retryable)

	// Nothing advanced, so the redelivery will run the full path again.
	updated, _ := store.Get(context.Background(), job.JobID)
	assert.Equal(t, 0, updated.ProcessedItems)
}

func TestProcessItem_PresignFailureStillCountsItem(t *testing.T) {
	store := jobstore.NewMemoryStore()
	job := seedProcessingJob(t, store, 1)
	objects := newFakeObjects()
	objects.presignErr = errors.New("presign unavailable")
	images := &fakeImages{url: "https://img.example.com/1", data: sampleJPEG(t)}
	p := newTestProcessor(t, store, images, objects)

	err := p.ProcessItem(context.Background(), workItem(job.JobID, "6260"))
	require.NoError(t, err)

	updated, _ := store.Get(context.Background(), job.JobID)
	assert.Equal(t, 1, updated.ProcessedItems)
	assert.Empty(t, updated.ResultURLs)
	assert.Equal(t, domain.JobStatusCompleted, updated.Status)
}

func TestShouldRequeueItem(t *testing.T) {
	assert.True(t, shouldRequeueItem(domain.NewRetryableError(errors.New("db down"))))
	assert.False(t, shouldRequeueItem(errors.New("permanent")))
}
