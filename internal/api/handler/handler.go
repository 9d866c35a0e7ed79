package handler

import (
	"context"
	"log/slog"
	"time"

	"github.com/banguyen/weathercards/internal/domain"
	"github.com/banguyen/weathercards/internal/jobstore"
	"github.com/banguyen/weathercards/shared/rediscache"
)

// DispatchPublisher enqueues the dispatch message that starts a job.
type DispatchPublisher interface {
	PublishDispatch(ctx context.Context, msg domain.DispatchMessage) error
}

// JobLister pages through stored jobs. Satisfied by jobstore.PostgresStore.
type JobLister interface {
	List(ctx context.Context, filter jobstore.JobFilter) ([]*domain.Job, error)
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger    *slog.Logger
	Store     jobstore.Store
	Lister    JobLister
	Publisher DispatchPublisher
	Cache     rediscache.Cache
	StatusTTL time.Duration
}

// JobHandler handles job-related HTTP requests
type JobHandler struct {
	logger    *slog.Logger
	store     jobstore.Store
	lister    JobLister
	publisher DispatchPublisher
	cache     rediscache.Cache
	statusTTL time.Duration
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	cache := deps.Cache
	if cache == nil {
		cache = rediscache.NoopCache{}
	}
	return &JobHandler{
		logger:    deps.Logger,
		store:     deps.Store,
		lister:    deps.Lister,
		publisher: deps.Publisher,
		cache:     cache,
		statusTTL: deps.StatusTTL,
	}
}
