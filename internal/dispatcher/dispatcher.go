// Package dispatcher performs the fan-out: one dispatch message becomes one
// work-item message per selected station.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/banguyen/weathercards/internal/domain"
	"github.com/banguyen/weathercards/internal/jobstore"
	"github.com/banguyen/weathercards/internal/metrics"
	"github.com/banguyen/weathercards/internal/selector"
)

// StationsFetcher fetches the candidate stations in one bulk call.
type StationsFetcher interface {
	FetchMeasurements(ctx context.Context) ([]domain.Station, error)
}

// WorkItemPublisher enqueues one work-item message.
type WorkItemPublisher interface {
	PublishWorkItem(ctx context.Context, msg domain.WorkItemMessage) error
}

// Config holds dispatcher dependencies and selection policy.
type Config struct {
	Logger      *slog.Logger
	Store       jobstore.Store
	Stations    StationsFetcher
	Publisher   WorkItemPublisher
	HardCap     int
	FallbackCap int
	Strict      bool
}

// Dispatcher consumes dispatch messages and fans them out.
type Dispatcher struct {
	logger      *slog.Logger
	store       jobstore.Store
	stations    StationsFetcher
	publisher   WorkItemPublisher
	hardCap     int
	fallbackCap int
	strict      bool
}

// New creates a Dispatcher.
func New(cfg *Config) *Dispatcher {
	return &Dispatcher{
		logger:      cfg.Logger,
		store:       cfg.Store,
		stations:    cfg.Stations,
		publisher:   cfg.Publisher,
		hardCap:     cfg.HardCap,
		fallbackCap: cfg.FallbackCap,
		strict:      cfg.Strict,
	}
}

// HandleDispatch processes one dispatch message. A nil return means the
// outcome is final and the message can be acked; a RetryableError asks the
// transport for a redelivery.
func (d *Dispatcher) HandleDispatch(ctx context.Context, msg domain.DispatchMessage) error {
	log := d.logger.With(slog.String("job_id", msg.JobID))

	job, claimed, err := jobstore.MarkProcessing(ctx, d.store, msg.JobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			// Nothing to update and nothing to retry against.
			log.Warn("Dispatch message for unknown job, skipping")
			metrics.JobsDispatched.WithLabelValues("missing_job").Inc()
			return nil
		}
		return domain.NewRetryableError(fmt.Errorf("failed to claim job: %w", err))
	}
	if !claimed {
		// At-least-once delivery: this job was already dispatched (or is
		// terminal). Re-running the fan-out would double every work item.
		log.Warn("Job already dispatched, skipping duplicate delivery",
			slog.String("status", string(job.Status)),
		)
		metrics.JobsDispatched.WithLabelValues("duplicate").Inc()
		return nil
	}

	candidates, err := d.stations.FetchMeasurements(ctx)
	if err != nil {
		log.Error("Failed to fetch station measurements",
			slog.Any("error", err),
		)
		metrics.JobsDispatched.WithLabelValues("feed_unavailable").Inc()
		return d.failJob(ctx, msg.JobID, fmt.Sprintf("weather feed unavailable: %s", err))
	}
	if len(candidates) == 0 {
		metrics.JobsDispatched.WithLabelValues("no_candidates").Inc()
		return d.failJob(ctx, msg.JobID, "weather feed returned no stations")
	}

	selected, err := selector.Select(candidates, selector.Options{
		CityFilter:   msg.City,
		RequestedMax: msg.MaxItems,
		HardCap:      d.hardCap,
		FallbackCap:  d.fallbackCap,
		Strict:       d.strict,
	})
	if err != nil {
		if errors.Is(err, selector.ErrNoMatches) {
			metrics.JobsDispatched.WithLabelValues("no_matches").Inc()
			return d.failJob(ctx, msg.JobID, fmt.Sprintf("no stations matched city %q", msg.City))
		}
		return domain.NewRetryableError(fmt.Errorf("selection failed: %w", err))
	}
	if len(selected) == 0 {
		metrics.JobsDispatched.WithLabelValues("no_matches").Inc()
		return d.failJob(ctx, msg.JobID, "no stations available for this job")
	}

	// The count must be durable before the first work item is published;
	// otherwise a fast worker could complete against a zero total.
	if _, err := jobstore.SetTotalItems(ctx, d.store, msg.JobID, len(selected)); err != nil {
		return domain.NewRetryableError(fmt.Errorf("failed to persist total items: %w", err))
	}

	published := 0
	for _, station := range selected {
		item := domain.WorkItemMessage{
			JobID:         msg.JobID,
			StationID:     station.ID,
			StationName:   station.Name,
			Lat:           station.Lat,
			Lon:           station.Lon,
			Temperature:   station.Temperature,
			Region:        station.Region,
			SearchKeyword: msg.SearchKeyword,
		}
		if err := d.publisher.PublishWorkItem(ctx, item); err != nil {
			// The job is already claimed, so a redelivery of the dispatch
			// message would be skipped; keep going and let the remaining
			// items through rather than losing all of them.
			log.Error("Failed to publish work item",
				slog.String("station_id", station.ID),
				slog.Any("error", err),
			)
			continue
		}
		published++
	}

	log.Info("Job dispatched",
		slog.Int("candidates", len(candidates)),
		slog.Int("selected", len(selected)),
		slog.Int("published", published),
	)
	metrics.JobsDispatched.WithLabelValues("dispatched").Inc()
	return nil
}

func (d *Dispatcher) failJob(ctx context.Context, jobID, message string) error {
	if _, err := jobstore.MarkFailed(ctx, d.store, jobID, message); err != nil {
		return domain.NewRetryableError(fmt.Errorf("failed to mark job failed: %w", err))
	}
	d.logger.Warn("Job failed during dispatch",
		slog.String("job_id", jobID),
		slog.String("reason", message),
	)
	return nil
}
