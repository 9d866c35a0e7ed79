package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/banguyen/weathercards/internal/compositor"
	"github.com/banguyen/weathercards/internal/domain"
	"github.com/banguyen/weathercards/internal/jobstore"
	"github.com/banguyen/weathercards/internal/metrics"
	"github.com/banguyen/weathercards/shared/objectstore"
	"github.com/banguyen/weathercards/shared/rediscache"
)

// ImageSource resolves a keyword to one random image and fetches its bytes.
type ImageSource interface {
	Random(ctx context.Context, keyword string) (string, error)
	Download(ctx context.Context, imageURL string) ([]byte, error)
}

// ProcessorConfig holds processor dependencies.
type ProcessorConfig struct {
	Logger          *slog.Logger
	Store           jobstore.Store
	Images          ImageSource
	Compositor      *compositor.Compositor
	Objects         objectstore.Store
	Cache           rediscache.Cache
	PresignTTL      time.Duration
	ItemTimeout     time.Duration
	TimestampFormat string
}

// Processor turns one work-item message into a stored card and one progress
// advance on the owning job.
type Processor struct {
	logger          *slog.Logger
	store           jobstore.Store
	images          ImageSource
	compositor      *compositor.Compositor
	objects         objectstore.Store
	cache           rediscache.Cache
	presignTTL      time.Duration
	itemTimeout     time.Duration
	timestampFormat string
	// now is swappable for tests
	now func() time.Time
}

// NewProcessor creates a Processor.
func NewProcessor(cfg *ProcessorConfig) *Processor {
	tsFormat := cfg.TimestampFormat
	if tsFormat == "" {
		tsFormat = "2006-01-02 15:04 MST"
	}
	cache := cfg.Cache
	if cache == nil {
		cache = rediscache.NoopCache{}
	}
	return &Processor{
		logger:          cfg.Logger,
		store:           cfg.Store,
		images:          cfg.Images,
		compositor:      cfg.Compositor,
		objects:         cfg.Objects,
		cache:           cache,
		presignTTL:      cfg.PresignTTL,
		itemTimeout:     cfg.ItemTimeout,
		timestampFormat: tsFormat,
		now:             time.Now,
	}
}

// ProcessItem handles one work-item message end to end. A nil return means
// the delivery can be acked; a RetryableError asks for a redelivery. The item
// is only counted once per station under at-least-once delivery, and every
// counted item carries a card, falling back to a placeholder when the image
// provider is unavailable.
func (p *Processor) ProcessItem(ctx context.Context, item domain.WorkItemMessage) error {
	if p.itemTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.itemTimeout)
		defer cancel()
	}

	log := p.logger.With(
		slog.String("job_id", item.JobID),
		slog.String("station_id", item.StationID),
	)
	start := p.now()

	job, err := p.store.Get(ctx, item.JobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			log.Warn("Work item for unknown job, skipping")
			metrics.ItemsProcessed.WithLabelValues("missing_job").Inc()
			return nil
		}
		return domain.NewRetryableError(fmt.Errorf("failed to load job: %w", err))
	}
	if job.Status.Terminal() {
		// Late delivery after the job finished or failed.
		log.Warn("Work item for terminal job, skipping",
			slog.String("status", string(job.Status)),
		)
		metrics.ItemsProcessed.WithLabelValues("late").Inc()
		return nil
	}
	if job.HasProcessedItem(item.StationID) {
		log.Warn("Work item already counted, skipping duplicate delivery")
		metrics.ItemsProcessed.WithLabelValues("duplicate").Inc()
		return nil
	}

	label := compositor.Label{
		Name:        item.StationName,
		Temperature: item.Temperature,
	}
	timestamp := p.now().UTC().Format(p.timestampFormat)

	card, outcome := p.renderCard(ctx, item, label, timestamp, log)

	objectName := fmt.Sprintf("jobs/%s/%s-%d.jpg", item.JobID, item.StationID, p.now().UnixNano())
	if err := p.objects.Put(ctx, objectName, card, "image/jpeg"); err != nil {
		// Progress has not advanced yet, so a redelivery is safe.
		return domain.NewRetryableError(fmt.Errorf("failed to store card: %w", err))
	}

	resultURL, err := p.objects.GetReadReference(ctx, objectName, p.presignTTL)
	if err != nil {
		// The card is stored; count the item without a result rather than
		// risking a duplicate upload on redelivery.
		log.Error("Failed to create read reference for stored card",
			slog.String("object", objectName),
			slog.Any("error", err),
		)
		resultURL = ""
	}

	updated, err := jobstore.AdvanceProgress(ctx, p.store, item.JobID, item.StationID, resultURL)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			log.Warn("Job disappeared before progress advance")
			return nil
		}
		return domain.NewRetryableError(fmt.Errorf("failed to advance progress: %w", err))
	}

	// Best effort: the API rebuilds the cache entry on the next read.
	if err := p.cache.InvalidateJobStatus(ctx, item.JobID); err != nil {
		log.Warn("Failed to invalidate cached job status",
			slog.Any("error", err),
		)
	}

	metrics.ItemsProcessed.WithLabelValues(outcome).Inc()
	metrics.ItemProcessingDuration.Observe(p.now().Sub(start).Seconds())

	log.Info("Work item processed",
		slog.String("outcome", outcome),
		slog.String("object", objectName),
		slog.Int("processed_items", updated.ProcessedItems),
		slog.Int("total_items", updated.TotalItems),
		slog.String("job_status", string(updated.Status)),
	)
	return nil
}

// renderCard produces the JPEG for the item. It never fails: any provider or
// decode problem degrades to a placeholder card so the job can still complete.
func (p *Processor) renderCard(ctx context.Context, item domain.WorkItemMessage, label compositor.Label, timestamp string, log *slog.Logger) ([]byte, string) {
	imageURL, err := p.images.Random(ctx, item.SearchKeyword)
	if err != nil {
		log.Warn("Image lookup failed, using placeholder",
			slog.String("keyword", item.SearchKeyword),
			slog.Any("error", err),
		)
		metrics.PlaceholdersGenerated.Inc()
		return p.compositor.Placeholder(label), "placeholder"
	}

	raw, err := p.images.Download(ctx, imageURL)
	if err != nil {
		log.Warn("Image download failed, using placeholder",
			slog.String("image_url", imageURL),
			slog.Any("error", err),
		)
		metrics.PlaceholdersGenerated.Inc()
		return p.compositor.Placeholder(label), "placeholder"
	}

	card, err := p.compositor.Compose(raw, label, timestamp)
	if err != nil {
		log.Warn("Card composition failed, using placeholder",
			slog.Any("error", err),
		)
		metrics.PlaceholdersGenerated.Inc()
		return p.compositor.Placeholder(label), "placeholder"
	}
	return card, "success"
}
