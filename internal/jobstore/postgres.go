package jobstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/banguyen/weathercards/internal/domain"
	"github.com/banguyen/weathercards/shared/postgresql"
)

// PostgresStore persists job records in the jobs table. The version column is
// the concurrency token: every Update is conditioned on it and bumps it.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore creates a PostgresStore on top of the shared client.
func NewPostgresStore(pg *postgresql.Client) *PostgresStore {
	return &PostgresStore{db: pg.GetDB()}
}

type jobRow struct {
	JobID            string       `db:"job_id"`
	Status           string       `db:"status"`
	SearchKeyword    string       `db:"search_keyword"`
	City             string       `db:"city"`
	MaxItems         int          `db:"max_items"`
	TotalItems       int          `db:"total_items"`
	ProcessedItems   int          `db:"processed_items"`
	ResultURLs       []byte       `db:"result_urls"`
	ProcessedItemIDs []byte       `db:"processed_item_ids"`
	ErrorMessage     string       `db:"error_message"`
	CreatedAt        time.Time    `db:"created_at"`
	DispatchedAt     sql.NullTime `db:"dispatched_at"`
	CompletedAt      sql.NullTime `db:"completed_at"`
	Version          int64        `db:"version"`
}

func (r *jobRow) toDomain() (*domain.Job, error) {
	job := &domain.Job{
		JobID:          r.JobID,
		Status:         domain.JobStatus(r.Status),
		SearchKeyword:  r.SearchKeyword,
		City:           r.City,
		MaxItems:       r.MaxItems,
		TotalItems:     r.TotalItems,
		ProcessedItems: r.ProcessedItems,
		ErrorMessage:   r.ErrorMessage,
		CreatedAt:      r.CreatedAt,
		Version:        r.Version,
	}
	if len(r.ResultURLs) > 0 {
		if err := json.Unmarshal(r.ResultURLs, &job.ResultURLs); err != nil {
			return nil, fmt.Errorf("failed to decode result_urls: %w", err)
		}
	}
	if len(r.ProcessedItemIDs) > 0 {
		if err := json.Unmarshal(r.ProcessedItemIDs, &job.ProcessedItemIDs); err != nil {
			return nil, fmt.Errorf("failed to decode processed_item_ids: %w", err)
		}
	}
	if r.DispatchedAt.Valid {
		t := r.DispatchedAt.Time
		job.DispatchedAt = &t
	}
	if r.CompletedAt.Valid {
		t := r.CompletedAt.Time
		job.CompletedAt = &t
	}
	return job, nil
}

func encodeList(list []string) ([]byte, error) {
	if list == nil {
		list = []string{}
	}
	return json.Marshal(list)
}

func (s *PostgresStore) Create(ctx context.Context, job *domain.Job) error {
	query := `
		INSERT INTO jobs (
			job_id, status, search_keyword, city, max_items,
			total_items, processed_items, result_urls, processed_item_ids,
			error_message, created_at, dispatched_at, completed_at, version
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9,
			$10, $11, $12, $13, 1
		)
	`

	urls, err := encodeList(job.ResultURLs)
	if err != nil {
		return fmt.Errorf("failed to encode result_urls: %w", err)
	}
	itemIDs, err := encodeList(job.ProcessedItemIDs)
	if err != nil {
		return fmt.Errorf("failed to encode processed_item_ids: %w", err)
	}

	_, err = s.db.ExecContext(ctx, query,
		job.JobID,
		string(job.Status),
		job.SearchKeyword,
		job.City,
		job.MaxItems,
		job.TotalItems,
		job.ProcessedItems,
		urls,
		itemIDs,
		job.ErrorMessage,
		job.CreatedAt,
		job.DispatchedAt,
		job.CompletedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return domain.ErrJobExists
		}
		return fmt.Errorf("failed to create job: %w", err)
	}

	job.Version = 1
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	query := `
		SELECT
			job_id, status, search_keyword, city, max_items,
			total_items, processed_items, result_urls, processed_item_ids,
			error_message, created_at, dispatched_at, completed_at, version
		FROM jobs
		WHERE job_id = $1
	`

	var row jobRow
	if err := s.db.GetContext(ctx, &row, query, jobID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return row.toDomain()
}

func (s *PostgresStore) Update(ctx context.Context, job *domain.Job) error {
	query := `
		UPDATE jobs
		SET status = $2,
		    total_items = $3,
		    processed_items = $4,
		    result_urls = $5,
		    processed_item_ids = $6,
		    error_message = $7,
		    dispatched_at = $8,
		    completed_at = $9,
		    version = version + 1
		WHERE job_id = $1
		  AND version = $10
	`

	urls, err := encodeList(job.ResultURLs)
	if err != nil {
		return fmt.Errorf("failed to encode result_urls: %w", err)
	}
	itemIDs, err := encodeList(job.ProcessedItemIDs)
	if err != nil {
		return fmt.Errorf("failed to encode processed_item_ids: %w", err)
	}

	result, err := s.db.ExecContext(ctx, query,
		job.JobID,
		string(job.Status),
		job.TotalItems,
		job.ProcessedItems,
		urls,
		itemIDs,
		job.ErrorMessage,
		job.DispatchedAt,
		job.CompletedAt,
		job.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrVersionConflict
	}

	job.Version++
	return nil
}

// JobFilter narrows List results. Cursor-based pagination keeps ordering
// stable under concurrent inserts.
type JobFilter struct {
	Status   string
	PageSize int
	Cursor   *JobCursor
}

// JobCursor marks the position after the last returned row.
type JobCursor struct {
	CreatedAt time.Time
	JobID     string
}

// List returns up to PageSize+1 jobs ordered by (created_at, job_id)
// descending; the extra row lets the caller detect a next page.
func (s *PostgresStore) List(ctx context.Context, filter JobFilter) ([]*domain.Job, error) {
	query := `
		SELECT
			job_id, status, search_keyword, city, max_items,
			total_items, processed_items, result_urls, processed_item_ids,
			error_message, created_at, dispatched_at, completed_at, version
		FROM jobs
		WHERE 1=1
	`
	args := []interface{}{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filter.Status)
		argIdx++
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (created_at, job_id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.JobID)
		argIdx += 2
	}

	query += " ORDER BY created_at DESC, job_id DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	var rows []jobRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	jobs := make([]*domain.Job, 0, len(rows))
	for i := range rows {
		job, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}
