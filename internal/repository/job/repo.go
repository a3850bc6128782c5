package job

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/dbpg"
	"github.com/wb-go/wbf/retry"

	"github.com/aliskhannn/latex2image/internal/idgen"
	"github.com/aliskhannn/latex2image/internal/model"
)

var ErrJobNotFound = errors.New("job not found")

// Repository stores the outcome of finished conversions.
type Repository struct {
	db       *dbpg.DB
	strategy retry.Strategy
}

// NewRepository creates a new Repository with the given DB connection.
// Writes are retried according to s.
func NewRepository(db *dbpg.DB, s retry.Strategy) *Repository {
	return &Repository{db: db, strategy: s}
}

// SaveJob inserts a job record.
func (r *Repository) SaveJob(ctx context.Context, rec model.JobRecord) error {
	query := `
		INSERT INTO jobs (id, format, scale, status, image_url, error, failed_stage, duration_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	id, err := uuid.Parse(rec.ID)
	if err != nil {
		return fmt.Errorf("save: invalid job id: %w", err)
	}

	err = retry.Do(func() error {
		_, execErr := r.db.ExecContext(
			ctx, query, id, rec.Format, rec.Scale, rec.Status, rec.ImageURL,
			rec.Error, string(rec.FailedStage), rec.DurationMS, rec.CreatedAt,
		)
		return execErr
	}, r.strategy)
	if err != nil {
		return fmt.Errorf("save: failed to save job: %w", err)
	}

	return nil
}

// GetJob retrieves a job record by ID.
func (r *Repository) GetJob(ctx context.Context, id uuid.UUID) (model.JobRecord, error) {
	query := `
		SELECT format, scale, status, image_url, error, failed_stage, duration_ms, created_at
		FROM jobs
		WHERE id = $1
	`

	var (
		rec   model.JobRecord
		stage string
	)

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&rec.Format, &rec.Scale, &rec.Status, &rec.ImageURL,
		&rec.Error, &stage, &rec.DurationMS, &rec.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.JobRecord{}, ErrJobNotFound
		}

		return model.JobRecord{}, fmt.Errorf("get: failed to get job: %w", err)
	}

	rec.ID = idgen.FromUUID(id)
	rec.FailedStage = model.State(stage)

	return rec, nil
}

// Record implements the orchestrator's recorder.
func (r *Repository) Record(ctx context.Context, rec model.JobRecord) error {
	return r.SaveJob(ctx, rec)
}
