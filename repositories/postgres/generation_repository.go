package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/upb/model-router/models"
	"github.com/upb/model-router/repositories"
	"go.uber.org/zap"
)

// GenerationRepository implements the repositories.GenerationRepository interface
type GenerationRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewGenerationRepository creates a new generation record repository
func NewGenerationRepository(db *DB, logger *zap.Logger) repositories.GenerationRepository {
	return &GenerationRepository{
		db:     db,
		logger: logger,
	}
}

const generationColumns = `id, request_id, preferred_model, model_used, status,
	rounds, attempts, trail, prompt_chars, latency_ms,
	last_category, error_message, created_at, completed_at`

// Insert inserts a new generation record
func (r *GenerationRepository) Insert(ctx context.Context, rec *models.GenerationRecord) error {
	query := `
		INSERT INTO generation_records (` + generationColumns + `) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14
		)
	`

	var trail interface{}
	if len(rec.Trail) > 0 {
		trail = []byte(rec.Trail)
	}

	_, err := r.db.ExecContext(ctx, query,
		rec.ID,
		rec.RequestID,
		rec.PreferredModel,
		rec.ModelUsed,
		rec.Status,
		rec.Rounds,
		rec.Attempts,
		trail,
		rec.PromptChars,
		rec.LatencyMs,
		rec.LastCategory,
		rec.ErrorMessage,
		rec.CreatedAt,
		rec.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert generation record: %w", err)
	}

	r.logger.Debug("generation record inserted",
		zap.String("id", rec.ID.String()),
		zap.String("request_id", rec.RequestID))
	return nil
}

// GetByRequestID retrieves a generation record by request ID
func (r *GenerationRepository) GetByRequestID(ctx context.Context, requestID string) (*models.GenerationRecord, error) {
	query := `
		SELECT ` + generationColumns + `
		FROM generation_records
		WHERE request_id = $1
	`

	rec, err := scanGeneration(r.db.QueryRowContext(ctx, query, requestID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("generation record %s: %w", requestID, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get generation record: %w", err)
	}

	return rec, nil
}

// ListRecent retrieves generation records newest first
func (r *GenerationRepository) ListRecent(ctx context.Context, limit, offset int) ([]*models.GenerationRecord, error) {
	query := `
		SELECT ` + generationColumns + `
		FROM generation_records
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list generation records: %w", err)
	}
	defer rows.Close()

	records := make([]*models.GenerationRecord, 0, limit)
	for rows.Next() {
		rec, err := scanGeneration(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan generation record: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating generation records: %w", err)
	}

	return records, nil
}

// CountByStatus counts records created at or after since, grouped by status
func (r *GenerationRepository) CountByStatus(ctx context.Context, since time.Time) (map[models.GenerationStatus]int, error) {
	query := `
		SELECT status, COUNT(*)
		FROM generation_records
		WHERE created_at >= $1
		GROUP BY status
	`

	rows, err := r.db.QueryContext(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("failed to count generation records: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.GenerationStatus]int)
	for rows.Next() {
		var (
			status models.GenerationStatus
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		counts[status] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating status counts: %w", err)
	}

	return counts, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanGeneration(row rowScanner) (*models.GenerationRecord, error) {
	rec := &models.GenerationRecord{}
	var trail []byte

	err := row.Scan(
		&rec.ID,
		&rec.RequestID,
		&rec.PreferredModel,
		&rec.ModelUsed,
		&rec.Status,
		&rec.Rounds,
		&rec.Attempts,
		&trail,
		&rec.PromptChars,
		&rec.LatencyMs,
		&rec.LastCategory,
		&rec.ErrorMessage,
		&rec.CreatedAt,
		&rec.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(trail) > 0 {
		rec.Trail = trail
	}
	return rec, nil
}
