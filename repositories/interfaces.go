package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/upb/model-router/models"
)

// ErrNotFound is returned when a lookup matches no row
var ErrNotFound = errors.New("record not found")

// GenerationRepository handles generation audit records
type GenerationRepository interface {
	// Insert inserts a new generation record
	Insert(ctx context.Context, rec *models.GenerationRecord) error

	// GetByRequestID retrieves a record by its request ID
	GetByRequestID(ctx context.Context, requestID string) (*models.GenerationRecord, error)

	// ListRecent retrieves records newest first with pagination
	ListRecent(ctx context.Context, limit, offset int) ([]*models.GenerationRecord, error)

	// CountByStatus counts records created at or after since, grouped by status
	CountByStatus(ctx context.Context, since time.Time) (map[models.GenerationStatus]int, error)
}

// Repositories aggregates all repository interfaces
type Repositories struct {
	Generations GenerationRepository
}
