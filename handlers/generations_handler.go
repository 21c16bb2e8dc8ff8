package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/upb/model-router/models"
	"github.com/upb/model-router/repositories"
	"github.com/upb/model-router/services"
	"github.com/upb/model-router/utils"
	"go.uber.org/zap"
)

const (
	defaultPageSize    = 20
	maxPageSize        = 100
	defaultStatsWindow = 24 * time.Hour
)

// GenerationReader reads persisted generation records
type GenerationReader interface {
	GetByRequestID(ctx context.Context, requestID string) (*models.GenerationRecord, error)
	ListRecent(ctx context.Context, limit, offset int) ([]*models.GenerationRecord, error)
	CountByStatus(ctx context.Context, since time.Time) (map[models.GenerationStatus]int, error)
}

// GenerationsHandler serves the generation audit trail
type GenerationsHandler struct {
	reader GenerationReader
	logger *zap.Logger
	now    func() time.Time
}

// GenerationPage is the response of GET /api/v1/generations
type GenerationPage struct {
	Records []*models.GenerationRecord `json:"records"`
	Limit   int                        `json:"limit"`
	Offset  int                        `json:"offset"`
}

// GenerationStats is the response of GET /api/v1/generations/stats
type GenerationStats struct {
	Since  time.Time                       `json:"since"`
	Counts map[models.GenerationStatus]int `json:"counts"`
}

// NewGenerationsHandler creates a new GenerationsHandler
func NewGenerationsHandler(reader GenerationReader, logger *zap.Logger) *GenerationsHandler {
	return &GenerationsHandler{
		reader: reader,
		logger: logger,
		now:    time.Now,
	}
}

// HandleList handles GET /api/v1/generations?limit=&offset=
func (h *GenerationsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultPageSize, 1, maxPageSize)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	offset, err := queryInt(r, "offset", 0, 0, -1)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	records, err := h.reader.ListRecent(r.Context(), limit, offset)
	if err != nil {
		HandleServiceError(w, services.WrapInternal("failed to list generations", err), h.logger)
		return
	}
	if records == nil {
		records = []*models.GenerationRecord{}
	}

	h.write(w, GenerationPage{Records: records, Limit: limit, Offset: offset})
}

// HandleGet handles GET /api/v1/generations/{requestID}
func (h *GenerationsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "requestID")

	rec, err := h.reader.GetByRequestID(r.Context(), requestID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			HandleServiceError(w, services.NewDomainError(services.ErrorTypeNotFound, "generation not found", err).
				WithDetail("request_id", requestID), h.logger)
			return
		}
		HandleServiceError(w, services.WrapInternal("failed to load generation", err), h.logger)
		return
	}

	h.write(w, rec)
}

// HandleStats handles GET /api/v1/generations/stats?window=24h
func (h *GenerationsHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	window := defaultStatsWindow
	if raw := r.URL.Query().Get("window"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			HandleServiceError(w, services.NewDomainError(services.ErrorTypeValidation, "window must be a positive duration", err).
				WithDetail("window", raw), h.logger)
			return
		}
		window = d
	}

	since := h.now().Add(-window).UTC()
	counts, err := h.reader.CountByStatus(r.Context(), since)
	if err != nil {
		HandleServiceError(w, services.WrapInternal("failed to count generations", err), h.logger)
		return
	}

	h.write(w, GenerationStats{Since: since, Counts: counts})
}

func (h *GenerationsHandler) write(w http.ResponseWriter, data interface{}) {
	if err := utils.WriteOK(w, data); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}

// queryInt parses an optional integer query parameter. A negative max means unbounded.
func queryInt(r *http.Request, key string, def, min, max int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < min || (max >= 0 && v > max) {
		return 0, services.NewDomainError(services.ErrorTypeValidation, "invalid "+key+" parameter", err).
			WithDetail(key, raw)
	}
	return v, nil
}
