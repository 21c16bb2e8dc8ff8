package handlers

import (
	"context"
	"net/http"

	"github.com/upb/model-router/middleware"
	"github.com/upb/model-router/services/generation"
	"github.com/upb/model-router/utils"
	"go.uber.org/zap"
)

// GenerateRequest is the body of POST /api/v1/generate
type GenerateRequest struct {
	Prompt          string `json:"prompt" validate:"required"`
	Model           string `json:"model,omitempty" validate:"omitempty,model_id"`
	MaxOuterRetries int    `json:"max_outer_retries,omitempty" validate:"gte=0,lte=10"`
}

// GenerationService defines the interface for generate operations
type GenerationService interface {
	Generate(ctx context.Context, req generation.Request) (*generation.Response, error)
}

// GenerateHandler handles generation HTTP requests
type GenerateHandler struct {
	service GenerationService
	logger  *zap.Logger
}

// NewGenerateHandler creates a new GenerateHandler
func NewGenerateHandler(service GenerationService, logger *zap.Logger) *GenerateHandler {
	return &GenerateHandler{
		service: service,
		logger:  logger,
	}
}

// HandleGenerate handles POST /api/v1/generate
func (h *GenerateHandler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	var req GenerateRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		h.logger.Warn("failed to parse request body",
			zap.String("request_id", requestID),
			zap.Error(err))
		HandleValidationError(w, err, h.logger)
		return
	}

	if err := utils.ValidateStruct(&req); err != nil {
		h.logger.Warn("request validation failed",
			zap.String("request_id", requestID),
			zap.Error(err))
		HandleValidationError(w, err, h.logger)
		return
	}

	resp, err := h.service.Generate(ctx, generation.Request{
		RequestID:       requestID,
		Prompt:          req.Prompt,
		Model:           req.Model,
		MaxOuterRetries: req.MaxOuterRetries,
	})
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	if err := utils.WriteOK(w, resp); err != nil {
		h.logger.Error("failed to write response",
			zap.String("request_id", requestID),
			zap.Error(err))
	}
}
