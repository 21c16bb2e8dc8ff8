package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/upb/model-router/middleware"
	"github.com/upb/model-router/services"
	"github.com/upb/model-router/services/generation"
	"github.com/upb/model-router/utils"
	"go.uber.org/zap"
)

// MockGenerationService is a mock implementation of GenerationService
type MockGenerationService struct {
	mock.Mock
}

func (m *MockGenerationService) Generate(ctx context.Context, req generation.Request) (*generation.Response, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*generation.Response), args.Error(1)
}

func newGenerateRequest(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/generate", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req.WithContext(middleware.WithRequestID(req.Context(), "req-1"))
}

func TestHandleGenerate(t *testing.T) {
	logger := zap.NewNop()

	t.Run("successful generation", func(t *testing.T) {
		mockService := new(MockGenerationService)
		handler := NewGenerateHandler(mockService, logger)

		mockService.On("Generate", mock.Anything, generation.Request{
			RequestID:       "req-1",
			Prompt:          "Hello",
			Model:           "openai__gpt-4",
			MaxOuterRetries: 2,
		}).Return(&generation.Response{
			RequestID: "req-1",
			Content:   "Hi there",
			ModelUsed: "anthropic__claude-3-haiku",
			Rounds:    1,
			Attempts:  2,
			LatencyMs: 120,
		}, nil)

		w := httptest.NewRecorder()
		handler.HandleGenerate(w, newGenerateRequest(`{"prompt":"Hello","model":"openai__gpt-4","max_outer_retries":2}`))

		assert.Equal(t, http.StatusOK, w.Code)

		var response struct {
			Data generation.Response `json:"data"`
		}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		assert.Equal(t, "Hi there", response.Data.Content)
		assert.Equal(t, "anthropic__claude-3-haiku", response.Data.ModelUsed)
		assert.Equal(t, 2, response.Data.Attempts)
		assert.Equal(t, "req-1", response.Data.RequestID)

		mockService.AssertExpectations(t)
	})

	t.Run("model is optional", func(t *testing.T) {
		mockService := new(MockGenerationService)
		handler := NewGenerateHandler(mockService, logger)

		mockService.On("Generate", mock.Anything, mock.MatchedBy(func(req generation.Request) bool {
			return req.Model == "" && req.Prompt == "Hello"
		})).Return(&generation.Response{Content: "ok", ModelUsed: "google__gemini-flash"}, nil)

		w := httptest.NewRecorder()
		handler.HandleGenerate(w, newGenerateRequest(`{"prompt":"Hello"}`))

		assert.Equal(t, http.StatusOK, w.Code)
		mockService.AssertExpectations(t)
	})

	t.Run("invalid request body", func(t *testing.T) {
		mockService := new(MockGenerationService)
		handler := NewGenerateHandler(mockService, logger)

		w := httptest.NewRecorder()
		handler.HandleGenerate(w, newGenerateRequest(`{invalid json}`))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		mockService.AssertNotCalled(t, "Generate")
	})

	t.Run("unknown field rejected", func(t *testing.T) {
		mockService := new(MockGenerationService)
		handler := NewGenerateHandler(mockService, logger)

		w := httptest.NewRecorder()
		handler.HandleGenerate(w, newGenerateRequest(`{"prompt":"Hello","temperature":0.2}`))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		mockService.AssertNotCalled(t, "Generate")
	})

	t.Run("validation error", func(t *testing.T) {
		mockService := new(MockGenerationService)
		handler := NewGenerateHandler(mockService, logger)

		w := httptest.NewRecorder()
		handler.HandleGenerate(w, newGenerateRequest(`{"model":"gpt-4"}`))

		assert.Equal(t, http.StatusBadRequest, w.Code)

		var response utils.ErrorResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		assert.Equal(t, "Validation failed", response.Message)
		assert.Contains(t, response.Details, "prompt")
		assert.Contains(t, response.Details, "model")
		mockService.AssertNotCalled(t, "Generate")
	})

	t.Run("service errors map to status codes", func(t *testing.T) {
		tests := []struct {
			name   string
			err    error
			status int
		}{
			{name: "unknown model", err: services.WrapError(services.ErrorTypeNotFound, "model not found", nil), status: http.StatusNotFound},
			{name: "blank prompt", err: services.ErrEmptyPrompt, status: http.StatusBadRequest},
			{name: "no credentials", err: services.WrapError(services.ErrorTypeUnavailable, "no model available", nil), status: http.StatusServiceUnavailable},
			{name: "all models failed", err: services.WrapExternal("all models failed", nil), status: http.StatusBadGateway},
			{name: "timeout", err: services.WrapError(services.ErrorTypeTimeout, "request timed out", context.DeadlineExceeded), status: http.StatusGatewayTimeout},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				mockService := new(MockGenerationService)
				handler := NewGenerateHandler(mockService, logger)
				mockService.On("Generate", mock.Anything, mock.Anything).Return(nil, tt.err)

				w := httptest.NewRecorder()
				handler.HandleGenerate(w, newGenerateRequest(`{"prompt":"  "}`))

				assert.Equal(t, tt.status, w.Code)
			})
		}
	})
}
