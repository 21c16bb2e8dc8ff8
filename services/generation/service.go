package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/upb/model-router/internal/observability"
	"github.com/upb/model-router/models"
	"github.com/upb/model-router/services"
	"github.com/upb/model-router/services/registry"
	"github.com/upb/model-router/services/routing"
	"go.uber.org/zap"
)

// Router is the routing surface the service depends on
type Router interface {
	Generate(ctx context.Context, prompt, preferred string, opts ...routing.GenerateOption) (*routing.Result, error)
	Describe(id string) (registry.ModelDescriptor, error)
}

// Recorder receives one audit record per request
type Recorder interface {
	Record(rec *models.GenerationRecord) error
}

// Request is a generate call from a client
type Request struct {
	RequestID       string
	Prompt          string
	Model           string // Empty means the configured default
	MaxOuterRetries int    // Zero means the router default
}

// Response is a successful generation
type Response struct {
	RequestID string                  `json:"request_id"`
	Content   string                  `json:"content"`
	ModelUsed string                  `json:"model_used"`
	Rounds    int                     `json:"rounds"`
	Attempts  int                     `json:"attempts"`
	Trail     []routing.AttemptResult `json:"trail,omitempty"`
	LatencyMs int                     `json:"latency_ms"`
}

// Config holds service settings
type Config struct {
	DefaultModel string
	IncludeTrail bool // Return the per-model attempt log to clients
}

// Service validates generate requests, runs them through the router and
// records the outcome
type Service struct {
	router   Router
	recorder Recorder
	metrics  observability.Metrics
	config   Config
	logger   *zap.Logger
}

// NewService creates a generation service. A nil recorder disables auditing.
func NewService(router Router, recorder Recorder, metrics observability.Metrics, config Config, logger *zap.Logger) *Service {
	if metrics == nil {
		metrics = observability.NopMetrics{}
	}
	return &Service{
		router:   router,
		recorder: recorder,
		metrics:  metrics,
		config:   config,
		logger:   logger,
	}
}

// DefaultModel returns the model used when a request names none
func (s *Service) DefaultModel() string {
	return s.config.DefaultModel
}

// Generate runs one request through the fallback router
func (s *Service) Generate(ctx context.Context, req Request) (*Response, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, services.ErrEmptyPrompt
	}
	if req.MaxOuterRetries < 0 {
		return nil, services.ErrNegativeRetries
	}

	model := req.Model
	if model == "" {
		model = s.config.DefaultModel
	}
	if _, err := s.router.Describe(model); err != nil {
		return nil, services.WrapError(services.ErrorTypeNotFound, fmt.Sprintf("model %q not found", model), err).
			WithDetail("model", model)
	}

	record := models.NewGenerationRecord(req.RequestID, model, len(req.Prompt))
	logger := observability.WithRequestID(s.logger, record.RequestID).With(zap.String("model", model))

	var opts []routing.GenerateOption
	if req.MaxOuterRetries > 0 {
		opts = append(opts, routing.WithMaxOuterRetries(req.MaxOuterRetries))
	}

	start := time.Now()
	result, err := s.router.Generate(ctx, req.Prompt, model, opts...)
	latency := time.Since(start)

	if err != nil {
		domainErr := s.fail(record, err, latency)
		s.metrics.RecordGeneration(ctx, string(record.Status), latency)
		s.audit(logger, record)
		logger.Warn("generation failed", zap.Error(err), zap.Duration("latency", latency))
		return nil, domainErr
	}

	record.MarkAsSucceeded(result.ModelUsed, result.Rounds, len(result.Attempts), latency)
	record.SetTrail(result.Attempts)
	s.metrics.RecordGeneration(ctx, string(record.Status), latency)
	s.audit(logger, record)

	logger.Info("generation completed",
		zap.String("model_used", result.ModelUsed),
		zap.Int("rounds", result.Rounds),
		zap.Int("attempts", len(result.Attempts)),
		zap.Duration("latency", latency))

	resp := &Response{
		RequestID: record.RequestID,
		Content:   result.Content,
		ModelUsed: result.ModelUsed,
		Rounds:    result.Rounds,
		Attempts:  len(result.Attempts),
		LatencyMs: record.LatencyMs,
	}
	if s.config.IncludeTrail {
		resp.Trail = result.Attempts
	}
	return resp, nil
}

// fail marks the record and maps the router error to a DomainError
func (s *Service) fail(record *models.GenerationRecord, err error, latency time.Duration) error {
	var aggregate *routing.AggregateFailure
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		record.MarkAsCanceled(err.Error(), latency)
		return services.WrapError(services.ErrorTypeTimeout, "request canceled or timed out", err).
			WithDetail("request_id", record.RequestID)

	case errors.As(err, &aggregate):
		message := aggregate.LastMessage
		if message == "" {
			message = err.Error()
		}
		record.MarkAsFailed(aggregate.LastCategory.String(), message, aggregate.Rounds, len(aggregate.Attempts), latency)
		record.SetTrail(aggregate.Attempts)

		if errors.Is(err, routing.ErrNoEligibleModel) {
			return services.WrapError(services.ErrorTypeUnavailable, "no model in the fallback chain has a configured API key", err).
				WithDetail("request_id", record.RequestID).
				WithDetail("model", record.PreferredModel)
		}
		return services.WrapExternal(message, err).
			WithDetail("request_id", record.RequestID).
			WithDetail("last_model", aggregate.LastModel).
			WithDetail("last_category", aggregate.LastCategory.String()).
			WithDetail("rounds", aggregate.Rounds).
			WithDetail("attempts", len(aggregate.Attempts))

	default:
		record.MarkAsFailed("", err.Error(), 0, 0, latency)
		return services.WrapInternal("generation failed", err)
	}
}

func (s *Service) audit(logger *zap.Logger, record *models.GenerationRecord) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.Record(record); err != nil {
		logger.Warn("failed to queue generation record", zap.Error(err))
	}
}
