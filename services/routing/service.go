package routing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/upb/model-router/internal/observability"
	"github.com/upb/model-router/services/classify"
	"github.com/upb/model-router/services/executor"
	"github.com/upb/model-router/services/fallback"
	"github.com/upb/model-router/services/health"
	"github.com/upb/model-router/services/providers"
	"github.com/upb/model-router/services/registry"
)

var (
	// ErrAllModelsFailed is returned (wrapped in AggregateFailure) when every
	// attempted model failed in every round
	ErrAllModelsFailed = errors.New("all models failed after maximum retries")

	// ErrNoEligibleModel is returned (wrapped in AggregateFailure) when every
	// model in the chain lacks its credential
	ErrNoEligibleModel = errors.New("no eligible model: required API keys are not configured")
)

// Status messages reported for unavailable models
const (
	StatusMissingCredential = "API key not configured"
	StatusRecentError       = "Recent API error"
)

// Credentials decides whether a model's credential requirement is satisfied
type Credentials interface {
	Eligible(d registry.ModelDescriptor) bool
}

// RoutingConfig holds configuration for the routing service
type RoutingConfig struct {
	// Executor configures per-model retries and timeouts
	Executor executor.Config

	// MaxOuterRetries is the number of passes over the fallback chain
	MaxOuterRetries int

	// OuterBackoff is the linear delay unit between passes
	OuterBackoff time.Duration

	// DeprioritizeUnhealthy moves models marked unhealthy to the end of the chain
	DeprioritizeUnhealthy bool
}

// DefaultRoutingConfig returns a sensible default configuration
func DefaultRoutingConfig() RoutingConfig {
	return RoutingConfig{
		Executor:        executor.DefaultConfig(),
		MaxOuterRetries: 3,
		OuterBackoff:    1 * time.Second,
	}
}

// Validate checks the configuration
func (c RoutingConfig) Validate() error {
	if c.MaxOuterRetries < 1 {
		return fmt.Errorf("max outer retries must be at least 1, got %d", c.MaxOuterRetries)
	}
	if c.OuterBackoff < 0 {
		return errors.New("outer backoff must not be negative")
	}
	return c.Executor.Validate()
}

// AttemptResult is the outcome of one executor call for one model
type AttemptResult struct {
	ModelID   string            `json:"model_id"`
	Round     int               `json:"round"`
	Succeeded bool              `json:"succeeded"`
	Content   string            `json:"-"`
	Category  classify.Category `json:"category,omitempty"`
	Message   string            `json:"message,omitempty"`
}

// Result is a successful generation
type Result struct {
	Content   string
	ModelUsed string
	Attempts  []AttemptResult
	Rounds    int
}

// AggregateFailure is returned when no model produced content
type AggregateFailure struct {
	LastModel    string
	LastCategory classify.Category
	LastMessage  string
	Rounds       int
	PerModel     map[string]AttemptResult
	Attempts     []AttemptResult
}

// Error implements the error interface
func (e *AggregateFailure) Error() string {
	if e.LastModel == "" {
		return ErrNoEligibleModel.Error()
	}
	return fmt.Sprintf("%s (%d rounds); last model %s failed with %s: %s",
		ErrAllModelsFailed, e.Rounds, e.LastModel, e.LastCategory, e.LastMessage)
}

// Unwrap returns the matching sentinel
func (e *AggregateFailure) Unwrap() error {
	if e.LastModel == "" {
		return ErrNoEligibleModel
	}
	return ErrAllModelsFailed
}

// ModelStatus is the diagnostic view of one model
type ModelStatus struct {
	Available    bool              `json:"available"`
	LastError    string            `json:"last_error,omitempty"`
	LastCategory classify.Category `json:"last_category,omitempty"`
	LastUsedAt   *time.Time        `json:"last_used_at,omitempty"`
}

// RoutingService sends a prompt through the fallback chain of a preferred model
type RoutingService struct {
	config      RoutingConfig
	models      *registry.Registry
	providers   *providers.Registry
	credentials Credentials
	tracker     *health.Tracker
	resolver    *fallback.Resolver
	executor    *executor.Executor
	logger      *zap.Logger
	metrics     observability.Metrics
	sleep       func(ctx context.Context, d time.Duration) error
}

// Option configures a RoutingService
type Option func(*RoutingService)

// WithMetrics sets the metrics sink for the router and its executor
func WithMetrics(m observability.Metrics) Option {
	return func(s *RoutingService) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithSleep overrides the sleep used for outer and executor backoff
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(s *RoutingService) {
		s.sleep = fn
	}
}

// NewRoutingService creates a new routing service. The tracker is owned by the
// caller so it can be shared with diagnostics.
func NewRoutingService(
	config RoutingConfig,
	models *registry.Registry,
	provs *providers.Registry,
	creds Credentials,
	tracker *health.Tracker,
	logger *zap.Logger,
	opts ...Option,
) *RoutingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if tracker == nil {
		tracker = health.NewTracker()
	}

	s := &RoutingService{
		config:      config,
		models:      models,
		providers:   provs,
		credentials: creds,
		tracker:     tracker,
		resolver:    fallback.NewResolver(models),
		logger:      logger,
		metrics:     observability.NopMetrics{},
		sleep:       sleepContext,
	}
	for _, opt := range opts {
		opt(s)
	}

	execOpts := []executor.Option{executor.WithMetrics(s.metrics)}
	if s.sleep != nil {
		execOpts = append(execOpts, executor.WithSleep(s.sleep))
	}
	s.executor = executor.New(config.Executor, logger, execOpts...)

	return s
}

// GenerateOption overrides routing settings for one request
type GenerateOption func(*generateSettings)

type generateSettings struct {
	maxOuterRetries int
	executor        *executor.Config
}

// WithMaxOuterRetries overrides the number of passes over the chain
func WithMaxOuterRetries(n int) GenerateOption {
	return func(s *generateSettings) {
		if n > 0 {
			s.maxOuterRetries = n
		}
	}
}

// WithExecutorConfig overrides per-model retry and timeout settings. Settings
// that fail executor.Config.Validate are ignored.
func WithExecutorConfig(cfg executor.Config) GenerateOption {
	return func(s *generateSettings) {
		s.executor = &cfg
	}
}

// Generate tries the preferred model and its fallbacks until one returns
// content. Models whose credential is missing are skipped without an attempt.
// When a whole pass fails the chain is retried after a linear backoff, up to
// MaxOuterRetries passes. Caller cancellation is returned as the context error.
func (s *RoutingService) Generate(ctx context.Context, prompt, preferred string, opts ...GenerateOption) (*Result, error) {
	settings := generateSettings{maxOuterRetries: s.config.MaxOuterRetries}
	for _, opt := range opts {
		opt(&settings)
	}
	if settings.maxOuterRetries < 1 {
		settings.maxOuterRetries = 1
	}

	exec := s.executor
	if settings.executor != nil {
		custom, err := s.executor.WithConfig(*settings.executor)
		if err != nil {
			s.logger.Warn("ignoring per-request executor settings", zap.Error(err))
		} else {
			exec = custom
		}
	}

	var (
		attempts []AttemptResult
		perModel = make(map[string]AttemptResult)
		last     *AttemptResult
	)

	for round := 0; round < settings.maxOuterRetries; round++ {
		chain := s.resolver.Resolve(preferred)
		if s.config.DeprioritizeUnhealthy {
			chain = fallback.HealthyFirst(chain, s.tracker)
		}

		logger := s.logger.With(zap.String("preferred", preferred), zap.Int("round", round+1))
		logger.Debug("resolved fallback chain", zap.Strings("chain", chain))

		eligible := 0
		for _, id := range chain {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			desc, err := s.models.Describe(id)
			if err == nil && !s.credentials.Eligible(desc) {
				logger.Debug("skipping model without credential",
					zap.String("model", id),
					zap.String("provider", string(desc.Provider)))
				s.metrics.RecordSkipped(ctx, id, string(desc.Provider))
				continue
			}
			eligible++

			text, err := s.invoke(ctx, exec, id, desc, err, prompt)
			if err == nil {
				s.tracker.RecordSuccess(id)
				s.metrics.RecordModelHealth(ctx, id, true)

				attempts = append(attempts, AttemptResult{ModelID: id, Round: round + 1, Succeeded: true, Content: text})
				logger.Info("generation succeeded", zap.String("model", id))

				return &Result{
					Content:   text,
					ModelUsed: id,
					Attempts:  attempts,
					Rounds:    round + 1,
				}, nil
			}

			var failure *classify.Failure
			if !errors.As(err, &failure) {
				// caller cancellation or deadline
				return nil, err
			}

			if desc.ID != "" {
				s.tracker.RecordFailure(id, failure.Category)
				s.metrics.RecordModelHealth(ctx, id, false)
			}

			result := AttemptResult{
				ModelID:  id,
				Round:    round + 1,
				Category: failure.Category,
				Message:  failure.Message,
			}
			attempts = append(attempts, result)
			perModel[id] = result
			last = &result

			logger.Warn("model failed, advancing chain",
				zap.String("model", id),
				zap.String("category", failure.Category.String()))
		}

		if eligible == 0 {
			logger.Warn("no model in chain has a configured credential")
			return nil, &AggregateFailure{Rounds: round + 1, PerModel: perModel, Attempts: attempts}
		}

		if round < settings.maxOuterRetries-1 {
			delay := s.config.OuterBackoff * time.Duration(round+1)
			logger.Info("all models in chain failed, backing off", zap.Duration("backoff", delay))
			if err := s.sleep(ctx, delay); err != nil {
				return nil, err
			}
		}
	}

	failure := &AggregateFailure{
		Rounds:   settings.maxOuterRetries,
		PerModel: perModel,
		Attempts: attempts,
	}
	if last != nil {
		failure.LastModel = last.ModelID
		failure.LastCategory = last.Category
		failure.LastMessage = last.Message
	}
	s.logger.Error("all models failed",
		zap.String("preferred", preferred),
		zap.String("last_model", failure.LastModel),
		zap.String("category", failure.LastCategory.String()),
		zap.Int("rounds", failure.Rounds),
		zap.String("attempts", failure.Summary()))

	return nil, failure
}

// invoke calls one model through the executor. Unknown models and missing
// provider adapters fail without reaching a provider.
func (s *RoutingService) invoke(ctx context.Context, exec *executor.Executor, id string, desc registry.ModelDescriptor, describeErr error, prompt string) (string, error) {
	if describeErr != nil {
		return "", classify.NewFailure(classify.RawFailure{Model: id, StatusCode: 404}, describeErr)
	}

	provider, err := s.providers.Get(desc.Provider)
	if err != nil {
		return "", classify.NewFailure(classify.FromError(id, err), err)
	}

	return exec.Call(ctx, executor.Call{
		ModelID:  id,
		Provider: provider,
		Request: providers.Request{
			ModelName: desc.ModelName,
			Prompt:    prompt,
			MaxTokens: desc.MaxTokens,
		},
	})
}

// ListAvailableModels returns, in registry order, the models whose credential
// requirement is satisfied
func (s *RoutingService) ListAvailableModels() []string {
	var ids []string
	for _, d := range s.models.ListAll() {
		if s.credentials.Eligible(d) {
			ids = append(ids, d.ID)
		}
	}
	return ids
}

// StatusReport combines credential availability and advisory health per model
func (s *RoutingService) StatusReport() map[string]ModelStatus {
	report := make(map[string]ModelStatus, s.models.Len())
	for _, d := range s.models.ListAll() {
		hasKey := s.credentials.Eligible(d)
		rec, seen := s.tracker.Get(d.ID)
		healthy := !seen || rec.Healthy

		status := ModelStatus{Available: hasKey && healthy}
		switch {
		case !hasKey:
			status.LastError = StatusMissingCredential
		case !healthy:
			status.LastError = StatusRecentError
		}
		if seen {
			status.LastCategory = rec.LastCategory
			status.LastUsedAt = rec.LastUsedAt
		}
		report[d.ID] = status
	}
	return report
}

// Describe returns the descriptor of a registered model
func (s *RoutingService) Describe(id string) (registry.ModelDescriptor, error) {
	return s.models.Describe(id)
}

// HealthSnapshot returns the tracker's records
func (s *RoutingService) HealthSnapshot() map[string]health.Record {
	return s.tracker.Snapshot()
}

// Summary renders the per-model failures of an aggregate for logs
func (e *AggregateFailure) Summary() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("r%d:%s=%s", a.Round, a.ModelID, a.Category))
	}
	return strings.Join(parts, ", ")
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
