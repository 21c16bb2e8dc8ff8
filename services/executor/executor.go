package executor

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/upb/model-router/internal/observability"
	"github.com/upb/model-router/services/classify"
	"github.com/upb/model-router/services/providers"
)

// MaxBackoff caps the exponential part of the delay between attempts
const MaxBackoff = time.Minute

// Config holds retry and timeout settings for a single model.
type Config struct {
	// MaxAttempts is the number of calls made before giving up (at least 1)
	MaxAttempts int

	// BaseDelay is the backoff unit; attempt n waits BaseDelay * 2^n, up to MaxBackoff
	BaseDelay time.Duration

	// TimeoutPerAttempt bounds each provider call
	TimeoutPerAttempt time.Duration

	// MaxJitter is the upper bound of the random delay added to each backoff
	MaxJitter time.Duration
}

// DefaultConfig returns the default executor configuration
func DefaultConfig() Config {
	return Config{
		MaxAttempts:       3,
		BaseDelay:         1 * time.Second,
		TimeoutPerAttempt: 30 * time.Second,
		MaxJitter:         1 * time.Second,
	}
}

// Validate checks the configuration
func (c Config) Validate() error {
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least 1, got %d", c.MaxAttempts)
	}
	if c.TimeoutPerAttempt <= 0 {
		return errors.New("timeout per attempt must be positive")
	}
	if c.BaseDelay < 0 || c.MaxJitter < 0 {
		return errors.New("backoff delays must not be negative")
	}
	return nil
}

// Call identifies one model invocation.
type Call struct {
	// ModelID is the registry ID used in logs, metrics and failure messages
	ModelID string

	// Provider serves the model
	Provider providers.Provider

	// Request is forwarded to the provider on every attempt
	Request providers.Request
}

// Executor invokes a single model with per-attempt timeouts and
// exponential backoff between retryable failures.
type Executor struct {
	config  Config
	logger  *zap.Logger
	metrics observability.Metrics

	// jitter returns a random duration in [0, max)
	jitter func(max time.Duration) time.Duration
	sleep  func(ctx context.Context, d time.Duration) error
}

// Option configures an Executor
type Option func(*Executor)

// WithMetrics sets the metrics sink
func WithMetrics(m observability.Metrics) Option {
	return func(e *Executor) {
		if m != nil {
			e.metrics = m
		}
	}
}

// WithJitter overrides the jitter source
func WithJitter(fn func(max time.Duration) time.Duration) Option {
	return func(e *Executor) {
		e.jitter = fn
	}
}

// WithSleep overrides the backoff sleep
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Executor) {
		e.sleep = fn
	}
}

// New creates an executor
func New(config Config, logger *zap.Logger, opts ...Option) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Executor{
		config:  config,
		logger:  logger,
		metrics: observability.NopMetrics{},
		jitter:  randomJitter,
		sleep:   sleepContext,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Config returns the executor configuration
func (e *Executor) Config() Config {
	return e.config
}

// WithConfig returns a copy of the executor using config. An invalid config
// is rejected and the receiver is left unchanged.
func (e *Executor) WithConfig(config Config) (*Executor, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid executor config: %w", err)
	}
	clone := *e
	clone.config = config
	return &clone, nil
}

// Call invokes the provider until it succeeds, fails with a non-retryable
// category, or runs out of attempts. Failures are returned as
// *classify.Failure. If the caller's context ends, its error is returned
// unchanged.
func (e *Executor) Call(ctx context.Context, call Call) (string, error) {
	attempts := e.config.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastFailure *classify.Failure
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		start := time.Now()
		text, err := e.attempt(ctx, call)
		duration := time.Since(start)

		if err == nil && text != "" {
			e.metrics.RecordAttempt(ctx, e.labels(call, observability.OutcomeSuccess), duration)
			e.logger.Debug("provider call succeeded",
				zap.String("model", call.ModelID),
				zap.Int("attempt", attempt+1),
				zap.Duration("duration", duration))
			return text, nil
		}

		// Caller cancellation wins over whatever the provider returned
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}

		lastFailure = classify.NewFailure(classify.FromError(call.ModelID, err), err)
		e.metrics.RecordAttempt(ctx, e.labels(call, lastFailure.Category.String()), duration)

		fields := []zap.Field{
			zap.String("model", call.ModelID),
			zap.String("provider", call.Provider.Name()),
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", attempts),
			zap.String("category", lastFailure.Category.String()),
			zap.Duration("duration", duration),
		}
		if err != nil {
			fields = append(fields, zap.Error(err))
		}

		if !lastFailure.Retryable() || attempt == attempts-1 {
			e.logger.Warn("provider call failed", fields...)
			return "", lastFailure
		}

		delay := e.backoff(attempt)
		e.logger.Info("provider call failed, retrying", append(fields, zap.Duration("backoff", delay))...)

		if err := e.sleep(ctx, delay); err != nil {
			return "", err
		}
	}

	return "", lastFailure
}

// attempt runs one provider call bounded by TimeoutPerAttempt. The provider
// runs in its own goroutine so a provider that ignores its context still
// cannot hold the caller past the deadline.
func (e *Executor) attempt(ctx context.Context, call Call) (string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, e.config.TimeoutPerAttempt)
	defer cancel()

	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)

	go func() {
		text, err := call.Provider.Invoke(attemptCtx, call.Request)
		done <- result{text: text, err: err}
	}()

	select {
	case r := <-done:
		return r.text, r.err
	case <-attemptCtx.Done():
		return "", attemptCtx.Err()
	}
}

// backoff returns BaseDelay * 2^attempt, capped at MaxBackoff, plus jitter
func (e *Executor) backoff(attempt int) time.Duration {
	delay := e.config.BaseDelay
	for i := 0; i < attempt && delay > 0 && delay < MaxBackoff; i++ {
		delay *= 2
	}
	if delay > MaxBackoff {
		delay = MaxBackoff
	}
	if e.config.MaxJitter > 0 {
		delay += e.jitter(e.config.MaxJitter)
	}
	return delay
}

func (e *Executor) labels(call Call, outcome string) observability.AttemptLabels {
	return observability.AttemptLabels{
		Model:    call.ModelID,
		Provider: call.Provider.Name(),
		Outcome:  outcome,
	}
}

func randomJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(max)))
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
