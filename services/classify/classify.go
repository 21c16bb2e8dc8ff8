package classify

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/upb/model-router/services/providers"
)

// Category is the closed set of failure kinds a provider call can end in.
type Category string

const (
	RateLimited        Category = "RATE_LIMITED"
	InsufficientCredit Category = "INSUFFICIENT_CREDIT"
	ModelNotFound      Category = "MODEL_NOT_FOUND"
	QuotaExceeded      Category = "QUOTA_EXCEEDED"
	NetworkTransient   Category = "NETWORK_TRANSIENT"
	Timeout            Category = "TIMEOUT"
	NoContent          Category = "NO_CONTENT"
	FatalAPIError      Category = "FATAL_API_ERROR"
)

var retryable = map[Category]bool{
	RateLimited:        true,
	InsufficientCredit: false,
	ModelNotFound:      false,
	QuotaExceeded:      false,
	NetworkTransient:   true,
	Timeout:            true,
	NoContent:          false,
	FatalAPIError:      false,
}

// Categories returns every category in classification priority order
func Categories() []Category {
	return []Category{
		RateLimited,
		InsufficientCredit,
		ModelNotFound,
		QuotaExceeded,
		NetworkTransient,
		Timeout,
		NoContent,
		FatalAPIError,
	}
}

// Retryable reports whether a failure in this category may succeed on retry
func (c Category) Retryable() bool {
	return retryable[c]
}

func (c Category) String() string {
	return string(c)
}

var quotaCodes = []string{"quota-exceeded", "quota_exceeded", "insufficient_quota"}

var networkMarkers = []string{
	"fetch failed",
	"network",
	"econnrefused",
	"connection refused",
	"connection reset",
	"no such host",
	"dial tcp",
	"broken pipe",
}

// RawFailure holds the signals extracted from a failed provider call.
type RawFailure struct {
	Model      string
	StatusCode int
	Code       string
	Message    string
	Timeout    bool
	Empty      bool
}

// Classification is the outcome of Classify.
type Classification struct {
	Category  Category
	Retryable bool
	Message   string
}

// Classify maps a raw failure to its category. Signals are checked in a fixed
// priority order, so an HTTP 429 carrying a quota code is still RATE_LIMITED.
func Classify(raw RawFailure) Classification {
	category := categorize(raw)
	return Classification{
		Category:  category,
		Retryable: category.Retryable(),
		Message:   Describe(category, raw.Model),
	}
}

func categorize(raw RawFailure) Category {
	switch raw.StatusCode {
	case http.StatusTooManyRequests:
		return RateLimited
	case http.StatusPaymentRequired:
		return InsufficientCredit
	case http.StatusNotFound:
		return ModelNotFound
	}

	code := strings.ToLower(raw.Code)
	for _, c := range quotaCodes {
		if code == c {
			return QuotaExceeded
		}
	}

	msg := strings.ToLower(raw.Message)
	for _, marker := range networkMarkers {
		if strings.Contains(msg, marker) {
			return NetworkTransient
		}
	}

	if raw.Timeout {
		return Timeout
	}
	if raw.Empty {
		return NoContent
	}
	return FatalAPIError
}

// Describe returns the user-facing message for a category
func Describe(category Category, model string) string {
	switch category {
	case RateLimited:
		return fmt.Sprintf("Rate limit exceeded for %s. Please check your API quota.", model)
	case InsufficientCredit:
		return fmt.Sprintf("Insufficient credits for %s. Please add funds to your account.", model)
	case ModelNotFound:
		return fmt.Sprintf("Model %s not found or not accessible.", model)
	case QuotaExceeded:
		return fmt.Sprintf("API quota exceeded for %s. Please upgrade your plan.", model)
	case NetworkTransient:
		return fmt.Sprintf("Network error while contacting %s.", model)
	case Timeout:
		return fmt.Sprintf("Request to %s timed out.", model)
	case NoContent:
		return fmt.Sprintf("No response content from %s.", model)
	default:
		return fmt.Sprintf("Unrecoverable API error from %s.", model)
	}
}

// FromError extracts classification signals from an error returned by a provider.
func FromError(model string, err error) RawFailure {
	raw := RawFailure{Model: model}
	if err == nil {
		raw.Empty = true
		return raw
	}

	raw.Message = err.Error()

	var provErr *providers.ProviderError
	if errors.As(err, &provErr) {
		raw.StatusCode = provErr.StatusCode
		raw.Code = provErr.Code
	}

	if errors.Is(err, context.DeadlineExceeded) {
		raw.Timeout = true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		raw.Timeout = true
	}

	return raw
}

// Failure is a classified provider failure for one model.
type Failure struct {
	Model    string
	Category Category
	Message  string
	Cause    error
}

// NewFailure classifies raw and wraps cause
func NewFailure(raw RawFailure, cause error) *Failure {
	c := Classify(raw)
	return &Failure{
		Model:    raw.Model,
		Category: c.Category,
		Message:  c.Message,
		Cause:    cause,
	}
}

// Error implements the error interface. Only the classified message is exposed.
func (f *Failure) Error() string {
	return f.Message
}

// Unwrap implements error unwrapping
func (f *Failure) Unwrap() error {
	return f.Cause
}

// Retryable reports whether the failure's category is retryable
func (f *Failure) Retryable() bool {
	return f.Category.Retryable()
}

// CategoryOf returns the category of err when it is a *Failure
func CategoryOf(err error) (Category, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f.Category, true
	}
	return "", false
}
