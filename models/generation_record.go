package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// GenerationStatus represents the outcome of a generate request
type GenerationStatus string

const (
	GenerationStatusSucceeded GenerationStatus = "succeeded"
	GenerationStatusFailed    GenerationStatus = "failed"
	GenerationStatusCanceled  GenerationStatus = "canceled"
)

// GenerationRecord is the audit row written for every generate request
type GenerationRecord struct {
	ID             uuid.UUID        `json:"id" db:"id"`
	RequestID      string           `json:"request_id" db:"request_id"`
	PreferredModel string           `json:"preferred_model" db:"preferred_model"`
	ModelUsed      *string          `json:"model_used,omitempty" db:"model_used"`
	Status         GenerationStatus `json:"status" db:"status"`

	// Routing details
	Rounds   int             `json:"rounds" db:"rounds"`
	Attempts int             `json:"attempts" db:"attempts"`
	Trail    json.RawMessage `json:"trail,omitempty" db:"trail"` // Per-model attempt log

	// Metrics
	PromptChars int `json:"prompt_chars" db:"prompt_chars"`
	LatencyMs   int `json:"latency_ms" db:"latency_ms"`

	// Error handling
	LastCategory *string `json:"last_category,omitempty" db:"last_category"`
	ErrorMessage *string `json:"error_message,omitempty" db:"error_message"`

	// Timestamps
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`
}

// TableName returns the table name for the GenerationRecord model
func (GenerationRecord) TableName() string {
	return "generation_records"
}

// NewGenerationRecord creates a record for a request that has just started
func NewGenerationRecord(requestID, preferredModel string, promptChars int) *GenerationRecord {
	if requestID == "" {
		requestID = uuid.New().String()
	}
	return &GenerationRecord{
		ID:             uuid.New(),
		RequestID:      requestID,
		PreferredModel: preferredModel,
		PromptChars:    promptChars,
		CreatedAt:      time.Now(),
	}
}

// MarkAsSucceeded records the model that produced content
func (r *GenerationRecord) MarkAsSucceeded(modelUsed string, rounds, attempts int, latency time.Duration) {
	r.Status = GenerationStatusSucceeded
	r.ModelUsed = &modelUsed
	r.complete(rounds, attempts, latency)
}

// MarkAsFailed records the last failure category and message
func (r *GenerationRecord) MarkAsFailed(category, message string, rounds, attempts int, latency time.Duration) {
	r.Status = GenerationStatusFailed
	if category != "" {
		r.LastCategory = &category
	}
	r.ErrorMessage = &message
	r.complete(rounds, attempts, latency)
}

// MarkAsCanceled records that the caller went away before a result
func (r *GenerationRecord) MarkAsCanceled(reason string, latency time.Duration) {
	r.Status = GenerationStatusCanceled
	r.ErrorMessage = &reason
	r.complete(r.Rounds, r.Attempts, latency)
}

// SetTrail stores the per-model attempt log as JSON
func (r *GenerationRecord) SetTrail(trail interface{}) {
	if data, err := json.Marshal(trail); err == nil {
		r.Trail = data
	}
}

func (r *GenerationRecord) complete(rounds, attempts int, latency time.Duration) {
	r.Rounds = rounds
	r.Attempts = attempts
	r.LatencyMs = int(latency.Milliseconds())
	now := time.Now()
	r.CompletedAt = &now
}
