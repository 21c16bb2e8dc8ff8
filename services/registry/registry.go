package registry

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// IDSeparator splits a model ID into its provider and provider-native model name.
const IDSeparator = "__"

var (
	// ErrModelNotFound is returned when a model ID is not in the registry
	ErrModelNotFound = errors.New("model not found")

	// ErrInvalidDescriptor is returned when a descriptor fails validation
	ErrInvalidDescriptor = errors.New("invalid model descriptor")

	// ErrDuplicateModel is returned when the same model ID is declared twice
	ErrDuplicateModel = errors.New("duplicate model id")

	// ErrDanglingFallback is returned when a fallback references an unknown model
	ErrDanglingFallback = errors.New("fallback references unknown model")
)

//go:embed models.yaml
var defaultTable []byte

var validate = validator.New()

// Provider identifies an upstream text-generation platform.
type Provider string

const (
	ProviderGoogle     Provider = "google"
	ProviderOpenAI     Provider = "openai"
	ProviderAnthropic  Provider = "anthropic"
	ProviderDeepSeek   Provider = "deepseek"
	ProviderOpenRouter Provider = "openrouter"
	ProviderOllama     Provider = "ollama"
)

// Providers returns every supported provider tag.
func Providers() []Provider {
	return []Provider{
		ProviderGoogle,
		ProviderOpenAI,
		ProviderAnthropic,
		ProviderDeepSeek,
		ProviderOpenRouter,
		ProviderOllama,
	}
}

// Valid reports whether p is one of the supported providers
func (p Provider) Valid() bool {
	for _, known := range Providers() {
		if p == known {
			return true
		}
	}
	return false
}

// ModelDescriptor describes one routable model.
type ModelDescriptor struct {
	// ID has the form <provider>__<modelName>
	ID string `yaml:"id" json:"id" validate:"required"`

	// Provider that serves this model
	Provider Provider `yaml:"provider" json:"provider" validate:"required"`

	// ModelName is the provider-native model name; derived from ID when empty
	ModelName string `yaml:"model_name,omitempty" json:"model_name"`

	// DisplayName is the human-readable name
	DisplayName string `yaml:"display_name" json:"display_name" validate:"required"`

	// RequiresCredential gates the model on a configured provider credential
	RequiresCredential bool `yaml:"requires_credential" json:"requires_credential"`

	// MaxTokens caps the response length when positive
	MaxTokens int `yaml:"max_tokens,omitempty" json:"max_tokens,omitempty" validate:"gte=0"`

	// Fallbacks lists alternate model IDs in preference order
	Fallbacks []string `yaml:"fallbacks,omitempty" json:"fallbacks,omitempty" validate:"dive,required"`
}

type table struct {
	Models []ModelDescriptor `yaml:"models"`
}

// Registry is an immutable, validated table of model descriptors.
type Registry struct {
	models map[string]ModelDescriptor
	order  []string
}

// New validates descriptors and builds a registry preserving their order.
func New(descriptors []ModelDescriptor) (*Registry, error) {
	r := &Registry{
		models: make(map[string]ModelDescriptor, len(descriptors)),
		order:  make([]string, 0, len(descriptors)),
	}

	for _, d := range descriptors {
		if err := validateDescriptor(&d); err != nil {
			return nil, err
		}
		if _, exists := r.models[d.ID]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateModel, d.ID)
		}
		d.Fallbacks = append([]string(nil), d.Fallbacks...)
		r.models[d.ID] = d
		r.order = append(r.order, d.ID)
	}

	for _, id := range r.order {
		for _, fb := range r.models[id].Fallbacks {
			if _, ok := r.models[fb]; !ok {
				return nil, fmt.Errorf("%w: %s -> %s", ErrDanglingFallback, id, fb)
			}
		}
	}

	return r, nil
}

// Load parses a YAML model table.
func Load(data []byte) (*Registry, error) {
	var t table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse model table: %w", err)
	}
	if len(t.Models) == 0 {
		return nil, fmt.Errorf("%w: model table is empty", ErrInvalidDescriptor)
	}
	return New(t.Models)
}

// LoadFile reads and parses a YAML model table from disk.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model table %s: %w", path, err)
	}
	return Load(data)
}

// Default returns the registry built from the embedded model table.
func Default() (*Registry, error) {
	return Load(defaultTable)
}

// Describe returns the descriptor for id.
func (r *Registry) Describe(id string) (ModelDescriptor, error) {
	d, ok := r.models[id]
	if !ok {
		return ModelDescriptor{}, fmt.Errorf("%w: %s", ErrModelNotFound, id)
	}
	d.Fallbacks = append([]string(nil), d.Fallbacks...)
	return d, nil
}

// Has reports whether id is registered
func (r *Registry) Has(id string) bool {
	_, ok := r.models[id]
	return ok
}

// FirstFallback returns the first declared fallback of id, if any.
func (r *Registry) FirstFallback(id string) (string, bool) {
	d, ok := r.models[id]
	if !ok || len(d.Fallbacks) == 0 {
		return "", false
	}
	return d.Fallbacks[0], true
}

// ListAll returns every descriptor in table order.
func (r *Registry) ListAll() []ModelDescriptor {
	all := make([]ModelDescriptor, 0, len(r.order))
	for _, id := range r.order {
		d := r.models[id]
		d.Fallbacks = append([]string(nil), d.Fallbacks...)
		all = append(all, d)
	}
	return all
}

// Len returns the number of registered models
func (r *Registry) Len() int {
	return len(r.order)
}

// SplitID splits a model ID into provider and model name.
func SplitID(id string) (Provider, string, bool) {
	provider, name, ok := strings.Cut(id, IDSeparator)
	if !ok || provider == "" || name == "" {
		return "", "", false
	}
	return Provider(provider), name, true
}

func validateDescriptor(d *ModelDescriptor) error {
	if err := validate.Struct(d); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidDescriptor, d.ID, err)
	}

	provider, name, ok := SplitID(d.ID)
	if !ok {
		return fmt.Errorf("%w: %s: id must have the form <provider>%s<model>", ErrInvalidDescriptor, d.ID, IDSeparator)
	}
	if !d.Provider.Valid() {
		return fmt.Errorf("%w: %s: unknown provider %q", ErrInvalidDescriptor, d.ID, d.Provider)
	}
	if provider != d.Provider {
		return fmt.Errorf("%w: %s: id prefix does not match provider %q", ErrInvalidDescriptor, d.ID, d.Provider)
	}
	if d.ModelName == "" {
		d.ModelName = name
	}
	return nil
}
