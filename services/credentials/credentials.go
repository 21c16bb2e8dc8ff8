package credentials

import (
	"os"
	"strings"

	"github.com/upb/model-router/services/registry"
)

// Source looks up a configuration value by key.
type Source interface {
	Lookup(key string) (string, bool)
}

// EnvSource reads from the process environment on every lookup.
type EnvSource struct{}

// Lookup implements Source
func (EnvSource) Lookup(key string) (string, bool) {
	return os.LookupEnv(key)
}

// MapSource is a fixed in-memory Source, mostly useful in tests.
type MapSource map[string]string

// Lookup implements Source
func (m MapSource) Lookup(key string) (string, bool) {
	v, ok := m[key]
	return v, ok
}

var providerKeys = map[registry.Provider]string{
	registry.ProviderOpenAI:     "OPENAI_API_KEY",
	registry.ProviderAnthropic:  "ANTHROPIC_API_KEY",
	registry.ProviderDeepSeek:   "DEEPSEEK_API_KEY",
	registry.ProviderOpenRouter: "OPENROUTER_API_KEY",
	registry.ProviderGoogle:     "GEMINI_API_KEY",
}

// KeyFor returns the configuration key holding the credential for a provider.
// Providers that never need a credential return false.
func KeyFor(provider registry.Provider) (string, bool) {
	key, ok := providerKeys[provider]
	return key, ok
}

// Checker answers whether a provider credential is currently configured.
// Values are read through on every call so rotated or removed keys take
// effect without a restart.
type Checker struct {
	source Source
}

// NewChecker creates a checker over source. A nil source reads the environment.
func NewChecker(source Source) *Checker {
	if source == nil {
		source = EnvSource{}
	}
	return &Checker{source: source}
}

// HasCredential reports whether a non-blank credential is configured for provider.
func (c *Checker) HasCredential(provider registry.Provider) bool {
	_, ok := c.Credential(provider)
	return ok
}

// Credential returns the trimmed credential for provider, if configured.
func (c *Checker) Credential(provider registry.Provider) (string, bool) {
	key, ok := KeyFor(provider)
	if !ok {
		return "", false
	}
	value, ok := c.source.Lookup(key)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}
	return value, true
}

// Eligible reports whether a model may be attempted given the configured
// credentials.
func (c *Checker) Eligible(d registry.ModelDescriptor) bool {
	if !d.RequiresCredential {
		return true
	}
	return c.HasCredential(d.Provider)
}
