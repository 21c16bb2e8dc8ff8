package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/upb/model-router/services/providers"
	"github.com/upb/model-router/services/registry"
)

// Default endpoints of the OpenAI-compatible platforms served by this adapter
var defaultBaseURLs = map[registry.Provider]string{
	registry.ProviderOpenAI:     "https://api.openai.com/v1",
	registry.ProviderDeepSeek:   "https://api.deepseek.com/v1",
	registry.ProviderOpenRouter: "https://openrouter.ai/api/v1",
	registry.ProviderOllama:     "http://localhost:11434/v1",
}

// ollama ignores the bearer token but the client requires one
const ollamaToken = "ollama"

// Supports reports whether tag speaks the OpenAI chat completions protocol
func Supports(tag registry.Provider) bool {
	_, ok := defaultBaseURLs[tag]
	return ok
}

// OpenAIAdapter implements the Provider interface for OpenAI-compatible APIs
type OpenAIAdapter struct {
	tag        registry.Provider
	config     providers.ProviderConfig
	httpClient *http.Client
}

// NewOpenAIAdapter creates a new adapter for an OpenAI-compatible provider
func NewOpenAIAdapter(tag registry.Provider, config providers.ProviderConfig) (*OpenAIAdapter, error) {
	baseURL, ok := defaultBaseURLs[tag]
	if !ok {
		return nil, fmt.Errorf("provider %s is not OpenAI-compatible", tag)
	}
	if config.BaseURL == "" {
		config.BaseURL = baseURL
	}

	client := config.Client()
	if len(config.Headers) > 0 {
		base := client.Transport
		if base == nil {
			base = http.DefaultTransport
		}
		client = &http.Client{
			Timeout:   client.Timeout,
			Transport: &headerTransport{base: base, headers: config.Headers},
		}
	}

	return &OpenAIAdapter{
		tag:        tag,
		config:     config,
		httpClient: client,
	}, nil
}

// Build is a providers.ProviderBuilder for OpenAI-compatible tags
func Build(tag registry.Provider, config providers.ProviderConfig) (providers.Provider, error) {
	return NewOpenAIAdapter(tag, config)
}

// Name returns the provider name
func (a *OpenAIAdapter) Name() string {
	return string(a.tag)
}

// Invoke performs a single-turn chat completion
func (a *OpenAIAdapter) Invoke(ctx context.Context, req providers.Request) (string, error) {
	token, err := a.token()
	if err != nil {
		return "", err
	}

	clientConfig := goopenai.DefaultConfig(token)
	clientConfig.BaseURL = a.config.BaseURL
	clientConfig.HTTPClient = a.httpClient
	client := goopenai.NewClientWithConfig(clientConfig)

	chatReq := goopenai.ChatCompletionRequest{
		Model: req.ModelName,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleUser, Content: req.Prompt},
		},
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}

	resp, err := client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return "", a.handleError(err)
	}

	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

func (a *OpenAIAdapter) token() (string, error) {
	if a.tag == registry.ProviderOllama {
		return ollamaToken, nil
	}
	key, ok := a.config.APIKey(a.tag)
	if !ok {
		return "", providers.NewProviderError(a.Name(), "missing_credential", "API key not configured", http.StatusUnauthorized, nil)
	}
	return key, nil
}

// handleError converts client errors to provider errors
func (a *OpenAIAdapter) handleError(err error) error {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.Type
		if apiErr.Code != nil {
			code = fmt.Sprint(apiErr.Code)
		}
		return providers.NewProviderError(a.Name(), code, apiErr.Message, apiErr.HTTPStatusCode, err)
	}

	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		return providers.NewProviderError(a.Name(), "", "request failed", reqErr.HTTPStatusCode, err)
	}

	return providers.NewProviderError(a.Name(), "", "request failed", 0, err)
}

type headerTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
	return t.base.RoundTrip(req)
}
