package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/upb/model-router/services/providers"
	"github.com/upb/model-router/services/registry"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com"

// GeminiAdapter implements the Provider interface for the Google generateContent API
type GeminiAdapter struct {
	config     providers.ProviderConfig
	httpClient *http.Client
}

// NewGeminiAdapter creates a new Gemini adapter
func NewGeminiAdapter(config providers.ProviderConfig) *GeminiAdapter {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	return &GeminiAdapter{
		config:     config,
		httpClient: config.Client(),
	}
}

// Build is a providers.ProviderBuilder for the google tag
func Build(_ registry.Provider, config providers.ProviderConfig) (providers.Provider, error) {
	return NewGeminiAdapter(config), nil
}

// Name returns the provider name
func (a *GeminiAdapter) Name() string {
	return string(registry.ProviderGoogle)
}

// Invoke calls generateContent with a single user turn.
// The key is optional; without one the request is sent unauthenticated
// and the upstream decides.
func (a *GeminiAdapter) Invoke(ctx context.Context, req providers.Request) (string, error) {
	endpoint := a.config.BaseURL + "/v1beta/models/" + url.PathEscape(req.ModelName) + ":generateContent"
	if key, ok := a.config.APIKey(registry.ProviderGoogle); ok {
		endpoint += "?key=" + url.QueryEscape(key)
	}

	body := generateRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: req.Prompt}}}},
	}
	if req.MaxTokens > 0 {
		body.GenerationConfig = &generationConfig{MaxOutputTokens: req.MaxTokens}
	}

	reqBody, err := json.Marshal(body)
	if err != nil {
		return "", providers.NewProviderError(a.Name(), "marshal_error", "failed to marshal request", 0, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return "", providers.NewProviderError(a.Name(), "request_error", "failed to create request", 0, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range a.config.Headers {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := a.httpClient.Do(httpReq)
	if err != nil {
		// url.Error embeds the request URL, which carries the key
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return "", providers.NewProviderError(a.Name(), "", "request failed", 0, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return "", providers.NewProviderError(a.Name(), "read_error", "failed to read response", httpResp.StatusCode, err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return "", a.handleErrorResponse(httpResp.StatusCode, respBody)
	}

	if len(bytes.TrimSpace(respBody)) == 0 {
		return "", nil
	}

	var resp generateResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", providers.NewProviderError(a.Name(), "unmarshal_error", "failed to unmarshal response", httpResp.StatusCode, err)
	}

	if len(resp.Candidates) == 0 {
		return "", nil
	}

	var sb strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String(), nil
}

// handleErrorResponse handles Google API error responses.
// The status string (e.g. RESOURCE_EXHAUSTED) becomes the error code.
func (a *GeminiAdapter) handleErrorResponse(statusCode int, body []byte) error {
	var errResp errorResponse
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error.Message == "" {
		return providers.NewProviderError(a.Name(), "", "unexpected response status", statusCode, nil)
	}

	return providers.NewProviderError(
		a.Name(),
		errResp.Error.Status,
		errResp.Error.Message,
		statusCode,
		nil,
	)
}

type generateRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	MaxOutputTokens int `json:"maxOutputTokens,omitempty"`
}

type generateResponse struct {
	Candidates []candidate `json:"candidates"`
}

type candidate struct {
	Content      content `json:"content"`
	FinishReason string  `json:"finishReason"`
}

type errorResponse struct {
	Error apiError `json:"error"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}
