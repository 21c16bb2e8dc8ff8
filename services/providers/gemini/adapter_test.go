package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/upb/model-router/services/providers"
	"github.com/upb/model-router/services/registry"
)

type staticCredentials map[registry.Provider]string

func (s staticCredentials) Credential(p registry.Provider) (string, bool) {
	v, ok := s[p]
	return v, ok
}

func TestGeminiAdapter_Invoke(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models/gemini-2.0-flash:generateContent", r.URL.Path)
		assert.Equal(t, "g-key", r.URL.Query().Get("key"))

		var body generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body.Contents, 1)
		assert.Equal(t, "hello", body.Contents[0].Parts[0].Text)
		require.NotNil(t, body.GenerationConfig)
		assert.Equal(t, 256, body.GenerationConfig.MaxOutputTokens)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"candidates": [{"content": {"role": "model", "parts": [{"text": "Hi"}, {"text": "!"}]}, "finishReason": "STOP"}]
		}`))
	}))
	defer server.Close()

	adapter := NewGeminiAdapter(providers.ProviderConfig{
		BaseURL:     server.URL,
		Credentials: staticCredentials{registry.ProviderGoogle: "g-key"},
	})
	assert.Equal(t, "google", adapter.Name())

	out, err := adapter.Invoke(context.Background(), providers.Request{ModelName: "gemini-2.0-flash", Prompt: "hello", MaxTokens: 256})
	require.NoError(t, err)
	assert.Equal(t, "Hi!", out)
}

func TestGeminiAdapter_InvokeWithoutKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.URL.RawQuery)

		var body generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Nil(t, body.GenerationConfig)

		_, _ = w.Write([]byte(`{"candidates": []}`))
	}))
	defer server.Close()

	adapter := NewGeminiAdapter(providers.ProviderConfig{BaseURL: server.URL})

	out, err := adapter.Invoke(context.Background(), providers.Request{ModelName: "gemini-1.5-pro", Prompt: "hello"})
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestGeminiAdapter_ErrorResponses(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantCode string
		wantErr  string
	}{
		{
			name:     "resource exhausted",
			status:   http.StatusTooManyRequests,
			body:     `{"error": {"code": 429, "message": "Resource has been exhausted", "status": "RESOURCE_EXHAUSTED"}}`,
			wantCode: "RESOURCE_EXHAUSTED",
			wantErr:  "google: Resource has been exhausted (status 429)",
		},
		{
			name:     "model not found",
			status:   http.StatusNotFound,
			body:     `{"error": {"code": 404, "message": "models/nope is not found", "status": "NOT_FOUND"}}`,
			wantCode: "NOT_FOUND",
			wantErr:  "google: models/nope is not found (status 404)",
		},
		{
			name:     "empty error body",
			status:   http.StatusServiceUnavailable,
			body:     ``,
			wantCode: "",
			wantErr:  "google: unexpected response status (status 503)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			adapter := NewGeminiAdapter(providers.ProviderConfig{BaseURL: server.URL})

			_, err := adapter.Invoke(context.Background(), providers.Request{ModelName: "gemini-2.0-flash", Prompt: "hello"})

			var provErr *providers.ProviderError
			require.True(t, errors.As(err, &provErr))
			assert.Equal(t, tt.status, provErr.StatusCode)
			assert.Equal(t, tt.wantCode, provErr.Code)
			assert.Equal(t, tt.wantErr, err.Error())
		})
	}
}

func TestGeminiAdapter_TransportErrorHidesKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	serverURL := server.URL
	server.Close()

	adapter := NewGeminiAdapter(providers.ProviderConfig{
		BaseURL:     serverURL,
		Credentials: staticCredentials{registry.ProviderGoogle: "secret-key"},
	})

	_, err := adapter.Invoke(context.Background(), providers.Request{ModelName: "gemini-2.0-flash", Prompt: "hello"})
	require.Error(t, err)
	assert.False(t, strings.Contains(err.Error(), "secret-key"), "error leaks key: %v", err)
}
