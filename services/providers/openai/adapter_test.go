package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/orgforge/agentplane/config"
	"github.com/orgforge/agentplane/services"
	"github.com/orgforge/agentplane/services/providers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestAdapter(t *testing.T, baseURL string) *Adapter {
	t.Helper()
	adapter, err := NewAdapter(config.ProviderConfig{
		APIKey:  "sk-test",
		BaseURL: baseURL,
		Timeout: 5 * time.Second,
	}, providers.NewCatalog(zap.NewNop()), zap.NewNop())
	require.NoError(t, err)
	return adapter
}

func TestNewAdapter_MissingAPIKey(t *testing.T) {
	_, err := NewAdapter(config.ProviderConfig{}, providers.NewCatalog(zap.NewNop()), zap.NewNop())

	require.Error(t, err)
	assert.True(t, services.IsConfigurationError(err))
}

func TestAdapter_Chat(t *testing.T) {
	var gotReq chatCompletionRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id":    "chatcmpl-1",
			"model": "gpt-4o",
			"choices": []map[string]interface{}{
				{
					"index":         0,
					"message":       map[string]string{"role": "assistant", "content": "Hello there"},
					"finish_reason": "stop",
				},
			},
			"usage": map[string]int{
				"prompt_tokens":     1000,
				"completion_tokens": 1000,
				"total_tokens":      2000,
			},
		})
	}))
	defer server.Close()

	adapter := newTestAdapter(t, server.URL)

	temp := 0.7
	resp, err := adapter.Chat(context.Background(), "gpt-4o",
		[]providers.Message{{Role: providers.RoleUser, Content: "hi"}},
		&providers.ChatOptions{Temperature: &temp})

	require.NoError(t, err)
	assert.Equal(t, "Hello there", resp.Content)
	assert.Equal(t, int64(1000), resp.InputTokens)
	assert.Equal(t, int64(1000), resp.OutputTokens)
	assert.Equal(t, int64(2000), resp.TotalTokens)
	// 2000 tokens of gpt-4o at 0.005/1k = 1 cent.
	assert.Equal(t, int64(1), resp.CostCents)
	assert.Equal(t, "openai", resp.Provider)
	assert.Equal(t, "gpt-4o", resp.ModelID)

	require.NotNil(t, gotReq.Temperature)
	assert.Equal(t, 0.7, *gotReq.Temperature)
}

func TestAdapter_Chat_TotalTokensFallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"role": "assistant", "content": "ok"}},
			},
			"usage": map[string]int{"prompt_tokens": 10, "completion_tokens": 5},
		})
	}))
	defer server.Close()

	resp, err := newTestAdapter(t, server.URL).Chat(context.Background(), "gpt-4o",
		[]providers.Message{{Role: providers.RoleUser, Content: "hi"}}, nil)

	require.NoError(t, err)
	assert.Equal(t, int64(15), resp.TotalTokens)
}

func TestAdapter_Chat_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Incorrect API key provided","type":"invalid_request_error"}}`))
	}))
	defer server.Close()

	_, err := newTestAdapter(t, server.URL).Chat(context.Background(), "gpt-4o",
		[]providers.Message{{Role: providers.RoleUser, Content: "hi"}}, nil)

	require.Error(t, err)
	var provErr *providers.ProviderError
	require.ErrorAs(t, err, &provErr)
	assert.Equal(t, http.StatusUnauthorized, provErr.StatusCode)
	assert.False(t, provErr.Retryable)
	assert.Contains(t, provErr.Message, "Incorrect API key")
}

func TestAdapter_Chat_RateLimitIsRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"Rate limit reached"}}`))
	}))
	defer server.Close()

	_, err := newTestAdapter(t, server.URL).Chat(context.Background(), "gpt-4o",
		[]providers.Message{{Role: providers.RoleUser, Content: "hi"}}, nil)

	require.Error(t, err)
	assert.True(t, providers.IsRetryable(err))
}

func TestAdapter_Chat_RetriesServerErrors(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"role": "assistant", "content": "recovered"}},
			},
			"usage": map[string]int{"prompt_tokens": 1, "completion_tokens": 1, "total_tokens": 2},
		})
	}))
	defer server.Close()

	adapter, err := NewAdapter(config.ProviderConfig{
		APIKey:     "sk-test",
		BaseURL:    server.URL,
		Timeout:    5 * time.Second,
		MaxRetries: 2,
	}, providers.NewCatalog(zap.NewNop()), zap.NewNop())
	require.NoError(t, err)

	resp, err := adapter.Chat(context.Background(), "gpt-4o",
		[]providers.Message{{Role: providers.RoleUser, Content: "hi"}}, nil)

	require.NoError(t, err)
	assert.Equal(t, "recovered", resp.Content)
	assert.Equal(t, 2, attempts)
}

func TestAdapter_Chat_Cancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	adapter := newTestAdapter(t, server.URL)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := adapter.Chat(ctx, "gpt-4o",
		[]providers.Message{{Role: providers.RoleUser, Content: "hi"}}, nil)

	require.Error(t, err)
	assert.True(t, services.IsCancelledError(err))
}

func TestAdapter_Chat_EmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []interface{}{},
			"usage":   map[string]int{},
		})
	}))
	defer server.Close()

	_, err := newTestAdapter(t, server.URL).Chat(context.Background(), "gpt-4o",
		[]providers.Message{{Role: providers.RoleUser, Content: "hi"}}, nil)

	require.Error(t, err)
	var provErr *providers.ProviderError
	require.ErrorAs(t, err, &provErr)
	assert.Equal(t, "EMPTY_RESPONSE", provErr.Code)
}
