package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/orgforge/agentplane/config"
	"github.com/orgforge/agentplane/services"
	"github.com/orgforge/agentplane/services/providers"
	"go.uber.org/zap"
)

const (
	providerName   = "openai"
	defaultBaseURL = "https://api.openai.com/v1"
	defaultTimeout = 60 * time.Second

	retryBaseDelay = 500 * time.Millisecond
)

// Adapter implements the providers.ChatClient contract for OpenAI.
type Adapter struct {
	cfg        config.ProviderConfig
	httpClient *http.Client
	catalog    *providers.Catalog
	logger     *zap.Logger
}

// NewAdapter creates a new OpenAI adapter. A missing API key is a fatal
// configuration error at construction time.
func NewAdapter(cfg config.ProviderConfig, catalog *providers.Catalog, logger *zap.Logger) (*Adapter, error) {
	if cfg.APIKey == "" {
		return nil, services.NewDomainError(services.ErrorTypeConfiguration,
			"no API key configured for provider: openai", nil)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}

	return &Adapter{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		catalog:    catalog,
		logger:     logger,
	}, nil
}

// Provider returns the provider identifier
func (a *Adapter) Provider() string {
	return providerName
}

// Chat performs a chat completion request. The call is bounded by the
// configured timeout; context cancellation and deadline expiry surface
// as cancellation errors, not provider errors.
func (a *Adapter) Chat(ctx context.Context, modelID string, messages []providers.Message, opts *providers.ChatOptions) (*providers.ChatResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	wireReq := chatCompletionRequest{
		Model:    modelID,
		Messages: messages,
	}
	if opts != nil {
		wireReq.Temperature = opts.Temperature
		wireReq.MaxTokens = opts.MaxTokens
	}

	body, err := json.Marshal(wireReq)
	if err != nil {
		return nil, providers.NewProviderError(providerName, "MARSHAL_ERROR", "failed to marshal request", 0, false, err)
	}

	respBody, statusCode, err := a.doWithRetry(ctx, body)
	if err != nil {
		if providers.IsCancellation(err) {
			return nil, services.NewDomainError(services.ErrorTypeCancelled,
				"openai call cancelled or timed out", err)
		}
		return nil, err
	}

	if statusCode != http.StatusOK {
		return nil, a.errorFromResponse(statusCode, respBody)
	}

	var wireResp chatCompletionResponse
	if err := json.Unmarshal(respBody, &wireResp); err != nil {
		return nil, providers.NewProviderError(providerName, "UNMARSHAL_ERROR", "failed to unmarshal response", statusCode, false, err)
	}

	if len(wireResp.Choices) == 0 {
		return nil, providers.NewProviderError(providerName, "EMPTY_RESPONSE", "no choices in completion", statusCode, false, nil)
	}

	inputTokens := wireResp.Usage.PromptTokens
	outputTokens := wireResp.Usage.CompletionTokens
	totalTokens := wireResp.Usage.TotalTokens
	if totalTokens == 0 {
		totalTokens = inputTokens + outputTokens
	}

	return &providers.ChatResponse{
		Content:      wireResp.Choices[0].Message.Content,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		TotalTokens:  totalTokens,
		CostCents:    a.catalog.CostCents(providerName, modelID, inputTokens, outputTokens),
		ModelID:      modelID,
		Provider:     providerName,
	}, nil
}

// doWithRetry executes the request, retrying network failures and 5xx
// responses up to MaxRetries with linear backoff.
func (a *Adapter) doWithRetry(ctx context.Context, body []byte) ([]byte, int, error) {
	var lastErr error

	for attempt := 0; attempt <= a.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, 0, ctx.Err()
			case <-time.After(retryBaseDelay * time.Duration(attempt)):
			}
			a.logger.Debug("retrying openai request", zap.Int("attempt", attempt))
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			a.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
		if err != nil {
			return nil, 0, providers.NewProviderError(providerName, "REQUEST_ERROR", "failed to create request", 0, false, err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)

		resp, err := a.httpClient.Do(req)
		if err != nil {
			if providers.IsCancellation(err) {
				return nil, 0, err
			}
			lastErr = err
			continue
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			continue
		}

		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("openai returned status %d", resp.StatusCode)
			continue
		}

		return respBody, resp.StatusCode, nil
	}

	return nil, 0, providers.NewProviderError(providerName, "HTTP_ERROR", "request failed after retries", 0, true, lastErr)
}

// errorFromResponse maps a non-200 response to a ProviderError.
func (a *Adapter) errorFromResponse(statusCode int, body []byte) error {
	var errResp errorResponse
	message := "openai request failed"
	code := "API_ERROR"
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		message = errResp.Error.Message
		if errResp.Error.Code != "" {
			code = errResp.Error.Code
		}
	}

	retryable := statusCode == http.StatusTooManyRequests || statusCode >= 500
	return providers.NewProviderError(providerName, code, message, statusCode, retryable, nil)
}

// chatCompletionRequest is the OpenAI wire request shape
type chatCompletionRequest struct {
	Model       string              `json:"model"`
	Messages    []providers.Message `json:"messages"`
	Temperature *float64            `json:"temperature,omitempty"`
	MaxTokens   *int                `json:"max_tokens,omitempty"`
}

// chatCompletionResponse is the OpenAI wire response shape
type chatCompletionResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
		TotalTokens      int64 `json:"total_tokens"`
	} `json:"usage"`
}

// errorResponse is the OpenAI wire error shape
type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}
