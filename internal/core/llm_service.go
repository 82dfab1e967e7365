package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jacquesmats/CloneGPT/internal/config"
)

const (
	// Fixed user-facing replies. The message exchange persists whatever
	// this service returns, so a failed provider call still produces a
	// storable assistant message instead of an HTTP error.
	providerErrorReply   = "I'm sorry, I encountered an error generating a response."
	unexpectedErrorReply = "I'm sorry, I encountered an unexpected error."

	maxCompletionTokens = 500
	requestTimeout      = 60 * time.Second
)

// ChatTurn is one role/content pair of the history sent to the
// provider, oldest first.
type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Messages    []ChatTurn `json:"messages"`
	Temperature float64    `json:"temperature"`
	MaxTokens   int        `json:"max_tokens"`
}

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
}

// LLMService is a thin adapter over the Azure OpenAI chat-completions
// REST surface. In mock mode it answers locally with a deterministic
// template and never touches the network.
type LLMService struct {
	apiKey     string
	endpoint   string
	apiVersion string
	mock       bool
	httpClient *http.Client
	logger     *zap.Logger
}

func NewLLMService(cfg *config.Config, logger *zap.Logger) *LLMService {
	return &LLMService{
		apiKey:     cfg.AzureOpenAIKey,
		endpoint:   cfg.AzureOpenAIEndpoint,
		apiVersion: cfg.AzureAPIVersion,
		mock:       cfg.MockLLM,
		httpClient: &http.Client{Timeout: requestTimeout},
		logger:     logger,
	}
}

// GenerateResponse turns the ordered history into one assistant reply.
// It never fails: provider and transport problems are logged and
// absorbed into a fixed fallback string so the caller can always
// persist an assistant message.
func (s *LLMService) GenerateResponse(ctx context.Context, history []ChatTurn, deployment string, temperature float64) string {
	if s.mock {
		return MockResponse(lastUserContent(history))
	}

	text, err := s.requestCompletion(ctx, history, deployment, temperature)
	if err != nil {
		var provErr *providerError
		if errors.As(err, &provErr) {
			s.logger.Error("error from provider",
				zap.Int("status", provErr.status),
				zap.String("deployment", deployment),
				zap.String("body", provErr.body))
			return providerErrorReply
		}
		s.logger.Error("unexpected error calling provider",
			zap.String("deployment", deployment),
			zap.Error(err))
		return unexpectedErrorReply
	}
	return text
}

// MockResponse is the deterministic reply used without provider
// credentials, for local development and tests.
func MockResponse(userMessage string) string {
	return fmt.Sprintf("This is a mock response to: '%s'. In a production environment, this would be generated by Azure OpenAI.", userMessage)
}

type providerError struct {
	status int
	body   string
}

func (e *providerError) Error() string {
	return fmt.Sprintf("provider returned status %d: %s", e.status, e.body)
}

func (s *LLMService) requestCompletion(ctx context.Context, history []ChatTurn, deployment string, temperature float64) (string, error) {
	apiURL := fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
		strings.TrimSuffix(s.endpoint, "/"), deployment, s.apiVersion)

	payload := chatCompletionRequest{
		Messages:    history,
		Temperature: temperature,
		MaxTokens:   maxCompletionTokens,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal completion request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", s.apiKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("completion request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read completion response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", &providerError{status: resp.StatusCode, body: string(respBody)}
	}

	var completion chatCompletionResponse
	if err := json.Unmarshal(respBody, &completion); err != nil {
		return "", fmt.Errorf("failed to decode completion response: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("completion response contained no choices")
	}
	return completion.Choices[0].Message.Content, nil
}

func lastUserContent(history []ChatTurn) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == "user" {
			return history[i].Content
		}
	}
	if len(history) > 0 {
		return history[len(history)-1].Content
	}
	return ""
}
