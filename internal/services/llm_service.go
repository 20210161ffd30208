package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tejasgodse24/chat-with-pdf/internal/apperrors"
	"github.com/tejasgodse24/chat-with-pdf/internal/models"
)

const (
	DefaultChatModel = "gpt-4.1-mini"
	llmOperation     = "llm_complete"
)

// LLMClient sends an assembled context to the language model
type LLMClient interface {
	Complete(ctx context.Context, messages []models.LLMMessage, tools []models.LLMTool) (*Completion, error)
}

// Completion is the first choice of a model response
type Completion struct {
	Content      string
	ToolCalls    []ToolCall
	FinishReason string
}

// HasToolCall reports whether the model asked for a tool
func (c *Completion) HasToolCall() bool {
	return len(c.ToolCalls) > 0
}

// LLMConfig configures the OpenAI-compatible chat endpoint
type LLMConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

// LLMService handles communication with an OpenAI-compatible chat API
type LLMService struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	httpClient  *http.Client
}

var _ LLMClient = (*LLMService)(nil)

// NewLLMService creates a new LLM service instance
func NewLLMService(cfg LLMConfig) *LLMService {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = DefaultChatModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second // LLMs can be slow
	}
	return &LLMService{
		baseURL:     cfg.BaseURL,
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Complete sends the messages and optional tools and returns the first choice
func (s *LLMService) Complete(ctx context.Context, messages []models.LLMMessage, tools []models.LLMTool) (*Completion, error) {
	jsonBody, err := json.Marshal(models.CompletionRequest{
		Model:       s.model,
		Messages:    messages,
		Tools:       tools,
		Temperature: s.temperature,
		Stream:      false,
	})
	if err != nil {
		return nil, apperrors.New(apperrors.ErrValidation, llmOperation, "failed to marshal request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/chat/completions", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, apperrors.ExternalService(llmOperation, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.ExternalService(llmOperation, fmt.Errorf("failed to send request: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.ExternalService(llmOperation, fmt.Errorf("failed to read response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.ExternalService(llmOperation,
			fmt.Errorf("model returned status %d: %s", resp.StatusCode, truncate(string(body), 512)))
	}

	var completion models.CompletionResponse
	if err := json.Unmarshal(body, &completion); err != nil {
		return nil, apperrors.ExternalService(llmOperation, fmt.Errorf("failed to parse response: %w", err))
	}
	if completion.Error != nil {
		return nil, apperrors.ExternalService(llmOperation, fmt.Errorf("model error: %s", completion.Error.Message))
	}
	if len(completion.Choices) == 0 {
		return nil, apperrors.ExternalService(llmOperation, fmt.Errorf("no choices in model response"))
	}

	choice := completion.Choices[0]
	out := &Completion{FinishReason: choice.FinishReason}
	if choice.Message.Content != nil {
		out.Content = *choice.Message.Content
	}
	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:         tc.ID,
			Capability: tc.Function.Name,
			Arguments:  json.RawMessage(tc.Function.Arguments),
		})
	}
	if out.Content == "" && len(out.ToolCalls) == 0 {
		return nil, apperrors.ExternalService(llmOperation, fmt.Errorf("empty model response"))
	}
	return out, nil
}

// HealthCheck verifies the model endpoint is reachable
func (s *LLMService) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/models", nil)
	if err != nil {
		return err
	}
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("model endpoint not reachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("model endpoint returned status %d", resp.StatusCode)
	}
	return nil
}
