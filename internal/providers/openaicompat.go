package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/revivalist/lorecard/internal/interfaces"
)

// chatMessage is the OpenAI-compatible wire message shape shared by
// OpenRouter, DeepSeek, and any plain OpenAI-compatible endpoint.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    *float32        `json:"temperature,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type       string      `json:"type"`
	JSONSchema *jsonSchema `json:"json_schema,omitempty"`
}

type jsonSchema struct {
	Name   string                 `json:"name"`
	Schema map[string]interface{} `json:"schema"`
	Strict bool                   `json:"strict"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// openAICompatClient is the shared REST transport for the three
// OpenAI-wire-format providers; none of them has a dedicated SDK in the
// reference corpus, so all three talk plain JSON over net/http.
type openAICompatClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     arbor.ILogger
}

func newOpenAICompatClient(baseURL, apiKey string, logger arbor.ILogger) *openAICompatClient {
	return &openAICompatClient{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     logger,
	}
}

func (c *openAICompatClient) chatCompletion(ctx context.Context, body chatCompletionRequest) (*chatCompletionResponse, string, string, error) {
	reqBytes, err := json.Marshal(body)
	if err != nil {
		return nil, "", "", fmt.Errorf("marshal chat completion request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(reqBytes))
	if err != nil {
		return nil, "", "", fmt.Errorf("build chat completion request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, string(reqBytes), "", fmt.Errorf("chat completion request: %w", err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, string(reqBytes), "", fmt.Errorf("read chat completion response: %w", err)
	}

	var parsed chatCompletionResponse
	if err := json.Unmarshal(respBytes, &parsed); err != nil {
		return nil, string(reqBytes), string(respBytes), fmt.Errorf("decode chat completion response: %w", err)
	}
	if parsed.Error != nil {
		return &parsed, string(reqBytes), string(respBytes), fmt.Errorf("%s", parsed.Error.Message)
	}
	if resp.StatusCode >= 400 {
		return &parsed, string(reqBytes), string(respBytes), fmt.Errorf("chat completion returned status %d", resp.StatusCode)
	}
	return &parsed, string(reqBytes), string(respBytes), nil
}

func toChatMessages(messages []interfaces.Message) []chatMessage {
	out := make([]chatMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, chatMessage{Role: string(m.Role), Content: m.Content})
	}
	return out
}
