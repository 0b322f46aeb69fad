package providers

import (
	"context"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/revivalist/lorecard/internal/interfaces"
)

// OpenRouterProvider talks the OpenAI-compatible chat completions API with
// native JSON-schema response_format, per §4.4's native-provider list.
type OpenRouterProvider struct {
	client *openAICompatClient
}

func NewOpenRouterProvider(apiKey string, logger arbor.ILogger) *OpenRouterProvider {
	return &OpenRouterProvider{client: newOpenAICompatClient("https://openrouter.ai/api/v1", apiKey, logger)}
}

func (p *OpenRouterProvider) Name() string { return "openrouter" }

func (p *OpenRouterProvider) ListModels(ctx context.Context) ([]interfaces.ModelInfo, error) {
	return []interfaces.ModelInfo{
		{ID: "openai/gpt-4o", Name: "GPT-4o (via OpenRouter)"},
		{ID: "anthropic/claude-3.5-sonnet", Name: "Claude 3.5 Sonnet (via OpenRouter)"},
	}, nil
}

func (p *OpenRouterProvider) Generate(ctx context.Context, req *interfaces.GenerateRequest) (*interfaces.GenerateResponse, *interfaces.GenerateError) {
	start := time.Now()

	body := chatCompletionRequest{
		Model:       req.Model,
		Messages:    toChatMessages(req.Messages),
		Temperature: req.Temperature,
	}
	if req.ResponseSchema != nil {
		body.ResponseFormat = &responseFormat{
			Type: "json_schema",
			JSONSchema: &jsonSchema{
				Name:   req.ResponseSchema.Name,
				Schema: NormalizeSchema(req.ResponseSchema.Schema),
				Strict: true,
			},
		}
	}

	resp, rawReq, rawResp, err := p.client.chatCompletion(ctx, body)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return nil, &interfaces.GenerateError{Message: err.Error(), RawRequest: rawReq, RawResponse: rawResp, LatencyMillis: latency}
	}
	if len(resp.Choices) == 0 {
		return nil, &interfaces.GenerateError{Message: "openrouter returned no choices", RawRequest: rawReq, RawResponse: rawResp, LatencyMillis: latency}
	}

	return &interfaces.GenerateResponse{
		Text:          resp.Choices[0].Message.Content,
		RawRequest:    rawReq,
		RawResponse:   rawResp,
		InputTokens:   resp.Usage.PromptTokens,
		OutputTokens:  resp.Usage.CompletionTokens,
		LatencyMillis: latency,
	}, nil
}

func (p *OpenRouterProvider) CalculateCost(model string, inputTokens, outputTokens int) float64 {
	return CalculateCost(model, inputTokens, outputTokens)
}
