package providers

import (
	"context"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/revivalist/lorecard/internal/interfaces"
)

// OpenAIProvider is the plain OpenAI-compatible endpoint (native
// OpenAI API or a self-hosted drop-in), using native JSON-schema
// response_format.
type OpenAIProvider struct {
	client *openAICompatClient
}

func NewOpenAIProvider(baseURL, apiKey string, logger arbor.ILogger) *OpenAIProvider {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return &OpenAIProvider{client: newOpenAICompatClient(baseURL, apiKey, logger)}
}

func (p *OpenAIProvider) Name() string { return "openai" }

func (p *OpenAIProvider) ListModels(ctx context.Context) ([]interfaces.ModelInfo, error) {
	return []interfaces.ModelInfo{
		{ID: "gpt-4o", Name: "GPT-4o"},
		{ID: "gpt-4o-mini", Name: "GPT-4o mini"},
	}, nil
}

func (p *OpenAIProvider) Generate(ctx context.Context, req *interfaces.GenerateRequest) (*interfaces.GenerateResponse, *interfaces.GenerateError) {
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
		return nil, &interfaces.GenerateError{Message: "openai returned no choices", RawRequest: rawReq, RawResponse: rawResp, LatencyMillis: latency}
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

func (p *OpenAIProvider) CalculateCost(model string, inputTokens, outputTokens int) float64 {
	return CalculateCost(model, inputTokens, outputTokens)
}
