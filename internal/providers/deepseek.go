package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/revivalist/lorecard/internal/interfaces"
)

// DeepSeekProvider is the one prompt-engineered provider of §4.4: the
// schema and a synthesized example are folded into the prompt text rather
// than passed as a native response_format, since DeepSeek's chat
// completions endpoint has no structured-output mode. The reply is parsed
// by looking for a fenced ```json code block first, falling back to a
// brace-balance scan over the raw text.
type DeepSeekProvider struct {
	client *openAICompatClient
}

func NewDeepSeekProvider(apiKey string, logger arbor.ILogger) *DeepSeekProvider {
	return &DeepSeekProvider{client: newOpenAICompatClient("https://api.deepseek.com/v1", apiKey, logger)}
}

func (p *DeepSeekProvider) Name() string { return "deepseek" }

func (p *DeepSeekProvider) ListModels(ctx context.Context) ([]interfaces.ModelInfo, error) {
	return []interfaces.ModelInfo{
		{ID: "deepseek-chat", Name: "DeepSeek Chat"},
	}, nil
}

func (p *DeepSeekProvider) Generate(ctx context.Context, req *interfaces.GenerateRequest) (*interfaces.GenerateResponse, *interfaces.GenerateError) {
	start := time.Now()

	messages := toChatMessages(req.Messages)
	if req.ResponseSchema != nil {
		messages = append(messages, chatMessage{
			Role:    "system",
			Content: buildSchemaInstruction(req.ResponseSchema),
		})
	}

	body := chatCompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: req.Temperature,
	}

	resp, rawReq, rawResp, err := p.client.chatCompletion(ctx, body)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return nil, &interfaces.GenerateError{Message: err.Error(), RawRequest: rawReq, RawResponse: rawResp, LatencyMillis: latency}
	}
	if len(resp.Choices) == 0 {
		return nil, &interfaces.GenerateError{Message: "deepseek returned no choices", RawRequest: rawReq, RawResponse: rawResp, LatencyMillis: latency}
	}

	raw := resp.Choices[0].Message.Content
	if req.ResponseSchema == nil {
		return &interfaces.GenerateResponse{
			Text: raw, RawRequest: rawReq, RawResponse: rawResp,
			InputTokens: resp.Usage.PromptTokens, OutputTokens: resp.Usage.CompletionTokens,
			LatencyMillis: latency,
		}, nil
	}

	extracted, ok := extractJSONObject(raw)
	if !ok {
		return nil, &interfaces.GenerateError{
			StatusCode: 422, Message: "deepseek response did not contain a valid JSON object",
			RawRequest: rawReq, RawResponse: rawResp, LatencyMillis: latency,
		}
	}

	return &interfaces.GenerateResponse{
		Text:          extracted,
		RawRequest:    rawReq,
		RawResponse:   rawResp,
		InputTokens:   resp.Usage.PromptTokens,
		OutputTokens:  resp.Usage.CompletionTokens,
		LatencyMillis: latency,
	}, nil
}

func (p *DeepSeekProvider) CalculateCost(model string, inputTokens, outputTokens int) float64 {
	return CalculateCost(model, inputTokens, outputTokens)
}

// buildSchemaInstruction folds the normalized schema and a synthesized
// example into a system instruction, since DeepSeek has no native
// structured-output mode.
func buildSchemaInstruction(schema *interfaces.ResponseSchema) string {
	normalized := NormalizeSchema(schema.Schema)
	schemaJSON, _ := json.MarshalIndent(normalized, "", "  ")
	example := SynthesizeExample(normalized)
	exampleJSON, _ := json.MarshalIndent(example, "", "  ")

	var b strings.Builder
	fmt.Fprintf(&b, "Respond with ONLY a single JSON object named %q matching this schema:\n", schema.Name)
	b.Write(schemaJSON)
	b.WriteString("\n\nExample shape (values are placeholders):\n")
	b.Write(exampleJSON)
	b.WriteString("\n\nReturn the JSON object in a ```json fenced code block and nothing else.")
	return b.String()
}

// extractJSONObject looks for a fenced ```json code block first, then
// falls back to a brace-balance scan over the raw text for the first
// complete top-level {...} object.
func extractJSONObject(raw string) (string, bool) {
	if fenced, ok := extractFencedJSON(raw); ok {
		if json.Valid([]byte(fenced)) {
			return fenced, true
		}
	}
	if scanned, ok := scanBalancedObject(raw); ok {
		if json.Valid([]byte(scanned)) {
			return scanned, true
		}
	}
	return "", false
}

func extractFencedJSON(raw string) (string, bool) {
	const openMarker = "```json"
	start := strings.Index(raw, openMarker)
	if start == -1 {
		start = strings.Index(raw, "```")
		if start == -1 {
			return "", false
		}
		start += len("```")
	} else {
		start += len(openMarker)
	}
	rest := raw[start:]
	end := strings.Index(rest, "```")
	if end == -1 {
		return "", false
	}
	return strings.TrimSpace(rest[:end]), true
}

func scanBalancedObject(raw string) (string, bool) {
	start := strings.IndexByte(raw, '{')
	if start == -1 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(raw); i++ {
		c := raw[i]
		if inString {
			if escaped {
				escaped = false
			} else if c == '\\' {
				escaped = true
			} else if c == '"' {
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return raw[start : i+1], true
			}
		}
	}
	return "", false
}
