package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ternarybob/arbor"

	"github.com/revivalist/lorecard/internal/interfaces"
)

// ClaudeProvider is the supplemental provider of §4.4, using a
// forced-tool-call to obtain structured JSON output: the response schema
// becomes a single tool's input schema and tool_choice forces its use,
// adapted from the donor's client construction in GetClaudeClient /
// generateWithClaude.
type ClaudeProvider struct {
	client anthropic.Client
	logger arbor.ILogger
}

func NewClaudeProvider(apiKey string, logger arbor.ILogger) *ClaudeProvider {
	return &ClaudeProvider{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		logger: logger,
	}
}

func (p *ClaudeProvider) Name() string { return "claude" }

func (p *ClaudeProvider) ListModels(ctx context.Context) ([]interfaces.ModelInfo, error) {
	return []interfaces.ModelInfo{
		{ID: "claude-3-5-sonnet-20241022", Name: "Claude 3.5 Sonnet"},
		{ID: "claude-3-5-haiku-20241022", Name: "Claude 3.5 Haiku"},
		{ID: "claude-3-opus-20240229", Name: "Claude 3 Opus"},
	}, nil
}

const structuredOutputToolName = "emit_structured_output"

func (p *ClaudeProvider) Generate(ctx context.Context, req *interfaces.GenerateRequest) (*interfaces.GenerateResponse, *interfaces.GenerateError) {
	start := time.Now()

	messages, systemText, err := convertMessagesToClaude(req.Messages)
	if err != nil {
		return nil, &interfaces.GenerateError{Message: err.Error(), LatencyMillis: time.Since(start).Milliseconds()}
	}

	maxTokens := int64(4096)
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: maxTokens,
		Messages:  messages,
	}
	if systemText != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemText}}
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(float64(*req.Temperature))
	}

	if req.ResponseSchema != nil {
		normalized := NormalizeSchema(req.ResponseSchema.Schema)
		params.Tools = []anthropic.ToolUnionParam{
			{
				OfTool: &anthropic.ToolParam{
					Name:        structuredOutputToolName,
					Description: anthropic.String(fmt.Sprintf("Emit the %s result.", req.ResponseSchema.Name)),
					InputSchema: anthropic.ToolInputSchemaParam{Properties: normalized["properties"]},
				},
			},
		}
		params.ToolChoice = anthropic.ToolChoiceUnionParam{
			OfTool: &anthropic.ToolChoiceToolParam{Name: structuredOutputToolName},
		}
	}

	resp, err := p.client.Messages.New(ctx, params)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return nil, &interfaces.GenerateError{Message: fmt.Sprintf("claude generate: %s", err), LatencyMillis: latency}
	}

	text, genErr := extractClaudeOutput(resp, req.ResponseSchema != nil)
	if genErr != nil {
		genErr.LatencyMillis = latency
		return nil, genErr
	}

	return &interfaces.GenerateResponse{
		Text:          text,
		InputTokens:   int(resp.Usage.InputTokens),
		OutputTokens:  int(resp.Usage.OutputTokens),
		LatencyMillis: latency,
	}, nil
}

func extractClaudeOutput(resp *anthropic.Message, structured bool) (string, *interfaces.GenerateError) {
	if structured {
		for _, block := range resp.Content {
			if block.Type == "tool_use" && block.Name == structuredOutputToolName {
				b, err := json.Marshal(block.Input)
				if err != nil {
					return "", &interfaces.GenerateError{Message: fmt.Sprintf("marshal tool input: %s", err)}
				}
				return string(b), nil
			}
		}
		return "", &interfaces.GenerateError{Message: "claude did not call the structured output tool"}
	}
	for _, block := range resp.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", &interfaces.GenerateError{Message: "no text content in claude response"}
}

func (p *ClaudeProvider) CalculateCost(model string, inputTokens, outputTokens int) float64 {
	return CalculateCost(model, inputTokens, outputTokens)
}

// convertMessagesToClaude maps the ordered role/content messages onto
// Claude's message list, pulling out the first system message (Claude
// takes system text as a top-level field, not a message role).
func convertMessagesToClaude(messages []interfaces.Message) ([]anthropic.MessageParam, string, error) {
	if len(messages) == 0 {
		return nil, "", fmt.Errorf("messages cannot be empty")
	}
	var systemText string
	var out []anthropic.MessageParam
	for _, msg := range messages {
		if msg.Role == interfaces.RoleSystem {
			if systemText == "" {
				systemText = msg.Content
			}
			continue
		}
		if msg.Role == interfaces.RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		} else {
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}
	if len(out) == 0 {
		return nil, "", fmt.Errorf("at least one non-system message is required")
	}
	return out, systemText, nil
}
