package providers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"google.golang.org/genai"

	"github.com/revivalist/lorecard/internal/interfaces"
)

// GeminiProvider implements interfaces.Provider over Google's native JSON
// schema mode (response_mime_type + response_schema), adapted from the
// donor's generateWithGemini/convertMessagesToGemini flow.
type GeminiProvider struct {
	client *genai.Client
	logger arbor.ILogger
}

func NewGeminiProvider(ctx context.Context, apiKey string, logger arbor.ILogger) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiProvider{client: client, logger: logger}, nil
}

func (p *GeminiProvider) Name() string { return "gemini" }

func (p *GeminiProvider) ListModels(ctx context.Context) ([]interfaces.ModelInfo, error) {
	return []interfaces.ModelInfo{
		{ID: "gemini-2.0-flash", Name: "Gemini 2.0 Flash"},
		{ID: "gemini-1.5-pro", Name: "Gemini 1.5 Pro"},
		{ID: "gemini-1.5-flash", Name: "Gemini 1.5 Flash"},
	}, nil
}

func (p *GeminiProvider) Generate(ctx context.Context, req *interfaces.GenerateRequest) (*interfaces.GenerateResponse, *interfaces.GenerateError) {
	start := time.Now()

	contents, systemText, err := convertMessagesToGemini(req.Messages)
	if err != nil {
		return nil, &interfaces.GenerateError{Message: err.Error(), LatencyMillis: time.Since(start).Milliseconds()}
	}

	config := &genai.GenerateContentConfig{}
	if req.Temperature != nil {
		config.Temperature = genai.Ptr(*req.Temperature)
	}
	if systemText != "" {
		config.SystemInstruction = genai.NewContentFromText(systemText, genai.RoleUser)
	}
	if req.ResponseSchema != nil {
		normalized := NormalizeSchema(req.ResponseSchema.Schema)
		schema, err := jsonSchemaToGenai(normalized)
		if err != nil {
			return nil, &interfaces.GenerateError{Message: fmt.Sprintf("convert schema: %s", err), LatencyMillis: time.Since(start).Milliseconds()}
		}
		config.ResponseMIMEType = "application/json"
		config.ResponseSchema = schema
	}

	resp, err := p.client.Models.GenerateContent(ctx, req.Model, contents, config)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return nil, &interfaces.GenerateError{Message: fmt.Sprintf("gemini generate: %s", err), LatencyMillis: latency}
	}

	var text strings.Builder
	var usageIn, usageOut int
	if resp.UsageMetadata != nil {
		usageIn = int(resp.UsageMetadata.PromptTokenCount)
		usageOut = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part.Text != "" {
				text.WriteString(part.Text)
			}
		}
		if text.Len() > 0 {
			break
		}
	}
	if text.Len() == 0 {
		return nil, &interfaces.GenerateError{Message: "no response generated by gemini", LatencyMillis: latency}
	}

	return &interfaces.GenerateResponse{
		Text:          text.String(),
		InputTokens:   usageIn,
		OutputTokens:  usageOut,
		LatencyMillis: latency,
	}, nil
}

func (p *GeminiProvider) CalculateCost(model string, inputTokens, outputTokens int) float64 {
	return CalculateCost(model, inputTokens, outputTokens)
}

// convertMessagesToGemini maps the ordered role/content messages onto
// Gemini's Content list, pulling the first system message out as a
// SystemInstruction — adapted from the donor's convertMessagesToGemini.
func convertMessagesToGemini(messages []interfaces.Message) ([]*genai.Content, string, error) {
	if len(messages) == 0 {
		return nil, "", fmt.Errorf("messages cannot be empty")
	}

	var systemText string
	contents := make([]*genai.Content, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == interfaces.RoleSystem {
			if systemText == "" {
				systemText = msg.Content
			}
			continue
		}
		role := genai.RoleUser
		if msg.Role == interfaces.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(msg.Content, role))
	}
	if len(contents) == 0 {
		return nil, "", fmt.Errorf("at least one non-system message is required")
	}
	return contents, systemText, nil
}

// jsonSchemaToGenai walks a normalized map[string]interface{} schema and
// builds the equivalent *genai.Schema tree.
func jsonSchemaToGenai(node map[string]interface{}) (*genai.Schema, error) {
	out := &genai.Schema{}

	t, _ := node["type"].(string)
	switch t {
	case "object":
		out.Type = genai.TypeObject
		props, _ := node["properties"].(map[string]interface{})
		out.Properties = map[string]*genai.Schema{}
		for name, raw := range props {
			sub, ok := raw.(map[string]interface{})
			if !ok {
				continue
			}
			child, err := jsonSchemaToGenai(sub)
			if err != nil {
				return nil, err
			}
			out.Properties[name] = child
		}
		if required, ok := node["required"].([]interface{}); ok {
			for _, r := range required {
				if s, ok := r.(string); ok {
					out.Required = append(out.Required, s)
				}
			}
		}
	case "array":
		out.Type = genai.TypeArray
		if items, ok := node["items"].(map[string]interface{}); ok {
			child, err := jsonSchemaToGenai(items)
			if err != nil {
				return nil, err
			}
			out.Items = child
		}
	case "integer":
		out.Type = genai.TypeInteger
	case "number":
		out.Type = genai.TypeNumber
	case "boolean":
		out.Type = genai.TypeBoolean
	default:
		out.Type = genai.TypeString
	}

	if desc, ok := node["description"].(string); ok {
		out.Description = desc
	}
	return out, nil
}
