package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/revivalist/lorecard/internal/common"
	"github.com/revivalist/lorecard/internal/interfaces"
	"github.com/revivalist/lorecard/internal/models"
	"github.com/revivalist/lorecard/internal/providers"
	"github.com/revivalist/lorecard/internal/templates"
)

// callLLMWithMessages throttles through the project's rate limiter and
// calls its resolved provider with an already-rendered message list. It
// returns the raw response text and the ApiRequestLog the call produced,
// but never inserts the log itself — §4.4 makes the caller responsible
// for that, since some callers (entries.go's Phase 1) defer the insert to
// a later batched transaction instead of writing it immediately.
func (d *Deps) callLLMWithMessages(ctx context.Context, project *models.Project, messages []interfaces.Message, schemaName string, schema map[string]interface{}) (string, *models.ApiRequestLog, error) {
	provider, err := d.Registry.Resolve(project.Model)
	if err != nil {
		return "", nil, err
	}

	if err := d.Limiter.WaitForSlot(ctx, project.ID, project.RequestsPerMinute); err != nil {
		return "", nil, fmt.Errorf("rate limiter wait: %w", err)
	}

	req := &interfaces.GenerateRequest{
		Model:    d.Registry.NormalizeModel(project.Model),
		Messages: messages,
	}
	if schema != nil {
		req.ResponseSchema = &interfaces.ResponseSchema{Name: schemaName, Schema: providers.NormalizeSchema(schema)}
	}

	resp, genErr := provider.Generate(ctx, req)
	log := &models.ApiRequestLog{
		ID:        common.NewID(),
		ProjectID: project.ID,
		Provider:  provider.Name(),
		Model:     project.Model,
		CreatedAt: time.Now().UTC(),
	}
	if genErr != nil {
		log.RequestBody = genErr.RawRequest
		log.ResponseBody = genErr.RawResponse
		log.LatencyMillis = genErr.LatencyMillis
		log.Error = true
		log.Cost = models.UnknownCost
		return "", log, genErr
	}

	inTok, outTok := resp.InputTokens, resp.OutputTokens
	log.RequestBody = resp.RawRequest
	log.ResponseBody = resp.RawResponse
	log.InputTokens = &inTok
	log.OutputTokens = &outTok
	log.LatencyMillis = resp.LatencyMillis
	log.Cost = provider.CalculateCost(project.Model, resp.InputTokens, resp.OutputTokens)
	return resp.Text, log, nil
}

// callLLM renders kind against vars and delegates to callLLMWithMessages.
func (d *Deps) callLLM(ctx context.Context, project *models.Project, kind templates.Kind, vars map[string]interface{}, schemaName string, schema map[string]interface{}) (string, *models.ApiRequestLog, error) {
	body, err := d.Templates.Resolve(ctx, kind, project)
	if err != nil {
		return "", nil, fmt.Errorf("resolve template %q: %w", kind, err)
	}
	messages, err := templates.Render(body, vars)
	if err != nil {
		return "", nil, fmt.Errorf("render template %q: %w", kind, err)
	}
	if len(messages) == 0 {
		return "", nil, fmt.Errorf("template %q rendered no messages", kind)
	}
	return d.callLLMWithMessages(ctx, project, messages, schemaName, schema)
}

// withJobID stamps a job id onto a built log before insertion.
func withJobID(log *models.ApiRequestLog, jobID string) *models.ApiRequestLog {
	if log != nil {
		log.JobID = &jobID
	}
	return log
}

// callLLMAndLog wraps callLLM for stages that issue one call per job: it
// inserts the ApiRequestLog immediately and decodes the JSON response
// text into out (skipped if out is nil).
func (d *Deps) callLLMAndLog(ctx context.Context, project *models.Project, jobID string, kind templates.Kind, vars map[string]interface{}, schemaName string, schema map[string]interface{}, out interface{}) error {
	text, log, err := d.callLLM(ctx, project, kind, vars, schemaName, schema)
	return d.finishLoggedCall(ctx, project, jobID, text, log, err, out)
}

// callLLMMessagesAndLog is callLLMAndLog's counterpart for callers that
// build their own message list rather than going through a named template
// (ai_edit_source_content has no slot among the five named templates).
func (d *Deps) callLLMMessagesAndLog(ctx context.Context, project *models.Project, jobID string, messages []interfaces.Message, schemaName string, schema map[string]interface{}, out interface{}) error {
	text, log, err := d.callLLMWithMessages(ctx, project, messages, schemaName, schema)
	return d.finishLoggedCall(ctx, project, jobID, text, log, err, out)
}

func (d *Deps) finishLoggedCall(ctx context.Context, project *models.Project, jobID, text string, log *models.ApiRequestLog, callErr error, out interface{}) error {
	log = withJobID(log, jobID)
	if log != nil {
		if insertErr := d.Store.InsertApiRequestLog(ctx, log); insertErr != nil {
			d.Logger.Warn().Err(insertErr).Str("project_id", project.ID).Msg("failed to insert api request log")
		}
	}
	if callErr != nil {
		return callErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal([]byte(text), out); err != nil {
		return fmt.Errorf("decode provider response: %w", err)
	}
	return nil
}
