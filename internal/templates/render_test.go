package templates

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/revivalist/lorecard/internal/interfaces"
)

func TestRender_NoRoleDelimiterYieldsSingleUserMessage(t *testing.T) {
	body := "Summarize this: {{link.content}}"
	vars := map[string]interface{}{
		"link": map[string]interface{}{"content": "the full page text"},
	}

	messages, err := Render(body, vars)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, interfaces.RoleUser, messages[0].Role)
	assert.Equal(t, "Summarize this: the full page text", messages[0].Content)
}

func TestRender_SplitsOnRoleDelimiters(t *testing.T) {
	body := `---role: system
You extract lorebook entries.
---role: user
Title context: {{link.title}}`
	vars := map[string]interface{}{
		"link": map[string]interface{}{"title": "Dragon's Reach"},
	}

	messages, err := Render(body, vars)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, interfaces.RoleSystem, messages[0].Role)
	assert.Equal(t, "You extract lorebook entries.", messages[0].Content)
	assert.Equal(t, interfaces.RoleUser, messages[1].Role)
	assert.Equal(t, "Title context: Dragon's Reach", messages[1].Content)
}

func TestRender_ConditionalBlockDroppedWhenFalsy(t *testing.T) {
	body := "Base text.{{#if project.search_params.criteria}} Criteria: {{project.search_params.criteria}}{{/if}}"

	emptyVars := map[string]interface{}{"project": map[string]interface{}{}}
	messages, err := Render(body, emptyVars)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "Base text.", messages[0].Content)

	withCriteria := map[string]interface{}{
		"project": map[string]interface{}{
			"search_params": map[string]interface{}{"criteria": "must mention the war"},
		},
	}
	messages, err = Render(body, withCriteria)
	require.NoError(t, err)
	assert.Equal(t, "Base text. Criteria: must mention the war", messages[0].Content)
}

func TestRender_JoinFilterWithDefaultAndCustomSeparator(t *testing.T) {
	vars := map[string]interface{}{
		"entry": map[string]interface{}{"keywords": []string{"sword", "relic", "ash"}},
	}

	messages, err := Render("Keywords: {{entry.keywords|join}}", vars)
	require.NoError(t, err)
	assert.Equal(t, "Keywords: sword, relic, ash", messages[0].Content)

	messages, err = Render(`Keywords: {{entry.keywords|join:"; "}}`, vars)
	require.NoError(t, err)
	assert.Equal(t, "Keywords: sword; relic; ash", messages[0].Content)
}

func TestRender_MissingVariableSubstitutesEmpty(t *testing.T) {
	messages, err := Render("Value: [{{does.not.exist}}]", map[string]interface{}{})
	require.NoError(t, err)
	assert.Equal(t, "Value: []", messages[0].Content)
}

func TestRender_EmptyMessageAfterSubstitutionIsDropped(t *testing.T) {
	body := `---role: system
{{#if missing}}never shown{{/if}}
---role: user
Still here.`

	messages, err := Render(body, map[string]interface{}{})
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, interfaces.RoleUser, messages[0].Role)
	assert.Equal(t, "Still here.", messages[0].Content)
}

func TestRender_EntirelyEmptyBodyReturnsNoMessages(t *testing.T) {
	messages, err := Render("   ", map[string]interface{}{})
	require.NoError(t, err)
	assert.Nil(t, messages)
}
