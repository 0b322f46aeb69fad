package pipeline

import (
	"strings"

	"github.com/revivalist/lorecard/internal/models"
)

// projectVars builds the "project.*" binding tree shared across every
// template (§4.6's {{var.path}} resolution).
func projectVars(project *models.Project) map[string]interface{} {
	v := map[string]interface{}{
		"prompt": project.Prompt,
	}
	if project.SearchParams != nil {
		v["search_params"] = map[string]interface{}{
			"purpose":          project.SearchParams.Purpose,
			"extraction_notes": project.SearchParams.ExtractionNotes,
			"criteria":         project.SearchParams.Criteria,
		}
	}
	return v
}

func sourceVars(rawHTML string) map[string]interface{} {
	return map[string]interface{}{"raw_html": rawHTML}
}

func linkVars(title, content string) map[string]interface{} {
	return map[string]interface{}{"title": title, "content": content}
}

func combinedSourcesVars(contents []string) map[string]interface{} {
	return map[string]interface{}{"combined_content": strings.Join(contents, "\n\n---\n\n")}
}

func fieldVars(name, currentValue string) map[string]interface{} {
	return map[string]interface{}{"name": name, "current_value": currentValue}
}

func characterAsTextVars(card *models.CharacterCard) map[string]interface{} {
	if card == nil {
		return map[string]interface{}{"as_text": ""}
	}
	var b strings.Builder
	b.WriteString("Name: " + card.Name + "\n")
	b.WriteString("Description: " + card.Description + "\n")
	b.WriteString("Persona: " + card.Persona + "\n")
	b.WriteString("Scenario: " + card.Scenario + "\n")
	b.WriteString("First message: " + card.FirstMessage + "\n")
	b.WriteString("Example messages: " + card.ExampleMessages + "\n")
	return map[string]interface{}{"as_text": b.String()}
}

// mergeVars flattens a set of top-level binding maps (e.g. "project",
// "source") into the single vars map Render expects.
func mergeVars(parts map[string]map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(parts))
	for k, v := range parts {
		out[k] = v
	}
	return out
}
