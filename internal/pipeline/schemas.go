package pipeline

// JSON schemas demanded of provider responses, one per LLM-backed stage
// (§4.4, §4.8). Field names are grounded in the donor's
// SearchParamsResponse/SelectorResponse/LorebookEntryResponse/
// CharacterCardData/RegeneratedFieldResponse pydantic models.

var searchParamsSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"purpose":          map[string]interface{}{"type": "string"},
		"extraction_notes": map[string]interface{}{"type": "string"},
		"criteria":         map[string]interface{}{"type": "string"},
	},
	"required": []interface{}{"purpose", "extraction_notes", "criteria"},
}

var selectorSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"content_selectors":  map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
		"category_selectors": map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
		"pagination_selector": map[string]interface{}{
			"type": []interface{}{"string", "null"},
		},
	},
	"required": []interface{}{"content_selectors", "category_selectors"},
}

var entryCreationSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"valid":  map[string]interface{}{"type": "boolean"},
		"reason": map[string]interface{}{"type": []interface{}{"string", "null"}},
		"entry": map[string]interface{}{
			"type": []interface{}{"object", "null"},
			"properties": map[string]interface{}{
				"title":   map[string]interface{}{"type": "string"},
				"content": map[string]interface{}{"type": "string"},
				"keywords": map[string]interface{}{
					"type":  "array",
					"items": map[string]interface{}{"type": "string"},
				},
			},
			"required": []interface{}{"title", "content", "keywords"},
		},
	},
	"required": []interface{}{"valid"},
}

var characterCardSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"name":             map[string]interface{}{"type": "string"},
		"description":      map[string]interface{}{"type": "string"},
		"persona":          map[string]interface{}{"type": "string"},
		"scenario":         map[string]interface{}{"type": "string"},
		"first_message":    map[string]interface{}{"type": "string"},
		"example_messages": map[string]interface{}{"type": "string"},
	},
	"required": []interface{}{"name", "description", "persona", "scenario", "first_message", "example_messages"},
}

var regeneratedFieldSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"new_content": map[string]interface{}{"type": "string"},
	},
	"required": []interface{}{"new_content"},
}

var editedContentSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"edited_content": map[string]interface{}{"type": "string"},
	},
	"required": []interface{}{"edited_content"},
}

type selectorResult struct {
	ContentSelectors   []string `json:"content_selectors"`
	CategorySelectors  []string `json:"category_selectors"`
	PaginationSelector *string  `json:"pagination_selector"`
}

type entryCreationResult struct {
	Valid  bool    `json:"valid"`
	Reason *string `json:"reason"`
	Entry  *struct {
		Title    string   `json:"title"`
		Content  string   `json:"content"`
		Keywords []string `json:"keywords"`
	} `json:"entry"`
}

type editedContentResult struct {
	EditedContent string `json:"edited_content"`
}

type characterCardResult struct {
	Name            string `json:"name"`
	Description     string `json:"description"`
	Persona         string `json:"persona"`
	Scenario        string `json:"scenario"`
	FirstMessage    string `json:"first_message"`
	ExampleMessages string `json:"example_messages"`
}

type regeneratedFieldResult struct {
	NewContent string `json:"new_content"`
}
