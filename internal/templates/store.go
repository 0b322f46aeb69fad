// Package templates implements C6: template body resolution (project
// override -> global override -> embedded default) and rendering into an
// ordered list of role-tagged prompt messages.
package templates

import (
	"context"
	"embed"
	"fmt"

	"github.com/pelletier/go-toml/v2"

	"github.com/revivalist/lorecard/internal/cache"
	"github.com/revivalist/lorecard/internal/interfaces"
	"github.com/revivalist/lorecard/internal/models"
)

//go:embed *.toml
var embedded embed.FS

type templateFile struct {
	Name string `toml:"name"`
	Body string `toml:"body"`
}

// Kind names the five overridable template slots of §3's Templates struct,
// used both as the embedded filename stem and the global_templates.name key.
type Kind string

const (
	KindSearchParamsGeneration     Kind = "search_params_generation"
	KindSelectorGeneration         Kind = "selector_generation"
	KindEntryCreation              Kind = "entry_creation"
	KindCharacterGeneration        Kind = "character_generation"
	KindCharacterFieldRegeneration Kind = "character_field_regeneration"
)

// Store resolves a template body through the three-tier fallback of §4.6.
// An optional schema cache fronts the global_templates lookup, the one
// tier that costs a database round trip on every resolution.
type Store struct {
	templateStore interfaces.TemplateStore
	cache         *cache.SchemaCache
}

func NewStore(templateStore interfaces.TemplateStore) *Store {
	return &Store{templateStore: templateStore}
}

// WithCache attaches a non-authoritative cache for the global_templates
// tier; a cache miss or absent cache simply falls through to storage.
func (s *Store) WithCache(c *cache.SchemaCache) *Store {
	s.cache = c
	return s
}

// Resolve returns the body for kind, preferring project.Templates' field
// of the same name, then a global_templates row, then the embedded
// default — adapted from the donor's GetTemplate user-override-then-
// embedded resolution, with the global_templates tier inserted between.
func (s *Store) Resolve(ctx context.Context, kind Kind, project *models.Project) (string, error) {
	if override := projectOverride(kind, project); override != "" {
		return override, nil
	}

	cacheKey := "global_template:" + string(kind)
	if s.cache != nil {
		if body, ok := s.cache.Get(cacheKey); ok {
			return body, nil
		}
	}

	if global, err := s.templateStore.GetGlobalTemplate(ctx, string(kind)); err == nil {
		if s.cache != nil {
			s.cache.Put(cacheKey, global.Body)
		}
		return global.Body, nil
	}

	data, err := embedded.ReadFile(string(kind) + ".toml")
	if err != nil {
		return "", fmt.Errorf("no template registered for %q: %w", kind, err)
	}
	var tf templateFile
	if err := toml.Unmarshal(data, &tf); err != nil {
		return "", fmt.Errorf("parse embedded template %q: %w", kind, err)
	}
	return tf.Body, nil
}

func projectOverride(kind Kind, project *models.Project) string {
	if project == nil {
		return ""
	}
	switch kind {
	case KindSearchParamsGeneration:
		return project.Templates.SearchParamsGeneration
	case KindSelectorGeneration:
		return project.Templates.SelectorGeneration
	case KindEntryCreation:
		return project.Templates.EntryCreation
	case KindCharacterGeneration:
		return project.Templates.CharacterGeneration
	case KindCharacterFieldRegeneration:
		return project.Templates.CharacterFieldRegeneration
	}
	return ""
}
