package providers

import (
	"fmt"
	"strings"
	"sync"

	"github.com/revivalist/lorecard/internal/interfaces"
)

// Registry resolves a model string to the interfaces.Provider that serves
// it, generalizing the donor ProviderFactory's two-provider DetectProvider
// switch to the five-provider split of §4.4.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]interfaces.Provider
	// prefixes maps a model-name prefix (e.g. "claude-", "gemini-") to the
	// provider name that should serve it, checked in DetectProvider.
	prefixes map[string]string
	defaultProvider string
}

func NewRegistry(defaultProvider string) *Registry {
	return &Registry{
		providers: make(map[string]interfaces.Provider),
		prefixes: map[string]string{
			"claude-":    "claude",
			"anthropic/": "claude",
			"gemini-":    "gemini",
			"google/":    "gemini",
			"deepseek-":  "deepseek",
			"gpt-":       "openai",
		},
		defaultProvider: defaultProvider,
	}
}

func (r *Registry) Register(p interfaces.Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

// DetectProvider determines which registered provider should handle
// model, accepting both a bare model name and an explicit
// "<provider>/<model>" prefix (OpenRouter routes use the latter form).
func (r *Registry) DetectProvider(model string) string {
	lower := strings.ToLower(model)
	if strings.Contains(lower, "/") && !strings.HasPrefix(lower, "google/") && !strings.HasPrefix(lower, "anthropic/") {
		return "openrouter"
	}
	for prefix, name := range r.prefixes {
		if strings.HasPrefix(lower, prefix) {
			return name
		}
	}
	return r.defaultProvider
}

// NormalizeModel strips a provider prefix, if present.
func (r *Registry) NormalizeModel(model string) string {
	for _, prefix := range []string{"claude/", "anthropic/", "gemini/", "google/"} {
		if strings.HasPrefix(strings.ToLower(model), prefix) {
			return model[len(prefix):]
		}
	}
	return model
}

// Resolve returns the provider registered to serve model.
func (r *Registry) Resolve(model string) (interfaces.Provider, error) {
	name := r.DetectProvider(model)
	r.mu.RLock()
	p, ok := r.providers[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no provider registered for %q (resolved from model %q)", name, model)
	}
	return p, nil
}
