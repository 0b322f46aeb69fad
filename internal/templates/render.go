package templates

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/revivalist/lorecard/internal/interfaces"
)

var roleDelimiter = regexp.MustCompile(`(?m)^---role:\s*(system|user|assistant)\s*$`)
var varPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_.]+)(?:\|([a-zA-Z0-9_]+)(?::"([^"]*)")?)?\s*\}\}`)
var ifBlockPattern = regexp.MustCompile(`(?s)\{\{#if\s+([a-zA-Z0-9_.]+)\s*\}\}(.*?)\{\{/if\}\}`)

// Render resolves conditional blocks and variable substitutions in body
// against vars, then splits the result on role delimiter lines into an
// ordered list of messages (§4.6). A body with no role delimiters is
// treated as a single user message. Messages that are empty after
// substitution are dropped, so an optional block collapsing to nothing
// doesn't leave a stray empty turn.
func Render(body string, vars map[string]interface{}) ([]interfaces.Message, error) {
	resolved, err := resolveConditionals(body, vars)
	if err != nil {
		return nil, err
	}

	locs := roleDelimiter.FindAllStringSubmatchIndex(resolved, -1)
	if len(locs) == 0 {
		text := strings.TrimSpace(substituteVars(resolved, vars))
		if text == "" {
			return nil, nil
		}
		return []interfaces.Message{{Role: interfaces.RoleUser, Content: text}}, nil
	}

	var messages []interfaces.Message
	for i, loc := range locs {
		roleStart, roleEnd := loc[2], loc[3]
		role := interfaces.Role(resolved[roleStart:roleEnd])

		contentStart := loc[1]
		contentEnd := len(resolved)
		if i+1 < len(locs) {
			contentEnd = locs[i+1][0]
		}
		content := strings.TrimSpace(substituteVars(resolved[contentStart:contentEnd], vars))
		if content == "" {
			continue
		}
		messages = append(messages, interfaces.Message{Role: role, Content: content})
	}
	return messages, nil
}

func resolveConditionals(body string, vars map[string]interface{}) (string, error) {
	var resolveErr error
	out := ifBlockPattern.ReplaceAllStringFunc(body, func(match string) string {
		sub := ifBlockPattern.FindStringSubmatch(match)
		path, inner := sub[1], sub[2]
		val, ok := lookup(vars, path)
		if ok && isTruthy(val) {
			return inner
		}
		return ""
	})
	return out, resolveErr
}

func substituteVars(text string, vars map[string]interface{}) string {
	return varPattern.ReplaceAllStringFunc(text, func(match string) string {
		sub := varPattern.FindStringSubmatch(match)
		path, filter, arg := sub[1], sub[2], sub[3]

		val, ok := lookup(vars, path)
		if !ok {
			return ""
		}
		if filter == "join" {
			sep := ", "
			if arg != "" {
				sep = arg
			}
			return joinValue(val, sep)
		}
		return fmt.Sprintf("%v", val)
	})
}

func joinValue(val interface{}, sep string) string {
	switch v := val.(type) {
	case []string:
		return strings.Join(v, sep)
	case []interface{}:
		parts := make([]string, len(v))
		for i, item := range v {
			parts[i] = fmt.Sprintf("%v", item)
		}
		return strings.Join(parts, sep)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// lookup resolves a dotted path ("project.search_params.purpose") against
// a nested map[string]interface{}.
func lookup(vars map[string]interface{}, path string) (interface{}, bool) {
	parts := strings.Split(path, ".")
	var cur interface{} = vars
	for _, part := range parts {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		val, ok := m[part]
		if !ok {
			return nil, false
		}
		cur = val
	}
	return cur, true
}

func isTruthy(val interface{}) bool {
	switch v := val.(type) {
	case nil:
		return false
	case string:
		return v != ""
	case bool:
		return v
	case []string:
		return len(v) > 0
	case []interface{}:
		return len(v) > 0
	default:
		return true
	}
}
