// Package providers implements the LLM abstraction of C4: a registry of
// native and prompt-engineered providers behind the common
// interfaces.Provider contract, plus the JSON schema normalizer and
// example synthesizer shared by all of them.
package providers

import "fmt"

// NormalizeSchema inlines every $ref against its #/$defs (or
// #/definitions) entry and sets additionalProperties:false on every
// object node, recursively, per §4.4. It is a pure function: calling it
// twice on its own output returns the same value (idempotent), which lets
// callers cache the result keyed by the raw schema's digest.
func NormalizeSchema(schema map[string]interface{}) map[string]interface{} {
	defs := collectDefs(schema)
	out := normalizeNode(schema, defs, 0)
	m, ok := out.(map[string]interface{})
	if !ok {
		return schema
	}
	return m
}

func collectDefs(schema map[string]interface{}) map[string]interface{} {
	defs := map[string]interface{}{}
	for _, key := range []string{"$defs", "definitions"} {
		if raw, ok := schema[key]; ok {
			if m, ok := raw.(map[string]interface{}); ok {
				for name, def := range m {
					defs[name] = def
				}
			}
		}
	}
	return defs
}

func normalizeNode(node interface{}, defs map[string]interface{}, depth int) interface{} {
	const maxDepth = 64 // guards against a malformed schema with a $ref cycle
	if depth > maxDepth {
		return node
	}

	switch v := node.(type) {
	case map[string]interface{}:
		if ref, ok := v["$ref"].(string); ok {
			if resolved, ok := resolveRef(ref, defs); ok {
				return normalizeNode(resolved, defs, depth+1)
			}
			return v
		}

		out := make(map[string]interface{}, len(v))
		for k, val := range v {
			if k == "$defs" || k == "definitions" {
				continue
			}
			out[k] = normalizeNode(val, defs, depth+1)
		}
		if t, _ := out["type"].(string); t == "object" {
			if ap, exists := out["additionalProperties"]; !exists || ap == true {
				out["additionalProperties"] = false
			}
		}
		return out

	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = normalizeNode(item, defs, depth+1)
		}
		return out

	default:
		return node
	}
}

func resolveRef(ref string, defs map[string]interface{}) (interface{}, bool) {
	const defsPrefix = "#/$defs/"
	const definitionsPrefix = "#/definitions/"

	var name string
	switch {
	case len(ref) > len(defsPrefix) && ref[:len(defsPrefix)] == defsPrefix:
		name = ref[len(defsPrefix):]
	case len(ref) > len(definitionsPrefix) && ref[:len(definitionsPrefix)] == definitionsPrefix:
		name = ref[len(definitionsPrefix):]
	default:
		return nil, false
	}
	def, ok := defs[name]
	if !ok {
		return nil, false
	}
	if m, ok := def.(map[string]interface{}); ok {
		cloned := make(map[string]interface{}, len(m))
		for k, v := range m {
			cloned[k] = v
		}
		return cloned, true
	}
	return def, true
}

// ValidationErr wraps a schema-coercion failure with enough context to
// report as a 422 per §7.
type ValidationErr struct {
	Reason string
}

func (e *ValidationErr) Error() string {
	return fmt.Sprintf("schema coercion failed: %s", e.Reason)
}
