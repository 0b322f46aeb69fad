package providers

// SynthesizeExample produces a deterministic placeholder JSON value matching
// schema's shape, used by prompt-engineered providers (§4.4) to show the
// model one concrete example of the exact object they must return. Objects
// and arrays synthesize empty rather than recursing into their members.
func SynthesizeExample(schema map[string]interface{}) interface{} {
	if enum, ok := schema["enum"].([]interface{}); ok && len(enum) > 0 {
		return enum[0]
	}

	t, _ := schema["type"].(string)
	switch t {
	case "object":
		return map[string]interface{}{}
	case "array":
		return []interface{}{}
	case "string":
		if desc, ok := schema["description"].(string); ok && desc != "" {
			return "<" + desc + ">"
		}
		return "<string>"
	case "integer", "number":
		return 123
	case "boolean":
		return true
	default:
		return nil
	}
}
