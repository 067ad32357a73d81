package toolreg

import (
	"fmt"
	"regexp"
	"strings"
)

// Anthropic rejects tool names outside this alphabet, so dotted backend
// names must be respelled with underscores.
var anthropicNameRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ToUnderscoreName converts a canonical dot-form tool name to its
// Anthropic-safe spelling: every "." becomes "_".
func ToUnderscoreName(dotName string) string {
	return strings.ReplaceAll(dotName, ".", "_")
}

// ToDotName converts a tool name back to canonical dot form. Names already
// containing a dot pass through. Underscore spellings of known exposed tools
// map exactly; anything else gets the first underscore promoted to a dot,
// which covers the namespace.operation convention.
func ToDotName(name string) string {
	if strings.Contains(name, ".") {
		return name
	}
	if dot, ok := underscoreToDot[name]; ok {
		return dot
	}
	if idx := strings.Index(name, "_"); idx > 0 {
		return name[:idx] + "." + name[idx+1:]
	}
	return name
}

// IsValidAnthropicName reports whether a name satisfies Anthropic's tool
// name alphabet.
func IsValidAnthropicName(name string) bool {
	return anthropicNameRe.MatchString(name)
}

// NormalizeSchema returns a copy of a JSON schema with union type arrays
// folded to a single scalar type. Anthropic's tool schema validation rejects
// `"type": ["string", "number"]`; the first entry wins and the alternates
// are noted in the property description. Nested properties and array items
// are normalized recursively.
func NormalizeSchema(schema map[string]interface{}) map[string]interface{} {
	if schema == nil {
		return nil
	}
	out := make(map[string]interface{}, len(schema))
	for k, v := range schema {
		out[k] = v
	}

	if types, ok := out["type"].([]interface{}); ok && len(types) > 0 {
		primary := fmt.Sprintf("%v", types[0])
		out["type"] = primary
		if len(types) > 1 {
			alternates := make([]string, 0, len(types)-1)
			for _, t := range types[1:] {
				alternates = append(alternates, fmt.Sprintf("%v", t))
			}
			note := fmt.Sprintf("May also be provided as %s.", strings.Join(alternates, " or "))
			if desc, ok := out["description"].(string); ok && desc != "" {
				out["description"] = desc + " " + note
			} else {
				out["description"] = note
			}
		}
	}

	if props, ok := out["properties"].(map[string]interface{}); ok {
		normProps := make(map[string]interface{}, len(props))
		for name, prop := range props {
			if propMap, ok := prop.(map[string]interface{}); ok {
				normProps[name] = NormalizeSchema(propMap)
			} else {
				normProps[name] = prop
			}
		}
		out["properties"] = normProps
	}

	if items, ok := out["items"].(map[string]interface{}); ok {
		out["items"] = NormalizeSchema(items)
	}

	return out
}
