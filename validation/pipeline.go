package validation

import "fmt"

// ValidatePipeline checks the structure of a decoded pipeline definition (from JSON or
// YAML). Step semantics are the gateway's concern; only the shape is checked here.
func ValidatePipeline(doc any) Result {
	result := NewResult()

	def, ok := doc.(map[string]any)
	if !ok {
		result.AddError("Pipeline must be an object")
		return result
	}

	switch name := def["name"].(type) {
	case nil:
		result.AddError("Missing required field: name")
	case string:
		if name == "" {
			result.AddError("Field 'name' cannot be empty")
		}
	default:
		result.AddError("Field 'name' must be a string")
	}

	if v, exists := def["version"]; !exists {
		result.AddError("Missing required field: version")
	} else if _, ok := v.(string); !ok {
		result.AddError("Field 'version' must be a string")
	}

	if raw, exists := def["steps"]; !exists {
		result.AddError("Missing required field: steps")
	} else if steps, ok := raw.([]any); !ok {
		result.AddError("Field 'steps' must be an array")
	} else {
		if len(steps) == 0 {
			result.AddWarning("Pipeline has no steps")
		}
		for i, s := range steps {
			step, ok := s.(map[string]any)
			if !ok {
				result.AddError(fmt.Sprintf("Step %d: must be an object", i))
				continue
			}
			if _, ok := step["type"]; !ok {
				result.AddError(fmt.Sprintf("Step %d: missing required field 'type'", i))
			}
		}
	}

	if md, exists := def["metadata"]; exists {
		if _, ok := md.(map[string]any); !ok {
			result.AddWarning("Field 'metadata' should be an object")
		}
	}

	return result
}
