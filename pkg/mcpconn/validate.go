package mcpconn

import (
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

// validateArguments checks the supplied arguments against the action's
// declared input schema before anything reaches the transport: required
// properties must be present and each provided value must match its declared
// JSON type. Properties the schema does not declare pass through untouched;
// servers are free to accept more than they advertise.
func validateArguments(schema *jsonschema.Schema, args map[string]any) error {
	if schema == nil {
		return nil
	}
	for _, name := range schema.Required {
		if _, ok := args[name]; !ok {
			return fmt.Errorf("missing required argument %q", name)
		}
	}
	if len(schema.Properties) == 0 {
		return nil
	}
	for name, value := range args {
		prop, declared := schema.Properties[name]
		if !declared || prop == nil || prop.Type == "" {
			continue
		}
		if err := checkJSONType(prop.Type, value); err != nil {
			return fmt.Errorf("argument %q: %w", name, err)
		}
	}
	return nil
}

func checkJSONType(typ string, value any) error {
	if value == nil {
		if typ == "null" {
			return nil
		}
		return fmt.Errorf("expected %s, got null", typ)
	}
	ok := false
	switch typ {
	case "string":
		_, ok = value.(string)
	case "boolean":
		_, ok = value.(bool)
	case "number":
		ok = isJSONNumber(value)
	case "integer":
		switch v := value.(type) {
		case int, int32, int64:
			ok = true
		case float64:
			ok = v == float64(int64(v))
		case float32:
			ok = v == float32(int64(v))
		}
	case "array":
		_, ok = value.([]any)
	case "object":
		_, ok = value.(map[string]any)
	default:
		// Unrecognized type keyword: leave enforcement to the server.
		return nil
	}
	if !ok {
		return fmt.Errorf("expected %s, got %T", typ, value)
	}
	return nil
}

func isJSONNumber(value any) bool {
	switch value.(type) {
	case float64, float32, int, int32, int64:
		return true
	}
	return false
}
