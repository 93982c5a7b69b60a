package llm

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"

	"github.com/invopop/jsonschema"
)

// JSON schema keys read when converting to provider schema types.
const (
	typeKey       = "type"
	propertiesKey = "properties"
	requiredKey   = "required"
	itemsKey      = "items"
)

// GenerateSchema reflects T into a strict JSON schema: objects reject
// unknown properties and list every property as required.
func GenerateSchema[T any](name, description string) (Schema, error) {
	r := jsonschema.Reflector{
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: true,
	}

	var v T
	raw, err := json.Marshal(r.Reflect(v))
	if err != nil {
		return Schema{}, fmt.Errorf("failed to encode schema %s: %w", name, err)
	}
	var def map[string]interface{}
	if err := json.Unmarshal(raw, &def); err != nil {
		return Schema{}, fmt.Errorf("failed to decode schema %s: %w", name, err)
	}

	delete(def, "$schema")
	delete(def, "$id")
	tighten(def)

	return Schema{Name: name, Description: description, Definition: def}, nil
}

// tighten walks a schema node and its children in place.
func tighten(node map[string]interface{}) {
	if items, ok := node["items"].(map[string]interface{}); ok {
		tighten(items)
	}

	props, _ := node["properties"].(map[string]interface{})
	for _, child := range props {
		if m, ok := child.(map[string]interface{}); ok {
			tighten(m)
		}
	}

	if node["type"] != "object" {
		return
	}
	node["additionalProperties"] = false
	if len(props) == 0 {
		return
	}
	required := []interface{}{}
	for _, key := range slices.Sorted(maps.Keys(props)) {
		required = append(required, key)
	}
	node["required"] = required
}
