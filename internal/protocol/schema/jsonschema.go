package schema

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

const draft07 = "http://json-schema.org/draft-07/schema#"

// JSONSchema renders s as a draft-07 document for tooling outside the wire
// protocol. Optional object properties also admit null, mirroring Validate.
func JSONSchema(s *Schema) map[string]any {
	doc := jsonSchemaNode(s)
	doc["$schema"] = draft07
	return doc
}

// Compile loads the draft-07 rendition of s.
func Compile(s *Schema) (*gojsonschema.Schema, error) {
	if s == nil {
		return nil, ErrNilSchema
	}
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(JSONSchema(s)))
	if err != nil {
		return nil, fmt.Errorf("schema: compile json schema: %w", err)
	}
	return compiled, nil
}

func jsonSchemaNode(s *Schema) map[string]any {
	if s == nil {
		return map[string]any{}
	}
	switch s.Type {
	case TypeNull:
		return map[string]any{"type": "null"}
	case TypeBoolean:
		return map[string]any{"type": "boolean"}
	case TypeNumber:
		node := map[string]any{"type": "number"}
		if len(s.NumberEnum) > 0 {
			enum := make([]any, 0, len(s.NumberEnum))
			for _, n := range s.NumberEnum {
				enum = append(enum, n)
			}
			node["enum"] = enum
		}
		return node
	case TypeString:
		node := map[string]any{"type": "string"}
		if len(s.StringEnum) > 0 {
			enum := make([]any, 0, len(s.StringEnum))
			for _, v := range s.StringEnum {
				enum = append(enum, v)
			}
			node["enum"] = enum
		}
		return node
	case TypeArray:
		return map[string]any{"type": "array", "items": jsonSchemaNode(s.Items)}
	case TypeObject:
		props := make(map[string]any, len(s.Properties))
		for _, p := range s.Properties {
			child := jsonSchemaNode(p.Schema)
			if !s.IsRequired(p.Name) {
				child = map[string]any{"anyOf": []any{map[string]any{"type": "null"}, child}}
			}
			props[p.Name] = child
		}
		node := map[string]any{"type": "object", "properties": props}
		if len(s.Required) > 0 {
			required := make([]any, 0, len(s.Required))
			for _, r := range s.Required {
				required = append(required, r)
			}
			node["required"] = required
		}
		return node
	case TypeUnion:
		alternatives := make([]any, 0, len(s.AnyOf))
		for _, alt := range s.AnyOf {
			alternatives = append(alternatives, jsonSchemaNode(alt))
		}
		return map[string]any{"anyOf": alternatives}
	default:
		return map[string]any{}
	}
}
