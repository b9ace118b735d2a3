// Package schema owns the recursive type description shared by command
// registration, argument validation and remote discovery.
//
// Ownership boundary:
// - type tags and builders
// - validation of decoded values
// - wire (JSON) and JSON Schema renditions
package schema

import "errors"

// Type is the closed set of schema tags.
type Type string

const (
	TypeNull    Type = "null"
	TypeAny     Type = "any"
	TypeBoolean Type = "boolean"
	TypeNumber  Type = "number"
	TypeString  Type = "string"
	TypeArray   Type = "array"
	TypeObject  Type = "object"
	TypeUnion   Type = "union"
)

// Default-value sources a client may use to pre-fill a missing argument.
const (
	SourcePID = "pid"
	SourceEnv = "env"
)

var (
	ErrNilSchema     = errors.New("schema: nil schema")
	ErrUnknownType   = errors.New("schema: unknown type")
	ErrUnknownSource = errors.New("schema: unknown default source")
	ErrMissingItems  = errors.New("schema: array requires items")
)

func (t Type) valid() bool {
	switch t {
	case TypeNull, TypeAny, TypeBoolean, TypeNumber, TypeString, TypeArray, TypeObject, TypeUnion:
		return true
	default:
		return false
	}
}

// DefaultSource is one entry of meta.default.
type DefaultSource struct {
	Source string `json:"source"`
	Name   string `json:"name,omitempty"`
}

// FromPID defaults a value to the caller's parent process id.
func FromPID() DefaultSource {
	return DefaultSource{Source: SourcePID}
}

// FromEnv defaults a value to an environment variable named by the client.
func FromEnv(name string) DefaultSource {
	return DefaultSource{Source: SourceEnv, Name: name}
}

// Meta carries annotations that never affect validation.
type Meta struct {
	Default []DefaultSource `json:"default,omitempty"`
}

// Property is one declared object key. Declaration order is preserved on the wire.
type Property struct {
	Name   string
	Schema *Schema
}

// Prop is shorthand for building object properties.
func Prop(name string, s *Schema) Property {
	return Property{Name: name, Schema: s}
}

// Schema is a node of the type tree. Only the fields relevant to Type are used.
type Schema struct {
	Type       Type
	Meta       Meta
	NumberEnum []float64
	StringEnum []string
	Items      *Schema
	Properties []Property
	Required   []string
	AnyOf      []*Schema
}

func Null() *Schema { return &Schema{Type: TypeNull} }
func Any() *Schema  { return &Schema{Type: TypeAny} }
func Bool() *Schema { return &Schema{Type: TypeBoolean} }

// Number accepts any number, or only the listed values when enums are given.
func Number(enums ...float64) *Schema {
	return &Schema{Type: TypeNumber, NumberEnum: enums}
}

// String accepts any string, or only the listed values when enums are given.
func String(enums ...string) *Schema {
	return &Schema{Type: TypeString, StringEnum: enums}
}

func Array(items *Schema) *Schema {
	return &Schema{Type: TypeArray, Items: items}
}

func Object(props []Property, required ...string) *Schema {
	return &Schema{Type: TypeObject, Properties: props, Required: required}
}

// Union alternatives are tried in order; the first match wins.
func Union(alternatives ...*Schema) *Schema {
	return &Schema{Type: TypeUnion, AnyOf: alternatives}
}

// WithDefault returns a copy of s with sources appended to meta.default.
func (s *Schema) WithDefault(sources ...DefaultSource) *Schema {
	out := *s
	out.Meta.Default = append(append([]DefaultSource(nil), s.Meta.Default...), sources...)
	return &out
}

// Property returns the declared schema for name.
func (s *Schema) Property(name string) (*Schema, bool) {
	for _, p := range s.Properties {
		if p.Name == name {
			return p.Schema, true
		}
	}
	return nil, false
}

// IsRequired reports whether name is listed in required.
func (s *Schema) IsRequired(name string) bool {
	for _, r := range s.Required {
		if r == name {
			return true
		}
	}
	return false
}
