package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
)

type wireSchema struct {
	Type       Type            `json:"type"`
	Enum       json.RawMessage `json:"enum"`
	Items      *Schema         `json:"items"`
	Properties json.RawMessage `json:"properties"`
	Required   []string        `json:"required"`
	AnyOf      []*Schema       `json:"anyOf"`
	Meta       Meta            `json:"meta"`
}

// MarshalJSON emits object properties in declaration order.
func (s Schema) MarshalJSON() ([]byte, error) {
	if !s.Type.valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, s.Type)
	}
	var buf bytes.Buffer
	buf.WriteString(`{"type":`)
	if err := writeValue(&buf, s.Type); err != nil {
		return nil, err
	}

	switch s.Type {
	case TypeNumber:
		if len(s.NumberEnum) > 0 {
			buf.WriteString(`,"enum":`)
			if err := writeValue(&buf, s.NumberEnum); err != nil {
				return nil, err
			}
		}
	case TypeString:
		if len(s.StringEnum) > 0 {
			buf.WriteString(`,"enum":`)
			if err := writeValue(&buf, s.StringEnum); err != nil {
				return nil, err
			}
		}
	case TypeArray:
		if s.Items == nil {
			return nil, ErrMissingItems
		}
		buf.WriteString(`,"items":`)
		if err := writeValue(&buf, s.Items); err != nil {
			return nil, err
		}
	case TypeObject:
		buf.WriteString(`,"properties":{`)
		for i, p := range s.Properties {
			if p.Schema == nil {
				return nil, fmt.Errorf("%w: property %q", ErrNilSchema, p.Name)
			}
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeValue(&buf, p.Name); err != nil {
				return nil, err
			}
			buf.WriteByte(':')
			if err := writeValue(&buf, p.Schema); err != nil {
				return nil, err
			}
		}
		buf.WriteString(`},"required":`)
		required := s.Required
		if required == nil {
			required = []string{}
		}
		if err := writeValue(&buf, required); err != nil {
			return nil, err
		}
	case TypeUnion:
		buf.WriteString(`,"anyOf":`)
		alternatives := s.AnyOf
		if alternatives == nil {
			alternatives = []*Schema{}
		}
		if err := writeValue(&buf, alternatives); err != nil {
			return nil, err
		}
	}

	buf.WriteString(`,"meta":`)
	if err := writeValue(&buf, s.Meta); err != nil {
		return nil, err
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON accepts only the closed set of type tags and default sources.
func (s *Schema) UnmarshalJSON(data []byte) error {
	var w wireSchema
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if !w.Type.valid() {
		return fmt.Errorf("%w: %q", ErrUnknownType, w.Type)
	}
	for _, d := range w.Meta.Default {
		switch {
		case d.Source == SourcePID:
		case d.Source == SourceEnv && d.Name != "":
		default:
			return fmt.Errorf("%w: %+v", ErrUnknownSource, d)
		}
	}

	out := Schema{Type: w.Type, Meta: w.Meta}
	switch w.Type {
	case TypeNumber:
		if hasValue(w.Enum) {
			if err := json.Unmarshal(w.Enum, &out.NumberEnum); err != nil {
				return fmt.Errorf("schema: number enum: %w", err)
			}
		}
	case TypeString:
		if hasValue(w.Enum) {
			if err := json.Unmarshal(w.Enum, &out.StringEnum); err != nil {
				return fmt.Errorf("schema: string enum: %w", err)
			}
		}
	case TypeArray:
		if w.Items == nil {
			return ErrMissingItems
		}
		out.Items = w.Items
	case TypeObject:
		props, err := decodeProperties(w.Properties)
		if err != nil {
			return err
		}
		out.Properties = props
		out.Required = w.Required
	case TypeUnion:
		out.AnyOf = w.AnyOf
	}
	*s = out
	return nil
}

func decodeProperties(raw json.RawMessage) ([]Property, error) {
	if !hasValue(raw) {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("schema: properties: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("schema: properties must be an object")
	}

	var props []Property
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("schema: properties: %w", err)
		}
		name, _ := tok.(string)
		child := new(Schema)
		if err := dec.Decode(child); err != nil {
			return nil, fmt.Errorf("schema: property %q: %w", name, err)
		}
		props = append(props, Property{Name: name, Schema: child})
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("schema: properties: %w", err)
	}
	return props, nil
}

func hasValue(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

func writeValue(buf *bytes.Buffer, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	buf.Write(b)
	return nil
}
