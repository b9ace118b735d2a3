package protocol

import (
	"fmt"
	"math"
)

func missingField(name string) error {
	return &FieldError{Field: name, Message: fmt.Sprintf("'%s' does not exists.", name)}
}

func wrongType(name, want string) error {
	return &FieldError{Field: name, Message: fmt.Sprintf("'%s' must be of type: %s", name, want)}
}

func wrongLiteral(name, lit string) error {
	return &FieldError{Field: name, Message: fmt.Sprintf("'%s' must be of literal: %s", name, lit)}
}

func requireString(obj map[string]any, name string) (string, error) {
	raw, ok := obj[name]
	if !ok || raw == nil {
		return "", missingField(name)
	}
	s, ok := raw.(string)
	if !ok {
		return "", wrongType(name, "string")
	}
	return s, nil
}

func requireLiteral(obj map[string]any, name, lit string) error {
	raw, ok := obj[name]
	if !ok || raw == nil {
		return missingField(name)
	}
	if s, ok := raw.(string); !ok || s != lit {
		return wrongLiteral(name, lit)
	}
	return nil
}

func requireContext(obj map[string]any, name string) (uint64, error) {
	raw, ok := obj[name]
	if !ok || raw == nil {
		return 0, missingField(name)
	}
	return toContext(name, raw)
}

func optionalContext(obj map[string]any, name string) (*uint64, error) {
	raw, ok := obj[name]
	if !ok || raw == nil {
		return nil, nil
	}
	c, err := toContext(name, raw)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// maxContext is the largest integer a JSON number carries exactly.
const maxContext = float64(1 << 53)

// toContext accepts JSON numbers that are non-negative integers.
func toContext(name string, raw any) (uint64, error) {
	var f float64
	switch n := raw.(type) {
	case float64:
		f = n
	case int:
		f = float64(n)
	case uint64:
		return n, nil
	default:
		return 0, wrongType(name, "number")
	}
	if f < 0 || f != math.Trunc(f) || f > maxContext {
		return 0, wrongType(name, "number")
	}
	return uint64(f), nil
}
