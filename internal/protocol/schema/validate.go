package schema

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// ValidationError names the value location and the schema node that rejected it.
type ValidationError struct {
	Path   string
	Type   Type
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("schema: %s (%s): %s", e.Path, e.Type, e.Reason)
}

// Validate checks a decoded JSON value against s. A nil value stands for both
// an absent value and an explicit null; only null and any schemas accept it.
// Object keys that s does not declare are never inspected.
func Validate(s *Schema, v any) error {
	return validate(s, v, "$")
}

// MatchAlternative returns the index of the first union alternative accepting v.
func MatchAlternative(s *Schema, v any) (int, error) {
	if s == nil {
		return -1, ErrNilSchema
	}
	if s.Type != TypeUnion {
		return -1, fail(s, "$", "not a union")
	}
	return matchUnion(s, v, "$")
}

func validate(s *Schema, v any, path string) error {
	if s == nil {
		return ErrNilSchema
	}
	if v == nil {
		if s.Type == TypeNull || s.Type == TypeAny {
			return nil
		}
		return fail(s, path, "value is missing")
	}

	switch s.Type {
	case TypeNull:
		return fail(s, path, "expected no value")
	case TypeAny:
		return nil
	case TypeBoolean:
		if _, ok := v.(bool); !ok {
			return fail(s, path, fmt.Sprintf("expected boolean, got %T", v))
		}
		return nil
	case TypeNumber:
		n, ok := toNumber(v)
		if !ok {
			return fail(s, path, fmt.Sprintf("expected number, got %T", v))
		}
		if len(s.NumberEnum) > 0 && !containsNumber(s.NumberEnum, n) {
			return fail(s, path, fmt.Sprintf("%v is not one of %v", n, s.NumberEnum))
		}
		return nil
	case TypeString:
		str, ok := v.(string)
		if !ok {
			return fail(s, path, fmt.Sprintf("expected string, got %T", v))
		}
		if len(s.StringEnum) > 0 && !containsString(s.StringEnum, str) {
			return fail(s, path, fmt.Sprintf("%q is not one of %q", str, s.StringEnum))
		}
		return nil
	case TypeArray:
		return validateArray(s, v, path)
	case TypeObject:
		return validateObject(s, v, path)
	case TypeUnion:
		_, err := matchUnion(s, v, path)
		return err
	default:
		return fail(s, path, "unknown schema type")
	}
}

func validateArray(s *Schema, v any, path string) error {
	if s.Items == nil {
		return fail(s, path, ErrMissingItems.Error())
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return fail(s, path, fmt.Sprintf("expected array, got %T", v))
	}
	for i := 0; i < rv.Len(); i++ {
		if err := validate(s.Items, rv.Index(i).Interface(), fmt.Sprintf("%s[%d]", path, i)); err != nil {
			return err
		}
	}
	return nil
}

func validateObject(s *Schema, v any, path string) error {
	obj, ok := v.(map[string]any)
	if !ok {
		return fail(s, path, fmt.Sprintf("expected object, got %T", v))
	}
	for _, p := range s.Properties {
		child := obj[p.Name]
		if child == nil {
			if s.IsRequired(p.Name) {
				return fail(s, path+"."+p.Name, "required property is missing")
			}
			continue
		}
		if err := validate(p.Schema, child, path+"."+p.Name); err != nil {
			return err
		}
	}
	return nil
}

func matchUnion(s *Schema, v any, path string) (int, error) {
	if v == nil {
		return -1, fail(s, path, "value is missing")
	}
	for i, alt := range s.AnyOf {
		if validate(alt, v, path) == nil {
			return i, nil
		}
	}
	return -1, fail(s, path, "no alternative matched")
}

func fail(s *Schema, path, reason string) error {
	return &ValidationError{Path: path, Type: s.Type, Reason: reason}
}

func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func containsNumber(values []float64, n float64) bool {
	for _, v := range values {
		if v == n {
			return true
		}
	}
	return false
}

func containsString(values []string, s string) bool {
	for _, v := range values {
		if v == s {
			return true
		}
	}
	return false
}
