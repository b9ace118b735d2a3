package schema

import "fmt"

// Check reports the first structural defect in s: a nil node, an unknown
// type tag, an array without items, an unnamed or duplicate property, or an
// unknown default source. A checked schema always marshals and validates.
func Check(s *Schema) error {
	return check(s, "$")
}

func check(s *Schema, path string) error {
	if s == nil {
		return fmt.Errorf("%w at %s", ErrNilSchema, path)
	}
	if !s.Type.valid() {
		return fmt.Errorf("%w %q at %s", ErrUnknownType, s.Type, path)
	}
	for _, d := range s.Meta.Default {
		if d.Source == SourcePID || (d.Source == SourceEnv && d.Name != "") {
			continue
		}
		return fmt.Errorf("%w %+v at %s", ErrUnknownSource, d, path)
	}

	switch s.Type {
	case TypeArray:
		if s.Items == nil {
			return fmt.Errorf("%w at %s", ErrMissingItems, path)
		}
		return check(s.Items, path+"[]")
	case TypeObject:
		seen := make(map[string]struct{}, len(s.Properties))
		for _, p := range s.Properties {
			if p.Name == "" {
				return fmt.Errorf("schema: unnamed property at %s", path)
			}
			if _, dup := seen[p.Name]; dup {
				return fmt.Errorf("schema: duplicate property %q at %s", p.Name, path)
			}
			seen[p.Name] = struct{}{}
			if err := check(p.Schema, path+"."+p.Name); err != nil {
				return err
			}
		}
	case TypeUnion:
		for i, alt := range s.AnyOf {
			if err := check(alt, fmt.Sprintf("%s|%d", path, i)); err != nil {
				return err
			}
		}
	}
	return nil
}
