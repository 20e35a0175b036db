// Package schema provides the typed attribute schema used by the event
// extractor to interpret incoming binary messages.
package schema

import "fmt"

// Kind is the closed set of attribute value types the sidecar understands.
type Kind string

const (
	KindBoolean     Kind = "boolean"
	KindInteger     Kind = "integer"
	KindFloat       Kind = "float"
	KindString      Kind = "string"
	KindStringList  Kind = "string_list"
	KindIntegerList Kind = "integer_list"
)

// ParseKind converts a config string into a Kind, accepting the aliases the
// original C++ sidecar's config parser accepted.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "boolean", "bool":
		return KindBoolean, nil
	case "integer", "int":
		return KindInteger, nil
	case "float", "double":
		return KindFloat, nil
	case "string", "str":
		return KindString, nil
	case "string_list":
		return KindStringList, nil
	case "integer_list", "int_list":
		return KindIntegerList, nil
	default:
		return "", fmt.Errorf("schema: invalid attribute type %q", s)
	}
}

// AttributeDef is one (name, kind) pair from the configured attribute list.
type AttributeDef struct {
	Name string
	Kind Kind
}

// Schema is an ordered, immutable collection of attribute definitions with a
// derived name->kind lookup. Constructed once at startup.
type Schema struct {
	attrs  []AttributeDef
	lookup map[string]Kind
}

// New builds a Schema from an ordered attribute list. The list must be
// non-empty and have unique names.
func New(attrs []AttributeDef) (*Schema, error) {
	if len(attrs) == 0 {
		return nil, fmt.Errorf("schema: attributes must not be empty")
	}

	lookup := make(map[string]Kind, len(attrs))
	for _, a := range attrs {
		if _, dup := lookup[a.Name]; dup {
			return nil, fmt.Errorf("schema: duplicate attribute name %q", a.Name)
		}
		lookup[a.Name] = a.Kind
	}

	cp := make([]AttributeDef, len(attrs))
	copy(cp, attrs)

	return &Schema{attrs: cp, lookup: lookup}, nil
}

// Lookup returns the kind registered for name, and whether it was found.
// Unknown names are expected during extraction (forward compatibility with
// wider producer schemas) and are not an error.
func (s *Schema) Lookup(name string) (Kind, bool) {
	k, ok := s.lookup[name]
	return k, ok
}

// Attributes returns the ordered attribute definitions.
func (s *Schema) Attributes() []AttributeDef {
	cp := make([]AttributeDef, len(s.attrs))
	copy(cp, s.attrs)
	return cp
}

// Len returns the number of attributes in the schema.
func (s *Schema) Len() int {
	return len(s.attrs)
}
