// Package schemagen infers a sidecar attribute schema from one sample
// binary message, the same way the original sidecar's schema_generator
// tool did: walk the top-level map's keys and widen each value's
// decoded shape to one of the six attribute kinds. It is a convenience
// for bootstrapping a config file, not something the running sidecar
// depends on.
package schemagen

import (
	"fmt"
	"log/slog"

	"gopkg.in/yaml.v3"

	"github.com/rmacdonaldsmith/nats-sidecar/internal/codec"
)

// Attribute is one inferred (name, type) pair, in the same YAML shape
// internal/config.AttributeConfig expects under a config's
// "attributes" key.
type Attribute struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

// Infer decodes payload per format and returns one Attribute per
// top-level key, in the order the decoder reports them. It fails if
// the top level isn't a map, matching internal/codec.Extract's own
// all-or-nothing rule for the root value.
func Infer(format codec.Format, payload []byte) ([]Attribute, error) {
	reader, err := codec.Decode(format, payload)
	if err != nil {
		return nil, fmt.Errorf("schemagen: decode: %w", err)
	}
	if !reader.IsMap() {
		return nil, fmt.Errorf("schemagen: sample root is not a map")
	}

	keys := reader.MapKeys()
	attrs := make([]Attribute, 0, len(keys))
	for _, key := range keys {
		attrs = append(attrs, Attribute{Name: key, Type: inferType(key, reader.Get(key))})
	}
	return attrs, nil
}

// inferType widens one decoded value to an attribute kind string. A
// null or otherwise unrecognized value is logged and defaults to
// "string", matching the original generator's "warning: field '<key>'
// is null/unknown, defaulting to string" behavior.
func inferType(key string, v codec.Value) string {
	switch {
	case v.IsBool():
		return "boolean"
	case v.IsInt(), v.IsUint():
		return "integer"
	case v.IsFloat():
		return "float"
	case v.IsString():
		return "string"
	case v.IsArray():
		if v.ArrayLen() > 0 {
			elem := v.ArrayElem(0)
			if elem.IsInt() || elem.IsUint() {
				return "integer_list"
			}
		}
		return "string_list"
	default:
		slog.Warn("schemagen: field is null/unknown, defaulting to string", "field", key)
		return "string"
	}
}

// Render formats attrs as the "attributes:" YAML block a config file
// expects, ready to paste under a sidecar config's top level.
func Render(attrs []Attribute) ([]byte, error) {
	doc := struct {
		Attributes []Attribute `yaml:"attributes"`
	}{Attributes: attrs}

	out, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("schemagen: render: %w", err)
	}
	return out, nil
}
