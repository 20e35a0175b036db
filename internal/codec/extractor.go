package codec

import (
	"fmt"

	"github.com/rmacdonaldsmith/nats-sidecar/internal/schema"
)

// ErrNotAMap is returned by Extract when the top-level decoded value is
// not a map. Per spec, this is the one failure mode that aborts
// extraction entirely; any other per-field mismatch degrades to
// "undefined" for that field only.
var ErrNotAMap = fmt.Errorf("codec: top-level payload is not a map")

// Event is the transient typed record built from one message, fed into
// the matching substrate's Search and discarded afterward. Only fields
// the schema knows about and the message actually defines are present;
// everything else is implicitly undefined for matching purposes.
type Event map[string]any

// Extract decodes payload per format, then builds an Event by walking
// every key present in both the message and the schema, applying the
// per-kind coercion rules. It returns ErrNotAMap if decoding succeeds
// but the top level isn't a map, and a decode error if the bytes
// themselves are malformed for the format.
func Extract(format Format, s *schema.Schema, payload []byte) (Event, error) {
	reader, err := Decode(format, payload)
	if err != nil {
		return nil, err
	}
	return extractFromReader(s, reader)
}

func extractFromReader(s *schema.Schema, reader Reader) (Event, error) {
	if !reader.IsMap() {
		return nil, ErrNotAMap
	}

	event := make(Event)

	for _, key := range reader.MapKeys() {
		kind, known := s.Lookup(key)
		if !known {
			continue
		}

		value := reader.Get(key)
		populateField(event, key, kind, value)
	}

	return event, nil
}

// populateField applies the per-kind coercion rules from spec.md §4.2.
// A mismatch leaves the field absent from the event (the schema's
// notion of "undefined"); it never aborts extraction.
func populateField(event Event, key string, kind schema.Kind, v Value) {
	switch kind {
	case schema.KindBoolean:
		if v.IsBool() {
			event[key] = v.AsBool()
		}

	case schema.KindInteger:
		if v.IsInt() || v.IsUint() {
			event[key] = v.AsInt64()
		}

	case schema.KindFloat:
		switch {
		case v.IsFloat():
			event[key] = v.AsFloat64()
		case v.IsInt() || v.IsUint():
			event[key] = float64(v.AsInt64())
		}

	case schema.KindString:
		if v.IsString() {
			event[key] = v.AsString()
		}

	case schema.KindStringList:
		if v.IsArray() {
			n := v.ArrayLen()
			list := make([]string, 0, n)
			for i := 0; i < n; i++ {
				elem := v.ArrayElem(i)
				if elem.IsString() {
					list = append(list, elem.AsString())
				}
			}
			event[key] = list
		}

	case schema.KindIntegerList:
		if v.IsArray() {
			n := v.ArrayLen()
			list := make([]int64, 0, n)
			for i := 0; i < n; i++ {
				elem := v.ArrayElem(i)
				if elem.IsInt() || elem.IsUint() {
					list = append(list, elem.AsInt64())
				}
			}
			event[key] = list
		}
	}
}
