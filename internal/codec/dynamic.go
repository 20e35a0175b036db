package codec

// dynamicReader and dynamicValue wrap the generic any-tree produced by
// decoding msgpack or CBOR into interface{} (both libraries decode maps
// to map[string]any and arrays to []any when the destination type is
// any, so one adapter serves both formats).
type dynamicReader struct {
	root any
}

func (r dynamicReader) IsMap() bool {
	_, ok := r.root.(map[string]any)
	return ok
}

func (r dynamicReader) MapKeys() []string {
	m, ok := r.root.(map[string]any)
	if !ok {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

func (r dynamicReader) Get(key string) Value {
	m, ok := r.root.(map[string]any)
	if !ok {
		return dynamicValue{nil}
	}
	return dynamicValue{m[key]}
}

type dynamicValue struct {
	v any
}

func (d dynamicValue) IsBool() bool {
	_, ok := d.v.(bool)
	return ok
}

func (d dynamicValue) IsInt() bool {
	switch d.v.(type) {
	case int, int8, int16, int32, int64:
		return true
	default:
		return false
	}
}

func (d dynamicValue) IsUint() bool {
	switch d.v.(type) {
	case uint, uint8, uint16, uint32, uint64:
		return true
	default:
		return false
	}
}

func (d dynamicValue) IsFloat() bool {
	switch d.v.(type) {
	case float32, float64:
		return true
	default:
		return false
	}
}

func (d dynamicValue) IsString() bool {
	_, ok := d.v.(string)
	return ok
}

func (d dynamicValue) IsArray() bool {
	_, ok := d.v.([]any)
	return ok
}

func (d dynamicValue) AsBool() bool {
	b, _ := d.v.(bool)
	return b
}

func (d dynamicValue) AsInt64() int64 {
	switch n := d.v.(type) {
	case int:
		return int64(n)
	case int8:
		return int64(n)
	case int16:
		return int64(n)
	case int32:
		return int64(n)
	case int64:
		return n
	case uint:
		return int64(n)
	case uint8:
		return int64(n)
	case uint16:
		return int64(n)
	case uint32:
		return int64(n)
	case uint64:
		return int64(n)
	default:
		return 0
	}
}

func (d dynamicValue) AsFloat64() float64 {
	switch n := d.v.(type) {
	case float32:
		return float64(n)
	case float64:
		return n
	default:
		return float64(d.AsInt64())
	}
}

func (d dynamicValue) AsString() string {
	s, _ := d.v.(string)
	return s
}

func (d dynamicValue) ArrayLen() int {
	a, ok := d.v.([]any)
	if !ok {
		return 0
	}
	return len(a)
}

func (d dynamicValue) ArrayElem(i int) Value {
	a, ok := d.v.([]any)
	if !ok || i < 0 || i >= len(a) {
		return dynamicValue{nil}
	}
	return dynamicValue{a[i]}
}
