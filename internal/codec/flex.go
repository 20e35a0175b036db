package codec

import "github.com/google/flatbuffers/go/flexbuffers"

// decodeFlexBuffers decodes a FlexBuffers-encoded message. FlexBuffers
// already exposes typed map/vector accessors close to our Reader/Value
// shape, so flexReader/flexValue are thin adapters rather than a
// generic-tree conversion.
func decodeFlexBuffers(payload []byte) (Reader, error) {
	ref, err := flexbuffers.GetRoot(payload)
	if err != nil {
		return nil, err
	}
	return flexValue{ref: ref}, nil
}

// flexValue implements both Reader and Value: a FlexBuffers Reference can
// be a map, a vector, or a scalar, and the extractor only ever asks the
// questions relevant to whichever one it turns out to be.
type flexValue struct {
	ref flexbuffers.Reference
}

func (f flexValue) IsMap() bool {
	return f.ref.IsMap()
}

func (f flexValue) MapKeys() []string {
	if !f.ref.IsMap() {
		return nil
	}
	m := f.ref.ToMap()
	keysVec := m.Keys()
	keys := make([]string, keysVec.Len())
	for i := 0; i < keysVec.Len(); i++ {
		keys[i] = keysVec.Get(i).ToString()
	}
	return keys
}

func (f flexValue) Get(key string) Value {
	if !f.ref.IsMap() {
		return flexValue{}
	}
	return flexValue{ref: f.ref.ToMap().Get(key)}
}

func (f flexValue) IsBool() bool   { return f.ref.IsBool() }
func (f flexValue) IsInt() bool    { return f.ref.IsInt() }
func (f flexValue) IsUint() bool   { return f.ref.IsUInt() }
func (f flexValue) IsFloat() bool  { return f.ref.IsFloat() }
func (f flexValue) IsString() bool { return f.ref.IsString() }
func (f flexValue) IsArray() bool  { return f.ref.IsVector() }

func (f flexValue) AsBool() bool       { return f.ref.ToBool() }
func (f flexValue) AsInt64() int64     { return f.ref.ToInt() }
func (f flexValue) AsFloat64() float64 { return f.ref.ToFloat() }
func (f flexValue) AsString() string   { return f.ref.ToString() }

func (f flexValue) ArrayLen() int {
	if !f.ref.IsVector() {
		return 0
	}
	return f.ref.ToVector().Len()
}

func (f flexValue) ArrayElem(i int) Value {
	if !f.ref.IsVector() {
		return flexValue{}
	}
	vec := f.ref.ToVector()
	if i < 0 || i >= vec.Len() {
		return flexValue{}
	}
	return flexValue{ref: vec.Get(i)}
}
