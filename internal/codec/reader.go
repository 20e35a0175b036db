// Package codec adapts the four configured binary wire formats
// (msgpack, cbor, flexbuffers, zera) to a single uniform reader
// interface, and extracts typed events from it per an attribute
// schema. The event extractor and subscription index never see a
// format-specific type.
package codec

// Format is the closed set of supported binary wire formats.
type Format string

const (
	FormatMsgpack     Format = "msgpack"
	FormatCBOR        Format = "cbor"
	FormatFlexBuffers Format = "flexbuffers"
	FormatZera        Format = "zera"
)

// ParseFormat validates a config string against the closed format set.
func ParseFormat(s string) (Format, bool) {
	switch Format(s) {
	case FormatMsgpack, FormatCBOR, FormatFlexBuffers, FormatZera:
		return Format(s), true
	default:
		return "", false
	}
}

// Reader is the uniform view over one decoded binary message that the
// event extractor consumes. Every format adapter (msgpack.go, cbor.go,
// flex.go, zera.go) produces one of these for its top-level value.
type Reader interface {
	IsMap() bool
	MapKeys() []string
	// Get returns the value for key. Only called when IsMap() is true and
	// key was returned by MapKeys().
	Get(key string) Value
}

// Value is one field's worth of decoded data, possibly itself an array.
type Value interface {
	IsBool() bool
	IsInt() bool
	IsUint() bool
	IsFloat() bool
	IsString() bool
	IsArray() bool

	AsBool() bool
	AsInt64() int64
	AsFloat64() float64
	AsString() string

	ArrayLen() int
	ArrayElem(i int) Value
}

// Decode parses raw bytes per format and returns a Reader over the
// top-level value. It returns an error if the bytes are not valid for
// the given format; it does not itself require the top level to be a
// map — that check belongs to the extractor (spec: "fails if the top
// level is not a map" is an extraction-stage rule, not a decode-stage
// one, since a format can decode validly to a non-map top level).
func Decode(format Format, payload []byte) (Reader, error) {
	switch format {
	case FormatMsgpack:
		return decodeMsgpack(payload)
	case FormatCBOR:
		return decodeCBOR(payload)
	case FormatFlexBuffers:
		return decodeFlexBuffers(payload)
	case FormatZera:
		return decodeZera(payload)
	default:
		return nil, errUnsupportedFormat(format)
	}
}

type errUnsupportedFormat Format

func (e errUnsupportedFormat) Error() string {
	return "codec: unsupported format " + string(e)
}
