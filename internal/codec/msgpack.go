package codec

import "github.com/vmihailenco/msgpack/v5"

// decodeMsgpack decodes a msgpack-encoded message into the uniform
// Reader view. vmihailenco/msgpack decodes maps into map[string]any
// and arrays into []any by default when the destination is any, which
// dynamicReader/dynamicValue already understand.
func decodeMsgpack(payload []byte) (Reader, error) {
	var root any
	if err := msgpack.Unmarshal(payload, &root); err != nil {
		return nil, err
	}
	return dynamicReader{root: root}, nil
}
