package codec

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// cborDecMode decodes CBOR maps into map[string]any rather than
// fxamacker/cbor's default map[any]any, so dynamicReader/dynamicValue
// can treat msgpack and CBOR identically after decode.
var cborDecMode = func() cbor.DecMode {
	mode, err := cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any{}),
	}.DecMode()
	if err != nil {
		panic("codec: invalid cbor decode options: " + err.Error())
	}
	return mode
}()

func decodeCBOR(payload []byte) (Reader, error) {
	var root any
	if err := cborDecMode.Unmarshal(payload, &root); err != nil {
		return nil, err
	}
	return dynamicReader{root: root}, nil
}
