package codec

import (
	"io"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// Maps decode with string keys so payloads look the same as with JSON.
var cborDecMode, _ = cbor.DecOptions{
	DefaultMapType: reflect.TypeOf(map[string]interface{}(nil)),
}.DecMode()

// CBORCodec provides a codec API for a CBOR encoder and decoder.
type CBORCodec struct{}

// Encoder returns a CBOR encoder
func (c CBORCodec) Encoder(w io.Writer) Encoder {
	return cbor.NewEncoder(w)
}

// Decoder returns a CBOR decoder
func (c CBORCodec) Decoder(r io.Reader) Decoder {
	return cborDecMode.NewDecoder(r)
}
