package codec

import (
	"encoding/json"
	"io"
)

// JSONCodec matches what browsers produce with JSON.stringify, so HTML
// characters are left unescaped.
type JSONCodec struct{}

func (c JSONCodec) Encoder(w io.Writer) Encoder {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc
}

func (c JSONCodec) Decoder(r io.Reader) Decoder {
	return json.NewDecoder(r)
}
