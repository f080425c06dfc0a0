package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// FrameCodec is a length prefixed frame wrapper codec. Stream transports use it
// to keep message boundaries that postMessage gives for free.
type FrameCodec struct {
	Codec
}

// Encoder returns a frame encoder that first encodes a value
// to a buffer using the embedded codec, prepends the encoded value
// byte length as a four byte big endian uint32, then writes to
// the given Writer.
func (c *FrameCodec) Encoder(w io.Writer) Encoder {
	return &frameEncoder{
		w: w,
		c: c.Codec,
	}
}

type frameEncoder struct {
	w io.Writer
	c Codec
}

func (e *frameEncoder) Encode(v interface{}) error {
	var b []byte
	if e.c == nil {
		raw, ok := v.([]byte)
		if !ok {
			return fmt.Errorf("codec: raw frame takes []byte, got %T", v)
		}
		b = raw
	} else {
		var buf bytes.Buffer
		if err := e.c.Encoder(&buf).Encode(v); err != nil {
			return err
		}
		b = buf.Bytes()
	}
	prefix := make([]byte, 4)
	binary.BigEndian.PutUint32(prefix, uint32(len(b)))
	_, err := e.w.Write(append(prefix, b...))
	return err
}

// Decoder returns a frame decoder that first reads a four byte frame
// length value used to read the rest of the frame, then uses the
// embedded codec to decode those bytes into a value. With no embedded
// codec the raw frame is stored into a *[]byte.
func (c *FrameCodec) Decoder(r io.Reader) Decoder {
	return &frameDecoder{
		r: r,
		c: c.Codec,
	}
}

type frameDecoder struct {
	r io.Reader
	c Codec
}

func (d *frameDecoder) Decode(v interface{}) error {
	prefix := make([]byte, 4)
	_, err := io.ReadFull(d.r, prefix)
	if err != nil {
		return err
	}
	size := binary.BigEndian.Uint32(prefix)
	buf := make([]byte, size)
	_, err = io.ReadFull(d.r, buf)
	if err != nil {
		return err
	}
	if d.c == nil {
		p, ok := v.(*[]byte)
		if !ok {
			return fmt.Errorf("codec: raw frame decodes into *[]byte, got %T", v)
		}
		*p = buf
		return nil
	}
	return d.c.Decoder(bytes.NewBuffer(buf)).Decode(v)
}
