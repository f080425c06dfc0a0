package bus

import (
	"bytes"
	"sync"

	"github.com/mitchellh/mapstructure"
	"github.com/progrium/postbus-go/codec"
)

// Kind tells a Request from a Response.
type Kind string

const (
	Request  Kind = "Request"
	Response Kind = "Response"
)

// Envelope is the unit sent over the channel. The field names on the wire are
// the ones used by the JavaScript post-message-bus library.
type Envelope struct {
	ChannelID string      `json:"__eventId" mapstructure:"__eventId"`
	MessageID string      `json:"msgId" mapstructure:"msgId"`
	Command   string      `json:"command" mapstructure:"command"`
	Kind      Kind        `json:"type" mapstructure:"type"`
	Payload   interface{} `json:"data" mapstructure:"data"`

	// Error is set on a Response when the handler failed.
	Error string `json:"error,omitempty" mapstructure:"error"`
}

// IsZero reports whether the envelope carries nothing, which is what a
// Deserializer returns for input it cannot decode.
func (e Envelope) IsZero() bool {
	return e.ChannelID == "" && e.MessageID == "" && e.Command == "" && e.Kind == "" && e.Payload == nil
}

func emptyPayload() map[string]interface{} {
	return map[string]interface{}{}
}

// Serializer turns an envelope into the data posted on the channel.
type Serializer func(env Envelope) ([]byte, error)

// Deserializer turns received data back into an envelope. It must not fail:
// anything it does not understand becomes the zero Envelope.
type Deserializer func(data interface{}) Envelope

// NewSerializer returns a Serializer using c.
func NewSerializer(c codec.Codec) Serializer {
	var text bool
	switch c.(type) {
	case codec.JSONCodec, *codec.JSONCodec:
		text = true
	}
	return func(env Envelope) ([]byte, error) {
		var buf bytes.Buffer
		if err := c.Encoder(&buf).Encode(env); err != nil {
			return nil, err
		}
		if text {
			// json.Encoder terminates every value with a newline
			return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
		}
		return buf.Bytes(), nil
	}
}

// NewDeserializer returns a Deserializer using c for encoded data. Values that
// were already decoded by the transport (an Envelope or a generic map) are
// accepted as they are.
func NewDeserializer(c codec.Codec) Deserializer {
	return func(data interface{}) Envelope {
		switch v := data.(type) {
		case Envelope:
			return v
		case *Envelope:
			if v == nil {
				return Envelope{}
			}
			return *v
		case []byte:
			return decodeEnvelope(c, v)
		case string:
			return decodeEnvelope(c, []byte(v))
		case map[string]interface{}:
			var env Envelope
			if err := mapstructure.Decode(v, &env); err != nil {
				return Envelope{}
			}
			return env
		default:
			return Envelope{}
		}
	}
}

func decodeEnvelope(c codec.Codec, b []byte) (env Envelope) {
	defer func() {
		if recover() != nil {
			env = Envelope{}
		}
	}()
	if err := c.Decoder(bytes.NewReader(b)).Decode(&env); err != nil {
		return Envelope{}
	}
	return env
}

// CodecConfig is a serializer and deserializer pair. Both ends of a bus must
// use compatible pairs; a mismatch shows up as silently dropped messages.
type CodecConfig struct {
	Serializer   Serializer
	Deserializer Deserializer
}

// CodecFrom builds a CodecConfig from a stream codec.
func CodecFrom(c codec.Codec) CodecConfig {
	return CodecConfig{
		Serializer:   NewSerializer(c),
		Deserializer: NewDeserializer(c),
	}
}

var (
	codecMu      sync.RWMutex
	defaultCodec = CodecFrom(codec.JSONCodec{})
)

// SetCodec replaces the default codec used by buses created afterwards.
// Nil members are ignored, so a partial config only replaces what it sets.
// Buses can also be given a codec directly with WithCodec.
func SetCodec(c CodecConfig) {
	codecMu.Lock()
	defer codecMu.Unlock()
	if c.Serializer != nil {
		defaultCodec.Serializer = c.Serializer
	}
	if c.Deserializer != nil {
		defaultCodec.Deserializer = c.Deserializer
	}
}

// DefaultCodec returns the current default codec, JSON unless changed with SetCodec.
func DefaultCodec() CodecConfig {
	codecMu.RLock()
	defer codecMu.RUnlock()
	return defaultCodec
}

// DecodePayload decodes a payload as received from the channel, usually
// generic maps and float64 numbers, into the value pointed to by out.
// Struct fields are matched by their json tag.
func DecodePayload(in, out interface{}) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(in)
}
