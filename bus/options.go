package bus

import (
	"time"

	"github.com/progrium/postbus-go/codec"
	"github.com/progrium/postbus-go/internal/logx"
	"github.com/rs/zerolog"
)

// Option configures a bus created by ToFrame or ToParent.
type Option func(*options)

type options struct {
	codec        CodecConfig
	targetOrigin string
	log          zerolog.Logger
	metrics      Metrics
	callTimeout  time.Duration
}

func newOptions(opts []Option) options {
	o := options{
		codec:        DefaultCodec(),
		targetOrigin: "*",
		log:          logx.Log,
		metrics:      NopMetrics{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithCodec makes the bus encode envelopes with c instead of the default codec.
func WithCodec(c codec.Codec) Option {
	return WithCodecConfig(CodecFrom(c))
}

// WithCodecConfig sets the serializer and deserializer of the bus. Nil
// members keep the default.
func WithCodecConfig(c CodecConfig) Option {
	return func(o *options) {
		if c.Serializer != nil {
			o.codec.Serializer = c.Serializer
		}
		if c.Deserializer != nil {
			o.codec.Deserializer = c.Deserializer
		}
	}
}

// WithTargetOrigin restricts which origin the peer window must have for
// posted messages to be delivered. The default is "*".
func WithTargetOrigin(origin string) Option {
	return func(o *options) {
		if origin != "" {
			o.targetOrigin = origin
		}
	}
}

// WithLogger sets the logger used for warnings and diagnostics.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) {
		o.log = l
	}
}

// WithMetrics reports protocol events to m.
func WithMetrics(m Metrics) Option {
	return func(o *options) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithCallTimeout bounds every outgoing call. Without it a call whose peer
// never answers waits until its context is done.
func WithCallTimeout(d time.Duration) Option {
	return func(o *options) {
		o.callTimeout = d
	}
}
