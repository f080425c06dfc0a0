package bus

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
)

// State is the handshake state of a FrameBus.
type State int

const (
	// AwaitingSentinel is the state until the frame announces itself.
	AwaitingSentinel State = iota
	// Ready means the frame sent its sentinel. It is terminal.
	Ready
	// Failed means the frame failed to load first. It is terminal.
	Failed
)

func (s State) String() string {
	switch s {
	case AwaitingSentinel:
		return "awaiting-sentinel"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Handshake is what a FrameBus resolves to once the frame is ready.
type Handshake struct {
	Frame     Frame
	ChannelID string
	Caller    Caller

	// Message is the sentinel envelope sent by the frame.
	Message Envelope
}

// FrameBus is the bus from a page to a frame it embeds. Frame and the
// channel id are available right away so the frame can be attached; calls
// should wait for Ready, since the frame drops messages it gets before it
// has started listening.
type FrameBus struct {
	*Client
	Frame Frame

	mu       sync.Mutex
	state    State
	err      error
	sentinel Envelope
	done     chan struct{}
}

// ToFrame embeds a frame loading link in win and returns the bus to it.
// The channel id is appended to link as the ParamName query parameter.
// Calls from the frame are answered by h, which may be nil.
func ToFrame(win HostWindow, link string, h Handler, opts ...Option) (*FrameBus, error) {
	if strings.TrimSpace(link) == "" {
		return nil, ErrInvalidLink
	}
	if _, err := url.Parse(link); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLink, err)
	}
	o := newOptions(opts)

	channelID := newChannelID()
	frame, err := win.Embed(AppendParam(link, ParamName, channelID))
	if err != nil {
		return nil, err
	}

	b := &FrameBus{
		Frame: frame,
		done:  make(chan struct{}),
	}
	b.Client = newClient(channelID, h, o, win.Origin(), func(data []byte) error {
		cw := frame.ContentWindow()
		if cw == nil {
			return ErrNoContentWindow
		}
		return cw.PostMessage(data, o.targetOrigin)
	})
	b.Client.intercept = b.observe
	b.Client.listen(win)
	// a frame may report an error it already has from inside OnError
	frame.OnError(b.fail)
	return b, nil
}

// observe consumes the sentinel. Envelopes whose command is the channel id
// are part of the handshake and never reach the dispatcher, so a repeated
// sentinel is ignored.
func (b *FrameBus) observe(env Envelope) bool {
	if env.Command != b.channelID {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != AwaitingSentinel {
		b.opts.log.Debug().Str("channel", b.channelID).Msg("repeated sentinel ignored")
		return true
	}
	b.state = Ready
	b.sentinel = env
	close(b.done)
	b.opts.log.Debug().Str("channel", b.channelID).Msg("frame ready")
	return true
}

func (b *FrameBus) fail(err error) {
	b.mu.Lock()
	if b.state != AwaitingSentinel {
		b.mu.Unlock()
		return
	}
	if err == nil {
		err = fmt.Errorf("bus: frame %s failed to load", b.Frame.Src())
	}
	b.state = Failed
	b.err = err
	close(b.done)
	b.mu.Unlock()

	b.Client.stopListening()
	b.opts.log.Warn().Err(err).Str("channel", b.channelID).Msg("frame failed before ready")
}

// Done is closed when the handshake completes or fails.
func (b *FrameBus) Done() <-chan struct{} {
	return b.done
}

// State returns the handshake state.
func (b *FrameBus) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Err returns the frame error once the bus has Failed.
func (b *FrameBus) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

// Wait blocks until the frame is ready, the frame fails to load, or ctx is
// done.
func (b *FrameBus) Wait(ctx context.Context) (*Handshake, error) {
	select {
	case <-b.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == Failed {
		return nil, b.err
	}
	return &Handshake{
		Frame:     b.Frame,
		ChannelID: b.channelID,
		Caller:    b.Client,
		Message:   b.sentinel,
	}, nil
}
