// Package stdio carries a bus over a pair of byte streams, so that a child
// process can act as an embedded frame. Messages are serialized envelopes
// in length-prefixed frames.
package stdio

import (
	"errors"
	"io"
	"os"
	"sync"

	"github.com/progrium/postbus-go/bus"
	"github.com/progrium/postbus-go/codec"
)

// EnvLocation is the environment variable a Host passes the frame location in.
const EnvLocation = "POSTBUS_LOCATION"

// ErrNoLocation is returned by Stdio when EnvLocation is not set.
var ErrNoLocation = errors.New("stdio: " + EnvLocation + " not set")

// Window is the frame end of a stdio bus. Its parent is whatever is on the
// other end of the writer.
type Window struct {
	location  string
	parent    *port
	listeners bus.Listeners

	done chan struct{}
	mu   sync.Mutex
	err  error
}

// New returns a Window at location reading messages from r and posting to
// its parent on w.
func New(location string, r io.Reader, w io.Writer) *Window {
	win := &Window{
		location: location,
		parent:   newPort(w, "stdio"),
		done:     make(chan struct{}),
	}
	go func() {
		err := receive(r, "stdio", win.listeners.Dispatch)
		win.mu.Lock()
		win.err = err
		win.mu.Unlock()
		close(win.done)
	}()
	return win
}

// Stdio returns a Window over os.Stdin and os.Stdout at the location set by
// the Host in EnvLocation.
func Stdio() (*Window, error) {
	location := os.Getenv(EnvLocation)
	if location == "" {
		return nil, ErrNoLocation
	}
	return New(location, os.Stdin, os.Stdout), nil
}

func (w *Window) Listen(fn func(bus.MessageEvent)) func() {
	return w.listeners.Add(fn)
}

func (w *Window) Origin() string {
	return bus.OriginOf(w.location)
}

func (w *Window) Location() string {
	return w.location
}

func (w *Window) Parent() bus.Port {
	return w.parent
}

// Done is closed when the reader is exhausted.
func (w *Window) Done() <-chan struct{} {
	return w.done
}

// Err returns the read error that ended the window, nil at EOF.
func (w *Window) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

type port struct {
	mu     sync.Mutex
	enc    codec.Encoder
	origin string
}

func newPort(w io.Writer, origin string) *port {
	return &port{enc: (&codec.FrameCodec{}).Encoder(w), origin: origin}
}

func (p *port) PostMessage(data []byte, targetOrigin string) error {
	if !bus.OriginMatches(targetOrigin, p.origin) {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enc.Encode(data)
}

// receive dispatches frames read from r until it fails. EOF returns nil.
func receive(r io.Reader, origin string, dispatch func(bus.MessageEvent)) error {
	dec := (&codec.FrameCodec{}).Decoder(r)
	for {
		var data []byte
		if err := dec.Decode(&data); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, os.ErrClosed) {
				return nil
			}
			return err
		}
		dispatch(bus.MessageEvent{Data: data, Origin: origin})
	}
}
