package ws

import (
	"strings"
	"sync"

	"github.com/progrium/postbus-go/bus"
	"golang.org/x/net/websocket"
)

// Window is the frame end of a WebSocket bus. It is a bus.FrameWindow whose
// parent is the Host it dialed.
type Window struct {
	location  string
	origin    string
	parent    *port
	conn      *websocket.Conn
	listeners bus.Listeners

	done chan struct{}
	mu   sync.Mutex
	err  error
}

// Dial connects to the frame link location, as produced by a Host's Embed,
// presenting origin as the frame's origin. http and https links are dialed
// as ws and wss.
func Dial(location, origin string) (*Window, error) {
	if origin == "" {
		origin = bus.OriginOf(location)
	}
	conn, err := websocket.Dial(wsURL(location), "", origin)
	if err != nil {
		return nil, err
	}
	w := &Window{
		location: location,
		origin:   origin,
		parent:   &port{conn: conn, origin: bus.OriginOf(httpURL(location))},
		conn:     conn,
		done:     make(chan struct{}),
	}
	go w.receive()
	return w, nil
}

func (w *Window) receive() {
	err := receive(w.conn, w.parent.origin, w.listeners.Dispatch)
	w.mu.Lock()
	w.err = err
	w.mu.Unlock()
	close(w.done)
}

func (w *Window) Listen(fn func(bus.MessageEvent)) func() {
	return w.listeners.Add(fn)
}

func (w *Window) Origin() string {
	return w.origin
}

func (w *Window) Location() string {
	return w.location
}

func (w *Window) Parent() bus.Port {
	return w.parent
}

// Done is closed when the connection is gone.
func (w *Window) Done() <-chan struct{} {
	return w.done
}

// Err returns the error that ended the connection, nil for a clean close.
func (w *Window) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

func (w *Window) Close() error {
	return w.conn.Close()
}

func wsURL(location string) string {
	switch {
	case strings.HasPrefix(location, "http://"):
		return "ws://" + strings.TrimPrefix(location, "http://")
	case strings.HasPrefix(location, "https://"):
		return "wss://" + strings.TrimPrefix(location, "https://")
	}
	return location
}

func httpURL(location string) string {
	switch {
	case strings.HasPrefix(location, "ws://"):
		return "http://" + strings.TrimPrefix(location, "ws://")
	case strings.HasPrefix(location, "wss://"):
		return "https://" + strings.TrimPrefix(location, "wss://")
	}
	return location
}
