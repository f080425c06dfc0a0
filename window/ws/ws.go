// Package ws carries a bus over WebSocket connections. The embedding page is
// a Host served over HTTP, and each frame is a client that dialed it with the
// channel id in its URL.
package ws

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"unicode/utf8"

	"github.com/progrium/postbus-go/bus"
	"github.com/progrium/postbus-go/internal/logx"
	"golang.org/x/net/websocket"
)

// ErrDisconnected is reported to a frame whose connection closed.
var ErrDisconnected = errors.New("ws: frame disconnected")

// Host is a bus.HostWindow whose frames connect over WebSocket. Serve it
// with net/http; a client connecting with the post-message-event-id query
// parameter of an embedded frame becomes that frame's content window.
type Host struct {
	origin    string
	listeners bus.Listeners

	mu     sync.Mutex
	frames map[string]*Frame
}

// NewHost returns a Host identified by origin in diagnostics and as the
// origin of the messages frames receive.
func NewHost(origin string) *Host {
	return &Host{
		origin: origin,
		frames: make(map[string]*Frame),
	}
}

func (h *Host) Listen(fn func(bus.MessageEvent)) func() {
	return h.listeners.Add(fn)
}

func (h *Host) Origin() string {
	return h.origin
}

// Embed registers a frame for src. src must carry a channel id.
func (h *Host) Embed(src string) (bus.Frame, error) {
	id := bus.ChannelIDFrom(src)
	if id == "" {
		return nil, fmt.Errorf("ws: %w: %s", bus.ErrNoChannelID, src)
	}
	f := &Frame{src: src, id: id, host: h}
	h.mu.Lock()
	h.frames[id] = f
	h.mu.Unlock()
	return f, nil
}

// Expire fails the frame loading src, for frames that never connect.
func (h *Host) Expire(src string, err error) {
	if f := h.remove(bus.ChannelIDFrom(src)); f != nil {
		if err == nil {
			err = fmt.Errorf("ws: frame %s expired", src)
		}
		f.fail(err)
	}
}

func (h *Host) frame(id string) *Frame {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.frames[id]
}

func (h *Host) remove(id string) *Frame {
	h.mu.Lock()
	defer h.mu.Unlock()
	f := h.frames[id]
	delete(h.frames, id)
	return f
}

// ServeHTTP upgrades the request and attaches the connection to its frame.
func (h *Host) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.frame(r.URL.Query().Get(bus.ParamName)) == nil {
		http.Error(w, "unknown frame", http.StatusNotFound)
		return
	}
	websocket.Server{Handler: h.accept}.ServeHTTP(w, r)
}

func (h *Host) accept(conn *websocket.Conn) {
	defer conn.Close()
	req := conn.Request()
	f := h.frame(req.URL.Query().Get(bus.ParamName))
	if f == nil {
		return
	}
	origin := req.Header.Get("Origin")
	if origin == "" {
		origin = bus.OriginOf(f.src)
	}
	if !f.attach(conn, origin) {
		logx.Log.Warn().Str("src", f.src).Msg("frame already connected")
		return
	}

	err := receive(conn, origin, h.listeners.Dispatch)
	f.detach()
	h.remove(f.id)
	if err == nil {
		err = ErrDisconnected
	}
	logx.Log.Debug().Err(err).Str("src", f.src).Msg("frame connection closed")
	f.fail(err)
}

// Frame is a frame embedded in a Host.
type Frame struct {
	src  string
	id   string
	host *Host

	mu      sync.Mutex
	port    *port
	onError []func(error)
}

func (f *Frame) Src() string {
	return f.src
}

// ContentWindow returns nil until the frame has connected.
func (f *Frame) ContentWindow() bus.Port {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.port == nil {
		return nil
	}
	return f.port
}

func (f *Frame) OnError(fn func(error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onError = append(f.onError, fn)
}

func (f *Frame) attach(conn *websocket.Conn, origin string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.port != nil {
		return false
	}
	f.port = &port{conn: conn, origin: origin}
	return true
}

func (f *Frame) detach() {
	f.mu.Lock()
	f.port = nil
	f.mu.Unlock()
}

func (f *Frame) fail(err error) {
	f.mu.Lock()
	fns := append([]func(error){}, f.onError...)
	f.mu.Unlock()
	for _, fn := range fns {
		fn(err)
	}
}

type port struct {
	conn   *websocket.Conn
	origin string
}

// PostMessage sends data as a text frame when it is valid UTF-8, as a
// binary frame otherwise.
func (p *port) PostMessage(data []byte, targetOrigin string) error {
	if !bus.OriginMatches(targetOrigin, p.origin) {
		return nil
	}
	if utf8.Valid(data) {
		return websocket.Message.Send(p.conn, string(data))
	}
	return websocket.Message.Send(p.conn, data)
}

// receive dispatches every message read from conn until it fails. A clean
// close returns nil.
func receive(conn *websocket.Conn, origin string, dispatch func(bus.MessageEvent)) error {
	for {
		var data []byte
		if err := websocket.Message.Receive(conn, &data); err != nil {
			if isClosed(err) {
				return nil
			}
			return err
		}
		dispatch(bus.MessageEvent{Data: data, Origin: origin})
	}
}

func isClosed(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed)
}
