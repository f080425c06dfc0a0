package bus

import (
	"net/url"
	"sort"
	"strings"
	"sync"
)

// MessageEvent is a message delivered to a window.
type MessageEvent struct {
	// Data is what the sender posted. Transports hand over strings or bytes,
	// but may also deliver already decoded values.
	Data interface{}

	// Origin is the origin of the sender, if known.
	Origin string
}

// Port is something that can be posted to: a frame's content window or the
// parent of a frame.
type Port interface {
	// PostMessage delivers data to the window behind the port if its origin
	// matches targetOrigin. "*" matches any origin.
	PostMessage(data []byte, targetOrigin string) error
}

// Window is the receiving end of a message channel.
type Window interface {
	// Listen registers fn for every message delivered to the window and
	// returns a function that removes it.
	Listen(fn func(MessageEvent)) (remove func())

	// Origin identifies the window in diagnostics.
	Origin() string
}

// HostWindow is a window that can embed frames.
type HostWindow interface {
	Window

	// Embed creates a frame loading src.
	Embed(src string) (Frame, error)
}

// FrameWindow is the window inside an embedded frame.
type FrameWindow interface {
	Window

	// Location is the URL the frame was loaded from.
	Location() string

	// Parent returns the embedding window, or nil when there is none.
	Parent() Port
}

// Frame is an embedded frame as seen from its host.
type Frame interface {
	Src() string

	// ContentWindow returns the frame's window, or nil if it is not
	// available yet.
	ContentWindow() Port

	// OnError registers fn to be called when the frame fails to load.
	OnError(fn func(error))
}

// Listeners is a set of message listeners for Window implementations.
// The zero value is ready to use.
type Listeners struct {
	mu   sync.Mutex
	fns  map[int]func(MessageEvent)
	next int
}

// Add registers fn and returns a function removing it. The remove function
// can be called more than once.
func (l *Listeners) Add(fn func(MessageEvent)) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fns == nil {
		l.fns = make(map[int]func(MessageEvent))
	}
	id := l.next
	l.next++
	l.fns[id] = fn
	return func() {
		l.mu.Lock()
		delete(l.fns, id)
		l.mu.Unlock()
	}
}

// Dispatch calls every registered listener with ev in registration order.
func (l *Listeners) Dispatch(ev MessageEvent) {
	l.mu.Lock()
	ids := make([]int, 0, len(l.fns))
	for id := range l.fns {
		ids = append(ids, id)
	}
	fns := make([]func(MessageEvent), 0, len(ids))
	sort.Ints(ids)
	for _, id := range ids {
		fns = append(fns, l.fns[id])
	}
	l.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

// Len returns the number of registered listeners.
func (l *Listeners) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.fns)
}

// OriginMatches reports whether a window with origin accepts a message posted
// with targetOrigin.
func OriginMatches(targetOrigin, origin string) bool {
	if targetOrigin == "" || targetOrigin == "*" {
		return true
	}
	return strings.EqualFold(strings.TrimSuffix(targetOrigin, "/"), strings.TrimSuffix(origin, "/"))
}

// OriginOf returns the scheme://host part of a URL, or the URL itself if it
// cannot be parsed.
func OriginOf(location string) string {
	u, err := url.Parse(location)
	if err != nil || u.Host == "" {
		return location
	}
	return u.Scheme + "://" + u.Host
}
