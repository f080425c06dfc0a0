// Package bustest provides in-memory windows for testing code built on bus.
//
// A Window delivers messages asynchronously and in order, like a browser
// event loop would, on a goroutine of its own. Frames embedded in a Window
// stay unloaded until Load is called, so tests control when the frame side
// comes up.
package bustest

import (
	"sync"

	"github.com/progrium/postbus-go/bus"
)

// Window is an in-memory window. It is both a bus.HostWindow and a
// bus.FrameWindow.
type Window struct {
	origin   string
	location string
	parent   *Window

	listeners bus.Listeners

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []bus.MessageEvent
	frames []*Frame
	closed bool
}

// NewWindow returns a top level window at location.
func NewWindow(location string) *Window {
	return newWindow(location, nil)
}

func newWindow(location string, parent *Window) *Window {
	w := &Window{
		origin:   bus.OriginOf(location),
		location: location,
		parent:   parent,
	}
	w.cond = sync.NewCond(&w.mu)
	go w.deliver()
	return w
}

func (w *Window) deliver() {
	for {
		w.mu.Lock()
		for len(w.queue) == 0 && !w.closed {
			w.cond.Wait()
		}
		if w.closed {
			w.mu.Unlock()
			return
		}
		ev := w.queue[0]
		w.queue = w.queue[1:]
		w.mu.Unlock()
		w.listeners.Dispatch(ev)
	}
}

func (w *Window) Listen(fn func(bus.MessageEvent)) func() {
	return w.listeners.Add(fn)
}

// Listeners returns the number of registered listeners.
func (w *Window) Listeners() int {
	return w.listeners.Len()
}

func (w *Window) Origin() string {
	return w.origin
}

func (w *Window) Location() string {
	return w.location
}

// Parent returns the port to the embedding window, or nil for a top level
// window.
func (w *Window) Parent() bus.Port {
	if w.parent == nil {
		return nil
	}
	return &port{to: w.parent, from: w}
}

// Embed records a frame loading src. Its content window is nil until the
// frame is loaded.
func (w *Window) Embed(src string) (bus.Frame, error) {
	f := &Frame{src: src, host: w}
	w.mu.Lock()
	w.frames = append(w.frames, f)
	w.mu.Unlock()
	return f, nil
}

// Frames returns the frames embedded so far.
func (w *Window) Frames() []*Frame {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]*Frame(nil), w.frames...)
}

// Frame returns the most recently embedded frame, or nil.
func (w *Window) Frame() *Frame {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.frames) == 0 {
		return nil
	}
	return w.frames[len(w.frames)-1]
}

// Inject queues data for delivery as if posted from origin.
func (w *Window) Inject(data interface{}, origin string) {
	w.enqueue(bus.MessageEvent{Data: data, Origin: origin})
}

func (w *Window) enqueue(ev bus.MessageEvent) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.queue = append(w.queue, ev)
	w.cond.Signal()
}

// Close stops delivery. Messages still queued are dropped.
func (w *Window) Close() {
	w.mu.Lock()
	w.closed = true
	w.queue = nil
	frames := w.frames
	w.cond.Broadcast()
	w.mu.Unlock()
	for _, f := range frames {
		if win := f.Window(); win != nil {
			win.Close()
		}
	}
}

type port struct {
	to   *Window
	from *Window
}

// PostMessage delivers a copy of data as a string, the way a browser hands
// over a posted JSON string. A targetOrigin that does not match the
// receiving window drops the message silently.
func (p *port) PostMessage(data []byte, targetOrigin string) error {
	if !bus.OriginMatches(targetOrigin, p.to.origin) {
		return nil
	}
	p.to.enqueue(bus.MessageEvent{Data: string(data), Origin: p.from.origin})
	return nil
}

// Frame is a frame embedded in a Window.
type Frame struct {
	src  string
	host *Window

	mu      sync.Mutex
	win     *Window
	onError []func(error)
}

func (f *Frame) Src() string {
	return f.src
}

func (f *Frame) ContentWindow() bus.Port {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.win == nil {
		return nil
	}
	return &port{to: f.win, from: f.host}
}

func (f *Frame) OnError(fn func(error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onError = append(f.onError, fn)
}

// Load creates the frame's window. Calling it again returns the same window.
func (f *Frame) Load() *Window {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.win == nil {
		f.win = newWindow(f.src, f.host)
	}
	return f.win
}

// Window returns the frame's window, or nil before Load.
func (f *Frame) Window() *Window {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.win
}

// Fail reports err to the frame's error listeners.
func (f *Frame) Fail(err error) {
	f.mu.Lock()
	fns := append([]func(error){}, f.onError...)
	f.mu.Unlock()
	for _, fn := range fns {
		fn(err)
	}
}
