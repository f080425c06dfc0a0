//go:build js && wasm

// Package dom binds a bus to the browser window when compiled to
// WebAssembly, so Go code in a page or frame can talk to JavaScript peers
// using the post-message-bus protocol.
package dom

import (
	"errors"
	"fmt"
	"sync"
	"syscall/js"

	"github.com/progrium/postbus-go/bus"
)

// ErrLoad is reported when an embedded iframe fires its error event.
var ErrLoad = errors.New("dom: frame failed to load")

// Window wraps a browser window object. It is both a bus.HostWindow and a
// bus.FrameWindow.
type Window struct {
	v         js.Value
	listeners bus.Listeners

	once    sync.Once
	handler js.Func
}

// Current returns the window the program runs in.
func Current() *Window {
	return &Window{v: js.Global()}
}

func (w *Window) Listen(fn func(bus.MessageEvent)) func() {
	w.once.Do(func() {
		w.handler = js.FuncOf(func(this js.Value, args []js.Value) any {
			if len(args) == 0 {
				return nil
			}
			ev := args[0]
			w.listeners.Dispatch(bus.MessageEvent{
				Data:   messageData(ev.Get("data")),
				Origin: ev.Get("origin").String(),
			})
			return nil
		})
		w.v.Call("addEventListener", "message", w.handler)
	})
	return w.listeners.Add(fn)
}

// messageData converts the data of a message event. Objects posted by
// JavaScript peers are stringified so the JSON deserializer can read them.
func messageData(v js.Value) interface{} {
	switch v.Type() {
	case js.TypeString:
		return v.String()
	case js.TypeObject:
		return js.Global().Get("JSON").Call("stringify", v).String()
	default:
		return nil
	}
}

func (w *Window) Origin() string {
	return w.v.Get("location").Get("origin").String()
}

func (w *Window) Location() string {
	return w.v.Get("location").Get("href").String()
}

// Parent returns window.parent, or nil when the window is not in a frame.
func (w *Window) Parent() bus.Port {
	p := w.v.Get("parent")
	if p.IsUndefined() || p.IsNull() || p.Equal(w.v) {
		return nil
	}
	return port{p}
}

// Embed appends an iframe loading src to the document body.
func (w *Window) Embed(src string) (bus.Frame, error) {
	doc := w.v.Get("document")
	if doc.IsUndefined() {
		return nil, errors.New("dom: window has no document")
	}
	el := doc.Call("createElement", "iframe")
	el.Set("src", src)
	doc.Get("body").Call("appendChild", el)
	return &Frame{el: el, src: src}, nil
}

// Frame is an iframe element.
type Frame struct {
	el  js.Value
	src string
}

func (f *Frame) Src() string {
	return f.src
}

// Element returns the iframe element.
func (f *Frame) Element() js.Value {
	return f.el
}

func (f *Frame) ContentWindow() bus.Port {
	cw := f.el.Get("contentWindow")
	if cw.IsUndefined() || cw.IsNull() {
		return nil
	}
	return port{cw}
}

func (f *Frame) OnError(fn func(error)) {
	var cb js.Func
	cb = js.FuncOf(func(this js.Value, args []js.Value) any {
		cb.Release()
		go fn(ErrLoad)
		return nil
	})
	f.el.Call("addEventListener", "error", cb)
}

type port struct {
	v js.Value
}

func (p port) PostMessage(data []byte, targetOrigin string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("dom: postMessage: %v", r)
		}
	}()
	p.v.Call("postMessage", string(data), targetOrigin)
	return nil
}
