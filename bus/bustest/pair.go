package bustest

import (
	"context"

	"github.com/progrium/postbus-go/bus"
)

// Pair is a host window with one loaded frame and the buses between them.
type Pair struct {
	Window *Window

	// Host is the bus held by the embedding page, Frame the one held by the
	// frame.
	Host  *bus.FrameBus
	Frame *bus.Client
}

// NewPair embeds a frame in a new window, connects both ends and waits for
// the handshake. The host end answers with host and the frame end with frame.
func NewPair(ctx context.Context, host, frame bus.Handler, opts ...bus.Option) (*Pair, error) {
	win := NewWindow("https://host.test/")
	fb, err := bus.ToFrame(win, "https://frame.test/", host, opts...)
	if err != nil {
		win.Close()
		return nil, err
	}
	c, err := bus.ToParent(win.Frame().Load(), frame, opts...)
	if err != nil {
		fb.Close()
		win.Close()
		return nil, err
	}
	p := &Pair{Window: win, Host: fb, Frame: c}
	if _, err := fb.Wait(ctx); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

// Close closes both buses and the windows.
func (p *Pair) Close() {
	p.Host.Close()
	p.Frame.Close()
	p.Window.Close()
}
