package ws

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/progrium/postbus-go/bus"
)

func fatal(err error, t *testing.T) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}

func echo() bus.Handler {
	return bus.HandlerFunc(func(r bus.Responder, c *bus.Call) {
		r.Return(c.Payload)
	})
}

func newServer(t *testing.T) (*Host, *httptest.Server) {
	host := NewHost("http://page.test")
	srv := httptest.NewServer(host)
	t.Cleanup(srv.Close)
	return host, srv
}

func TestBusOverWebSocket(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	host, srv := newServer(t)

	mux := bus.NewRespondMux()
	mux.HandleFunc("whoami", func(r bus.Responder, c *bus.Call) {
		r.Return("host")
	})
	fb, err := bus.ToFrame(host, srv.URL+"/bus", mux)
	fatal(err, t)
	defer fb.Close()
	if !strings.HasPrefix(fb.Frame.Src(), srv.URL+"/bus?"+bus.ParamName+"=") {
		t.Fatalf("unexpected src: %s", fb.Frame.Src())
	}

	win, err := Dial(fb.Frame.Src(), "http://frame.test")
	fatal(err, t)
	defer win.Close()
	c, err := bus.ToParent(win, echo())
	fatal(err, t)
	defer c.Close()

	_, err = fb.Wait(ctx)
	fatal(err, t)

	var out string
	_, err = fb.Call(ctx, "echo", "over the wire", &out)
	fatal(err, t)
	if out != "over the wire" {
		t.Fatalf("unexpected return: %q", out)
	}

	_, err = c.Call(ctx, "whoami", nil, &out)
	fatal(err, t)
	if out != "host" {
		t.Fatalf("unexpected return: %q", out)
	}
}

func TestExpire(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	host, srv := newServer(t)

	fb, err := bus.ToFrame(host, srv.URL+"/bus", nil)
	fatal(err, t)
	defer fb.Close()

	errTimeout := errors.New("frame never connected")
	host.Expire(fb.Frame.Src(), errTimeout)
	if _, err := fb.Wait(ctx); !errors.Is(err, errTimeout) {
		t.Fatalf("unexpected error: %v", err)
	}

	// the frame is gone, so connecting now is refused
	if _, err := Dial(fb.Frame.Src(), "http://frame.test"); err == nil {
		t.Fatal("expected dial to fail")
	}
}

func TestDisconnectBeforeReady(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	host, srv := newServer(t)

	fb, err := bus.ToFrame(host, srv.URL+"/bus", nil)
	fatal(err, t)
	defer fb.Close()

	win, err := Dial(fb.Frame.Src(), "")
	fatal(err, t)
	win.Close()

	if _, err := fb.Wait(ctx); err == nil {
		t.Fatal("expected the frame to fail")
	}
	if fb.State() != bus.Failed {
		t.Fatalf("state = %s", fb.State())
	}
}

func TestEmbedWithoutChannel(t *testing.T) {
	host := NewHost("http://page.test")
	if _, err := host.Embed("http://frame.test/"); !errors.Is(err, bus.ErrNoChannelID) {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestURLSchemes(t *testing.T) {
	for in, want := range map[string]string{
		"http://a.test/bus":  "ws://a.test/bus",
		"https://a.test/bus": "wss://a.test/bus",
		"ws://a.test/bus":    "ws://a.test/bus",
	} {
		if got := wsURL(in); got != want {
			t.Fatalf("wsURL(%q) = %q", in, got)
		}
		if got := httpURL(wsURL(in)); !strings.HasPrefix(got, "http") {
			t.Fatalf("httpURL(%q) = %q", in, got)
		}
	}
}
