package bus_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/progrium/postbus-go/bus"
	"github.com/progrium/postbus-go/bus/bustest"
	"github.com/progrium/postbus-go/codec"
)

const (
	hostURL  = "https://host.test/"
	frameURL = "https://frame.test/app?mode=test"
)

func fatal(err error, t *testing.T) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func newPair(t *testing.T, hostHandler, frameHandler bus.Handler, opts ...bus.Option) (*bus.FrameBus, *bus.Client, *bustest.Window) {
	t.Helper()
	p, err := bustest.NewPair(testContext(t), hostHandler, frameHandler, opts...)
	fatal(err, t)
	t.Cleanup(p.Close)
	return p.Host, p.Frame, p.Window
}

func echo() bus.Handler {
	return bus.HandlerFunc(func(r bus.Responder, c *bus.Call) {
		r.Return(c.Payload)
	})
}

// recorder answers every command and remembers which commands it saw.
type recorder struct {
	mu       sync.Mutex
	commands []string
}

func (rec *recorder) RespondRPC(r bus.Responder, c *bus.Call) {
	rec.mu.Lock()
	rec.commands = append(rec.commands, c.Command)
	rec.mu.Unlock()
	r.Return(c.Command)
}

func (rec *recorder) seen() []string {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return append([]string(nil), rec.commands...)
}

func TestRoundTrip(t *testing.T) {
	fb, c, _ := newPair(t, echo(), echo())
	ctx := testContext(t)

	var out string
	_, err := fb.Call(ctx, "echo", "Hello world", &out)
	fatal(err, t)
	if out != "Hello world" {
		t.Fatalf("unexpected return: %#v", out)
	}

	var m map[string]interface{}
	_, err = c.Call(ctx, "echo", map[string]interface{}{"n": 1}, &m)
	fatal(err, t)
	if m["n"] != float64(1) {
		t.Fatalf("unexpected return: %#v", m)
	}
	if fb.Pending() != 0 || c.Pending() != 0 {
		t.Fatal("pending calls left behind")
	}
}

func TestFrameURL(t *testing.T) {
	host := bustest.NewWindow(hostURL)
	defer host.Close()
	fb, err := bus.ToFrame(host, frameURL+"#top", nil)
	fatal(err, t)
	defer fb.Close()

	want := frameURL + "&" + bus.ParamName + "=" + fb.ChannelID() + "#top"
	if got := fb.Frame.Src(); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
	if bus.ChannelIDFrom(fb.Frame.Src()) != fb.ChannelID() {
		t.Fatal("channel id not recoverable from frame src")
	}
}

func TestConcurrentCallsSameCommand(t *testing.T) {
	slow := bus.HandlerFunc(func(r bus.Responder, c *bus.Call) {
		var n int
		if err := c.Decode(&n); err != nil {
			r.Return(err)
			return
		}
		// later calls answer first
		time.Sleep(time.Duration(20-n%20) * time.Millisecond)
		r.Return(n)
	})
	fb, _, _ := newPair(t, nil, slow)
	ctx := testContext(t)

	var wg sync.WaitGroup
	errs := make(chan error, 40)
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var out int
			if _, err := fb.Call(ctx, "same", i, &out); err != nil {
				errs <- err
				return
			}
			if out != i {
				errs <- fmt.Errorf("call %d got reply %d", i, out)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestUnimplemented(t *testing.T) {
	mux := bus.NewRespondMux()
	mux.Handle("known", echo())

	for name, h := range map[string]bus.Handler{
		"nil handler": nil,
		"mux miss":    mux,
	} {
		t.Run(name, func(t *testing.T) {
			fb, _, _ := newPair(t, nil, h)
			var out map[string]interface{}
			resp, err := fb.Call(testContext(t), "missing", nil, &out)
			fatal(err, t)
			if resp.Command != "missing" || resp.Kind != bus.Response {
				t.Fatalf("unexpected response: %#v", resp.Envelope)
			}
			if out == nil || len(out) != 0 {
				t.Fatalf("expected empty payload, got %#v", out)
			}
		})
	}
}

func TestRemoteError(t *testing.T) {
	h := bus.NewRespondMux()
	h.HandleFunc("fail", func(r bus.Responder, c *bus.Call) {
		r.Return(errors.New("boom"))
	})
	h.HandleFunc("panic", func(r bus.Responder, c *bus.Call) {
		panic("oops")
	})
	fb, _, _ := newPair(t, nil, h)
	ctx := testContext(t)

	_, err := fb.Call(ctx, "fail", nil, nil)
	var rerr bus.RemoteError
	if !errors.As(err, &rerr) || string(rerr) != "boom" {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = fb.Call(ctx, "panic", nil, nil)
	if !errors.As(err, &rerr) || string(rerr) != "panic: oops" {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNoReturn(t *testing.T) {
	silent := bus.HandlerFunc(func(r bus.Responder, c *bus.Call) {})
	fb, _, _ := newPair(t, nil, silent)
	resp, err := fb.Call(testContext(t), "quiet", "x", nil)
	fatal(err, t)
	if resp.Payload != nil {
		t.Fatalf("expected nil payload, got %#v", resp.Payload)
	}
}

func TestCallback(t *testing.T) {
	host := bus.NewRespondMux()
	host.HandleFunc("name", func(r bus.Responder, c *bus.Call) {
		r.Return("host")
	})
	frame := bus.HandlerFunc(func(r bus.Responder, c *bus.Call) {
		var name string
		if _, err := c.Caller.Call(c.Context, "name", nil, &name); err != nil {
			r.Return(err)
			return
		}
		r.Return("hello " + name)
	})
	fb, _, _ := newPair(t, host, frame)

	var out string
	_, err := fb.Call(testContext(t), "greet", nil, &out)
	fatal(err, t)
	if out != "hello host" {
		t.Fatalf("unexpected return: %q", out)
	}
}

func TestHandshake(t *testing.T) {
	rec := &recorder{}
	host := bustest.NewWindow(hostURL)
	defer host.Close()

	fb, err := bus.ToFrame(host, frameURL, rec)
	fatal(err, t)
	defer fb.Close()
	if fb.State() != bus.AwaitingSentinel {
		t.Fatalf("state = %s", fb.State())
	}

	win := host.Frame().Load()
	select {
	case <-fb.Done():
		t.Fatal("ready before sentinel")
	case <-time.After(20 * time.Millisecond):
	}

	c, err := bus.ToParent(win, nil)
	fatal(err, t)
	defer c.Close()

	hs, err := fb.Wait(testContext(t))
	fatal(err, t)
	if hs.ChannelID != fb.ChannelID() || hs.Message.Command != fb.ChannelID() || hs.Message.MessageID != fb.ChannelID() {
		t.Fatalf("unexpected handshake: %#v", hs)
	}
	if hs.Frame != fb.Frame || hs.Caller == nil {
		t.Fatal("handshake missing frame or caller")
	}

	// a repeated sentinel must not reach the handler
	sentinel := fmt.Sprintf(`{"__eventId":%q,"msgId":%q,"command":%q,"type":"Request","data":{}}`,
		fb.ChannelID(), fb.ChannelID(), fb.ChannelID())
	fatal(win.Parent().PostMessage([]byte(sentinel), "*"), t)

	var out string
	_, err = c.Call(testContext(t), "ping", nil, &out)
	fatal(err, t)
	if seen := rec.seen(); len(seen) != 1 || seen[0] != "ping" {
		t.Fatalf("handler saw %v", seen)
	}
	if fb.State() != bus.Ready {
		t.Fatalf("state = %s", fb.State())
	}
}

func TestChannelMismatch(t *testing.T) {
	rec := &recorder{}
	fb, c, host := newPair(t, rec, rec)

	stray := `{"__eventId":"other","msgId":"1","command":"stray","type":"Request","data":{}}`
	host.Inject(stray, "https://evil.test")
	host.Frame().Window().Inject(stray, hostURL)
	host.Inject("not an envelope", "https://evil.test")
	host.Inject(nil, "")

	ctx := testContext(t)
	_, err := fb.Call(ctx, "one", nil, nil)
	fatal(err, t)
	_, err = c.Call(ctx, "two", nil, nil)
	fatal(err, t)

	seen := rec.seen()
	if len(seen) != 2 {
		t.Fatalf("handler saw %v", seen)
	}
	for _, cmd := range seen {
		if cmd == "stray" {
			t.Fatal("stray envelope was dispatched")
		}
	}
}

// deadHost embeds frames that have already failed to load.
type deadHost struct {
	*bustest.Window
	err error
}

func (h deadHost) Embed(src string) (bus.Frame, error) {
	f, err := h.Window.Embed(src)
	if err != nil {
		return nil, err
	}
	return deadFrame{Frame: f, err: h.err}, nil
}

type deadFrame struct {
	bus.Frame
	err error
}

func (f deadFrame) OnError(fn func(error)) {
	fn(f.err)
}

func TestFrameErrorOnRegister(t *testing.T) {
	host := bustest.NewWindow(hostURL)
	defer host.Close()
	errExit := errors.New("exited")

	fb, err := bus.ToFrame(deadHost{Window: host, err: errExit}, frameURL, nil)
	fatal(err, t)
	defer fb.Close()

	if fb.State() != bus.Failed || fb.Err() != errExit {
		t.Fatalf("state = %s err = %v", fb.State(), fb.Err())
	}
	if host.Listeners() != 0 {
		t.Fatalf("listeners = %d", host.Listeners())
	}
	if _, err := fb.Wait(testContext(t)); !errors.Is(err, errExit) {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestForeignSentinel(t *testing.T) {
	host := bustest.NewWindow(hostURL)
	defer host.Close()
	fb, err := bus.ToFrame(host, frameURL, nil)
	fatal(err, t)
	defer fb.Close()

	id := fb.ChannelID()
	host.Inject(fmt.Sprintf(`{"__eventId":"other","msgId":%q,"command":%q,"type":"Request","data":{}}`, id, id), "https://evil.test")
	host.Inject(fmt.Sprintf(`{"__eventId":"other","msgId":%q,"command":%q,"type":"Request","data":{}}`, id, id), hostURL)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := fb.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("unexpected error: %v", err)
	}
	if fb.State() != bus.AwaitingSentinel {
		t.Fatalf("state = %s", fb.State())
	}

	// the real sentinel still completes the handshake
	c, err := bus.ToParent(host.Frame().Load(), nil)
	fatal(err, t)
	defer c.Close()
	_, err = fb.Wait(testContext(t))
	fatal(err, t)
}

func TestFrameError(t *testing.T) {
	host := bustest.NewWindow(hostURL)
	defer host.Close()
	fb, err := bus.ToFrame(host, frameURL, nil)
	fatal(err, t)
	defer fb.Close()

	errLoad := errors.New("load failed")
	host.Frame().Fail(errLoad)

	_, err = fb.Wait(testContext(t))
	if !errors.Is(err, errLoad) {
		t.Fatalf("unexpected error: %v", err)
	}
	if fb.State() != bus.Failed || fb.Err() != errLoad {
		t.Fatalf("state = %s err = %v", fb.State(), fb.Err())
	}
	if host.Listeners() != 0 {
		t.Fatal("listener not removed after failure")
	}

	// a late sentinel changes nothing
	c, err := bus.ToParent(host.Frame().Load(), nil)
	fatal(err, t)
	defer c.Close()
	time.Sleep(20 * time.Millisecond)
	if fb.State() != bus.Failed {
		t.Fatalf("state = %s", fb.State())
	}
}

func TestErrorAfterReady(t *testing.T) {
	fb, _, host := newPair(t, nil, echo())
	host.Frame().Fail(errors.New("too late"))
	if fb.State() != bus.Ready || fb.Err() != nil {
		t.Fatalf("state = %s err = %v", fb.State(), fb.Err())
	}
	var out string
	_, err := fb.Call(testContext(t), "echo", "still here", &out)
	fatal(err, t)
}

func TestCallTimeout(t *testing.T) {
	release := make(chan struct{})
	blocked := bus.HandlerFunc(func(r bus.Responder, c *bus.Call) {
		<-release
		r.Return("late")
	})

	t.Run("context", func(t *testing.T) {
		fb, _, _ := newPair(t, nil, blocked)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
		defer cancel()
		_, err := fb.Call(ctx, "wait", nil, nil)
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("unexpected error: %v", err)
		}
		if fb.Pending() != 0 {
			t.Fatalf("pending = %d", fb.Pending())
		}
	})

	t.Run("option", func(t *testing.T) {
		fb, _, _ := newPair(t, nil, blocked, bus.WithCallTimeout(30*time.Millisecond))
		_, err := fb.Call(context.Background(), "wait", nil, nil)
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("unexpected error: %v", err)
		}
		if fb.Pending() != 0 {
			t.Fatalf("pending = %d", fb.Pending())
		}
	})

	close(release)
}

func TestClose(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	blocked := bus.HandlerFunc(func(r bus.Responder, c *bus.Call) {
		<-release
	})
	fb, _, host := newPair(t, nil, blocked)

	errs := make(chan error, 1)
	go func() {
		_, err := fb.Call(context.Background(), "wait", nil, nil)
		errs <- err
	}()
	for fb.Pending() == 0 {
		time.Sleep(time.Millisecond)
	}
	fatal(fb.Close(), t)

	if err := <-errs; !errors.Is(err, bus.ErrClosed) {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := fb.Call(context.Background(), "again", nil, nil); !errors.Is(err, bus.ErrClosed) {
		t.Fatalf("unexpected error: %v", err)
	}
	if host.Listeners() != 0 {
		t.Fatal("listener not removed on close")
	}
}

func TestCloseDuringCalls(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	blocked := bus.HandlerFunc(func(r bus.Responder, c *bus.Call) {
		<-release
	})
	fb, _, _ := newPair(t, nil, blocked)

	ctx := testContext(t)
	errs := make(chan error, 20)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := fb.Call(ctx, "wait", nil, nil)
			errs <- err
		}()
		if i == 10 {
			fatal(fb.Close(), t)
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if !errors.Is(err, bus.ErrClosed) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if fb.Pending() != 0 {
		t.Fatalf("pending = %d", fb.Pending())
	}
}

func TestCallBeforeLoad(t *testing.T) {
	host := bustest.NewWindow(hostURL)
	defer host.Close()
	fb, err := bus.ToFrame(host, frameURL, nil)
	fatal(err, t)
	defer fb.Close()

	_, err = fb.Call(testContext(t), "early", nil, nil)
	if !errors.Is(err, bus.ErrNoContentWindow) {
		t.Fatalf("unexpected error: %v", err)
	}
	if fb.Pending() != 0 {
		t.Fatalf("pending = %d", fb.Pending())
	}
}

func TestFactoryErrors(t *testing.T) {
	host := bustest.NewWindow(hostURL)
	defer host.Close()

	for _, link := range []string{"", "  ", "://missing-scheme"} {
		if _, err := bus.ToFrame(host, link, nil); !errors.Is(err, bus.ErrInvalidLink) {
			t.Fatalf("%q: unexpected error: %v", link, err)
		}
	}

	f, err := host.Embed("https://frame.test/app")
	fatal(err, t)
	if _, err := bus.ToParent(f.(*bustest.Frame).Load(), nil); !errors.Is(err, bus.ErrNoChannelID) {
		t.Fatalf("unexpected error: %v", err)
	}

	top := bustest.NewWindow("https://top.test/?" + bus.ParamName + "=abc")
	defer top.Close()
	if _, err := bus.ToParent(top, nil); !errors.Is(err, bus.ErrNotEmbedded) {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestTargetOrigin(t *testing.T) {
	host := bustest.NewWindow(hostURL)
	defer host.Close()
	fb, err := bus.ToFrame(host, frameURL, nil, bus.WithTargetOrigin("https://other.test"))
	fatal(err, t)
	defer fb.Close()

	// the frame accepts any origin, so the sentinel still arrives
	c, err := bus.ToParent(host.Frame().Load(), echo())
	fatal(err, t)
	defer c.Close()
	_, err = fb.Wait(testContext(t))
	fatal(err, t)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := fb.Call(ctx, "echo", nil, nil); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected the request to be dropped, got %v", err)
	}
}

func TestCBOR(t *testing.T) {
	fb, _, _ := newPair(t, nil, echo(), bus.WithCodec(codec.CBORCodec{}))
	var out map[string]interface{}
	_, err := fb.Call(testContext(t), "echo", map[string]interface{}{"list": []int{1, 2}}, &out)
	fatal(err, t)
	if list, ok := out["list"].([]interface{}); !ok || len(list) != 2 {
		t.Fatalf("unexpected return: %#v", out)
	}
}
