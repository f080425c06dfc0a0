package stdio

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/progrium/postbus-go/bus"
	"github.com/progrium/postbus-go/internal/logx"
)

const closeTimeout = 5 * time.Second

// Host is a bus.HostWindow that embeds frames by starting a process per
// frame and talking to it over its stdin and stdout.
type Host struct {
	origin    string
	command   func(src string) *exec.Cmd
	listeners bus.Listeners

	mu     sync.Mutex
	frames []*Frame
}

// NewHost returns a Host that starts the command returned by command for
// every embedded frame. The frame location is passed in EnvLocation.
func NewHost(origin string, command func(src string) *exec.Cmd) *Host {
	return &Host{origin: origin, command: command}
}

func (h *Host) Listen(fn func(bus.MessageEvent)) func() {
	return h.listeners.Add(fn)
}

func (h *Host) Origin() string {
	return h.origin
}

// Embed starts the frame process. Its exit is reported as a frame error.
func (h *Host) Embed(src string) (bus.Frame, error) {
	cmd := h.command(src)
	env := cmd.Env
	if env == nil {
		env = os.Environ()
	}
	cmd.Env = append(env, EnvLocation+"="+src)
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("stdio: start frame: %w", err)
	}

	f := &Frame{
		src:   src,
		cmd:   cmd,
		stdin: stdin,
		port:  newPort(stdin, bus.OriginOf(src)),
		done:  make(chan struct{}),
	}
	h.mu.Lock()
	h.frames = append(h.frames, f)
	h.mu.Unlock()

	go f.run(stdout, h.listeners.Dispatch)
	return f, nil
}

// Close ends every frame process.
func (h *Host) Close() error {
	h.mu.Lock()
	frames := h.frames
	h.frames = nil
	h.mu.Unlock()
	for _, f := range frames {
		f.Close()
	}
	return nil
}

// Frame is a frame process started by a Host.
type Frame struct {
	src   string
	cmd   *exec.Cmd
	stdin io.Closer
	port  *port
	done  chan struct{}

	mu      sync.Mutex
	onError []func(error)
	err     error
}

func (f *Frame) Src() string {
	return f.src
}

func (f *Frame) ContentWindow() bus.Port {
	return f.port
}

// OnError registers fn for the frame exiting. If it already exited fn is
// called right away.
func (f *Frame) OnError(fn func(error)) {
	f.mu.Lock()
	select {
	case <-f.done:
		err := f.err
		f.mu.Unlock()
		fn(err)
		return
	default:
	}
	f.onError = append(f.onError, fn)
	f.mu.Unlock()
}

// Done is closed when the frame process has exited.
func (f *Frame) Done() <-chan struct{} {
	return f.done
}

// Close closes the frame's stdin and waits for it to exit. A process still
// running after closeTimeout is killed.
func (f *Frame) Close() error {
	f.stdin.Close()
	select {
	case <-f.done:
	case <-time.After(closeTimeout):
		f.cmd.Process.Kill()
		<-f.done
	}
	return nil
}

func (f *Frame) run(stdout io.Reader, dispatch func(bus.MessageEvent)) {
	rerr := receive(stdout, bus.OriginOf(f.src), dispatch)
	werr := f.cmd.Wait()

	err := werr
	if err == nil {
		err = rerr
	}
	if err == nil {
		err = fmt.Errorf("stdio: frame %s exited", f.src)
	} else {
		err = fmt.Errorf("stdio: frame %s: %w", f.src, err)
	}
	logx.Log.Debug().Err(err).Str("src", f.src).Msg("frame process ended")

	f.mu.Lock()
	f.err = err
	fns := f.onError
	f.onError = nil
	close(f.done)
	f.mu.Unlock()
	for _, fn := range fns {
		fn(err)
	}
}
