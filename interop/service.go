// Package interop is a small service for checking that two bus
// implementations understand each other. Both ends can serve it.
package interop

import (
	"context"
	"errors"
	"strings"

	"github.com/progrium/postbus-go/bus"
	"github.com/progrium/postbus-go/fn"
)

// EchoService is served with fn.HandlerFrom, so its commands are the method
// names with the first letter lowered: echo, upper, sum, error and relay.
type EchoService struct{}

// Echo returns its payload.
func (s EchoService) Echo(v any) any {
	return v
}

// Upper upper-cases a string.
func (s EchoService) Upper(text string) string {
	return strings.ToUpper(text)
}

// Sum adds two numbers given as an array.
func (s EchoService) Sum(a, b int) int {
	return a + b
}

// Error fails with text as the remote error.
func (s EchoService) Error(text string) error {
	return errors.New(text)
}

// Relay calls echo on the caller with v and returns what it answered.
func (s EchoService) Relay(v any, call *bus.Call) (any, error) {
	var ret any
	if _, err := call.Caller.Call(call.Context, "echo", v, &ret); err != nil {
		return nil, err
	}
	return ret, nil
}

// Handler returns the handler serving EchoService.
func Handler() bus.Handler {
	return fn.HandlerFrom(EchoService{})
}

// Check is a single interop check run against a peer serving EchoService.
type Check struct {
	Name string
	Run  func(ctx context.Context, c bus.Caller) error
}

// Checks returns the checks the postbus check command runs.
func Checks() []Check {
	return []Check{
		{"echo", func(ctx context.Context, c bus.Caller) error {
			var out map[string]any
			if _, err := c.Call(ctx, "echo", map[string]any{"hello": "world"}, &out); err != nil {
				return err
			}
			if out["hello"] != "world" {
				return errors.New("echo: payload changed")
			}
			return nil
		}},
		{"upper", func(ctx context.Context, c bus.Caller) error {
			upper := fn.Func[string, string](c, "upper")
			s, err := upper(ctx, "postbus")
			if err != nil {
				return err
			}
			if s != "POSTBUS" {
				return errors.New("upper: got " + s)
			}
			return nil
		}},
		{"sum", func(ctx context.Context, c bus.Caller) error {
			var n int
			if _, err := c.Call(ctx, "sum", fn.Args{2, 3}, &n); err != nil {
				return err
			}
			if n != 5 {
				return errors.New("sum: wrong result")
			}
			return nil
		}},
		{"error", func(ctx context.Context, c bus.Caller) error {
			_, err := c.Call(ctx, "error", "expected", nil)
			var rerr bus.RemoteError
			if !errors.As(err, &rerr) || string(rerr) != "expected" {
				return errors.New("error: remote error not returned")
			}
			return nil
		}},
		{"unimplemented", func(ctx context.Context, c bus.Caller) error {
			var out map[string]any
			if _, err := c.Call(ctx, "no-such-command", nil, &out); err != nil {
				return err
			}
			if len(out) != 0 {
				return errors.New("unimplemented: expected an empty payload")
			}
			return nil
		}},
		{"relay", func(ctx context.Context, c bus.Caller) error {
			var out string
			if _, err := c.Call(ctx, "relay", "round trip", &out); err != nil {
				return err
			}
			if out != "round trip" {
				return errors.New("relay: got " + out)
			}
			return nil
		}},
	}
}
