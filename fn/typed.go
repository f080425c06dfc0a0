package fn

import (
	"context"

	"github.com/progrium/postbus-go/bus"
)

// Func returns a typed function calling command on the other end of c. The
// reply is decoded into R.
//
//	upper := fn.Func[string, string](client, "upper")
//	s, err := upper(ctx, "hello")
func Func[P, R any](c bus.Caller, command string) func(context.Context, P) (R, error) {
	return func(ctx context.Context, payload P) (R, error) {
		var reply R
		_, err := c.Call(ctx, command, payload, &reply)
		return reply, err
	}
}

// Proc is like Func for commands whose reply is not needed.
func Proc[P any](c bus.Caller, command string) func(context.Context, P) error {
	return func(ctx context.Context, payload P) error {
		_, err := c.Call(ctx, command, payload, nil)
		return err
	}
}
