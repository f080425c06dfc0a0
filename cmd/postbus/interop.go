package main

import (
	"context"

	"github.com/progrium/postbus-go/bus"
	"github.com/progrium/postbus-go/cmd/postbus/cli"
	"github.com/progrium/postbus-go/interop"
	"github.com/progrium/postbus-go/window/stdio"
)

var interopCmd = &cli.Command{
	Usage: "interop",
	Short: "run interop service as a stdio frame",
	Long: `Interop runs the interop service as a frame on stdin and stdout. It is
started by postbus check; the frame location comes from POSTBUS_LOCATION.`,
	Args: cli.ExactArgs(0),
	Run: func(ctx context.Context, args []string) {
		_, opts := loadConfig()

		win, err := stdio.Stdio()
		fatal(err)
		c, err := bus.ToParent(win, interop.Handler(), opts...)
		fatal(err)
		defer c.Close()

		select {
		case <-win.Done():
			fatal(win.Err())
		case <-ctx.Done():
		}
	},
}
