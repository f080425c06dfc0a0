package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/progrium/clon-go"
	"github.com/progrium/postbus-go/bus"
	"github.com/progrium/postbus-go/cmd/postbus/cli"
	"github.com/progrium/postbus-go/interop"
	"github.com/progrium/postbus-go/window/ws"
)

var callOrigin string

var callCmd = &cli.Command{
	Usage: "call <link> <command> [args...]",
	Short: "call a command on the embedding page",
	Long: `Call connects to a frame link printed by postbus serve, acting as the
frame, and calls a command on the page. Arguments use CLON syntax.`,
	Args: cli.MinArgs(2),
	Run: func(ctx context.Context, args []string) {
		_, opts := loadConfig()

		var payload any
		if len(args) > 2 {
			var err error
			payload, err = clon.Parse(args[2:])
			fatal(err)
		}

		win, err := ws.Dial(args[0], callOrigin)
		fatal(err)
		defer win.Close()

		c, err := bus.ToParent(win, interop.Handler(), opts...)
		fatal(err)
		defer c.Close()

		var ret any
		_, err = c.Call(ctx, args[1], payload, &ret)
		fatal(err)

		b, err := json.MarshalIndent(ret, "", "  ")
		fatal(err)
		fmt.Println(string(b))
	},
}

func init() {
	callCmd.Flags().StringVar(&callOrigin, "origin", "", "origin presented to the page")
}
