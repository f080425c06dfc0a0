package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/progrium/postbus-go/bus"
	"github.com/progrium/postbus-go/bus/bustest"
	"github.com/progrium/postbus-go/cmd/postbus/cli"
	"github.com/progrium/postbus-go/interop"
	"github.com/progrium/postbus-go/window/stdio"
)

var (
	checkMem     bool
	checkTimeout time.Duration
)

var checkCmd = &cli.Command{
	Usage: "check [command]",
	Short: "check interop",
	Long: `Check embeds a frame serving the interop service and runs the interop
checks against it. The frame is "postbus interop" unless a shell command is
given, which must speak the protocol on stdin and stdout. With -mem both ends
run in this process over in-memory windows.`,
	Args: cli.MaxArgs(1),
	Run: func(ctx context.Context, args []string) {
		_, opts := loadConfig()

		ctx, cancel := context.WithTimeout(ctx, checkTimeout)
		defer cancel()

		var caller bus.Caller
		if checkMem {
			p, err := bustest.NewPair(ctx, interop.Handler(), interop.Handler(), opts...)
			fatal(err)
			defer p.Close()
			caller = p.Host
		} else {
			host := stdio.NewHost("stdio://postbus-check", func(src string) *exec.Cmd {
				if len(args) > 0 {
					return exec.Command("sh", "-c", args[0])
				}
				path, err := os.Executable()
				fatal(err)
				if configPath != "" {
					return exec.Command(path, "-config", configPath, "interop")
				}
				return exec.Command(path, "interop")
			})
			defer host.Close()

			fb, err := bus.ToFrame(host, "stdio://interop/", interop.Handler(), opts...)
			fatal(err)
			defer fb.Close()
			_, err = fb.Wait(ctx)
			fatal(err)
			caller = fb
		}

		failed := 0
		for _, check := range interop.Checks() {
			if err := check.Run(ctx, caller); err != nil {
				failed++
				fmt.Printf("FAIL %s: %v\n", check.Name, err)
				continue
			}
			fmt.Printf("ok   %s\n", check.Name)
		}
		if failed > 0 {
			fatal(fmt.Errorf("%d check(s) failed", failed))
		}
	},
}

func init() {
	checkCmd.Flags().BoolVar(&checkMem, "mem", false, "run both ends in process")
	checkCmd.Flags().DurationVar(&checkTimeout, "timeout", 30*time.Second, "time allowed for all checks")
}
