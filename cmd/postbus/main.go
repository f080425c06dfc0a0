package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/progrium/postbus-go/bus"
	"github.com/progrium/postbus-go/cmd/postbus/cli"
	"github.com/progrium/postbus-go/config"
	"github.com/progrium/postbus-go/internal/logx"
)

var configPath string

func main() {
	root := &cli.Command{
		Usage: "postbus",
		Long:  `postbus is a utility for working with the post-message-bus protocol`,
	}
	root.Flags().StringVar(&configPath, "config", os.Getenv("POSTBUS_CONFIG"), "path to a TOML config file")

	root.AddCommand(serveCmd)
	root.AddCommand(callCmd)
	root.AddCommand(interopCmd)
	root.AddCommand(checkCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.Execute(ctx, root, os.Args[1:]); err != nil {
		fatal(err)
	}
}

// loadConfig loads the config file, applies its log level and returns the
// bus options it sets.
func loadConfig() (config.Config, []bus.Option) {
	cfg, err := config.Load(configPath)
	fatal(err)
	logx.Configure(cfg.LogLevel)
	opts, err := cfg.Options()
	fatal(err)
	return cfg, append(opts, bus.WithLogger(logx.Log))
}

func fatal(err error) {
	if err != nil {
		logx.Log.Fatal().Err(err).Msg("postbus")
	}
}
