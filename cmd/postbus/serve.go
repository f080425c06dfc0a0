package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/progrium/postbus-go/bus"
	"github.com/progrium/postbus-go/cmd/postbus/cli"
	"github.com/progrium/postbus-go/interop"
	"github.com/progrium/postbus-go/internal/logx"
	"github.com/progrium/postbus-go/metrics"
	"github.com/progrium/postbus-go/window/ws"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var serveFrames int

var serveCmd = &cli.Command{
	Usage: "serve [addr]",
	Short: "embed frames over websocket",
	Long: `Serve listens for WebSocket frames and embeds them. The link of every
embedded frame is printed; a frame connects by dialing it, for example with
postbus call. The interop service answers the frames' calls.`,
	Args: cli.MaxArgs(1),
	Run: func(ctx context.Context, args []string) {
		cfg, opts := loadConfig()
		addr := cfg.Listen
		if len(args) > 0 {
			addr = args[0]
		}

		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		opts = append(opts, bus.WithMetrics(metrics.New(reg)))

		l, err := net.Listen("tcp", addr)
		fatal(err)
		base := "http://" + l.Addr().String()
		host := ws.NewHost(base)

		srv := &http.Server{Handler: newRouter(host, reg, cfg.Path, cfg.AllowedOrigins)}
		go func() {
			if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
				fatal(err)
			}
		}()
		logx.Log.Info().Str("addr", l.Addr().String()).Msg("listening")

		for i := 0; i < serveFrames; i++ {
			fb, err := bus.ToFrame(host, base+cfg.Path, interop.Handler(), opts...)
			fatal(err)
			defer fb.Close()
			fmt.Println(fb.Frame.Src())
			go greet(ctx, fb)
		}

		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdown)
	},
}

func init() {
	serveCmd.Flags().IntVar(&serveFrames, "frames", 1, "number of frames to embed")
}

func newRouter(host http.Handler, reg *prometheus.Registry, path string, origins []string) http.Handler {
	r := chi.NewRouter()
	if len(origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{"GET", "OPTIONS"},
			AllowedHeaders: []string{"*"},
		}))
	}
	r.Handle(path, host)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok\n"))
	})
	return r
}

// greet waits for the frame and calls echo on it once it is ready.
func greet(ctx context.Context, fb *bus.FrameBus) {
	hs, err := fb.Wait(ctx)
	if err != nil {
		if ctx.Err() == nil {
			logx.Log.Warn().Err(err).Str("src", fb.Frame.Src()).Msg("frame failed")
		}
		return
	}
	logx.Log.Info().Str("channel", hs.ChannelID).Msg("frame ready")

	var ret any
	if _, err := hs.Caller.Call(ctx, "echo", "hello frame", &ret); err != nil {
		logx.Log.Warn().Err(err).Str("channel", hs.ChannelID).Msg("echo failed")
		return
	}
	logx.Log.Info().Str("channel", hs.ChannelID).Interface("reply", ret).Msg("frame answered")
}
