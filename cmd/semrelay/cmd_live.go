package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/spf13/pflag"

	"github.com/c360/semrelay/event"
	"github.com/c360/semrelay/metric"
	"github.com/c360/semrelay/stream"
)

func (a *app) liveCommand() *command {
	var (
		metricsAddr string
		reconnect   time.Duration
		streamURL   string
	)

	var fs *pflag.FlagSet
	return &command{
		name:    "live",
		summary: "Hold a live WebSocket session and print received events as JSON lines",
		usage:   "semrelay live [--metrics-addr :9090] [--reconnect-interval 5s]",
		flags: func() *pflag.FlagSet {
			fs = pflag.NewFlagSet("live", pflag.ContinueOnError)
			fs.StringVar(&metricsAddr, "metrics-addr", getEnv("SEMRELAY_METRICS_ADDR", ""),
				"Serve Prometheus metrics on this address, empty to disable (env: SEMRELAY_METRICS_ADDR)")
			fs.DurationVar(&reconnect, "reconnect-interval", 0, "Wait between reconnects (default from config)")
			fs.StringVar(&streamURL, "url", "", "Stream endpoint override (default derived from ingest_url)")
			return fs
		},
		run: func(args []string) error {
			if err := requireArgs(args, 0, "no arguments"); err != nil {
				return err
			}

			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			if fs.Changed("reconnect-interval") {
				cfg.ReconnectInterval = reconnect
			}

			opts := []stream.Option{
				stream.WithLogger(a.logger),
				stream.WithURL(streamURL),
			}

			var srv *metric.Server
			if metricsAddr != "" {
				registry := metric.NewMetricsRegistry()
				registry.CoreMetrics().SetBuildInfo(Version)
				srv = metric.NewServer(metricsAddr, "/metrics", registry)
				opts = append(opts, stream.WithMetrics(registry))
			}

			var mu sync.Mutex
			sink := stream.SinkFunc(func(_ context.Context, ev event.Event) error {
				mu.Lock()
				defer mu.Unlock()
				_, err := fmt.Fprintln(a.stdout, ev.String())
				return err
			})

			c, err := stream.New(cfg, sink, opts...)
			if err != nil {
				return err
			}

			if srv != nil {
				srv.SetHealthCheck(c.Status)
				if err := srv.Start(); err != nil {
					return err
				}
				defer func() {
					timeout := getEnvDuration("SEMRELAY_SHUTDOWN_TIMEOUT", 5*time.Second)
					if err := srv.Stop(timeout); err != nil {
						a.logger.Warn("Metrics server shutdown failed", "error", err)
					}
				}()
				a.errConsole.info("Metrics at %s", srv.Address())
			}

			ctx, cancel := a.signalContext()
			defer cancel()

			a.errConsole.info("Streaming from %s (Ctrl-C to stop)", c.URL())
			err = c.ConnectAndStream(ctx)
			switch {
			case err == nil:
				a.errConsole.success("Stream closed by gateway")
				return nil
			case stderrors.Is(err, context.Canceled):
				a.errConsole.info("Stopped")
				return nil
			default:
				return err
			}
		},
	}
}
