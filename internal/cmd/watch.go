package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/zoobzio/tether"
	"github.com/zoobzio/tether/prom"
)

// Watch follows the record and reports every adopted version.
func Watch() *cobra.Command {
	return NewCommand(
		&cobra.Command{
			Use:   "watch [flags]",
			Short: "Follow the config record and report each update",
			Long: `Load the config record and print the timestamp of every record adopted
until interrupted. With --metrics, consumer metrics are served over HTTP.

Example:
  tether watch --metrics :9464
`,
			Args: cobra.NoArgs,
		}, []commandLineFlag{metricsFlag}, runWatch,
	)
}

var metricsFlag = commandLineFlag{
	name:  "metrics",
	usage: "serve Prometheus metrics on this address",
}

func runWatch(ctx *Context, _ []string) error {
	c := ctx.consumer()
	defer c.Deactivate()

	if addr := ctx.flagString(metricsFlag); addr != "" {
		reg := prometheus.NewRegistry()
		c.Metrics(prom.New(reg))
		stop, err := serveMetrics(ctx, addr, reg)
		if err != nil {
			return err
		}
		defer stop()
	}

	c.OnUpdate(func(rec *tether.Record) {
		_, _ = fmt.Fprintln(ctx.out, rec.Timestamp) //nolint:errcheck // best effort
	})

	if err := c.LoadAssets(ctx); err != nil {
		return err
	}
	ctx.logger.Info("watching config", "path", ctx.Store().Path())

	<-ctx.Done()
	return nil
}

func serveMetrics(ctx *Context, addr string, reg *prometheus.Registry) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			ctx.logger.Error("metrics server failed", "error", err)
		}
	}()
	ctx.logger.Info("serving metrics", "addr", ln.Addr().String())

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx) //nolint:errcheck // best effort on exit
	}, nil
}
