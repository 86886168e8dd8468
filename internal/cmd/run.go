package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"

	"github.com/spf13/cobra"
	"github.com/zoobzio/tether"
)

// Run starts a child process and forwards every record seen in the file to
// it over the event channel, including ones announcing a build in progress.
func Run() *cobra.Command {
	return NewCommand(
		&cobra.Command{
			Use:   "run [flags] -- command [args...]",
			Short: "Run a consumer process fed over the event channel",
			Long: `Start a child process with an inherited event channel and forward every
config record written to the file, valid or not, so the child never polls.

Example:
  tether run -- ./server --port 8000
`,
			Args: cobra.MinimumNArgs(1),
		}, nil, runRun,
	)
}

func runRun(ctx *Context, args []string) error {
	child := exec.CommandContext(ctx, args[0], args[1:]...) //nolint:gosec // user supplied command
	child.Stdout = os.Stdout
	child.Stderr = os.Stderr
	child.Stdin = os.Stdin

	ch, err := tether.SpawnWithChannel(child)
	if err != nil {
		return err
	}
	ch.Logger(ctx.logger)
	defer ch.Close() //nolint:errcheck // pipe close on exit

	c := ctx.consumer()
	defer c.Deactivate()
	c.OnReceive(newForwarder(ch, ctx.logger).forward)

	loadCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		if err := c.LoadAssets(loadCtx); err != nil && loadCtx.Err() == nil {
			ctx.logger.Error("failed to load config", "error", err)
		}
	}()

	if err := child.Wait(); err != nil {
		return fmt.Errorf("%s: %w", args[0], err)
	}
	return nil
}

// forwarder sends each distinct record to the child once. Records are
// re-read on every change notification, so repeats are dropped by timestamp.
type forwarder struct {
	ch     *tether.Channel
	logger *slog.Logger

	mu   sync.Mutex
	last int64
	sent bool
}

func newForwarder(ch *tether.Channel, logger *slog.Logger) *forwarder {
	return &forwarder{ch: ch, logger: logger}
}

func (f *forwarder) forward(rec *tether.Record) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sent && rec.Timestamp <= f.last {
		return
	}
	if err := f.ch.Send(rec); err != nil {
		f.logger.Warn("failed to forward config", "error", err)
		return
	}
	f.last = rec.Timestamp
	f.sent = true
}
