package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/zoobzio/tether"
)

// Wait blocks until a valid record is available.
func Wait() *cobra.Command {
	cmd := NewCommand(
		&cobra.Command{
			Use:   "wait [flags]",
			Short: "Wait until the build publishes a valid config",
			Long: `Block until the config record exists and is valid, then print its timestamp.

Example:
  tether wait --timeout 30s
`,
			Args: cobra.NoArgs,
		}, nil, runWait,
	)
	cmd.Flags().Duration("timeout", tether.DefaultStartupTimeout, "give up after this long")
	return cmd
}

func runWait(ctx *Context, _ []string) error {
	timeout, _ := ctx.cmd.Flags().GetDuration("timeout") //nolint:errcheck // flag is registered

	c := ctx.consumer().StartupTimeout(timeout)
	defer c.Deactivate()

	start := time.Now()
	if err := c.LoadAssets(ctx); err != nil {
		return err
	}
	rec := c.Current()
	ctx.logger.Debug("config ready", "path", ctx.Store().Path(), "elapsed", time.Since(start))
	_, err := fmt.Fprintln(ctx.out, rec.Timestamp)
	return err
}
