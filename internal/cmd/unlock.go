package cmd

import (
	"github.com/spf13/cobra"
	"github.com/zoobzio/tether"
	"github.com/zoobzio/tether/lock"
)

// Unlock removes a lock marker left behind by a crashed process.
func Unlock() *cobra.Command {
	return NewCommand(
		&cobra.Command{
			Use:   "unlock [flags]",
			Short: "Remove a leftover config lock",
			Long: `Remove the lock marker next to the config record regardless of who holds it.

Only use this when no producer or consumer is running.
`,
			Args: cobra.NoArgs,
		}, nil, runUnlock,
	)
}

func runUnlock(ctx *Context, _ []string) error {
	path := tether.LockPathFor(ctx.Store().Path())
	if err := lock.ForceUnlock(path); err != nil {
		return err
	}
	ctx.logger.Info("lock removed", "path", path)
	return nil
}
