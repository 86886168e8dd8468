package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/zoobzio/tether/internal/cmd"
)

var rootCmd = &cobra.Command{
	Use:   "tether",
	Short: "Share build asset mappings between a build tool and its consumers",
	Long: `tether publishes the asset mapping of a front-end build as a config record
and keeps consumers in sync with it while the build reruns.
`,
	SilenceUsage: true,
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(cmd.Write())
	rootCmd.AddCommand(cmd.Wait())
	rootCmd.AddCommand(cmd.Resolve())
	rootCmd.AddCommand(cmd.Watch())
	rootCmd.AddCommand(cmd.Run())
	rootCmd.AddCommand(cmd.Unlock())
}
