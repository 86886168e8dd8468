package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Resolve prints the URL a request maps to.
func Resolve() *cobra.Command {
	return NewCommand(
		&cobra.Command{
			Use:   "resolve [flags] request [requester]",
			Short: "Resolve an asset request against the current config",
			Long: `Print the public URL (or raw value) the current config maps a request to.

Relative requests are resolved against the requester's directory.

Example:
  tether resolve src/img/logo.png
  tether resolve ./logo.png src/components/header.js
`,
			Args: cobra.RangeArgs(1, 2),
		}, []commandLineFlag{publicPathFlag}, runResolve,
	)
}

var publicPathFlag = commandLineFlag{
	name:  "public-path",
	usage: "override the public path from the record",
}

func runResolve(ctx *Context, args []string) error {
	c := ctx.consumer()
	defer c.Deactivate()

	if err := c.Initialize(ctx, nil); err != nil {
		return err
	}
	if p := ctx.flagString(publicPathFlag); p != "" {
		c.SetPublicPath(p)
	}

	requester := ""
	if len(args) > 1 {
		requester = args[1]
	}
	asset, ok := c.Resolve(args[0], requester)
	if !ok {
		return fmt.Errorf("no asset mapped for %s", args[0])
	}
	if asset.IsURL() {
		_, err := fmt.Fprintln(ctx.out, asset.URL)
		return err
	}
	_, err := fmt.Fprintln(ctx.out, string(asset.Value))
	return err
}
