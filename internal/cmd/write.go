package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/zoobzio/tether"
)

// Write publishes a record from a build descriptor.
func Write() *cobra.Command {
	return NewCommand(
		&cobra.Command{
			Use:   "write [flags]",
			Short: "Publish a config record for a finished or starting build",
			Long: `Write a config record the way a build tool integration would.

The build descriptor is a YAML file describing the output:

  outputPath: dist
  publicPath: /assets/
  devServer:
    enabled: true
    url: http://localhost:8080

Example:
  tether write --build tether.yaml --assets dist/manifest.json
  tether write --build tether.yaml --invalid
`,
			Args: cobra.NoArgs,
		}, writeFlags, runWrite,
	)
}

var (
	buildFlag = commandLineFlag{
		name:         "build",
		shorthand:    "b",
		defaultValue: "tether.yaml",
		usage:        "YAML build descriptor",
	}
	assetsFlag = commandLineFlag{
		name:      "assets",
		shorthand: "a",
		usage:     "JSON file holding the asset mapping ({\"marked\": {...}})",
	}
	invalidFlag = commandLineFlag{
		name:    "invalid",
		usage:   "announce a build in progress instead of a finished build",
		boolean: true,
	}
)

var writeFlags = []commandLineFlag{buildFlag, assetsFlag, invalidFlag}

func runWrite(ctx *Context, _ []string) error {
	opts, err := readBuildOptions(ctx.flagString(buildFlag))
	if err != nil {
		return err
	}

	var assets *tether.Assets
	if name := ctx.flagString(assetsFlag); name != "" {
		if assets, err = readAssets(name); err != nil {
			return err
		}
	}

	store := ctx.Store()
	p := tether.NewProducer(store, opts).Logger(ctx.logger)

	if ctx.flagBool(invalidFlag) {
		err = p.Invalidate(ctx)
	} else {
		err = p.BuildDone(ctx, assets, nil)
	}
	if err != nil {
		return err
	}
	if err := p.Close(ctx); err != nil {
		return fmt.Errorf("failed to flush config: %w", err)
	}

	ctx.logger.Info("config written", "path", store.Path())
	return nil
}

func readBuildOptions(name string) (tether.BuildOptions, error) {
	var opts tether.BuildOptions
	data, err := os.ReadFile(name) //nolint:gosec // user supplied path
	if err != nil {
		return opts, fmt.Errorf("failed to read build descriptor: %w", err)
	}
	if err := (tether.YAMLCodec{}).Unmarshal(data, &opts); err != nil {
		return opts, fmt.Errorf("failed to parse build descriptor %s: %w", name, err)
	}
	if err := opts.Validate(); err != nil {
		return opts, fmt.Errorf("%s: %w", name, err)
	}
	return opts, nil
}

func readAssets(name string) (*tether.Assets, error) {
	data, err := os.ReadFile(name) //nolint:gosec // user supplied path
	if err != nil {
		return nil, fmt.Errorf("failed to read assets: %w", err)
	}
	var assets tether.Assets
	if err := (tether.JSONCodec{}).Unmarshal(data, &assets); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", tether.ErrBadJSON, name, err)
	}
	return &assets, nil
}
