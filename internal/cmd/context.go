// Package cmd implements the tether command line.
package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/zoobzio/tether"
	"github.com/zoobzio/tether/internal/logger"
)

// Context carries what every command needs.
type Context struct {
	context.Context

	env     tether.Env
	dir     string
	logger  *slog.Logger
	out     io.Writer
	cmd     *cobra.Command
	closers []io.Closer
}

// Store returns the record store for the working directory and environment.
func (c *Context) Store() *tether.Store {
	return tether.NewStore(filepath.Join(c.dir, tether.ConfigFile(c.env)))
}

type commandLineFlag struct {
	name, shorthand, defaultValue, usage string
	boolean                              bool
}

var (
	dirFlag = commandLineFlag{
		name:      "dir",
		shorthand: "C",
		usage:     "directory holding the config record (default is the working directory)",
	}
	debugFlag = commandLineFlag{
		name:    "debug",
		usage:   "enable debug logging",
		boolean: true,
	}
	quietFlag = commandLineFlag{
		name:      "quiet",
		shorthand: "q",
		usage:     "suppress console logging",
		boolean:   true,
	}
	logFileFlag = commandLineFlag{
		name:  "log-file",
		usage: "also append logs to this file",
	}
)

func initFlags(cmd *cobra.Command, flags ...commandLineFlag) {
	for _, f := range flags {
		if f.boolean {
			cmd.Flags().BoolP(f.name, f.shorthand, f.defaultValue == "true", f.usage)
			continue
		}
		cmd.Flags().StringP(f.name, f.shorthand, f.defaultValue, f.usage)
	}
}

// NewCommand wires the common flags and context setup around run.
func NewCommand(cmd *cobra.Command, flags []commandLineFlag, run func(*Context, []string) error) *cobra.Command {
	initFlags(cmd, append([]commandLineFlag{dirFlag, debugFlag, quietFlag, logFileFlag}, flags...)...)

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		ctx, err := newContext(cmd)
		if err != nil {
			return err
		}
		defer ctx.Close()
		return run(ctx, args)
	}
	return cmd
}

func newContext(cmd *cobra.Command) (*Context, error) {
	env, err := tether.LoadEnv()
	if err != nil {
		return nil, err
	}

	dir, _ := cmd.Flags().GetString(dirFlag.name) //nolint:errcheck // flag is registered
	if dir == "" {
		dir = "."
	}
	dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve directory: %w", err)
	}

	debug, _ := cmd.Flags().GetBool(debugFlag.name) //nolint:errcheck // flag is registered
	quiet, _ := cmd.Flags().GetBool(quietFlag.name) //nolint:errcheck // flag is registered

	opts := []logger.Option{
		logger.WithFormat(env.LogFormat),
		logger.WithConsole(cmd.ErrOrStderr()),
	}
	if debug || env.Debug {
		opts = append(opts, logger.WithDebug())
	}
	if quiet {
		opts = append(opts, logger.WithQuiet())
	}

	var closers []io.Closer
	if name, _ := cmd.Flags().GetString(logFileFlag.name); name != "" { //nolint:errcheck // flag is registered
		f, err := os.OpenFile(name, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		closers = append(closers, f)
		opts = append(opts, logger.WithWriter(f))
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	return &Context{
		Context: ctx,
		env:     env,
		dir:     dir,
		logger:  logger.New(opts...),
		out:     cmd.OutOrStdout(),
		cmd:     cmd,
		closers: closers,
	}, nil
}

// Close releases files opened for the command.
func (c *Context) Close() {
	for _, cl := range c.closers {
		_ = cl.Close() //nolint:errcheck // best effort on exit
	}
}

func (c *Context) flagString(f commandLineFlag) string {
	v, _ := c.cmd.Flags().GetString(f.name) //nolint:errcheck // flag is registered
	return v
}

func (c *Context) flagBool(f commandLineFlag) bool {
	v, _ := c.cmd.Flags().GetBool(f.name) //nolint:errcheck // flag is registered
	return v
}

func (c *Context) consumer() *tether.Consumer {
	return tether.NewConsumer(c.Store()).
		Env(c.env).
		Logger(c.logger)
}
