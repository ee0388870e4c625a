// condamirror is a thin cobra command tree wiring config, channel,
// resolve, diff, and patch together. It carries no resolution logic of
// its own: flag parsing and output formatting only, grounded on
// bartekus-stagecraft/internal/cli's root command and per-command
// RunE style.
package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "condamirror",
		Short:         "condamirror – conda channel mirroring and dependency resolution",
		Long:          "condamirror resolves conda package requirements against a channel and mirrors/patches local channel copies.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringP("config", "c", "", "path to condamirror.yml")
	cmd.PersistentFlags().String("base-url", "", "channel base URL or local directory (overrides config)")
	cmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().StringSlice("subdir", nil, "subdirs to operate on (overrides config defaults)")

	cmd.AddCommand(newDiffCommand())
	cmd.AddCommand(newPatchCommand())
	cmd.AddCommand(newResolveCommand())

	return cmd
}
