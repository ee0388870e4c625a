package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"condamirror/channel"
	"condamirror/diff"
	"condamirror/resolve"
)

func newDiffCommand() *cobra.Command {
	var (
		requirements []string
		exclusions   []string
		disposables  []string
		localDir     string
	)

	cmd := &cobra.Command{
		Use:   "diff",
		Short: "Diff a resolved requirement set against a local mirror",
		Long:  "Resolves requirements against the upstream channel, compares the result against a local mirror's current contents, and prints the add/remove sets.",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := resolveEnv(cmd)
			if err != nil {
				return err
			}
			if localDir == "" {
				return fmt.Errorf("--local is required")
			}

			r := resolve.New(env.reader, env.log)
			upstream, err := r.Resolve(cmd.Context(), resolve.Config{
				Requirements: requirements,
				Exclusions:   exclusions,
				Disposables:  disposables,
				Subdirs:      env.cfg.Subdirs,
			})
			if err != nil {
				return fmt.Errorf("resolving upstream: %w", err)
			}

			local := channel.NewLocal(localDir, "", env.log)
			localRecords, err := local.Iter(cmd.Context(), env.cfg.Subdirs)
			if err != nil {
				return fmt.Errorf("reading local mirror: %w", err)
			}

			toAdd, toRemove := diff.New(env.log).Compute(upstream, localRecords)

			out := cmd.OutOrStdout()
			for _, rec := range toAdd {
				fmt.Fprintf(out, "+ %s\n", rec.Identity())
			}
			for _, rec := range toRemove {
				fmt.Fprintf(out, "- %s\n", rec.Identity())
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&requirements, "requirement", "r", nil, "requirement match-spec (repeatable)")
	cmd.Flags().StringSliceVar(&exclusions, "exclude", nil, "exclusion match-spec (repeatable)")
	cmd.Flags().StringSliceVar(&disposables, "disposable", nil, "package name to treat as disposable (repeatable)")
	cmd.Flags().StringVar(&localDir, "local", "", "local mirror directory to diff against")

	return cmd
}
