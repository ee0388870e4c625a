package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"condamirror/channel"
	"condamirror/diff"
	"condamirror/patch"
	"condamirror/resolve"
)

func newPatchCommand() *cobra.Command {
	var (
		requirements []string
		exclusions   []string
		disposables  []string
		localDir     string
		purge        bool
		regenerate   bool
	)

	cmd := &cobra.Command{
		Use:   "patch",
		Short: "Write patch_instructions.json for a local mirror",
		Long:  "Resolves requirements against the upstream channel, diffs against a local mirror, and appends the records the mirror no longer needs to each subdir's patch_instructions.json.",
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

			_, toRemove := diff.New(env.log).Compute(upstream, localRecords)

			existing := make(map[string]patch.Instructions, len(env.cfg.Subdirs))
			for _, subdir := range env.cfg.Subdirs {
				in, err := local.ReadInstructions(cmd.Context(), subdir)
				if err != nil {
					return fmt.Errorf("reading instructions for %q: %w", subdir, err)
				}
				existing[subdir] = in
			}

			updated := patch.Apply(existing, toRemove)
			for subdir, in := range updated {
				if err := local.WriteInstructions(subdir, in); err != nil {
					return fmt.Errorf("writing instructions for %q: %w", subdir, err)
				}
			}

			if purge {
				if err := local.PurgeRemoved(cmd.Context()); err != nil {
					return fmt.Errorf("purging removed packages: %w", err)
				}
			}
			if regenerate {
				if err := local.WritePatchGenerator(cmd.Context()); err != nil {
					return fmt.Errorf("regenerating patch generator archive: %w", err)
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "wrote patch instructions for %d subdir(s), %d package(s) marked for removal\n", len(updated), len(toRemove))
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&requirements, "requirement", "r", nil, "requirement match-spec (repeatable)")
	cmd.Flags().StringSliceVar(&exclusions, "exclude", nil, "exclusion match-spec (repeatable)")
	cmd.Flags().StringSliceVar(&disposables, "disposable", nil, "package name to treat as disposable (repeatable)")
	cmd.Flags().StringVar(&localDir, "local", "", "local mirror directory to patch")
	cmd.Flags().BoolVar(&purge, "purge", false, "also delete removed package files and clear the removed list")
	cmd.Flags().BoolVar(&regenerate, "regenerate-archive", false, "also rebuild patch_generator.tar.zst")

	return cmd
}
