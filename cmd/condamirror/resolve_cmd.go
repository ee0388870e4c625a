package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"condamirror/resolve"
)

func newResolveCommand() *cobra.Command {
	var (
		requirements  []string
		exclusions    []string
		disposables   []string
		latestVer     bool
		latestBuild   bool
		latestRootsOn bool
	)

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve a set of requirements against a channel",
		Long:  "Expands and prunes the dependency graph for the given requirements and prints the resulting record set.",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := resolveEnv(cmd)
			if err != nil {
				return err
			}

			r := resolve.New(env.reader, env.log)
			records, err := r.Resolve(cmd.Context(), resolve.Config{
				Requirements:   requirements,
				Exclusions:     exclusions,
				Disposables:    disposables,
				Subdirs:        env.cfg.Subdirs,
				LatestVersions: latestVer,
				LatestBuilds:   latestBuild,
				LatestRoots:    latestRootsOn,
			})
			if err != nil {
				return fmt.Errorf("resolving: %w", err)
			}

			out := cmd.OutOrStdout()
			for _, rec := range records {
				fmt.Fprintln(out, rec.Identity().String())
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&requirements, "requirement", "r", nil, "requirement match-spec (repeatable)")
	cmd.Flags().StringSliceVar(&exclusions, "exclude", nil, "exclusion match-spec (repeatable)")
	cmd.Flags().StringSliceVar(&disposables, "disposable", nil, "package name to treat as disposable (repeatable)")
	cmd.Flags().BoolVar(&latestVer, "latest-versions", false, "keep only the latest version per name")
	cmd.Flags().BoolVar(&latestBuild, "latest-builds", false, "keep only the latest build per name/version")
	cmd.Flags().BoolVar(&latestRootsOn, "latest-roots", false, "exempt root requirements from latest-version/build filtering")

	return cmd
}
