package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/randomizedcoder/go-forge-runner/internal/config"
)

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "forge",
		Short: "Run forge tests and inspect forge jobs",
		Long: `forge runs a test suite against a validator swarm, locally or on a
forge cluster, and writes the report and PR comments for CI.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd.Context(), cmd.Name())
		},
	}
	config.BindGlobalFlags(root.PersistentFlags(), a.cfg)

	root.AddCommand(
		newTestCmd(a),
		newListJobsCmd(a),
		newTailCmd(a),
		newWatchCmd(a),
		newVersionCmd(a),
	)
	return root
}

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the forge version",
		Args:  cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(a.stdout, "forge %s\n", version)
		},
	}
}
