package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	serve := newServeCmd()

	root := &cobra.Command{
		Use:           "user-service",
		Short:         "User profile and settings service",
		Long:          "user-service stores profiles and settings for identity provider users and authenticates every API call against the realm's signing keys.",
		SilenceUsage:  true,
		SilenceErrors: false,
		// Running without a subcommand starts the server
		RunE: serve.RunE,
	}

	root.AddCommand(serve)
	root.AddCommand(newMigrateCmd())
	root.AddCommand(newCheckTokenCmd())
	return root
}
