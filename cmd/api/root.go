package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/finboard/server/internal/http/handlers"
)

func newRootCmd() *cobra.Command {
	handlers.Version = version

	root := &cobra.Command{
		Use:          "finboard-api",
		Short:        "Authentication and session API of the finboard dashboard",
		SilenceUsage: true,
		// Running without a subcommand serves the API.
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
	root.SetVersionTemplate(`{{printf "finboard-api version %s\n" .Version}}`)
	root.Version = version

	root.AddCommand(newServeCmd(), newMigrateCmd(), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of finboard-api",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "finboard-api version %s\n", version)
		},
	}
}
