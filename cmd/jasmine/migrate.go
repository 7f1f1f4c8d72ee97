package main

import (
	"github.com/spf13/cobra"

	"github.com/joiedevivre/jasmine/internal/app"
)

func newMigrateCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := app.New(e.cfg, e.logger)
			defer stop(a, e)

			return a.Start(cmd.Context(), app.Options{MigrateOnly: true})
		},
	}
}
