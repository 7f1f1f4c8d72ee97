package main

import (
	"github.com/spf13/cobra"

	"github.com/joiedevivre/jasmine/internal/app"
)

func newServeCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the admin HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			a := app.New(e.cfg, e.logger)
			if err := a.Start(ctx, app.Options{Serve: true}); err != nil {
				stop(a, e)
				return err
			}

			<-ctx.Done()
			e.logger.Info("Shutting down")
			stop(a, e)
			return nil
		},
	}
}
