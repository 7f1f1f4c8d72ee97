package main

import (
	"encoding/json"
	"errors"

	"github.com/spf13/cobra"

	"github.com/joiedevivre/jasmine/internal/app"
	"github.com/joiedevivre/jasmine/pkg/models"
)

func newScanCmd(e *env) *cobra.Command {
	var actorID string

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run a duplicate account scan and print the summary",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if actorID == "" {
				return errors.New("--actor is required")
			}

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			a := app.New(e.cfg, e.logger)
			defer stop(a, e)
			if err := a.Start(ctx, app.Options{}); err != nil {
				return err
			}

			summary, err := a.Detector.Scan(ctx, models.Actor{UserID: actorID})
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(summary)
		},
	}

	cmd.Flags().StringVar(&actorID, "actor", "", "user id of the super admin running the scan")
	return cmd
}
