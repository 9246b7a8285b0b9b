package main

import (
	"github.com/smallbiznis/packhub/internal/reconcile"
	"github.com/smallbiznis/packhub/internal/server"
	"github.com/smallbiznis/packhub/internal/stats"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Run the HTTP API together with the webhook queue and, when enabled,
the periodic orphan sweep and registry stats push.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fx.New(
				coreModules(),
				server.Module,
				reconcile.Module,
				stats.Module,
			)
			if err := app.Err(); err != nil {
				return err
			}
			app.Run()
			return nil
		},
	}
}
