package main

import (
	"context"
	"encoding/json"

	"github.com/smallbiznis/packhub/internal/blobstore"
	"github.com/smallbiznis/packhub/internal/ratelimit"
	"github.com/smallbiznis/packhub/internal/reconcile"
	"github.com/smallbiznis/packhub/internal/version"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

func newReconcileCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Delete stored tarballs that have no version row",
		Long: `Run one orphan sweep. Tarballs without a matching version row are
deleted once they are older than RECONCILE_GRACE. When Redis is configured
the sweep holds a lock so concurrent runs skip.`,
		Example: `  RECONCILE_GRACE=1h packhub reconcile`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var reconciler *reconcile.Reconciler
			app := fx.New(
				fx.NopLogger,
				coreModules(),
				blobstore.Module,
				version.Module,
				ratelimit.Module,
				fx.Provide(reconcile.New),
				fx.Populate(&reconciler),
			)
			return runWithApp(cmd.Context(), app, func(ctx context.Context) error {
				report, err := reconciler.Sweep(ctx)
				if err != nil {
					return &ExitError{Code: 2, Err: err}
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			})
		},
	}
}

// runWithApp starts app, runs fn and always stops app afterwards.
func runWithApp(ctx context.Context, app *fx.App, fn func(context.Context) error) (err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := app.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if stopErr := app.Stop(context.WithoutCancel(ctx)); stopErr != nil && err == nil {
			err = stopErr
		}
	}()
	return fn(ctx)
}
