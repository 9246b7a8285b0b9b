package reconcile

import (
	"context"

	"github.com/smallbiznis/packhub/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("reconcile",
	fx.Provide(New),
	fx.Invoke(startWorker),
)

func startWorker(lc fx.Lifecycle, cfg config.Config, r *Reconciler) {
	if !cfg.Reconcile.Enabled {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				r.RunForever(ctx)
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-stopCtx.Done():
			}
			return nil
		},
	})
}
