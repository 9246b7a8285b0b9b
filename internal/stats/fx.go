package stats

import (
	"context"
	"io"
	"time"

	"github.com/smallbiznis/packhub/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("registry.stats",
	fx.Provide(NewCollector),
	fx.Provide(NewPusher),
	fx.Invoke(startWorker),
)

// Worker refreshes the collector from the database and pushes it.
type Worker struct {
	db        *gorm.DB
	log       *zap.Logger
	collector *Collector
	pusher    Pusher
}

func NewWorker(db *gorm.DB, log *zap.Logger, collector *Collector, pusher Pusher) *Worker {
	return &Worker{db: db, log: log.Named("registry.stats"), collector: collector, pusher: pusher}
}

// RunOnce counts and pushes a single snapshot.
func (w *Worker) RunOnce(ctx context.Context) error {
	snapshot, err := Count(ctx, w.db)
	if err != nil {
		return err
	}
	w.collector.Set(snapshot)
	pushCtx, cancel := context.WithTimeout(ctx, defaultPushTimeout)
	defer cancel()
	return w.pusher.Push(pushCtx, w.collector.Registry())
}

func startWorker(lc fx.Lifecycle, cfg config.Config, db *gorm.DB, log *zap.Logger, collector *Collector, pusher Pusher) {
	if pusher == nil {
		return
	}
	interval := cfg.Metrics.Interval
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	w := NewWorker(db, log, collector, pusher)

	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			w.log.Info("starting registry stats push", zap.Duration("interval", interval))
			go func() {
				ticker := time.NewTicker(interval)
				defer ticker.Stop()
				for {
					if err := w.RunOnce(ctx); err != nil && ctx.Err() == nil {
						w.log.Warn("registry stats push failed", zap.Error(err))
					}
					select {
					case <-ticker.C:
					case <-ctx.Done():
						return
					}
				}
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			if closer, ok := pusher.(io.Closer); ok {
				return closer.Close()
			}
			return nil
		},
	})
}
