package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/smallbiznis/packhub/internal/blobstore"
	"github.com/smallbiznis/packhub/internal/clock"
	"github.com/smallbiznis/packhub/internal/config"
	"github.com/smallbiznis/packhub/internal/ratelimit"
	versiondomain "github.com/smallbiznis/packhub/internal/version/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	lockKey  = "packhub:reconcile:sweep"
	lockTTL  = 10 * time.Minute
	runLimit = 5 * time.Minute
)

// Report summarizes one sweep.
type Report struct {
	Scanned int `json:"scanned"`
	Orphans int `json:"orphans"`
	Deleted int `json:"deleted"`
	Young   int `json:"young"`
	Failed  int `json:"failed"`
}

type Params struct {
	fx.In

	Log      *zap.Logger
	Config   config.Config
	Clock    clock.Clock
	Blobs    blobstore.Store
	Versions versiondomain.Service
	Locker   *ratelimit.Locker `optional:"true"`
}

// Reconciler deletes tarballs that no version row references.
type Reconciler struct {
	log      *zap.Logger
	clock    clock.Clock
	blobs    blobstore.Store
	versions versiondomain.Service
	locker   *ratelimit.Locker
	grace    time.Duration
	interval time.Duration
}

func New(p Params) *Reconciler {
	grace := p.Config.Reconcile.Grace
	if grace <= 0 {
		grace = 24 * time.Hour
	}
	interval := p.Config.Reconcile.Interval
	if interval <= 0 {
		interval = time.Hour
	}
	return &Reconciler{
		log:      p.Log.Named("reconcile"),
		clock:    p.Clock,
		blobs:    p.Blobs,
		versions: p.Versions,
		locker:   p.Locker,
		grace:    grace,
		interval: interval,
	}
}

// Sweep runs once under the cluster lock. It returns ratelimit.ErrLockHeld
// when another replica is sweeping.
func (r *Reconciler) Sweep(ctx context.Context) (Report, error) {
	var report Report
	err := r.locker.WithLock(ctx, lockKey, lockTTL, func(ctx context.Context) error {
		var err error
		report, err = r.sweep(ctx)
		return err
	})
	return report, err
}

func (r *Reconciler) sweep(ctx context.Context) (Report, error) {
	var report Report

	// Keys are read before blobs so a version committed mid-sweep is either
	// in the set or its blob is younger than the grace period.
	keys, err := r.versions.Keys(ctx)
	if err != nil {
		return report, fmt.Errorf("list versions: %w", err)
	}
	known := make(map[versiondomain.Key]struct{}, len(keys))
	for _, key := range keys {
		known[key] = struct{}{}
	}

	objects, err := r.blobs.List(ctx)
	if err != nil {
		return report, fmt.Errorf("list blobs: %w", err)
	}

	now := r.clock.Now()
	for _, obj := range objects {
		report.Scanned++
		if _, ok := known[versiondomain.Key{PackName: obj.Name, Version: obj.Version}]; ok {
			continue
		}
		report.Orphans++
		if now.Sub(obj.ModTime) < r.grace {
			report.Young++
			continue
		}
		if err := r.blobs.Delete(ctx, obj.Name, obj.Version); err != nil {
			report.Failed++
			r.log.Warn("orphan delete failed", zap.String("location", obj.Location), zap.Error(err))
			continue
		}
		report.Deleted++
		r.log.Info("orphan tarball deleted", zap.String("pack", obj.Name), zap.String("version", obj.Version))
	}

	r.log.Info("reconcile sweep finished",
		zap.Int("scanned", report.Scanned),
		zap.Int("orphans", report.Orphans),
		zap.Int("deleted", report.Deleted),
		zap.Int("young", report.Young),
		zap.Int("failed", report.Failed),
	)
	return report, nil
}

// RunForever sweeps every interval until ctx is done.
func (r *Reconciler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		runCtx, cancel := context.WithTimeout(ctx, runLimit)
		_, err := r.Sweep(runCtx)
		cancel()
		switch {
		case err == nil, errors.Is(err, ratelimit.ErrLockHeld):
		case errors.Is(err, context.Canceled):
			return
		default:
			r.log.Warn("reconcile sweep failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
