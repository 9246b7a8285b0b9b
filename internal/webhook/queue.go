package webhook

import (
	"context"
	"fmt"
	"sync"

	"github.com/smallbiznis/packhub/internal/config"
	"github.com/smallbiznis/packhub/internal/webhook/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Queue runs dispatch jobs on a fixed set of workers. Jobs still buffered at
// shutdown are drained before Stop returns.
type Queue struct {
	svc     domain.Service
	log     *zap.Logger
	workers int

	mu     sync.RWMutex
	jobs   chan domain.Job
	closed bool
	wg     sync.WaitGroup
}

func NewQueue(svc domain.Service, log *zap.Logger, workers, size int) *Queue {
	if workers <= 0 {
		workers = 1
	}
	if size <= 0 {
		size = 1
	}
	return &Queue{
		svc:     svc,
		log:     log.Named("webhook.queue"),
		workers: workers,
		jobs:    make(chan domain.Job, size),
	}
}

func provideQueue(lc fx.Lifecycle, cfg config.Config, svc domain.Service, log *zap.Logger) (*Queue, domain.Enqueuer) {
	q := NewQueue(svc, log, cfg.Webhook.Workers, cfg.Webhook.QueueSize)
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			q.Start()
			return nil
		},
		OnStop: q.Stop,
	})
	return q, q
}

func (q *Queue) Start() {
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.work()
	}
}

// Enqueue never blocks. A full or stopped queue drops the job.
func (q *Queue) Enqueue(job domain.Job) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		q.log.Warn("webhook queue stopped, job dropped", zap.String("pack", job.Pack), zap.String("event", string(job.Event)))
		return false
	}
	select {
	case q.jobs <- job:
		return true
	default:
		q.log.Warn("webhook queue full, job dropped", zap.String("pack", job.Pack), zap.String("event", string(job.Event)))
		return false
	}
}

func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) work() {
	defer q.wg.Done()
	for job := range q.jobs {
		q.run(job)
	}
}

func (q *Queue) run(job domain.Job) {
	defer func() {
		if r := recover(); r != nil {
			q.log.Error("webhook dispatch panicked", zap.String("pack", job.Pack), zap.Error(fmt.Errorf("%v", r)))
		}
	}()
	var err error
	if job.Hooks != nil {
		_, err = q.svc.DispatchTo(context.Background(), job.Hooks, job.Pack, job.Event, job.Data, job.Version)
	} else {
		_, err = q.svc.Dispatch(context.Background(), job.Pack, job.Event, job.Data, job.Version)
	}
	if err != nil {
		q.log.Warn("webhook dispatch failed", zap.String("pack", job.Pack), zap.Error(err))
	}
}
