package service

import (
	"context"
	"strings"

	"github.com/smallbiznis/packhub/internal/blobstore"
	"github.com/smallbiznis/packhub/internal/clock"
	orgdomain "github.com/smallbiznis/packhub/internal/organization/domain"
	"github.com/smallbiznis/packhub/internal/pack/domain"
	webhookdomain "github.com/smallbiznis/packhub/internal/webhook/domain"
	"github.com/smallbiznis/packhub/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Clock    clock.Clock
	Repo     domain.Repository
	Blobs    blobstore.Store
	Webhooks webhookdomain.Service  `optional:"true"`
	Queue    webhookdomain.Enqueuer `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	clock    clock.Clock
	repo     domain.Repository
	blobs    blobstore.Store
	webhooks webhookdomain.Service
	queue    webhookdomain.Enqueuer
}

func New(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("pack.service"),
		clock:    p.Clock,
		repo:     p.Repo,
		blobs:    p.Blobs,
		webhooks: p.Webhooks,
		queue:    p.Queue,
	}
}

func (s *Service) WithTx(tx *gorm.DB) domain.Service {
	next := *s
	next.db = tx
	return &next
}

func (s *Service) Get(ctx context.Context, name string) (*domain.Response, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	item, err := s.repo.FindByName(ctx, s.db, name)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, domain.ErrNotFound
	}
	resp := toResponse(item)
	return &resp, nil
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) (*domain.ListResponse, error) {
	cursor, err := pagination.DecodeCursor(strings.TrimSpace(req.PageToken))
	if err != nil {
		return nil, err
	}
	limit := req.Size()

	items, err := s.repo.List(ctx, s.db, domain.ListFilter{
		After: cursor.Key,
		Limit: limit + 1,
		Query: req.Query,
	})
	if err != nil {
		return nil, err
	}

	page, info := pagination.Page(items, limit, func(p domain.Pack) string { return p.Name })
	resp := &domain.ListResponse{
		Items:    make([]domain.Response, 0, len(page)),
		PageInfo: info,
	}
	for i := range page {
		resp.Items = append(resp.Items, toResponse(&page[i]))
	}
	return resp, nil
}

// Upsert creates the pack for author or refreshes its metadata. The bool
// reports whether the row was created. When a concurrent publish inserts the
// same new pack first, this call merges into that row instead.
func (s *Service) Upsert(ctx context.Context, author string, meta domain.Metadata) (*domain.Pack, bool, error) {
	name := strings.TrimSpace(meta.Name)
	if name == "" {
		return nil, false, domain.ErrInvalidName
	}
	author = strings.TrimSpace(author)

	existing, err := s.repo.FindByName(ctx, s.db, name)
	if err != nil {
		return nil, false, err
	}

	now := s.clock.Now()
	if existing == nil {
		pack := &domain.Pack{
			Name:      name,
			Author:    author,
			CreatedAt: now,
			UpdatedAt: now,
		}
		domain.Merge(pack, meta)
		inserted, err := s.repo.Create(ctx, s.db, pack)
		if err != nil {
			return nil, false, err
		}
		if inserted {
			return pack, true, nil
		}

		existing, err = s.repo.FindByName(ctx, s.db, name)
		if err != nil {
			return nil, false, err
		}
		if existing == nil {
			return nil, false, domain.ErrNotFound
		}
		if _, scoped := orgdomain.ParseScope(name); !scoped && existing.Author != author {
			return nil, false, domain.ErrForbidden
		}
		s.log.Debug("pack inserted concurrently, merging", zap.String("pack", name))
	}

	domain.Merge(existing, meta)
	existing.UpdatedAt = now
	if err := s.repo.Update(ctx, s.db, existing); err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (s *Service) Update(ctx context.Context, actor, name string, req domain.UpdateRequest) (*domain.Response, error) {
	pack, err := s.ownedPack(ctx, actor, name)
	if err != nil {
		return nil, err
	}

	if req.Description != nil {
		pack.Description = strings.TrimSpace(*req.Description)
	}
	if req.Homepage != nil {
		pack.Homepage = optionalString(*req.Homepage)
	}
	if req.Repository != nil {
		pack.Repository = optionalString(*req.Repository)
	}
	if req.License != nil {
		pack.License = optionalString(*req.License)
	}
	if req.Tags != nil {
		pack.Tags = domain.CleanList(*req.Tags)
	}
	if req.Targets != nil {
		pack.Targets = domain.CleanList(*req.Targets)
	}
	if req.Features != nil {
		pack.Features = domain.CleanList(*req.Features)
	}
	pack.UpdatedAt = s.clock.Now()

	if err := s.repo.Update(ctx, s.db, pack); err != nil {
		return nil, err
	}
	resp := toResponse(pack)
	return &resp, nil
}

// Delete removes the pack and everything it owns in one transaction, then
// notifies the delete subscribers captured beforehand. Tarballs are removed
// afterwards on a best-effort basis; leftovers are picked up by the orphan
// sweep.
func (s *Service) Delete(ctx context.Context, actor, name string) error {
	pack, err := s.ownedPack(ctx, actor, name)
	if err != nil {
		return err
	}

	var versions []string
	if err := s.db.WithContext(ctx).
		Table("pack_versions").
		Where("pack_name = ?", pack.Name).
		Pluck("version", &versions).Error; err != nil {
		return err
	}

	var hooks []webhookdomain.Webhook
	if s.webhooks != nil {
		hooks, err = s.webhooks.Subscribers(ctx, pack.Name, webhookdomain.EventDelete)
		if err != nil {
			s.log.Warn("load delete subscribers failed", zap.String("pack", pack.Name), zap.Error(err))
			hooks = nil
		}
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.repo.DeleteCascade(ctx, tx, pack.Name)
	})
	if err != nil {
		return err
	}

	s.notifyDelete(ctx, pack.Name, versions, hooks)

	for _, version := range versions {
		if err := s.blobs.Delete(ctx, pack.Name, version); err != nil {
			s.log.Warn("tarball cleanup failed",
				zap.String("pack", pack.Name),
				zap.String("version", version),
				zap.Error(err),
			)
		}
	}
	s.log.Info("pack deleted", zap.String("pack", pack.Name), zap.Int("versions", len(versions)))
	return nil
}

// notifyDelete hands the event to the queue. Without a queue, or when it is
// full, delivery runs inline on a context detached from the request.
func (s *Service) notifyDelete(ctx context.Context, name string, versions []string, hooks []webhookdomain.Webhook) {
	if len(hooks) == 0 {
		return
	}
	job := webhookdomain.Job{
		Pack:  name,
		Event: webhookdomain.EventDelete,
		Data:  map[string]any{"versions": versions},
		Hooks: hooks,
	}
	if s.queue != nil && s.queue.Enqueue(job) {
		return
	}
	delivered, _ := s.webhooks.DispatchTo(context.WithoutCancel(ctx), hooks, job.Pack, job.Event, job.Data, "")
	s.log.Debug("delete event dispatched", zap.String("pack", name), zap.Int("delivered", delivered))
}

func (s *Service) RecordDownload(ctx context.Context, name string) error {
	return s.repo.IncrementDownloads(ctx, s.db, strings.TrimSpace(name))
}

func (s *Service) ownedPack(ctx context.Context, actor, name string) (*domain.Pack, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	pack, err := s.repo.FindByName(ctx, s.db, name)
	if err != nil {
		return nil, err
	}
	if pack == nil {
		return nil, domain.ErrNotFound
	}
	if pack.Author != strings.TrimSpace(actor) {
		return nil, domain.ErrForbidden
	}
	return pack, nil
}

func optionalString(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}

func toResponse(p *domain.Pack) domain.Response {
	return domain.Response{
		Name:         p.Name,
		Description:  p.Description,
		Author:       p.Author,
		Homepage:     p.Homepage,
		Repository:   p.Repository,
		License:      p.License,
		Tags:         nonNil(p.Tags),
		Targets:      nonNil(p.Targets),
		Features:     nonNil(p.Features),
		Dependencies: nonNil(p.Dependencies),
		Conflicts:    nonNil(p.Conflicts),
		Downloads:    p.Downloads,
		Rating:       p.Rating,
		Featured:     p.Featured,
		Verified:     p.Verified,
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}
}

func nonNil(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}
