package service

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/packhub/internal/clock"
	"github.com/smallbiznis/packhub/internal/config"
	"github.com/smallbiznis/packhub/internal/observability/metrics"
	"github.com/smallbiznis/packhub/internal/observability/tracing"
	packdomain "github.com/smallbiznis/packhub/internal/pack/domain"
	"github.com/smallbiznis/packhub/internal/webhook/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Config  config.Config
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    domain.Repository
	Packs   packdomain.Repository
	Metrics *metrics.Metrics `optional:"true"`
	Client  *http.Client     `name:"webhook_http_client" optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	repo    domain.Repository
	packs   packdomain.Repository
	metrics *metrics.Metrics
	client  *http.Client
	timeout time.Duration
}

func New(p Params) domain.Service {
	timeout := p.Config.Webhook.Timeout
	if timeout <= 0 {
		timeout = domain.DeliveryTimeout
	}
	client := p.Client
	if client == nil {
		client = tracing.WrapHTTPClient(&http.Client{})
	}
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("webhook.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		repo:    p.Repo,
		packs:   p.Packs,
		metrics: p.Metrics,
		client:  client,
		timeout: timeout,
	}
}

func (s *Service) Create(ctx context.Context, actor, packName string, req domain.CreateRequest) (*domain.Response, error) {
	packName = strings.TrimSpace(packName)
	if err := s.authorizePack(ctx, actor, packName); err != nil {
		return nil, err
	}

	target, err := normalizeURL(req.URL)
	if err != nil {
		return nil, err
	}
	events, err := normalizeEvents(req.Events)
	if err != nil {
		return nil, err
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}

	now := s.clock.Now()
	hook := &domain.Webhook{
		ID:        s.genID.Generate(),
		PackName:  packName,
		URL:       target,
		Secret:    normalizeSecret(req.Secret),
		Events:    events,
		Active:    active,
		CreatedBy: strings.TrimSpace(actor),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Insert(ctx, s.db, hook); err != nil {
		return nil, fmt.Errorf("insert webhook: %w", err)
	}

	resp := toResponse(hook)
	return &resp, nil
}

func (s *Service) List(ctx context.Context, actor, packName string) ([]domain.Response, error) {
	packName = strings.TrimSpace(packName)
	if err := s.authorizePack(ctx, actor, packName); err != nil {
		return nil, err
	}
	hooks, err := s.repo.ListByPack(ctx, s.db, packName)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Response, 0, len(hooks))
	for i := range hooks {
		out = append(out, toResponse(&hooks[i]))
	}
	return out, nil
}

func (s *Service) Get(ctx context.Context, actor, id string) (*domain.Response, error) {
	hook, err := s.ownedWebhook(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	resp := toResponse(hook)
	return &resp, nil
}

func (s *Service) Update(ctx context.Context, actor, id string, req domain.UpdateRequest) (*domain.Response, error) {
	hook, err := s.ownedWebhook(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	if req.URL != nil {
		target, err := normalizeURL(*req.URL)
		if err != nil {
			return nil, err
		}
		hook.URL = target
	}
	if req.Secret != nil {
		hook.Secret = normalizeSecret(req.Secret)
	}
	if req.Events != nil {
		events, err := normalizeEvents(*req.Events)
		if err != nil {
			return nil, err
		}
		hook.Events = events
	}
	if req.Active != nil {
		hook.Active = *req.Active
	}
	hook.UpdatedAt = s.clock.Now()

	if err := s.repo.Update(ctx, s.db, hook); err != nil {
		return nil, err
	}
	resp := toResponse(hook)
	return &resp, nil
}

func (s *Service) Delete(ctx context.Context, actor, id string) error {
	hook, err := s.ownedWebhook(ctx, actor, id)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.repo.Delete(ctx, tx, hook.ID)
	})
}

func (s *Service) GetDeliveries(ctx context.Context, actor, id string, limit int) ([]domain.Delivery, error) {
	hook, err := s.ownedWebhook(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	switch {
	case limit <= 0:
		limit = domain.DefaultDeliveryLimit
	case limit > domain.MaxDeliveryLimit:
		limit = domain.MaxDeliveryLimit
	}
	items, err := s.repo.ListDeliveries(ctx, s.db, hook.ID, limit)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []domain.Delivery{}
	}
	return items, nil
}

// authorizePack allows the pack author only.
func (s *Service) authorizePack(ctx context.Context, actor, packName string) error {
	if packName == "" {
		return domain.ErrPackNotFound
	}
	pack, err := s.packs.FindByName(ctx, s.db, packName)
	if err != nil {
		return err
	}
	if pack == nil {
		return domain.ErrPackNotFound
	}
	if pack.Author != strings.TrimSpace(actor) {
		return domain.ErrForbidden
	}
	return nil
}

func (s *Service) ownedWebhook(ctx context.Context, actor, id string) (*domain.Webhook, error) {
	hookID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return nil, domain.ErrInvalidID
	}
	hook, err := s.repo.FindByID(ctx, s.db, hookID)
	if err != nil {
		return nil, err
	}
	if hook == nil {
		return nil, domain.ErrNotFound
	}

	actor = strings.TrimSpace(actor)
	if hook.CreatedBy == actor {
		return hook, nil
	}
	pack, err := s.packs.FindByName(ctx, s.db, hook.PackName)
	if err != nil {
		return nil, err
	}
	if pack == nil || pack.Author != actor {
		return nil, domain.ErrForbidden
	}
	return hook, nil
}

func normalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" {
		return "", domain.ErrInvalidURL
	}
	switch parsed.Scheme {
	case "http", "https":
		return raw, nil
	default:
		return "", domain.ErrInvalidURL
	}
}

// normalizeEvents subscribes to every event when none are given.
func normalizeEvents(items []string) ([]string, error) {
	if len(items) == 0 {
		return []string{string(domain.EventPublish), string(domain.EventUpdate), string(domain.EventDelete)}, nil
	}
	out := make([]string, 0, len(items))
	seen := make(map[domain.Event]struct{}, len(items))
	for _, item := range items {
		event, ok := domain.ParseEvent(strings.ToLower(strings.TrimSpace(item)))
		if !ok {
			return nil, domain.ErrInvalidEvents
		}
		if _, dup := seen[event]; dup {
			continue
		}
		seen[event] = struct{}{}
		out = append(out, string(event))
	}
	return out, nil
}

func normalizeSecret(secret *string) *string {
	if secret == nil {
		return nil
	}
	value := strings.TrimSpace(*secret)
	if value == "" {
		return nil
	}
	return &value
}

func subscribed(hook domain.Webhook, event domain.Event) bool {
	for _, item := range hook.Events {
		if item == string(event) {
			return true
		}
	}
	return false
}

func toResponse(hook *domain.Webhook) domain.Response {
	events := []string(hook.Events)
	if events == nil {
		events = []string{}
	}
	return domain.Response{
		ID:        hook.ID.String(),
		PackName:  hook.PackName,
		URL:       hook.URL,
		HasSecret: hook.Secret != nil && *hook.Secret != "",
		Events:    events,
		Active:    hook.Active,
		CreatedBy: hook.CreatedBy,
		CreatedAt: hook.CreatedAt,
		UpdatedAt: hook.UpdatedAt,
	}
}
