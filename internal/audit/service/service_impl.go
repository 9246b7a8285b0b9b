package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/packhub/internal/audit/domain"
	"github.com/smallbiznis/packhub/internal/audit/masking"
	"github.com/smallbiznis/packhub/internal/clock"
	obscontext "github.com/smallbiznis/packhub/internal/observability/context"
	"github.com/smallbiznis/packhub/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  auditdomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  auditdomain.Repository
}

func NewService(p Params) auditdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

// Record stores entry. The actor falls back to the one on ctx.
func (s *Service) Record(ctx context.Context, entry auditdomain.Entry) error {
	action := strings.TrimSpace(entry.Action)
	if action == "" {
		return auditdomain.ErrInvalidAction
	}

	actor := strings.TrimSpace(entry.Actor)
	if actor == "" {
		actor = obscontext.ActorFromContext(ctx)
	}
	if actor == "" {
		return auditdomain.ErrInvalidActor
	}

	targetType := strings.TrimSpace(entry.TargetType)
	if targetType == "" {
		targetType = "unknown"
	}

	row := auditdomain.AuditLog{
		ID:         s.genID.Generate(),
		Actor:      actor,
		Action:     action,
		TargetType: targetType,
		TargetID:   strings.TrimSpace(entry.TargetID),
		CreatedAt:  s.clock.Now().UTC(),
	}
	if masked := masking.MaskSensitive(entry.Metadata); masked != nil {
		row.Metadata = datatypes.JSONMap(masked)
	}
	if requestID := obscontext.RequestIDFromContext(ctx); requestID != "" {
		row.RequestID = &requestID
	}
	if ip := obscontext.ClientIPFromContext(ctx); ip != "" {
		row.IPAddress = &ip
	}

	if err := s.repo.Insert(ctx, s.db, &row); err != nil {
		s.log.Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
		return err
	}
	return nil
}

// List returns the actor's own entries, newest first.
func (s *Service) List(ctx context.Context, req auditdomain.ListRequest) (*auditdomain.ListResponse, error) {
	actor := strings.TrimSpace(req.Actor)
	if actor == "" {
		return nil, auditdomain.ErrInvalidActor
	}

	cursor, err := pagination.DecodeCursor(strings.TrimSpace(req.PageToken))
	if err != nil {
		return nil, err
	}
	var before snowflake.ID
	if cursor.Key != "" {
		before, err = snowflake.ParseString(cursor.Key)
		if err != nil || before == 0 {
			return nil, pagination.ErrInvalidPageToken
		}
	}
	limit := req.Size()

	items, err := s.repo.List(ctx, s.db, auditdomain.ListFilter{
		Actor:      actor,
		Action:     req.Action,
		TargetType: req.TargetType,
		TargetID:   req.TargetID,
		Before:     before,
		Limit:      limit + 1,
	})
	if err != nil {
		return nil, err
	}

	page, info := pagination.Page(items, limit, func(l auditdomain.AuditLog) string { return l.ID.String() })
	if page == nil {
		page = []auditdomain.AuditLog{}
	}
	return &auditdomain.ListResponse{Items: page, PageInfo: info}, nil
}
