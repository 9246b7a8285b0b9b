package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/packhub/internal/clock"
	"github.com/smallbiznis/packhub/internal/version/domain"
	"github.com/smallbiznis/packhub/pkg/db"
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
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("version.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) WithTx(tx *gorm.DB) domain.Service {
	next := *s
	next.db = tx
	return &next
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (*domain.PackVersion, error) {
	packName := strings.TrimSpace(req.PackName)
	if packName == "" {
		return nil, domain.ErrInvalidPackName
	}
	version := strings.TrimSpace(req.Version)
	if !domain.ValidVersion(version) {
		return nil, domain.ErrInvalidVersion
	}

	manifest := datatypes.JSON(req.Manifest)
	if len(manifest) == 0 {
		manifest = datatypes.JSON("{}")
	}

	row := &domain.PackVersion{
		ID:         s.genID.Generate(),
		PackName:   packName,
		Version:    version,
		Integrity:  req.Integrity,
		TarballURL: req.TarballURL,
		Size:       req.Size,
		Manifest:   manifest,
		FileCount:  req.FileCount,
		Changelog:  req.Changelog,
		CreatedAt:  s.clock.Now(),
	}
	if err := s.repo.Insert(ctx, s.db, row); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrConflict
		}
		return nil, fmt.Errorf("insert version: %w", err)
	}

	s.log.Info("version created",
		zap.String("pack", row.PackName),
		zap.String("version", row.Version),
		zap.Int64("size", row.Size),
	)
	return row, nil
}

func (s *Service) Get(ctx context.Context, packName, version string) (*domain.PackVersion, error) {
	row, err := s.repo.Find(ctx, s.db, strings.TrimSpace(packName), strings.TrimSpace(version))
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, domain.ErrNotFound
	}
	return row, nil
}

func (s *Service) List(ctx context.Context, packName string) ([]domain.PackVersion, error) {
	packName = strings.TrimSpace(packName)
	if packName == "" {
		return nil, domain.ErrInvalidPackName
	}
	items, err := s.repo.ListByPack(ctx, s.db, packName)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []domain.PackVersion{}
	}
	return items, nil
}

func (s *Service) GetLatest(ctx context.Context, packName string) (*domain.PackVersion, error) {
	row, err := s.repo.Latest(ctx, s.db, strings.TrimSpace(packName))
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, domain.ErrNotFound
	}
	return row, nil
}

func (s *Service) Exists(ctx context.Context, packName, version string) (bool, error) {
	row, err := s.repo.Find(ctx, s.db, strings.TrimSpace(packName), strings.TrimSpace(version))
	if err != nil {
		return false, err
	}
	return row != nil, nil
}

func (s *Service) Delete(ctx context.Context, packName, version string) error {
	affected, err := s.repo.Delete(ctx, s.db, strings.TrimSpace(packName), strings.TrimSpace(version))
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// NextVersion bumps the patch of the most recently created version, which is
// not necessarily the highest one.
func (s *Service) NextVersion(ctx context.Context, packName string) (string, error) {
	latest, err := s.repo.Latest(ctx, s.db, strings.TrimSpace(packName))
	if err != nil {
		return "", err
	}
	if latest == nil {
		return domain.InitialVersion, nil
	}
	return domain.BumpPatch(latest.Version)
}

func (s *Service) Keys(ctx context.Context) ([]domain.Key, error) {
	return s.repo.ListKeys(ctx, s.db)
}
