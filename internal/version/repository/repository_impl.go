package repository

import (
	"context"

	"github.com/smallbiznis/packhub/internal/version/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, v *domain.PackVersion) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO pack_versions (id, pack_name, version, integrity, tarball_url, size, manifest, file_count, changelog, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ID,
		v.PackName,
		v.Version,
		v.Integrity,
		v.TarballURL,
		v.Size,
		v.Manifest,
		v.FileCount,
		v.Changelog,
		v.CreatedAt,
	).Error
}

func (r *repo) Find(ctx context.Context, db *gorm.DB, packName, version string) (*domain.PackVersion, error) {
	var items []domain.PackVersion
	err := db.WithContext(ctx).
		Where("pack_name = ? AND version = ?", packName, version).
		Limit(1).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}

// ListByPack orders newest first. Rows sharing a timestamp fall back to id,
// which is assigned in insertion order.
func (r *repo) ListByPack(ctx context.Context, db *gorm.DB, packName string) ([]domain.PackVersion, error) {
	var items []domain.PackVersion
	err := db.WithContext(ctx).
		Where("pack_name = ?", packName).
		Order("created_at DESC").
		Order("id DESC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) Latest(ctx context.Context, db *gorm.DB, packName string) (*domain.PackVersion, error) {
	var items []domain.PackVersion
	err := db.WithContext(ctx).
		Where("pack_name = ?", packName).
		Order("created_at DESC").
		Order("id DESC").
		Limit(1).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, packName, version string) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`DELETE FROM pack_versions WHERE pack_name = ? AND version = ?`,
		packName,
		version,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) ListKeys(ctx context.Context, db *gorm.DB) ([]domain.Key, error) {
	var keys []domain.Key
	err := db.WithContext(ctx).Raw(
		`SELECT pack_name, version FROM pack_versions`,
	).Scan(&keys).Error
	if err != nil {
		return nil, err
	}
	return keys, nil
}
