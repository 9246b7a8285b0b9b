package repository

import (
	"context"
	"strings"

	"github.com/smallbiznis/packhub/internal/pack/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

// Create inserts pack unless a row with the same name exists. The bool
// reports whether this call inserted it.
func (r *repo) Create(ctx context.Context, db *gorm.DB, pack *domain.Pack) (bool, error) {
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoNothing: true,
		}).
		Create(pack)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, pack *domain.Pack) error {
	if pack == nil {
		return gorm.ErrInvalidData
	}
	return db.WithContext(ctx).Exec(
		`UPDATE packs
		 SET description = ?, homepage = ?, repository = ?, license = ?, tags = ?, targets = ?, features = ?,
		     dependencies = ?, conflicts = ?, updated_at = ?
		 WHERE name = ?`,
		pack.Description,
		pack.Homepage,
		pack.Repository,
		pack.License,
		pack.Tags,
		pack.Targets,
		pack.Features,
		pack.Dependencies,
		pack.Conflicts,
		pack.UpdatedAt,
		pack.Name,
	).Error
}

func (r *repo) FindByName(ctx context.Context, db *gorm.DB, name string) (*domain.Pack, error) {
	var items []domain.Pack
	err := db.WithContext(ctx).
		Where("name = ?", name).
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

func (r *repo) FindSimilar(ctx context.Context, db *gorm.DB, folded string) ([]domain.Pack, error) {
	var items []domain.Pack
	err := db.WithContext(ctx).
		Where("REPLACE(REPLACE(REPLACE(LOWER(name), '-', ''), '_', ''), '.', '') = ?", folded).
		Order("name ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]domain.Pack, error) {
	var items []domain.Pack
	stmt := db.WithContext(ctx).Model(&domain.Pack{})
	if filter.After != "" {
		stmt = stmt.Where("name > ?", filter.After)
	}
	if q := strings.ToLower(strings.TrimSpace(filter.Query)); q != "" {
		like := "%" + q + "%"
		stmt = stmt.Where("(LOWER(name) LIKE ? OR LOWER(description) LIKE ?)", like, like)
	}
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit)
	}
	if err := stmt.Order("name ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListAll(ctx context.Context, db *gorm.DB) ([]domain.Pack, error) {
	var items []domain.Pack
	if err := db.WithContext(ctx).Order("name ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) IncrementDownloads(ctx context.Context, db *gorm.DB, name string) error {
	return db.WithContext(ctx).Exec(
		`UPDATE packs SET downloads = downloads + 1 WHERE name = ?`,
		name,
	).Error
}

// DeleteCascade removes the pack with its deliveries, webhooks and versions.
// Callers run it inside a transaction.
func (r *repo) DeleteCascade(ctx context.Context, db *gorm.DB, name string) error {
	stmts := []string{
		`DELETE FROM webhook_deliveries WHERE webhook_id IN (SELECT id FROM webhooks WHERE pack_name = ?)`,
		`DELETE FROM webhooks WHERE pack_name = ?`,
		`DELETE FROM pack_versions WHERE pack_name = ?`,
		`DELETE FROM packs WHERE name = ?`,
	}
	for _, stmt := range stmts {
		if err := db.WithContext(ctx).Exec(stmt, name).Error; err != nil {
			return err
		}
	}
	return nil
}
