package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/packhub/internal/organization/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) domain.Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) domain.Repository {
	return &repository{db: tx}
}

func (r *repository) CreateOrganization(ctx context.Context, org domain.Organization) error {
	return r.db.WithContext(ctx).Exec(
		`INSERT INTO organizations (id, name, display_name, description, website, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		org.ID,
		org.Name,
		org.DisplayName,
		org.Description,
		org.Website,
		org.CreatedAt,
		org.UpdatedAt,
	).Error
}

func (r *repository) UpdateOrganization(ctx context.Context, org domain.Organization) error {
	return r.db.WithContext(ctx).Exec(
		`UPDATE organizations SET display_name = ?, description = ?, website = ?, updated_at = ? WHERE id = ?`,
		org.DisplayName,
		org.Description,
		org.Website,
		org.UpdatedAt,
		org.ID,
	).Error
}

func (r *repository) FindByName(ctx context.Context, name string) (*domain.Organization, error) {
	var items []domain.Organization
	if err := r.db.WithContext(ctx).Where("name = ?", name).Limit(1).Find(&items).Error; err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}

func (r *repository) DeleteOrganization(ctx context.Context, orgID snowflake.ID) error {
	if err := r.db.WithContext(ctx).Exec(`DELETE FROM organization_members WHERE org_id = ?`, orgID).Error; err != nil {
		return err
	}
	return r.db.WithContext(ctx).Exec(`DELETE FROM organizations WHERE id = ?`, orgID).Error
}

// UpsertMember inserts the membership or overwrites the role of an existing one.
func (r *repository) UpsertMember(ctx context.Context, member domain.OrganizationMember) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "org_id"}, {Name: "username"}},
			DoUpdates: clause.AssignmentColumns([]string{"role", "updated_at"}),
		}).
		Create(&member).Error
}

func (r *repository) FindMember(ctx context.Context, orgID snowflake.ID, username string) (*domain.OrganizationMember, error) {
	var items []domain.OrganizationMember
	err := r.db.WithContext(ctx).
		Where("org_id = ? AND username = ?", orgID, username).
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

func (r *repository) DeleteMember(ctx context.Context, orgID snowflake.ID, username string) (int64, error) {
	res := r.db.WithContext(ctx).Exec(
		`DELETE FROM organization_members WHERE org_id = ? AND username = ?`,
		orgID,
		username,
	)
	return res.RowsAffected, res.Error
}

func (r *repository) ListMembers(ctx context.Context, orgID snowflake.ID) ([]domain.OrganizationMember, error) {
	var items []domain.OrganizationMember
	err := r.db.WithContext(ctx).
		Where("org_id = ?", orgID).
		Order("created_at ASC").
		Order("username ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) CountOwners(ctx context.Context, orgID snowflake.ID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.OrganizationMember{}).
		Where("org_id = ? AND role = ?", orgID, domain.RoleOwner).
		Count(&count).Error
	return count, err
}

func (r *repository) ListOrganizationsByUser(ctx context.Context, username string) ([]domain.OrganizationListItem, error) {
	var items []domain.OrganizationListItem
	err := r.db.WithContext(ctx).Raw(
		`SELECT o.id, o.name, o.display_name, m.role, o.created_at
		 FROM organizations o
		 JOIN organization_members m ON m.org_id = o.id
		 WHERE m.username = ?
		 ORDER BY o.created_at ASC, o.name ASC`,
		username,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}

	return items, nil
}
