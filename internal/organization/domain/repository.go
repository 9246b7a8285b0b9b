package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type OrganizationListItem struct {
	ID          snowflake.ID
	Name        string
	DisplayName string
	Role        string
	CreatedAt   time.Time
}

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateOrganization(ctx context.Context, org Organization) error
	UpdateOrganization(ctx context.Context, org Organization) error
	FindByName(ctx context.Context, name string) (*Organization, error)
	DeleteOrganization(ctx context.Context, orgID snowflake.ID) error
	UpsertMember(ctx context.Context, member OrganizationMember) error
	FindMember(ctx context.Context, orgID snowflake.ID, username string) (*OrganizationMember, error)
	DeleteMember(ctx context.Context, orgID snowflake.ID, username string) (int64, error)
	ListMembers(ctx context.Context, orgID snowflake.ID) ([]OrganizationMember, error)
	CountOwners(ctx context.Context, orgID snowflake.ID) (int64, error)
	ListOrganizationsByUser(ctx context.Context, username string) ([]OrganizationListItem, error)
}
