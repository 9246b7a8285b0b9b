package domain

import (
	"context"
	"errors"
	"strings"
	"time"
)

const (
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// RoleRank orders roles so that a higher rank implies every lower one.
// Unknown roles rank zero.
func RoleRank(role string) int {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case RoleOwner:
		return 3
	case RoleAdmin:
		return 2
	case RoleMember:
		return 1
	default:
		return 0
	}
}

// ParseScope returns the organization owning a scoped pack name such as
// "@acme/tools". Names without the "@org/" prefix are not scoped.
func ParseScope(packName string) (string, bool) {
	if !strings.HasPrefix(packName, "@") {
		return "", false
	}
	org, _, found := strings.Cut(packName[1:], "/")
	if !found || org == "" {
		return "", false
	}
	return org, true
}

type Service interface {
	Create(ctx context.Context, owner string, req CreateOrganizationRequest) (*OrganizationResponse, error)
	Get(ctx context.Context, name string) (*OrganizationResponse, error)
	Update(ctx context.Context, name string, req UpdateOrganizationRequest) (*OrganizationResponse, error)
	Delete(ctx context.Context, name string) error
	AddMember(ctx context.Context, org, username, role string) (*MemberResponse, error)
	RemoveMember(ctx context.Context, org, username string) error
	ListMembers(ctx context.Context, org string) ([]MemberResponse, error)
	Role(ctx context.Context, org, username string) (string, error)
	HasRole(ctx context.Context, org, username, required string) (bool, error)
	GetUserOrgs(ctx context.Context, username string) ([]OrganizationListResponseItem, error)
}

type CreateOrganizationRequest struct {
	Name        string  `json:"name"`
	DisplayName string  `json:"display_name"`
	Description string  `json:"description"`
	Website     *string `json:"website"`
}

type UpdateOrganizationRequest struct {
	DisplayName *string `json:"display_name"`
	Description *string `json:"description"`
	Website     *string `json:"website"`
}

type OrganizationResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	DisplayName string    `json:"display_name"`
	Description string    `json:"description"`
	Website     *string   `json:"website,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type MemberResponse struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type OrganizationListResponseItem struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	DisplayName string    `json:"display_name"`
	Role        string    `json:"role"`
	CreatedAt   time.Time `json:"created_at"`
}

var (
	ErrInvalidName    = errors.New("invalid_name")
	ErrInvalidUser    = errors.New("invalid_user")
	ErrInvalidRole    = errors.New("invalid_role")
	ErrInvalidWebsite = errors.New("invalid_website")
	ErrConflict       = errors.New("organization_exists")
	ErrNotFound       = errors.New("organization_not_found")
	ErrMemberNotFound = errors.New("member_not_found")
	ErrLastOwner      = errors.New("last_owner")
	ErrForbidden      = errors.New("forbidden")
)
