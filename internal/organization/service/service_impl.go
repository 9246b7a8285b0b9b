package service

import (
	"context"
	"net/url"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/packhub/internal/clock"
	"github.com/smallbiznis/packhub/internal/organization/domain"
	"github.com/smallbiznis/packhub/pkg/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxNameLength = 64

type service struct {
	db    *gorm.DB
	repo  domain.Repository
	genID *snowflake.Node
	clock clock.Clock
	log   *zap.Logger
}

func NewService(db *gorm.DB, repo domain.Repository, genID *snowflake.Node, clk clock.Clock, log *zap.Logger) domain.Service {
	return &service{
		db:    db,
		repo:  repo,
		genID: genID,
		clock: clk,
		log:   log.Named("organization.service"),
	}
}

// ValidName reports whether name is usable as an organization scope.
func ValidName(name string) bool {
	return name != "" && len(name) <= maxNameLength && slug.IsSlug(name) && slug.Make(name) == name
}

func (s *service) Create(ctx context.Context, owner string, req domain.CreateOrganizationRequest) (*domain.OrganizationResponse, error) {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return nil, domain.ErrInvalidUser
	}

	name := strings.TrimSpace(req.Name)
	if !ValidName(name) {
		return nil, domain.ErrInvalidName
	}
	website, err := normalizeWebsite(req.Website)
	if err != nil {
		return nil, err
	}

	existing, err := s.repo.FindByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, domain.ErrConflict
	}

	displayName := strings.TrimSpace(req.DisplayName)
	if displayName == "" {
		displayName = name
	}

	now := s.clock.Now()
	orgID := s.genID.Generate()
	org := domain.Organization{
		ID:          orgID,
		Name:        name,
		DisplayName: displayName,
		Description: strings.TrimSpace(req.Description),
		Website:     website,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.CreateOrganization(ctx, org); err != nil {
			return err
		}

		member := domain.OrganizationMember{
			ID:        s.genID.Generate(),
			OrgID:     orgID,
			Username:  owner,
			Role:      domain.RoleOwner,
			CreatedAt: now,
			UpdatedAt: now,
		}

		if err := repo.UpsertMember(ctx, member); err != nil {
			return err
		}

		return nil
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrConflict
		}
		return nil, err
	}

	s.log.Info("organization created", zap.String("org", name), zap.String("owner", owner))
	return toResponse(org), nil
}

func (s *service) Get(ctx context.Context, name string) (*domain.OrganizationResponse, error) {
	org, err := s.find(ctx, name)
	if err != nil {
		return nil, err
	}
	return toResponse(*org), nil
}

func (s *service) Update(ctx context.Context, name string, req domain.UpdateOrganizationRequest) (*domain.OrganizationResponse, error) {
	org, err := s.find(ctx, name)
	if err != nil {
		return nil, err
	}

	if req.DisplayName != nil {
		if value := strings.TrimSpace(*req.DisplayName); value != "" {
			org.DisplayName = value
		}
	}
	if req.Description != nil {
		org.Description = strings.TrimSpace(*req.Description)
	}
	if req.Website != nil {
		website, err := normalizeWebsite(req.Website)
		if err != nil {
			return nil, err
		}
		org.Website = website
	}
	org.UpdatedAt = s.clock.Now()

	if err := s.repo.UpdateOrganization(ctx, *org); err != nil {
		return nil, err
	}
	return toResponse(*org), nil
}

func (s *service) Delete(ctx context.Context, name string) error {
	org, err := s.find(ctx, name)
	if err != nil {
		return err
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.repo.WithTx(tx).DeleteOrganization(ctx, org.ID)
	})
	if err != nil {
		return err
	}
	s.log.Info("organization deleted", zap.String("org", org.Name))
	return nil
}

// AddMember inserts the membership or overwrites the role of an existing one.
// An empty role means member.
func (s *service) AddMember(ctx context.Context, orgName, username, role string) (*domain.MemberResponse, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, domain.ErrInvalidUser
	}
	role = strings.ToLower(strings.TrimSpace(role))
	if role == "" {
		role = domain.RoleMember
	}
	if domain.RoleRank(role) == 0 {
		return nil, domain.ErrInvalidRole
	}

	org, err := s.find(ctx, orgName)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := repo.FindMember(ctx, org.ID, username)
		if err != nil {
			return err
		}
		if current != nil && current.Role == domain.RoleOwner && role != domain.RoleOwner {
			if err := ensureAnotherOwner(ctx, repo, org.ID); err != nil {
				return err
			}
		}
		return repo.UpsertMember(ctx, domain.OrganizationMember{
			ID:        s.genID.Generate(),
			OrgID:     org.ID,
			Username:  username,
			Role:      role,
			CreatedAt: now,
			UpdatedAt: now,
		})
	})
	if err != nil {
		return nil, err
	}

	member, err := s.repo.FindMember(ctx, org.ID, username)
	if err != nil {
		return nil, err
	}
	if member == nil {
		return nil, domain.ErrMemberNotFound
	}
	return toMemberResponse(*member), nil
}

func (s *service) RemoveMember(ctx context.Context, orgName, username string) error {
	org, err := s.find(ctx, orgName)
	if err != nil {
		return err
	}
	username = strings.TrimSpace(username)

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := repo.FindMember(ctx, org.ID, username)
		if err != nil {
			return err
		}
		if current == nil {
			return domain.ErrMemberNotFound
		}
		if current.Role == domain.RoleOwner {
			if err := ensureAnotherOwner(ctx, repo, org.ID); err != nil {
				return err
			}
		}
		_, err = repo.DeleteMember(ctx, org.ID, username)
		return err
	})
}

func (s *service) ListMembers(ctx context.Context, orgName string) ([]domain.MemberResponse, error) {
	org, err := s.find(ctx, orgName)
	if err != nil {
		return nil, err
	}
	members, err := s.repo.ListMembers(ctx, org.ID)
	if err != nil {
		return nil, err
	}
	resp := make([]domain.MemberResponse, 0, len(members))
	for _, member := range members {
		resp = append(resp, *toMemberResponse(member))
	}
	return resp, nil
}

// Role returns the caller's role in org, or "" without a membership.
func (s *service) Role(ctx context.Context, orgName, username string) (string, error) {
	org, err := s.repo.FindByName(ctx, strings.TrimSpace(orgName))
	if err != nil {
		return "", err
	}
	if org == nil {
		return "", nil
	}
	member, err := s.repo.FindMember(ctx, org.ID, strings.TrimSpace(username))
	if err != nil {
		return "", err
	}
	if member == nil {
		return "", nil
	}
	return member.Role, nil
}

func (s *service) HasRole(ctx context.Context, orgName, username, required string) (bool, error) {
	want := domain.RoleRank(required)
	if want == 0 {
		return false, domain.ErrInvalidRole
	}
	role, err := s.Role(ctx, orgName, username)
	if err != nil {
		return false, err
	}
	if role == "" {
		return false, nil
	}
	return domain.RoleRank(role) >= want, nil
}

func (s *service) GetUserOrgs(ctx context.Context, username string) ([]domain.OrganizationListResponseItem, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, domain.ErrInvalidUser
	}

	items, err := s.repo.ListOrganizationsByUser(ctx, username)
	if err != nil {
		return nil, err
	}

	resp := make([]domain.OrganizationListResponseItem, 0, len(items))
	for _, item := range items {
		resp = append(resp, domain.OrganizationListResponseItem{
			ID:          item.ID.String(),
			Name:        item.Name,
			DisplayName: item.DisplayName,
			Role:        item.Role,
			CreatedAt:   item.CreatedAt,
		})
	}

	return resp, nil
}

func (s *service) find(ctx context.Context, name string) (*domain.Organization, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	org, err := s.repo.FindByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if org == nil {
		return nil, domain.ErrNotFound
	}
	return org, nil
}

func ensureAnotherOwner(ctx context.Context, repo domain.Repository, orgID snowflake.ID) error {
	owners, err := repo.CountOwners(ctx, orgID)
	if err != nil {
		return err
	}
	if owners <= 1 {
		return domain.ErrLastOwner
	}
	return nil
}

func normalizeWebsite(raw *string) (*string, error) {
	if raw == nil {
		return nil, nil
	}
	value := strings.TrimSpace(*raw)
	if value == "" {
		return nil, nil
	}
	parsed, err := url.Parse(value)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return nil, domain.ErrInvalidWebsite
	}
	return &value, nil
}

func toResponse(org domain.Organization) *domain.OrganizationResponse {
	return &domain.OrganizationResponse{
		ID:          org.ID.String(),
		Name:        org.Name,
		DisplayName: org.DisplayName,
		Description: org.Description,
		Website:     org.Website,
		CreatedAt:   org.CreatedAt,
		UpdatedAt:   org.UpdatedAt,
	}
}

func toMemberResponse(member domain.OrganizationMember) *domain.MemberResponse {
	return &domain.MemberResponse{
		Username:  member.Username,
		Role:      member.Role,
		CreatedAt: member.CreatedAt,
		UpdatedAt: member.UpdatedAt,
	}
}
