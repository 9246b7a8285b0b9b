package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	orgdomain "github.com/smallbiznis/packhub/internal/organization/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectOrganization = "organization"
	ObjectMember       = "member"
	ObjectPack         = "pack"
)

const (
	ActionOrganizationView   = "organization.view"
	ActionOrganizationUpdate = "organization.update"
	ActionOrganizationDelete = "organization.delete"

	ActionMemberView   = "member.view"
	ActionMemberAdd    = "member.add"
	ActionMemberRemove = "member.remove"

	ActionPackPublish = "pack.publish"
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
	Orgs     orgdomain.Service
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	orgs     orgdomain.Service
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	enforcer.BuildRoleLinks()
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		orgs:     p.Orgs,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, actor string, org string, object string, action string) error {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return ErrInvalidActor
	}
	org = strings.TrimSpace(org)
	if org == "" {
		return ErrInvalidOrganization
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	role, err := s.orgs.Role(ctx, org, actor)
	if err != nil {
		return err
	}
	if role == "" {
		s.logDenied(actor, org, object, action, "not_a_member")
		return ErrForbidden
	}

	subject := fmt.Sprintf("user:%s", actor)
	roleName := fmt.Sprintf("role:%s", strings.ToLower(role))
	domain := fmt.Sprintf("org:%s", org)
	if err := s.ensureGrouping(subject, roleName, domain); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(subject, domain, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.logDenied(actor, org, object, action, "insufficient_role")
		return ErrForbidden
	}
	return nil
}

// ensureGrouping keeps exactly one role link per subject and domain, so a
// membership change takes effect on the next check.
func (s *ServiceImpl) ensureGrouping(subject string, roleName string, domain string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject, "", domain)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 {
			continue
		}
		if rule[1] != roleName {
			params := make([]interface{}, 0, len(rule))
			for _, value := range rule {
				params = append(params, value)
			}
			_, _ = s.enforcer.RemoveGroupingPolicy(params...)
		}
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, roleName, domain)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, roleName, domain)
	return err
}

func (s *ServiceImpl) logDenied(actor, org, object, action, reason string) {
	s.log.Info("authorization denied",
		zap.String("actor", actor),
		zap.String("org", org),
		zap.String("object", object),
		zap.String("action", action),
		zap.String("reason", reason),
	)
}

// seedPolicies grants each permission to its minimum role and every role
// ranked above it.
func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	grants := []struct {
		minRole string
		object  string
		action  string
	}{
		{orgdomain.RoleMember, ObjectOrganization, ActionOrganizationView},
		{orgdomain.RoleMember, ObjectMember, ActionMemberView},
		{orgdomain.RoleMember, ObjectPack, ActionPackPublish},

		{orgdomain.RoleAdmin, ObjectOrganization, ActionOrganizationUpdate},
		{orgdomain.RoleAdmin, ObjectMember, ActionMemberAdd},
		{orgdomain.RoleAdmin, ObjectMember, ActionMemberRemove},

		{orgdomain.RoleOwner, ObjectOrganization, ActionOrganizationDelete},
	}
	roles := []string{orgdomain.RoleMember, orgdomain.RoleAdmin, orgdomain.RoleOwner}

	for _, grant := range grants {
		for _, role := range roles {
			if orgdomain.RoleRank(role) < orgdomain.RoleRank(grant.minRole) {
				continue
			}
			policy := []string{"role:" + role, grant.object, grant.action}
			has, err := enforcer.HasPolicy(policy)
			if err != nil {
				return err
			}
			if has {
				continue
			}
			if _, err := enforcer.AddPolicy(policy); err != nil {
				return err
			}
		}
	}
	return nil
}
