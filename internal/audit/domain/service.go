package domain

import (
	"context"
	"errors"

	"github.com/smallbiznis/packhub/pkg/db/pagination"
)

const (
	ActionPackPublish   = "pack.publish"
	ActionPackUpdate    = "pack.update"
	ActionPackDelete    = "pack.delete"
	ActionOrgCreate     = "organization.create"
	ActionOrgUpdate     = "organization.update"
	ActionOrgDelete     = "organization.delete"
	ActionMemberAdd     = "organization.member_add"
	ActionMemberRemove  = "organization.member_remove"
	ActionWebhookCreate = "webhook.create"
	ActionWebhookUpdate = "webhook.update"
	ActionWebhookDelete = "webhook.delete"
	ActionTokenCreate   = "token.create"
	ActionTokenRevoke   = "token.revoke"
)

const (
	TargetPack         = "pack"
	TargetOrganization = "organization"
	TargetWebhook      = "webhook"
	TargetToken        = "token"
)

type Entry struct {
	Actor      string
	Action     string
	TargetType string
	TargetID   string
	Metadata   map[string]any
}

type ListRequest struct {
	pagination.Pagination
	Actor      string `form:"-"`
	Action     string `form:"action"`
	TargetType string `form:"target_type"`
	TargetID   string `form:"target_id"`
}

type ListResponse struct {
	Items    []AuditLog          `json:"items"`
	PageInfo pagination.PageInfo `json:"page_info"`
}

type Service interface {
	Record(ctx context.Context, entry Entry) error
	List(ctx context.Context, req ListRequest) (*ListResponse, error)
}

var (
	ErrInvalidAction = errors.New("invalid_action")
	ErrInvalidActor  = errors.New("invalid_actor")
)
