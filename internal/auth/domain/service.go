package domain

import (
	"context"
	"errors"
	"time"
)

// TokenPrefix marks packhub credentials so they are recognisable in logs and scanners.
const TokenPrefix = "phk_"

type Service interface {
	// Authenticate resolves a raw bearer credential to its username.
	Authenticate(ctx context.Context, raw string) (*Principal, error)
	Issue(ctx context.Context, req IssueRequest) (*IssueResponse, error)
	Revoke(ctx context.Context, username, id string) error
	List(ctx context.Context, username string) ([]Response, error)
}

type Principal struct {
	Username string
	TokenID  string
}

type IssueRequest struct {
	Username string
	Name     string
	TTL      time.Duration
}

type IssueResponse struct {
	ID        string     `json:"id"`
	Token     string     `json:"token"`
	ExpiresAt *time.Time `json:"expires_at"`
}

type Response struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	IsActive   bool       `json:"is_active"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at"`
	ExpiresAt  *time.Time `json:"expires_at"`
}

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidUser  = errors.New("invalid_username")
	ErrInvalidName  = errors.New("invalid_name")
	ErrInvalidID    = errors.New("invalid_id")
	ErrNotFound     = errors.New("not_found")
)
