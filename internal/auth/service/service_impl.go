package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/packhub/internal/auth/domain"
	"github.com/smallbiznis/packhub/internal/clock"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	tokenSecretBytes = 32
	// last_used_at is refreshed at most this often per token.
	touchInterval = time.Minute
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
		log:   p.Log.Named("auth.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Authenticate(ctx context.Context, raw string) (*domain.Principal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, domain.ErrUnauthorized
	}

	hash := domain.HashToken(raw)
	token, err := s.repo.FindByHash(ctx, s.db, hash)
	if err != nil {
		return nil, err
	}
	if token == nil || subtle.ConstantTimeCompare([]byte(token.TokenHash), []byte(hash)) != 1 {
		return nil, domain.ErrUnauthorized
	}
	if !token.IsActive {
		return nil, domain.ErrUnauthorized
	}

	now := s.clock.Now()
	if token.ExpiresAt != nil && !now.Before(*token.ExpiresAt) {
		return nil, domain.ErrUnauthorized
	}

	if token.LastUsedAt == nil || now.Sub(*token.LastUsedAt) >= touchInterval {
		if err := s.repo.Touch(ctx, s.db, token.ID, now); err != nil {
			s.log.Warn("failed to record token use", zap.String("token_id", token.ID.String()), zap.Error(err))
		}
	}

	return &domain.Principal{Username: token.Username, TokenID: token.ID.String()}, nil
}

func (s *Service) Issue(ctx context.Context, req domain.IssueRequest) (*domain.IssueResponse, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" {
		return nil, domain.ErrInvalidUser
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = "default"
	}
	if len(name) > 128 {
		return nil, domain.ErrInvalidName
	}

	plain, err := generateToken()
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	token := &domain.APIToken{
		ID:        s.genID.Generate(),
		Username:  username,
		TokenHash: domain.HashToken(plain),
		Name:      name,
		IsActive:  true,
		CreatedAt: now,
	}
	if req.TTL > 0 {
		expires := now.Add(req.TTL)
		token.ExpiresAt = &expires
	}

	if err := s.repo.Insert(ctx, s.db, token); err != nil {
		return nil, err
	}
	s.log.Info("api token issued", zap.String("username", username), zap.String("token_id", token.ID.String()))

	return &domain.IssueResponse{
		ID:        token.ID.String(),
		Token:     plain,
		ExpiresAt: token.ExpiresAt,
	}, nil
}

func (s *Service) Revoke(ctx context.Context, username, id string) error {
	tokenID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return domain.ErrInvalidID
	}
	tokens, err := s.repo.ListByUser(ctx, s.db, strings.TrimSpace(username))
	if err != nil {
		return err
	}
	for _, token := range tokens {
		if token.ID == tokenID {
			return s.repo.Revoke(ctx, s.db, tokenID)
		}
	}
	return domain.ErrNotFound
}

func (s *Service) List(ctx context.Context, username string) ([]domain.Response, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, domain.ErrInvalidUser
	}
	tokens, err := s.repo.ListByUser(ctx, s.db, username)
	if err != nil {
		return nil, err
	}
	resp := make([]domain.Response, 0, len(tokens))
	for _, token := range tokens {
		resp = append(resp, domain.Response{
			ID:         token.ID.String(),
			Name:       token.Name,
			IsActive:   token.IsActive,
			CreatedAt:  token.CreatedAt,
			LastUsedAt: token.LastUsedAt,
			ExpiresAt:  token.ExpiresAt,
		})
	}
	return resp, nil
}

func generateToken() (string, error) {
	secret := make([]byte, tokenSecretBytes)
	if _, err := rand.Read(secret); err != nil {
		return "", err
	}
	return domain.TokenPrefix + hex.EncodeToString(secret), nil
}
