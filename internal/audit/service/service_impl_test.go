package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/packhub/internal/audit/domain"
	"github.com/smallbiznis/packhub/internal/audit/repository"
	"github.com/smallbiznis/packhub/internal/clock"
	obscontext "github.com/smallbiznis/packhub/internal/observability/context"
	"github.com/smallbiznis/packhub/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (domain.Service, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&domain.AuditLog{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake: %v", err)
	}

	svc := NewService(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
		Repo:  repository.Provide(),
	})
	return svc, db
}

func TestRecordMasksSecretsAndCapturesRequest(t *testing.T) {
	svc, db := newTestService(t)
	ctx := obscontext.WithActor(context.Background(), "alice")
	ctx = obscontext.WithRequestID(ctx, "req-1")
	ctx = obscontext.WithClientIP(ctx, "10.0.0.9")

	err := svc.Record(ctx, domain.Entry{
		Action:     domain.ActionWebhookCreate,
		TargetType: domain.TargetWebhook,
		TargetID:   "42",
		Metadata:   map[string]any{"url": "https://example.com", "secret": "whsec_abcdefgh"},
	})
	require.NoError(t, err)

	var stored domain.AuditLog
	require.NoError(t, db.First(&stored).Error)
	assert.Equal(t, "alice", stored.Actor)
	assert.Equal(t, "whsec_****efgh", stored.Metadata["secret"])
	assert.Equal(t, "https://example.com", stored.Metadata["url"])
	require.NotNil(t, stored.RequestID)
	assert.Equal(t, "req-1", *stored.RequestID)
	require.NotNil(t, stored.IPAddress)
	assert.Equal(t, "10.0.0.9", *stored.IPAddress)
	assert.Equal(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), stored.CreatedAt.UTC())
}

func TestRecordRejectsMissingActionOrActor(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	assert.ErrorIs(t, svc.Record(ctx, domain.Entry{Actor: "alice"}), domain.ErrInvalidAction)
	assert.ErrorIs(t, svc.Record(ctx, domain.Entry{Action: domain.ActionPackDelete}), domain.ErrInvalidActor)
}

func TestListPagesNewestFirstForActor(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	for _, name := range []string{"a", "b", "c"} {
		require.NoError(t, svc.Record(ctx, domain.Entry{
			Actor:      "alice",
			Action:     domain.ActionPackPublish,
			TargetType: domain.TargetPack,
			TargetID:   name,
		}))
	}
	require.NoError(t, svc.Record(ctx, domain.Entry{
		Actor:      "bob",
		Action:     domain.ActionPackPublish,
		TargetType: domain.TargetPack,
		TargetID:   "d",
	}))

	first, err := svc.List(ctx, domain.ListRequest{
		Actor:      "alice",
		Pagination: pagination.Pagination{PageSize: 2},
	})
	require.NoError(t, err)
	require.Len(t, first.Items, 2)
	assert.Equal(t, "c", first.Items[0].TargetID)
	assert.Equal(t, "b", first.Items[1].TargetID)
	require.True(t, first.PageInfo.HasMore)

	second, err := svc.List(ctx, domain.ListRequest{
		Actor:      "alice",
		Pagination: pagination.Pagination{PageSize: 2, PageToken: first.PageInfo.NextPageToken},
	})
	require.NoError(t, err)
	require.Len(t, second.Items, 1)
	assert.Equal(t, "a", second.Items[0].TargetID)
	assert.False(t, second.PageInfo.HasMore)

	filtered, err := svc.List(ctx, domain.ListRequest{Actor: "alice", TargetID: "b"})
	require.NoError(t, err)
	require.Len(t, filtered.Items, 1)

	_, err = svc.List(ctx, domain.ListRequest{})
	assert.ErrorIs(t, err, domain.ErrInvalidActor)
}
