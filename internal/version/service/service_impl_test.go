package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/packhub/internal/clock"
	"github.com/smallbiznis/packhub/internal/version/domain"
	"github.com/smallbiznis/packhub/internal/version/repository"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupService(t *testing.T) (*Service, *clock.FakeClock, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&domain.PackVersion{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}

	fake := clock.NewFakeClock(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	svc := New(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fake,
		Repo:  repository.Provide(),
	}).(*Service)
	return svc, fake, db
}

func create(t *testing.T, svc *Service, pack, version, integrity string) {
	t.Helper()
	_, err := svc.Create(context.Background(), domain.CreateRequest{
		PackName:   pack,
		Version:    version,
		Integrity:  integrity,
		TarballURL: pack + "/" + version + ".tgz",
		Size:       42,
		Manifest:   json.RawMessage(`{"name":"` + pack + `","version":"` + version + `"}`),
	})
	require.NoError(t, err)
}

func TestNextVersionOnEmptyPack(t *testing.T) {
	svc, _, _ := setupService(t)

	next, err := svc.NextVersion(context.Background(), "fresh")
	require.NoError(t, err)
	require.Equal(t, "1.0.0", next)
}

func TestNextVersionUsesMostRecentlyCreated(t *testing.T) {
	svc, fake, _ := setupService(t)
	ctx := context.Background()

	create(t, svc, "widgets", "2.0.0", "sha256-a")
	fake.Advance(time.Hour)
	create(t, svc, "widgets", "1.4.0", "sha256-b")

	next, err := svc.NextVersion(ctx, "widgets")
	require.NoError(t, err)
	require.Equal(t, "1.4.1", next)
}

func TestNextVersionBreaksTimestampTiesByInsertionOrder(t *testing.T) {
	svc, _, _ := setupService(t)

	create(t, svc, "ties", "3.0.0", "sha256-a")
	create(t, svc, "ties", "1.0.0", "sha256-b")

	next, err := svc.NextVersion(context.Background(), "ties")
	require.NoError(t, err)
	require.Equal(t, "1.0.1", next)

	items, err := svc.List(context.Background(), "ties")
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, "1.0.0", items[0].Version)
	require.Equal(t, "3.0.0", items[1].Version)
}

func TestCreateDuplicateReturnsConflict(t *testing.T) {
	svc, fake, _ := setupService(t)
	ctx := context.Background()

	create(t, svc, "dup", "1.0.0", "sha256-first")
	fake.Advance(time.Minute)

	_, err := svc.Create(ctx, domain.CreateRequest{
		PackName:  "dup",
		Version:   "1.0.0",
		Integrity: "sha256-second",
		Manifest:  json.RawMessage(`{}`),
	})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	stored, err := svc.Get(ctx, "dup", "1.0.0")
	require.NoError(t, err)
	require.Equal(t, "sha256-first", stored.Integrity)
}

func TestCreateRejectsInvalidVersion(t *testing.T) {
	svc, _, _ := setupService(t)

	_, err := svc.Create(context.Background(), domain.CreateRequest{PackName: "x", Version: "latest"})
	require.ErrorIs(t, err, domain.ErrInvalidVersion)
}

func TestExistsGetLatestAndDelete(t *testing.T) {
	svc, fake, _ := setupService(t)
	ctx := context.Background()

	_, err := svc.GetLatest(ctx, "tools")
	require.ErrorIs(t, err, domain.ErrNotFound)

	create(t, svc, "tools", "1.0.0", "sha256-a")
	fake.Advance(time.Second)
	create(t, svc, "tools", "1.1.0", "sha256-b")

	ok, err := svc.Exists(ctx, "tools", "1.1.0")
	require.NoError(t, err)
	require.True(t, ok)

	latest, err := svc.GetLatest(ctx, "tools")
	require.NoError(t, err)
	require.Equal(t, "1.1.0", latest.Version)

	require.NoError(t, svc.Delete(ctx, "tools", "1.1.0"))
	require.ErrorIs(t, svc.Delete(ctx, "tools", "1.1.0"), domain.ErrNotFound)

	ok, err = svc.Exists(ctx, "tools", "1.1.0")
	require.NoError(t, err)
	require.False(t, ok)

	keys, err := svc.Keys(ctx)
	require.NoError(t, err)
	require.Equal(t, []domain.Key{{PackName: "tools", Version: "1.0.0"}}, keys)
}
