package service

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/packhub/internal/blobstore"
	"github.com/smallbiznis/packhub/internal/clock"
	"github.com/smallbiznis/packhub/internal/pack/domain"
	"github.com/smallbiznis/packhub/internal/pack/repository"
	versiondomain "github.com/smallbiznis/packhub/internal/version/domain"
	webhookdomain "github.com/smallbiznis/packhub/internal/webhook/domain"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type mockWebhooks struct {
	webhookdomain.Service
	mock.Mock
}

func (m *mockWebhooks) Subscribers(ctx context.Context, packName string, event webhookdomain.Event) ([]webhookdomain.Webhook, error) {
	args := m.Called(ctx, packName, event)
	hooks, _ := args.Get(0).([]webhookdomain.Webhook)
	return hooks, args.Error(1)
}

func (m *mockWebhooks) DispatchTo(ctx context.Context, hooks []webhookdomain.Webhook, packName string, event webhookdomain.Event, data any, version string) (int, error) {
	args := m.Called(ctx, hooks, packName, event, data, version)
	return args.Int(0), args.Error(1)
}

// stubQueue records jobs; a full queue rejects them.
type stubQueue struct {
	full bool
	jobs []webhookdomain.Job
}

func (q *stubQueue) Enqueue(job webhookdomain.Job) bool {
	if q.full {
		return false
	}
	q.jobs = append(q.jobs, job)
	return true
}

type fixture struct {
	svc   *Service
	db    *gorm.DB
	blobs *blobstore.AferoStore
	clock *clock.FakeClock
	hooks *mockWebhooks
	queue *stubQueue
}

func setup(t *testing.T) fixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(
		&domain.Pack{},
		&versiondomain.PackVersion{},
		&webhookdomain.Webhook{},
		&webhookdomain.Delivery{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	fake := clock.NewFakeClock(time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))
	blobs := blobstore.NewAferoStore(afero.NewMemMapFs())
	hooks := &mockWebhooks{}
	queue := &stubQueue{}
	svc := New(Params{
		DB:       db,
		Log:      zap.NewNop(),
		Clock:    fake,
		Repo:     repository.Provide(),
		Blobs:    blobs,
		Webhooks: hooks,
		Queue:    queue,
	}).(*Service)
	return fixture{svc: svc, db: db, blobs: blobs, clock: fake, hooks: hooks, queue: queue}
}

func strPtr(v string) *string { return &v }

func TestUpsertCreatesThenMerges(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	pack, created, err := f.svc.Upsert(ctx, "alice", domain.Metadata{
		Name:        "widgets",
		Description: strPtr("first"),
		Tags:        []string{"ui", "ui", " cli "},
		License:     strPtr("MIT"),
	})
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, "alice", pack.Author)
	require.Equal(t, []string{"ui", "cli"}, []string(pack.Tags))

	f.clock.Advance(time.Hour)
	pack, created, err = f.svc.Upsert(ctx, "bob", domain.Metadata{
		Name:     "widgets",
		Features: []string{"fast"},
	})
	require.NoError(t, err)
	require.False(t, created)

	got, err := f.svc.Get(ctx, "widgets")
	require.NoError(t, err)
	require.Equal(t, "alice", got.Author)
	require.Equal(t, "first", got.Description)
	require.Equal(t, []string{"ui", "cli"}, got.Tags)
	require.Equal(t, []string{"fast"}, got.Features)
	require.Equal(t, "MIT", *got.License)
	require.True(t, got.UpdatedAt.After(got.CreatedAt))
}

func TestUpdateRequiresAuthor(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, _, err := f.svc.Upsert(ctx, "alice", domain.Metadata{Name: "widgets"})
	require.NoError(t, err)

	_, err = f.svc.Update(ctx, "bob", "widgets", domain.UpdateRequest{Description: strPtr("x")})
	require.ErrorIs(t, err, domain.ErrForbidden)

	tags := []string{"a", "b"}
	resp, err := f.svc.Update(ctx, "alice", "widgets", domain.UpdateRequest{Description: strPtr("updated"), Tags: &tags})
	require.NoError(t, err)
	require.Equal(t, "updated", resp.Description)
	require.Equal(t, tags, resp.Tags)

	_, err = f.svc.Update(ctx, "alice", "missing", domain.UpdateRequest{})
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDeleteCascades(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, _, err := f.svc.Upsert(ctx, "alice", domain.Metadata{Name: "widgets"})
	require.NoError(t, err)
	_, _, err = f.svc.Upsert(ctx, "alice", domain.Metadata{Name: "other"})
	require.NoError(t, err)

	now := f.clock.Now()
	require.NoError(t, f.db.Create(&versiondomain.PackVersion{ID: 1, PackName: "widgets", Version: "1.0.0", Manifest: []byte(`{}`), CreatedAt: now}).Error)
	require.NoError(t, f.db.Create(&versiondomain.PackVersion{ID: 2, PackName: "widgets", Version: "1.0.1", Manifest: []byte(`{}`), CreatedAt: now}).Error)
	require.NoError(t, f.db.Create(&versiondomain.PackVersion{ID: 3, PackName: "other", Version: "1.0.0", Manifest: []byte(`{}`), CreatedAt: now}).Error)
	require.NoError(t, f.db.Create(&webhookdomain.Webhook{ID: 10, PackName: "widgets", URL: "https://example.com", Active: true, CreatedBy: "alice", CreatedAt: now, UpdatedAt: now}).Error)
	require.NoError(t, f.db.Create(&webhookdomain.Delivery{ID: 20, WebhookID: 10, DeliveryID: "d", Event: "publish", Payload: []byte(`{}`), CreatedAt: now}).Error)

	_, err = f.blobs.Put(ctx, "widgets", "1.0.0", bytes.NewReader([]byte("tarball")))
	require.NoError(t, err)

	subscriber := webhookdomain.Webhook{ID: 10, PackName: "widgets", URL: "https://example.com", Active: true}
	f.hooks.On("Subscribers", mock.Anything, "widgets", webhookdomain.EventDelete).
		Return([]webhookdomain.Webhook{subscriber}, nil).Once()

	require.ErrorIs(t, f.svc.Delete(ctx, "bob", "widgets"), domain.ErrForbidden)
	require.NoError(t, f.svc.Delete(ctx, "alice", "widgets"))
	f.hooks.AssertExpectations(t)
	f.hooks.AssertNotCalled(t, "DispatchTo", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	require.Len(t, f.queue.jobs, 1)
	job := f.queue.jobs[0]
	require.Equal(t, webhookdomain.EventDelete, job.Event)
	require.Equal(t, []webhookdomain.Webhook{subscriber}, job.Hooks)
	require.ElementsMatch(t, []string{"1.0.0", "1.0.1"}, job.Data.(map[string]any)["versions"])

	_, err = f.svc.Get(ctx, "widgets")
	require.ErrorIs(t, err, domain.ErrNotFound)

	var count int64
	require.NoError(t, f.db.Model(&versiondomain.PackVersion{}).Where("pack_name = ?", "widgets").Count(&count).Error)
	require.Zero(t, count)
	require.NoError(t, f.db.Model(&webhookdomain.Webhook{}).Count(&count).Error)
	require.Zero(t, count)
	require.NoError(t, f.db.Model(&webhookdomain.Delivery{}).Count(&count).Error)
	require.Zero(t, count)

	require.NoError(t, f.db.Model(&versiondomain.PackVersion{}).Where("pack_name = ?", "other").Count(&count).Error)
	require.EqualValues(t, 1, count)

	_, err = f.blobs.Get(ctx, "widgets", "1.0.0")
	if !errors.Is(err, blobstore.ErrNotFound) {
		t.Fatalf("expected tarball removed, got %v", err)
	}
}

func TestDeleteDispatchesInlineWhenQueueFull(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.queue.full = true

	_, _, err := f.svc.Upsert(ctx, "alice", domain.Metadata{Name: "widgets"})
	require.NoError(t, err)

	subscriber := webhookdomain.Webhook{ID: 10, PackName: "widgets", URL: "https://example.com", Active: true}
	f.hooks.On("Subscribers", mock.Anything, "widgets", webhookdomain.EventDelete).
		Return([]webhookdomain.Webhook{subscriber}, nil).Once()
	f.hooks.On("DispatchTo", mock.Anything, []webhookdomain.Webhook{subscriber}, "widgets", webhookdomain.EventDelete, mock.Anything, "").
		Return(1, nil).Once()

	require.NoError(t, f.svc.Delete(ctx, "alice", "widgets"))
	f.hooks.AssertExpectations(t)
	require.Empty(t, f.queue.jobs)
}

func TestDeleteWithoutSubscribersSkipsNotification(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, _, err := f.svc.Upsert(ctx, "alice", domain.Metadata{Name: "widgets"})
	require.NoError(t, err)
	f.hooks.On("Subscribers", mock.Anything, "widgets", webhookdomain.EventDelete).
		Return([]webhookdomain.Webhook{}, nil).Once()

	require.NoError(t, f.svc.Delete(ctx, "alice", "widgets"))
	require.Empty(t, f.queue.jobs)
}

// racingRepo hides the pack from the first lookup, as when a concurrent
// publish inserts it between the lookup and the insert.
type racingRepo struct {
	domain.Repository
	hidden int
}

func (r *racingRepo) FindByName(ctx context.Context, db *gorm.DB, name string) (*domain.Pack, error) {
	if r.hidden > 0 {
		r.hidden--
		return nil, nil
	}
	return r.Repository.FindByName(ctx, db, name)
}

func TestUpsertMergesWhenInsertLosesRace(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, created, err := f.svc.Upsert(ctx, "alice", domain.Metadata{Name: "widgets", Dependencies: []string{"core"}})
	require.NoError(t, err)
	require.True(t, created)

	racing := &racingRepo{Repository: repository.Provide(), hidden: 1}
	svc := New(Params{DB: f.db, Log: zap.NewNop(), Clock: f.clock, Repo: racing, Blobs: f.blobs}).(*Service)

	pack, created, err := svc.Upsert(ctx, "alice", domain.Metadata{Name: "widgets", Description: strPtr("second"), Dependencies: []string{"util"}})
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, "second", pack.Description)

	got, err := f.svc.Get(ctx, "widgets")
	require.NoError(t, err)
	require.Equal(t, []string{"util"}, got.Dependencies)

	racing.hidden = 1
	_, _, err = svc.Upsert(ctx, "mallory", domain.Metadata{Name: "widgets"})
	require.ErrorIs(t, err, domain.ErrForbidden)
}

func TestCreateIgnoresExistingName(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	repo := repository.Provide()
	now := f.clock.Now()

	created, err := repo.Create(ctx, f.db, &domain.Pack{Name: "widgets", Author: "alice", Dependencies: []string{}, CreatedAt: now, UpdatedAt: now})
	require.NoError(t, err)
	require.True(t, created)

	created, err = repo.Create(ctx, f.db, &domain.Pack{Name: "widgets", Author: "bob", Dependencies: []string{}, CreatedAt: now, UpdatedAt: now})
	require.NoError(t, err)
	require.False(t, created)

	got, err := repo.FindByName(ctx, f.db, "widgets")
	require.NoError(t, err)
	require.Equal(t, "alice", got.Author)
}

func TestListPaginatesByName(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	for _, name := range []string{"c-pack", "a-pack", "b-pack"} {
		_, _, err := f.svc.Upsert(ctx, "alice", domain.Metadata{Name: name})
		require.NoError(t, err)
	}

	req := domain.ListRequest{}
	req.PageSize = 2
	page, err := f.svc.List(ctx, req)
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	require.Equal(t, "a-pack", page.Items[0].Name)
	require.True(t, page.PageInfo.HasMore)

	req.PageToken = page.PageInfo.NextPageToken
	page, err = f.svc.List(ctx, req)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	require.Equal(t, "c-pack", page.Items[0].Name)
	require.False(t, page.PageInfo.HasMore)

	require.NoError(t, f.svc.RecordDownload(ctx, "b-pack"))
	got, err := f.svc.Get(ctx, "b-pack")
	require.NoError(t, err)
	require.EqualValues(t, 1, got.Downloads)
}
