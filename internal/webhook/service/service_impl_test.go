package service

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/packhub/internal/clock"
	"github.com/smallbiznis/packhub/internal/config"
	packdomain "github.com/smallbiznis/packhub/internal/pack/domain"
	packrepo "github.com/smallbiznis/packhub/internal/pack/repository"
	"github.com/smallbiznis/packhub/internal/webhook/domain"
	"github.com/smallbiznis/packhub/internal/webhook/repository"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupService(t *testing.T, timeout time.Duration) (*Service, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&packdomain.Pack{}, &domain.Webhook{}, &domain.Delivery{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	// Concurrent deliveries write through one connection.
	sqlDB.SetMaxOpenConns(1)
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	_, err = packrepo.Provide().Create(context.Background(), db, &packdomain.Pack{
		Name:      "widgets",
		Author:    "alice",
		CreatedAt: now,
		UpdatedAt: now,
	})
	require.NoError(t, err)

	svc := New(Params{
		DB:     db,
		Log:    zap.NewNop(),
		Config: config.Config{Webhook: config.WebhookConfig{Timeout: timeout}},
		GenID:  node,
		Clock:  clock.NewFakeClock(now),
		Repo:   repository.Provide(),
		Packs:  packrepo.Provide(),
	}).(*Service)
	return svc, db
}

func strPtr(v string) *string { return &v }

func TestDispatchRecordsEveryAttempt(t *testing.T) {
	svc, db := setupService(t, 200*time.Millisecond)
	ctx := context.Background()

	var mu sync.Mutex
	var received []*http.Request
	var bodies [][]byte
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		received = append(received, r)
		bodies = append(bodies, body)
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ok.Close()

	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer slow.Close()

	_, err := svc.Create(ctx, "alice", "widgets", domain.CreateRequest{URL: ok.URL + "/a", Secret: strPtr("s3cret"), Events: []string{"publish"}})
	require.NoError(t, err)
	_, err = svc.Create(ctx, "alice", "widgets", domain.CreateRequest{URL: ok.URL + "/b", Events: []string{"publish", "update"}})
	require.NoError(t, err)
	_, err = svc.Create(ctx, "alice", "widgets", domain.CreateRequest{URL: slow.URL, Events: []string{"publish"}})
	require.NoError(t, err)
	_, err = svc.Create(ctx, "alice", "widgets", domain.CreateRequest{URL: ok.URL + "/ignored", Events: []string{"delete"}})
	require.NoError(t, err)

	delivered, err := svc.Dispatch(ctx, "widgets", domain.EventPublish, map[string]any{"size": 3}, "1.0.0")
	require.NoError(t, err)
	require.Equal(t, 2, delivered)

	var rows []domain.Delivery
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 3)

	successes := 0
	for _, row := range rows {
		if row.Success {
			successes++
			require.Equal(t, http.StatusNoContent, row.ResponseStatus)
		} else {
			require.NotEmpty(t, row.Error)
		}
		require.Len(t, row.DeliveryID, 26)
	}
	require.Equal(t, 2, successes)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 2)
	for i, r := range received {
		require.Equal(t, "publish", r.Header.Get(domain.HeaderEvent))
		require.NotEmpty(t, r.Header.Get(domain.HeaderDelivery))
		if r.URL.Path == "/a" {
			require.Equal(t, domain.Sign("s3cret", bodies[i]), r.Header.Get(domain.HeaderSignature))
		} else {
			require.Empty(t, r.Header.Get(domain.HeaderSignature))
		}

		var payload map[string]any
		require.NoError(t, json.Unmarshal(bodies[i], &payload))
		require.Equal(t, "publish", payload["event"])
		require.Equal(t, "widgets", payload["pack"])
		require.Equal(t, "1.0.0", payload["version"])
	}
}

func TestDispatchPayloadIsCanonical(t *testing.T) {
	svc, _ := setupService(t, time.Second)

	body, err := svc.encode("widgets", domain.EventUpdate, map[string]any{"z": 1, "a": "x"}, "")
	require.NoError(t, err)
	require.Equal(t,
		`{"data":{"a":"x","z":1},"event":"update","pack":"widgets","timestamp":"2026-03-01T12:00:00Z","version":null}`,
		string(body),
	)
}

func TestDispatchWithoutSubscribersDeliversNothing(t *testing.T) {
	svc, _ := setupService(t, time.Second)

	delivered, err := svc.Dispatch(context.Background(), "widgets", domain.EventDelete, nil, "")
	require.NoError(t, err)
	require.Zero(t, delivered)
}

func TestDispatchToPinnedHooksAfterDelete(t *testing.T) {
	svc, db := setupService(t, time.Second)
	ctx := context.Background()

	var mu sync.Mutex
	var events []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		events = append(events, r.Header.Get(domain.HeaderEvent))
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	_, err := svc.Create(ctx, "alice", "widgets", domain.CreateRequest{URL: srv.URL, Events: []string{"delete"}})
	require.NoError(t, err)
	_, err = svc.Create(ctx, "alice", "widgets", domain.CreateRequest{URL: srv.URL + "/publish", Events: []string{"publish"}})
	require.NoError(t, err)

	hooks, err := svc.Subscribers(ctx, "widgets", domain.EventDelete)
	require.NoError(t, err)
	require.Len(t, hooks, 1)

	require.NoError(t, db.Exec(`DELETE FROM webhooks`).Error)

	delivered, err := svc.DispatchTo(ctx, hooks, "widgets", domain.EventDelete, map[string]any{"versions": []string{"1.0.0"}}, "")
	require.NoError(t, err)
	require.Equal(t, 1, delivered)

	var count int64
	require.NoError(t, db.Model(&domain.Delivery{}).Count(&count).Error)
	require.Zero(t, count)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"delete"}, events)
}

func TestWebhookOwnership(t *testing.T) {
	svc, _ := setupService(t, time.Second)
	ctx := context.Background()

	_, err := svc.Create(ctx, "mallory", "widgets", domain.CreateRequest{URL: "https://example.com/hook"})
	require.ErrorIs(t, err, domain.ErrForbidden)

	_, err = svc.Create(ctx, "alice", "missing", domain.CreateRequest{URL: "https://example.com/hook"})
	require.ErrorIs(t, err, domain.ErrPackNotFound)

	_, err = svc.Create(ctx, "alice", "widgets", domain.CreateRequest{URL: "ftp://example.com"})
	require.ErrorIs(t, err, domain.ErrInvalidURL)

	_, err = svc.Create(ctx, "alice", "widgets", domain.CreateRequest{URL: "https://example.com", Events: []string{"push"}})
	require.ErrorIs(t, err, domain.ErrInvalidEvents)

	created, err := svc.Create(ctx, "alice", "widgets", domain.CreateRequest{URL: "https://example.com/hook"})
	require.NoError(t, err)
	require.Equal(t, []string{"publish", "update", "delete"}, created.Events)
	require.True(t, created.Active)

	_, err = svc.Get(ctx, "mallory", created.ID)
	require.ErrorIs(t, err, domain.ErrForbidden)

	inactive := false
	updated, err := svc.Update(ctx, "alice", created.ID, domain.UpdateRequest{Active: &inactive, Secret: strPtr("k")})
	require.NoError(t, err)
	require.False(t, updated.Active)
	require.True(t, updated.HasSecret)

	list, err := svc.List(ctx, "alice", "widgets")
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, svc.Delete(ctx, "alice", created.ID))
	_, err = svc.Get(ctx, "alice", created.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestGetDeliveriesClampsLimit(t *testing.T) {
	svc, db := setupService(t, time.Second)
	ctx := context.Background()

	created, err := svc.Create(ctx, "alice", "widgets", domain.CreateRequest{URL: "https://example.com/hook"})
	require.NoError(t, err)
	hookID, err := snowflake.ParseString(created.ID)
	require.NoError(t, err)

	for i := 0; i < 60; i++ {
		require.NoError(t, svc.repo.InsertDelivery(ctx, db, &domain.Delivery{
			ID:         svc.genID.Generate(),
			WebhookID:  hookID,
			DeliveryID: "d",
			Event:      "publish",
			Payload:    []byte(`{}`),
			CreatedAt:  time.Date(2026, 3, 1, 12, 0, i, 0, time.UTC),
		}))
	}

	items, err := svc.GetDeliveries(ctx, "alice", created.ID, 0)
	require.NoError(t, err)
	require.Len(t, items, domain.DefaultDeliveryLimit)
	require.Equal(t, 59, items[0].CreatedAt.Second())

	items, err = svc.GetDeliveries(ctx, "alice", created.ID, 1000)
	require.NoError(t, err)
	require.Len(t, items, 60)
}
