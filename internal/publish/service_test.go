package publish

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/packhub/internal/authorization"
	"github.com/smallbiznis/packhub/internal/blobstore"
	"github.com/smallbiznis/packhub/internal/clock"
	"github.com/smallbiznis/packhub/internal/config"
	"github.com/smallbiznis/packhub/internal/dependency"
	packdomain "github.com/smallbiznis/packhub/internal/pack/domain"
	packrepo "github.com/smallbiznis/packhub/internal/pack/repository"
	packservice "github.com/smallbiznis/packhub/internal/pack/service"
	versiondomain "github.com/smallbiznis/packhub/internal/version/domain"
	versionrepo "github.com/smallbiznis/packhub/internal/version/repository"
	versionservice "github.com/smallbiznis/packhub/internal/version/service"
	webhookdomain "github.com/smallbiznis/packhub/internal/webhook/domain"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// memberAuthz grants pack.publish to the listed (org, user) pairs.
type memberAuthz map[string]string

func (m memberAuthz) Authorize(_ context.Context, actor, org, _, _ string) error {
	if m[org] == actor {
		return nil
	}
	return authorization.ErrForbidden
}

type recordingQueue struct {
	mu   sync.Mutex
	jobs []webhookdomain.Job
}

func (q *recordingQueue) Enqueue(job webhookdomain.Job) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
	return true
}

type fixture struct {
	svc      *Service
	db       *gorm.DB
	blobs    *blobstore.AferoStore
	clock    *clock.FakeClock
	queue    *recordingQueue
	versions versiondomain.Service
}

func setup(t *testing.T, maxBytes int64) fixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&packdomain.Pack{}, &versiondomain.PackVersion{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake: %v", err)
	}

	log := zap.NewNop()
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	blobs := blobstore.NewAferoStore(afero.NewMemMapFs())
	queue := &recordingQueue{}
	packs := packrepo.Provide()

	versions := versionservice.New(versionservice.Params{
		DB:    db,
		Log:   log,
		GenID: node,
		Clock: clk,
		Repo:  versionrepo.Provide(),
	})
	svc := NewService(Params{
		DB:     db,
		Log:    log,
		Config: config.Config{Publish: config.PublishConfig{MaxTarballBytes: maxBytes}},
		Blobs:  blobs,
		Packs: packservice.New(packservice.Params{
			DB:    db,
			Log:   log,
			Clock: clk,
			Repo:  packs,
			Blobs: blobs,
		}),
		PackRepo: packs,
		Versions: versions,
		Authz:    memberAuthz{"acme": "alice"},
		Queue:    queue,
	})

	return fixture{svc: svc, db: db, blobs: blobs, clock: clk, queue: queue, versions: versions}
}

func publishRequest(actor, metadata, tarball string) Request {
	return Request{
		Actor:        actor,
		Metadata:     []byte(metadata),
		Tarball:      strings.NewReader(tarball),
		DeclaredSize: int64(len(tarball)),
	}
}

func TestPublishStoresVersionAndNotifies(t *testing.T) {
	f := setup(t, 0)
	ctx := context.Background()

	res, err := f.svc.Publish(ctx, publishRequest("alice",
		`{"name":"widgets","version":"1.2.0","description":"Widget kit","tags":["ui"],"dependencies":["core"],"files":["a","b"],"x-extra":true}`,
		"tarball-bytes"))
	require.NoError(t, err)
	require.Equal(t, "widgets", res.Name)
	require.Equal(t, "1.2.0", res.Version)
	require.True(t, strings.HasPrefix(res.Integrity, "sha256-"))
	require.Len(t, res.Integrity, len("sha256-")+64)
	require.True(t, res.Created)

	stored, err := f.versions.Get(ctx, "widgets", "1.2.0")
	require.NoError(t, err)
	require.Equal(t, res.Integrity, stored.Integrity)
	require.Equal(t, 2, stored.FileCount)
	require.Equal(t, "widgets/1.2.0.tgz", stored.TarballURL)
	require.Contains(t, string(stored.Manifest), `"x-extra":true`)

	rc, err := f.blobs.Get(ctx, "widgets", "1.2.0")
	require.NoError(t, err)
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	require.Equal(t, "tarball-bytes", string(body))

	var pack packdomain.Pack
	require.NoError(t, f.db.First(&pack, "name = ?", "widgets").Error)
	require.Equal(t, "alice", pack.Author)
	require.Equal(t, []string{"core"}, []string(pack.Dependencies))

	require.Len(t, f.queue.jobs, 1)
	require.Equal(t, webhookdomain.EventPublish, f.queue.jobs[0].Event)
	require.Equal(t, "1.2.0", f.queue.jobs[0].Version)

	_, err = f.svc.Publish(ctx, publishRequest("alice", `{"name":"widgets","version":"1.3.0"}`, "next"))
	require.NoError(t, err)
	require.Equal(t, webhookdomain.EventUpdate, f.queue.jobs[1].Event)
}

func TestPublishDuplicateVersionConflicts(t *testing.T) {
	f := setup(t, 0)
	ctx := context.Background()

	first, err := f.svc.Publish(ctx, publishRequest("alice", `{"name":"widgets","version":"1.0.0"}`, "first"))
	require.NoError(t, err)

	_, err = f.svc.Publish(ctx, publishRequest("alice", `{"name":"widgets","version":"1.0.0"}`, "second"))
	require.ErrorIs(t, err, versiondomain.ErrConflict)

	stored, err := f.versions.Get(ctx, "widgets", "1.0.0")
	require.NoError(t, err)
	require.Equal(t, first.Integrity, stored.Integrity)

	rc, err := f.blobs.Get(ctx, "widgets", "1.0.0")
	require.NoError(t, err)
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	require.Equal(t, "first", string(body))
}

func TestPublishReplacesDependencyEdges(t *testing.T) {
	f := setup(t, 0)
	ctx := context.Background()
	deps := dependency.NewService(dependency.Params{DB: f.db, Log: zap.NewNop(), Packs: packrepo.Provide()})

	_, err := f.svc.Publish(ctx, publishRequest("alice", `{"name":"widgets","version":"1.0.0","dependencies":["core","util"],"conflicts":["gadgets"]}`, "v1"))
	require.NoError(t, err)
	dependents, err := deps.ReverseDependencies(ctx, "core")
	require.NoError(t, err)
	require.Len(t, dependents, 1)

	_, err = f.svc.Publish(ctx, publishRequest("alice", `{"name":"widgets","version":"1.1.0","dependencies":["util"]}`, "v2"))
	require.NoError(t, err)
	dependents, err = deps.ReverseDependencies(ctx, "core")
	require.NoError(t, err)
	require.Empty(t, dependents)

	// An omitted list keeps the stored one.
	_, err = f.svc.Publish(ctx, publishRequest("alice", `{"name":"widgets","version":"1.2.0"}`, "v3"))
	require.NoError(t, err)
	pack, err := packrepo.Provide().FindByName(ctx, f.db, "widgets")
	require.NoError(t, err)
	require.Equal(t, []string{"util"}, []string(pack.Dependencies))
	require.Equal(t, []string{"gadgets"}, []string(pack.Conflicts))

	_, err = f.svc.Publish(ctx, publishRequest("alice", `{"name":"widgets","version":"2.0.0","dependencies":[],"conflicts":[]}`, "v4"))
	require.NoError(t, err)
	dependents, err = deps.ReverseDependencies(ctx, "util")
	require.NoError(t, err)
	require.Empty(t, dependents)
	pack, err = packrepo.Provide().FindByName(ctx, f.db, "widgets")
	require.NoError(t, err)
	require.Empty(t, pack.Dependencies)
	require.Empty(t, pack.Conflicts)
}

func TestCommitRaceKeepsFirstTarball(t *testing.T) {
	f := setup(t, 0)
	ctx := context.Background()

	manifest := func() *Manifest { return &Manifest{Name: "widgets", Version: "1.0.0"} }
	_, err := f.svc.Commit(ctx, Commit{Author: "alice", Manifest: manifest(), Version: "1.0.0", Tarball: []byte("first"), Source: SourceAPI})
	require.NoError(t, err)

	_, err = f.svc.Commit(ctx, Commit{Author: "alice", Manifest: manifest(), Version: "1.0.0", Tarball: []byte("second"), Source: SourceAPI})
	require.ErrorIs(t, err, versiondomain.ErrConflict)

	rc, err := f.blobs.Get(ctx, "widgets", "1.0.0")
	require.NoError(t, err)
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	require.Equal(t, "first", string(body))
}

func TestPublishAutoVersionBumpsPatch(t *testing.T) {
	f := setup(t, 0)
	ctx := context.Background()

	res, err := f.svc.Publish(ctx, publishRequest("alice", `{"name":"auto-pack","version":"auto"}`, "one"))
	require.NoError(t, err)
	require.Equal(t, "1.0.0", res.Version)

	f.clock.Advance(time.Minute)
	res, err = f.svc.Publish(ctx, publishRequest("alice", `{"name":"auto-pack","version":"auto"}`, "two"))
	require.NoError(t, err)
	require.Equal(t, "1.0.1", res.Version)

	stored, err := f.versions.Get(ctx, "auto-pack", "1.0.1")
	require.NoError(t, err)
	require.Contains(t, string(stored.Manifest), `"version":"1.0.1"`)
}

func TestPublishSizeLimits(t *testing.T) {
	f := setup(t, 8)
	ctx := context.Background()

	req := publishRequest("alice", `{"name":"widgets","version":"1.0.0"}`, "small")
	req.DeclaredSize = 9
	_, err := f.svc.Publish(ctx, req)
	require.ErrorIs(t, err, ErrTooLarge)

	req = publishRequest("alice", `{"name":"widgets","version":"1.0.0"}`, "far-too-large")
	req.DeclaredSize = -1
	_, err = f.svc.Publish(ctx, req)
	require.ErrorIs(t, err, ErrTooLarge)

	_, err = f.svc.Publish(ctx, publishRequest("alice", `{"name":"widgets","version":"1.0.0"}`, "12345678"))
	require.NoError(t, err)
}

func TestPublishRejections(t *testing.T) {
	f := setup(t, 0)
	ctx := context.Background()

	cases := []struct {
		name string
		req  Request
		want error
	}{
		{"no actor", publishRequest("", `{"name":"widgets","version":"1.0.0"}`, "x"), ErrUnauthorized},
		{"no tarball", Request{Actor: "alice", Metadata: []byte(`{"name":"widgets","version":"1.0.0"}`)}, ErrMissingTarball},
		{"empty tarball", publishRequest("alice", `{"name":"widgets","version":"1.0.0"}`, ""), ErrMissingTarball},
		{"no metadata", publishRequest("alice", "", "x"), ErrMissingMetadata},
		{"schema", publishRequest("alice", `{"name":"widgets"}`, "x"), ErrInvalidManifest},
		{"tags type", publishRequest("alice", `{"name":"widgets","version":"1.0.0","tags":"ui"}`, "x"), ErrInvalidManifest},
		{"bad name", publishRequest("alice", `{"name":"Bad Name","version":"1.0.0"}`, "x"), ErrInvalidName},
		{"reserved", publishRequest("alice", `{"name":"pack-hub","version":"1.0.0"}`, "x"), ErrReservedName},
		{"bad version", publishRequest("alice", `{"name":"widgets","version":"latest"}`, "x"), versiondomain.ErrInvalidVersion},
		{"scoped non member", publishRequest("bob", `{"name":"@acme/tools","version":"1.0.0"}`, "x"), ErrForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Publish(ctx, tc.req)
			require.ErrorIs(t, err, tc.want)
		})
	}

	_, err := f.svc.Publish(ctx, publishRequest("alice", `{"name":"@acme/tools","version":"1.0.0"}`, "x"))
	require.NoError(t, err)
}

func TestPublishOwnershipAndSquatting(t *testing.T) {
	f := setup(t, 0)
	ctx := context.Background()

	_, err := f.svc.Publish(ctx, publishRequest("alice", `{"name":"my-pack","version":"1.0.0"}`, "x"))
	require.NoError(t, err)

	_, err = f.svc.Publish(ctx, publishRequest("bob", `{"name":"my-pack","version":"1.0.1"}`, "x"))
	require.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.Publish(ctx, publishRequest("bob", `{"name":"mypack","version":"1.0.0"}`, "x"))
	require.ErrorIs(t, err, ErrNameSquatting)

	_, err = f.svc.Publish(ctx, publishRequest("alice", `{"name":"mypack","version":"1.0.0"}`, "x"))
	require.NoError(t, err)
}

func TestReadTarballStopsAtLimit(t *testing.T) {
	f := setup(t, 4)
	_, err := f.svc.ReadTarball(bytes.NewReader(make([]byte, 1<<20)))
	require.ErrorIs(t, err, ErrTooLarge)

	data, err := f.svc.ReadTarball(bytes.NewReader([]byte("abcd")))
	require.NoError(t, err)
	require.Equal(t, "abcd", string(data))
}
