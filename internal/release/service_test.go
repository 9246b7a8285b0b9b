package release

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/smallbiznis/packhub/internal/config"
	"github.com/smallbiznis/packhub/internal/publish"
	versiondomain "github.com/smallbiznis/packhub/internal/version/domain"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "s3cret"

type mockCommitter struct {
	mock.Mock
	limit int64
}

func (m *mockCommitter) Commit(ctx context.Context, c publish.Commit) (*publish.Result, error) {
	args := m.Called(ctx, c)
	res, _ := args.Get(0).(*publish.Result)
	return res, args.Error(1)
}

func (m *mockCommitter) MaxTarballBytes() int64 { return m.limit }

type stubVersions struct {
	versiondomain.Service
	existing map[string]bool
}

func (s stubVersions) Exists(_ context.Context, pack, version string) (bool, error) {
	return s.existing[pack+"@"+version], nil
}

func sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func newAssetServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newService(committer *mockCommitter, existing map[string]bool) *Service {
	mappings := config.NewStaticReleaseMapping(config.ReleaseMapping{Repository: "acme/widgets", Pack: "widgets"})
	return New(zap.NewNop(), testSecret, committer, stubVersions{existing: existing}, mappings, NewAssetClient(), nil)
}

func releaseBody(t *testing.T, tag, assetURL string, mutate func(*Event)) []byte {
	t.Helper()
	event := Event{
		Action: "published",
		Release: Release{
			TagName: tag,
			Body:    "Fixes things",
			Assets: []Asset{
				{Name: "checksums.txt", BrowserDownloadURL: assetURL + "/checksums.txt", Size: 10},
				{Name: "widgets-1.4.0.tar.gz", BrowserDownloadURL: assetURL + "/widgets.tar.gz", Size: 7},
			},
		},
		Repository: Repository{FullName: "acme/widgets", HTMLURL: "https://github.com/acme/widgets"},
	}
	if mutate != nil {
		mutate(&event)
	}
	body, err := json.Marshal(event)
	require.NoError(t, err)
	return body
}

func TestHandlePublishesMappedRelease(t *testing.T) {
	srv := newAssetServer(t, http.StatusOK, "tarball")
	committer := &mockCommitter{limit: 1 << 20}
	committer.On("Commit", mock.Anything, mock.MatchedBy(func(c publish.Commit) bool {
		return c.Author == "github:acme" &&
			c.Version == "1.4.0" &&
			c.Manifest.Name == "widgets" &&
			string(c.Tarball) == "tarball" &&
			c.Changelog != nil && *c.Changelog == "Fixes things" &&
			c.Source == publish.SourceRelease
	})).Return(&publish.Result{Name: "widgets", Version: "1.4.0"}, nil).Once()

	svc := newService(committer, nil)
	body := releaseBody(t, "v1.4.0", srv.URL, nil)

	outcome, err := svc.Handle(context.Background(), body, sign(body))
	require.NoError(t, err)
	require.Equal(t, StatusPublished, outcome.Status)
	require.Equal(t, "1.4.0", outcome.Release.Version)
	committer.AssertExpectations(t)
}

func TestHandleRejectsBadSignature(t *testing.T) {
	svc := newService(&mockCommitter{limit: 1 << 20}, nil)
	body := releaseBody(t, "v1.4.0", "http://unused", nil)

	for _, header := range []string{"", "sha1=abc", "sha256=zz", sign([]byte("other"))} {
		_, err := svc.Handle(context.Background(), body, header)
		require.ErrorIs(t, err, ErrInvalidSignature, header)
	}
}

func TestHandleIgnoresUnpublishable(t *testing.T) {
	committer := &mockCommitter{limit: 1 << 20}
	svc := newService(committer, nil)

	cases := map[string]func(*Event){
		"created":    func(e *Event) { e.Action = "created" },
		"draft":      func(e *Event) { e.Release.Draft = true },
		"prerelease": func(e *Event) { e.Release.Prerelease = true },
		"unmapped":   func(e *Event) { e.Repository.FullName = "acme/other" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			body := releaseBody(t, "v1.4.0", "http://unused", mutate)
			outcome, err := svc.Handle(context.Background(), body, sign(body))
			require.NoError(t, err)
			require.Equal(t, StatusIgnored, outcome.Status)
		})
	}
	committer.AssertNotCalled(t, "Commit", mock.Anything, mock.Anything)
}

func TestProcessFailures(t *testing.T) {
	failing := newAssetServer(t, http.StatusBadGateway, "")
	ok := newAssetServer(t, http.StatusOK, "tarball")

	svc := newService(&mockCommitter{limit: 1 << 20}, map[string]bool{"widgets@1.0.0": true})
	ctx := context.Background()

	decode := func(body []byte) Event {
		var e Event
		require.NoError(t, json.Unmarshal(body, &e))
		return e
	}

	_, err := svc.Process(ctx, decode(releaseBody(t, "release-one", ok.URL, nil)))
	require.ErrorIs(t, err, versiondomain.ErrInvalidVersion)

	_, err = svc.Process(ctx, decode(releaseBody(t, "v1.0.0", ok.URL, nil)))
	require.ErrorIs(t, err, versiondomain.ErrConflict)

	_, err = svc.Process(ctx, decode(releaseBody(t, "v1.4.0", ok.URL, func(e *Event) { e.Release.Assets = e.Release.Assets[:1] })))
	require.ErrorIs(t, err, ErrMissingAsset)

	_, err = svc.Process(ctx, decode(releaseBody(t, "v1.4.0", failing.URL, nil)))
	require.ErrorIs(t, err, ErrUpstream)

	small := newService(&mockCommitter{limit: 3}, nil)
	_, err = small.Process(ctx, decode(releaseBody(t, "v1.4.0", ok.URL, func(e *Event) { e.Release.Assets[1].Size = 0 })))
	require.ErrorIs(t, err, publish.ErrTooLarge)
}

func TestAssetClientSendsTokenOnlyToGitHub(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	client := NewAssetClient(WithBaseURL(srv.URL), WithToken("ghp_x"))
	body, err := client.Download(context.Background(), srv.URL+"/asset?token=1", 10)
	require.NoError(t, err)
	require.Equal(t, "ok", string(body))
	require.Equal(t, "Bearer ghp_x", gotAuth)

	other := NewAssetClient(WithToken("ghp_x"))
	_, err = other.Download(context.Background(), srv.URL+"/asset", 10)
	require.NoError(t, err)
	require.Empty(t, gotAuth)

	require.Equal(t, "http://host/path", redactURL("http://host/path?sig=abc#frag"))
}
