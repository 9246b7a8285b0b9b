package release

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/smallbiznis/packhub/internal/config"
	"github.com/smallbiznis/packhub/internal/observability/metrics"
	"github.com/smallbiznis/packhub/internal/observability/tracing"
	"github.com/smallbiznis/packhub/internal/publish"
	versiondomain "github.com/smallbiznis/packhub/internal/version/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	StatusPublished = "published"
	StatusIgnored   = "ignored"
)

var (
	ErrInvalidSignature = errors.New("invalid_signature")
	ErrInvalidPayload   = errors.New("invalid_release_payload")
	ErrMissingAsset     = errors.New("missing_tarball_asset")
	ErrUpstream         = errors.New("upstream_failure")
)

// Committer stores a validated tarball as a new version.
type Committer interface {
	Commit(ctx context.Context, c publish.Commit) (*publish.Result, error)
	MaxTarballBytes() int64
}

type Downloader interface {
	Download(ctx context.Context, assetURL string, limit int64) ([]byte, error)
}

type Mappings interface {
	PackFor(repository string) (string, bool)
}

// Outcome reports what happened to one release event.
type Outcome struct {
	Status  string          `json:"status"`
	Reason  string          `json:"reason,omitempty"`
	Release *publish.Result `json:"release,omitempty"`
}

type Params struct {
	fx.In

	Log       *zap.Logger
	Config    config.Config
	Publisher *publish.Service
	Versions  versiondomain.Service
	Mappings  *config.ReleaseMappingHolder
	Metrics   *metrics.Metrics `optional:"true"`
	Client    *http.Client     `name:"github_http_client" optional:"true"`
}

type Service struct {
	log       *zap.Logger
	secret    string
	publisher Committer
	versions  versiondomain.Service
	mappings  Mappings
	assets    Downloader
	metrics   *metrics.Metrics
}

func NewService(p Params) *Service {
	client := p.Client
	if client == nil {
		client = tracing.WrapHTTPClient(&http.Client{})
	}
	assets := NewAssetClient(
		WithHTTPClient(client),
		WithBaseURL(p.Config.Release.GitHubBaseURL),
		WithToken(p.Config.Release.GitHubToken),
		WithUserAgent(p.Config.AppName+"/"+p.Config.AppVersion),
	)
	return New(p.Log, p.Config.Release.WebhookSecret, p.Publisher, p.Versions, p.Mappings, assets, p.Metrics)
}

func New(log *zap.Logger, secret string, publisher Committer, versions versiondomain.Service, mappings Mappings, assets Downloader, m *metrics.Metrics) *Service {
	return &Service{
		log:       log.Named("release.service"),
		secret:    secret,
		publisher: publisher,
		versions:  versions,
		mappings:  mappings,
		assets:    assets,
		metrics:   m,
	}
}

// Handle verifies and processes one raw release webhook body.
func (s *Service) Handle(ctx context.Context, body []byte, signature string) (*Outcome, error) {
	if err := VerifySignature(s.secret, signature, body); err != nil {
		s.metrics.RecordReleaseEvent(ctx, "unauthorized")
		return nil, err
	}

	var event Event
	if err := json.Unmarshal(body, &event); err != nil {
		s.metrics.RecordReleaseEvent(ctx, "invalid")
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	outcome, err := s.Process(ctx, event)
	switch {
	case err != nil:
		s.metrics.RecordReleaseEvent(ctx, "error")
	default:
		s.metrics.RecordReleaseEvent(ctx, outcome.Status)
	}
	return outcome, err
}

// Process applies an already authenticated release event.
func (s *Service) Process(ctx context.Context, event Event) (*Outcome, error) {
	if event.Action != "published" {
		return ignored("action " + event.Action), nil
	}
	if event.Release.Draft || event.Release.Prerelease {
		return ignored("draft or prerelease"), nil
	}

	repo := strings.TrimSpace(event.Repository.FullName)
	pack, ok := s.mappings.PackFor(repo)
	if !ok {
		return ignored("repository not mapped"), nil
	}

	log := s.log.With(zap.String("repository", repo), zap.String("pack", pack), zap.String("tag", event.Release.TagName))

	version := strings.TrimPrefix(strings.TrimSpace(event.Release.TagName), "v")
	if !versiondomain.HasSemverPrefix(version) {
		return nil, versiondomain.ErrInvalidVersion
	}

	exists, err := s.versions.Exists(ctx, pack, version)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, versiondomain.ErrConflict
	}

	asset, ok := event.Release.TarballAsset()
	if !ok {
		return nil, ErrMissingAsset
	}
	limit := s.publisher.MaxTarballBytes()
	if asset.Size > limit {
		return nil, publish.ErrTooLarge
	}

	tarball, err := s.assets.Download(ctx, asset.BrowserDownloadURL, limit)
	if err != nil {
		if errors.Is(err, ErrAssetTooLarge) {
			return nil, publish.ErrTooLarge
		}
		log.Warn("release asset download failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	if len(tarball) == 0 {
		return nil, publish.ErrMissingTarball
	}

	manifest := &publish.Manifest{
		Name:    pack,
		Version: version,
		Extra: map[string]any{
			"source": map[string]any{
				"type":       "github",
				"repository": repo,
				"tag":        event.Release.TagName,
				"asset":      asset.Name,
			},
		},
	}
	if event.Repository.HTMLURL != "" {
		repoURL := event.Repository.HTMLURL
		manifest.Repository = &repoURL
	}

	var changelog *string
	if body := strings.TrimSpace(event.Release.Body); body != "" {
		changelog = &body
	}

	result, err := s.publisher.Commit(ctx, publish.Commit{
		Author:    "github:" + event.Repository.Owner(),
		Manifest:  manifest,
		Version:   version,
		Tarball:   tarball,
		Changelog: changelog,
		Source:    publish.SourceRelease,
	})
	if err != nil {
		return nil, err
	}

	log.Info("release auto-published", zap.String("version", result.Version))
	return &Outcome{Status: StatusPublished, Release: result}, nil
}

func ignored(reason string) *Outcome {
	return &Outcome{Status: StatusIgnored, Reason: reason}
}
