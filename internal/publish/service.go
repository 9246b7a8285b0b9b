package publish

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/smallbiznis/packhub/internal/authorization"
	"github.com/smallbiznis/packhub/internal/blobstore"
	"github.com/smallbiznis/packhub/internal/config"
	"github.com/smallbiznis/packhub/internal/observability/metrics"
	orgdomain "github.com/smallbiznis/packhub/internal/organization/domain"
	packdomain "github.com/smallbiznis/packhub/internal/pack/domain"
	versiondomain "github.com/smallbiznis/packhub/internal/version/domain"
	webhookdomain "github.com/smallbiznis/packhub/internal/webhook/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	SourceAPI     = "api"
	SourceRelease = "release"
)

var (
	ErrUnauthorized    = errors.New("unauthorized")
	ErrMissingTarball  = errors.New("missing_tarball")
	ErrMissingMetadata = errors.New("missing_metadata")
	ErrTooLarge        = errors.New("tarball_too_large")
	ErrInvalidManifest = errors.New("invalid_manifest")
	ErrInvalidName     = errors.New("invalid_pack_name")
	ErrReservedName    = errors.New("reserved_pack_name")
	ErrNameSquatting   = errors.New("pack_name_too_similar")
	ErrForbidden       = errors.New("publish_forbidden")
)

// Request is one client publish. DeclaredSize is the size announced by the
// transport, or -1 when unknown.
type Request struct {
	Actor        string
	Metadata     []byte
	Tarball      io.Reader
	DeclaredSize int64
}

// Commit carries an already validated tarball into storage.
type Commit struct {
	Author    string
	Manifest  *Manifest
	Version   string
	Tarball   []byte
	Changelog *string
	Source    string
}

type Result struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	Integrity string `json:"integrity"`
	Size      int64  `json:"size"`
	Created   bool   `json:"-"`
}

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Config   config.Config
	Blobs    blobstore.Store
	Packs    packdomain.Service
	PackRepo packdomain.Repository
	Versions versiondomain.Service
	Authz    authorization.Service
	Queue    webhookdomain.Enqueuer `optional:"true"`
	Metrics  *metrics.Metrics       `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	blobs    blobstore.Store
	packs    packdomain.Service
	packRepo packdomain.Repository
	versions versiondomain.Service
	authz    authorization.Service
	queue    webhookdomain.Enqueuer
	metrics  *metrics.Metrics
	names    *NameValidator
	maxBytes int64
}

func NewService(p Params) *Service {
	maxBytes := p.Config.Publish.MaxTarballBytes
	if maxBytes <= 0 {
		maxBytes = 10 << 20
	}
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("publish.service"),
		blobs:    p.Blobs,
		packs:    p.Packs,
		packRepo: p.PackRepo,
		versions: p.Versions,
		authz:    p.Authz,
		queue:    p.Queue,
		metrics:  p.Metrics,
		names:    NewNameValidator(p.Config.Publish.ReservedNames),
		maxBytes: maxBytes,
	}
}

// MaxTarballBytes is the largest accepted tarball.
func (s *Service) MaxTarballBytes() int64 {
	return s.maxBytes
}

func (s *Service) Publish(ctx context.Context, req Request) (*Result, error) {
	result, err := s.publish(ctx, req)
	if err != nil {
		s.metrics.RecordPublish(ctx, SourceAPI, outcome(err))
	}
	return result, err
}

func (s *Service) publish(ctx context.Context, req Request) (*Result, error) {
	actor := strings.TrimSpace(req.Actor)
	if actor == "" {
		return nil, ErrUnauthorized
	}
	if req.Tarball == nil {
		return nil, ErrMissingTarball
	}
	if len(bytes.TrimSpace(req.Metadata)) == 0 {
		return nil, ErrMissingMetadata
	}
	if req.DeclaredSize > s.maxBytes {
		return nil, ErrTooLarge
	}

	tarball, err := s.ReadTarball(req.Tarball)
	if err != nil {
		return nil, err
	}

	manifest, err := ParseManifest(req.Metadata)
	if err != nil {
		return nil, err
	}
	if err := s.CheckName(ctx, actor, manifest.Name); err != nil {
		return nil, err
	}

	version, err := s.resolveVersion(ctx, manifest.Name, manifest.Version)
	if err != nil {
		return nil, err
	}
	exists, err := s.versions.Exists(ctx, manifest.Name, version)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, versiondomain.ErrConflict
	}

	return s.Commit(ctx, Commit{
		Author:    actor,
		Manifest:  manifest,
		Version:   version,
		Tarball:   tarball,
		Changelog: manifest.Changelog,
		Source:    SourceAPI,
	})
}

// ReadTarball materializes r, failing once it grows past the size limit.
func (s *Service) ReadTarball(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, s.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read tarball: %w", err)
	}
	if int64(len(data)) > s.maxBytes {
		return nil, ErrTooLarge
	}
	if len(data) == 0 {
		return nil, ErrMissingTarball
	}
	return data, nil
}

// CheckName validates the name and that actor may publish under it.
func (s *Service) CheckName(ctx context.Context, actor, name string) error {
	if err := s.names.Validate(name); err != nil {
		return err
	}

	if org, scoped := orgdomain.ParseScope(name); scoped {
		err := s.authz.Authorize(ctx, actor, org, authorization.ObjectPack, authorization.ActionPackPublish)
		if errors.Is(err, authorization.ErrForbidden) {
			return ErrForbidden
		}
		return err
	}

	existing, err := s.packRepo.FindByName(ctx, s.db, name)
	if err != nil {
		return err
	}
	if existing != nil {
		if existing.Author != actor {
			return ErrForbidden
		}
		return nil
	}

	similar, err := s.packRepo.FindSimilar(ctx, s.db, FoldName(name))
	if err != nil {
		return err
	}
	for _, other := range similar {
		if other.Name != name && other.Author != actor {
			return ErrNameSquatting
		}
	}
	return nil
}

func (s *Service) resolveVersion(ctx context.Context, name, requested string) (string, error) {
	if strings.EqualFold(requested, AutoVersion) {
		return s.versions.NextVersion(ctx, name)
	}
	if !versiondomain.ValidVersion(requested) {
		return "", versiondomain.ErrInvalidVersion
	}
	return requested, nil
}

// Commit stores the tarball, upserts the pack and creates the version in one
// transaction, then queues the publish or update notification. The version
// row is inserted before the tarball is written so a losing race never
// overwrites the winner's blob.
func (s *Service) Commit(ctx context.Context, c Commit) (*Result, error) {
	if c.Manifest == nil {
		return nil, ErrMissingMetadata
	}
	name := c.Manifest.Name
	c.Manifest.Version = c.Version

	raw, err := c.Manifest.Encode()
	if err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}
	location, err := s.blobs.Location(name, c.Version)
	if err != nil {
		return nil, err
	}

	sum := sha256.Sum256(c.Tarball)
	integrity := "sha256-" + hex.EncodeToString(sum[:])
	size := int64(len(c.Tarball))

	var created bool
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		_, isNew, err := s.packs.WithTx(tx).Upsert(ctx, c.Author, c.Manifest.Metadata())
		if err != nil {
			return err
		}
		created = isNew

		if _, err := s.versions.WithTx(tx).Create(ctx, versiondomain.CreateRequest{
			PackName:   name,
			Version:    c.Version,
			Integrity:  integrity,
			TarballURL: location,
			Size:       size,
			Manifest:   raw,
			FileCount:  len(c.Manifest.Files),
			Changelog:  c.Changelog,
		}); err != nil {
			return err
		}

		if _, err := s.blobs.Put(ctx, name, c.Version, bytes.NewReader(c.Tarball)); err != nil {
			return fmt.Errorf("store tarball: %w", err)
		}
		return nil
	})
	if err != nil {
		if c.Source != SourceAPI {
			s.metrics.RecordPublish(ctx, c.Source, outcome(err))
		}
		return nil, err
	}

	event := webhookdomain.EventUpdate
	if created {
		event = webhookdomain.EventPublish
	}
	s.notify(webhookdomain.Job{
		Pack:    name,
		Event:   event,
		Version: c.Version,
		Data: map[string]any{
			"version":   c.Version,
			"integrity": integrity,
			"size":      size,
			"author":    c.Author,
		},
	})

	s.metrics.RecordPublish(ctx, c.Source, "success")
	s.log.Info("pack version published",
		zap.String("pack", name),
		zap.String("version", c.Version),
		zap.String("source", c.Source),
		zap.Bool("new_pack", created),
	)

	return &Result{
		Name:      name,
		Version:   c.Version,
		Integrity: integrity,
		Size:      size,
		Created:   created,
	}, nil
}

func (s *Service) notify(job webhookdomain.Job) {
	if s.queue == nil {
		return
	}
	s.queue.Enqueue(job)
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, versiondomain.ErrConflict):
		return "conflict"
	case errors.Is(err, ErrForbidden), errors.Is(err, ErrUnauthorized):
		return "denied"
	case errors.Is(err, ErrTooLarge):
		return "too_large"
	default:
		return "error"
	}
}
