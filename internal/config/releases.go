package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// ReleaseMapping binds a source repository (owner/name) to the pack its releases publish.
type ReleaseMapping struct {
	Repository string `mapstructure:"repository"`
	Pack       string `mapstructure:"pack"`
}

type ReleaseMappingHolder struct {
	current atomic.Value // holds map[string]string
}

// NewReleaseMappingHolder reads releases.yml and keeps it hot reloaded.
// A missing file yields an empty mapping, so every release event is ignored.
func NewReleaseMappingHolder(cfg Config, log *zap.Logger) (*ReleaseMappingHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("config.releases")

	v := viper.New()
	if cfg.Release.MappingFile != "" {
		v.SetConfigFile(cfg.Release.MappingFile)
	} else {
		v.SetConfigName("releases")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/packhub")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("PACKHUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	holder := &ReleaseMappingHolder{}
	holder.current.Store(map[string]string{})

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			log.Info("release mapping file not found, auto-publish disabled")
			return holder, nil
		}
		return nil, err
	}

	mapping, err := loadReleaseMappings(v)
	if err != nil {
		return nil, err
	}
	holder.current.Store(mapping)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := loadReleaseMappings(v)
		if err != nil {
			log.Warn("release mapping reload ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("release mapping reloaded", zap.String("file", e.Name), zap.Int("repositories", len(updated)))
	})

	return holder, nil
}

// NewStaticReleaseMapping builds a holder that never reloads.
func NewStaticReleaseMapping(items ...ReleaseMapping) *ReleaseMappingHolder {
	holder := &ReleaseMappingHolder{}
	mapping := make(map[string]string, len(items))
	for _, item := range items {
		mapping[normalizeRepository(item.Repository)] = strings.TrimSpace(item.Pack)
	}
	holder.current.Store(mapping)
	return holder
}

// PackFor returns the pack mapped to repository, if any.
func (h *ReleaseMappingHolder) PackFor(repository string) (string, bool) {
	if h == nil {
		return "", false
	}
	mapping, _ := h.current.Load().(map[string]string)
	pack, ok := mapping[normalizeRepository(repository)]
	return pack, ok && pack != ""
}

func loadReleaseMappings(v *viper.Viper) (map[string]string, error) {
	var items []ReleaseMapping
	if err := v.UnmarshalKey("releases", &items); err != nil {
		return nil, err
	}
	mapping := make(map[string]string, len(items))
	for i, item := range items {
		repo := normalizeRepository(item.Repository)
		pack := strings.TrimSpace(item.Pack)
		if repo == "" || pack == "" {
			return nil, fmt.Errorf("releases[%d]: repository and pack are required", i)
		}
		mapping[repo] = pack
	}
	return mapping, nil
}

func normalizeRepository(repo string) string {
	return strings.ToLower(strings.TrimSpace(repo))
}
