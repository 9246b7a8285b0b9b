package blobstore

import (
	"github.com/smallbiznis/packhub/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("blobstore",
	fx.Provide(func(cfg config.Config) (Store, error) {
		return NewOsStore(cfg.Blob.RootDir)
	}),
)
