package version

import (
	"github.com/smallbiznis/packhub/internal/version/repository"
	"github.com/smallbiznis/packhub/internal/version/service"
	"go.uber.org/fx"
)

var Module = fx.Module("version.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
