package release

import "go.uber.org/fx"

var Module = fx.Module("release.service",
	fx.Provide(NewService),
)
