package publish

import "go.uber.org/fx"

var Module = fx.Module("publish.service",
	fx.Provide(NewService),
)
