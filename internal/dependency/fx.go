package dependency

import "go.uber.org/fx"

var Module = fx.Module("dependency.service",
	fx.Provide(NewService),
)
