package webhook

import (
	"github.com/smallbiznis/packhub/internal/webhook/repository"
	"github.com/smallbiznis/packhub/internal/webhook/service"
	"go.uber.org/fx"
)

var Module = fx.Module("webhook.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
	fx.Provide(provideQueue),
)
