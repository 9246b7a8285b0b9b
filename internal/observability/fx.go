package observability

import (
	"github.com/smallbiznis/packhub/internal/observability/logger"
	"github.com/smallbiznis/packhub/internal/observability/metrics"
	"github.com/smallbiznis/packhub/internal/observability/tracing"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
)

var Module = fx.Module("observability",
	fx.Provide(LoadConfig),
	fx.Provide(
		Config.LoggerConfig,
		Config.TracingConfig,
		Config.MetricsConfig,
	),
	fx.Provide(logger.New),
	fx.Provide(tracing.NewProvider),
	fx.Provide(
		metrics.NewProvider,
		metrics.New,
		metrics.NewHTTPMetrics,
	),
	fx.Invoke(func(*sdktrace.TracerProvider) {}),
)
