package observability

import (
	"testing"

	"github.com/smallbiznis/packhub/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("OTEL_ENABLED", "")
	t.Setenv("OTEL_SAMPLING_RATIO", "")
	t.Setenv("DEPLOYMENT_ENV", "")
	t.Setenv("OTEL_EXPORTER_OTLP_PROTOCOL", "")
	t.Setenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL", "")

	cfg := LoadConfig(config.Config{Environment: "production", AppVersion: "1.2.3"})
	assert.Equal(t, "packhub", cfg.ServiceName)
	assert.Equal(t, "1.2.3", cfg.Version)
	assert.False(t, cfg.OtelEnabled)
	assert.False(t, cfg.Debug())
	assert.Equal(t, "grpc", cfg.OtelExporterProtocol)
	assert.InDelta(t, 0.2, cfg.OtelSamplingRatio, 1e-9)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("DEPLOYMENT_ENV", "development")
	t.Setenv("OTEL_ENABLED", "yes")
	t.Setenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")
	t.Setenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL", "http/protobuf")
	t.Setenv("OTEL_SAMPLING_RATIO", "")

	cfg := LoadConfig(config.Config{AppName: "registry", Environment: "production"})
	require.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "registry", cfg.ServiceName)
	assert.True(t, cfg.OtelEnabled)
	assert.Equal(t, "http", cfg.OtelExporterProtocol)
	assert.InDelta(t, 1.0, cfg.OtelSamplingRatio, 1e-9)
	assert.True(t, cfg.Debug())
}

func TestSamplingRatioIsClamped(t *testing.T) {
	t.Setenv("DEPLOYMENT_ENV", "")
	t.Setenv("OTEL_SAMPLING_RATIO", "7")

	cfg := LoadConfig(config.Config{Environment: "production"})
	assert.InDelta(t, 1.0, cfg.OtelSamplingRatio, 1e-9)
}

func TestDerivedConfigs(t *testing.T) {
	cfg := Config{ServiceName: "packhub", Environment: "test", LogLevel: "info", OtelExporterProtocol: "http"}

	assert.True(t, cfg.LoggerConfig().IncludeStackOnError)
	assert.Equal(t, "http", cfg.TracingConfig().ExporterProtocol)
	assert.Equal(t, "packhub", cfg.MetricsConfig().ServiceName)
}
