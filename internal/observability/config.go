package observability

import (
	"os"
	"strconv"
	"strings"

	"github.com/smallbiznis/packhub/internal/config"
	"github.com/smallbiznis/packhub/internal/observability/logger"
	"github.com/smallbiznis/packhub/internal/observability/metrics"
	"github.com/smallbiznis/packhub/internal/observability/tracing"
)

const (
	defaultServiceName   = "packhub"
	defaultSamplingRatio = 0.2
)

// Config is the telemetry view of the process configuration. Environment
// variables override the values carried by config.Config.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64
}

func LoadConfig(cfg config.Config) Config {
	out := Config{
		ServiceName:          firstNonEmpty(cfg.AppName, defaultServiceName),
		Environment:          env("DEPLOYMENT_ENV").or(cfg.Environment),
		Version:              env("SERVICE_VERSION").or(cfg.AppVersion),
		LogLevel:             strings.ToLower(env("LOG_LEVEL").or("info")),
		LogFormat:            strings.ToLower(env("LOG_FORMAT").or("json")),
		OtelEnabled:          env("OTEL_ENABLED").boolean(false),
		OtelExporterEndpoint: env("OTEL_EXPORTER_OTLP_ENDPOINT").or(cfg.OTLPEndpoint),
		OtelExporterProtocol: normalizeProtocol(env("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL").or(env("OTEL_EXPORTER_OTLP_PROTOCOL").or("grpc"))),
	}

	ratio := env("OTEL_SAMPLING_RATIO").float(defaultSamplingRatio)
	if isDevEnv(out.Environment) && os.Getenv("OTEL_SAMPLING_RATIO") == "" {
		ratio = 1
	}
	out.OtelSamplingRatio = clampRatio(ratio)
	return out
}

// Debug is true at debug level and in development environments.
func (c Config) Debug() bool {
	return strings.EqualFold(strings.TrimSpace(c.LogLevel), "debug") || isDevEnv(c.Environment)
}

func (c Config) LoggerConfig() logger.Config {
	return logger.Config{
		ServiceName:         c.ServiceName,
		Environment:         c.Environment,
		Version:             c.Version,
		Level:               c.LogLevel,
		Format:              c.LogFormat,
		Debug:               c.Debug(),
		IncludeCaller:       true,
		IncludeStackOnError: c.Debug(),
	}
}

func (c Config) TracingConfig() tracing.Config {
	return tracing.Config{
		Enabled:          c.OtelEnabled,
		ServiceName:      c.ServiceName,
		ServiceVersion:   c.Version,
		Environment:      c.Environment,
		ExporterEndpoint: c.OtelExporterEndpoint,
		ExporterProtocol: c.OtelExporterProtocol,
		SamplingRatio:    c.OtelSamplingRatio,
	}
}

func (c Config) MetricsConfig() metrics.Config {
	return metrics.Config{
		Enabled:          c.OtelEnabled,
		ExporterEndpoint: c.OtelExporterEndpoint,
		ExporterProtocol: c.OtelExporterProtocol,
		ServiceName:      c.ServiceName,
		Environment:      c.Environment,
	}
}

func isDevEnv(environment string) bool {
	switch strings.ToLower(strings.TrimSpace(environment)) {
	case "dev", "development", "local", "test":
		return true
	}
	return false
}

// normalizeProtocol folds the OTLP protocol spellings onto grpc or http.
func normalizeProtocol(protocol string) string {
	switch strings.ToLower(strings.TrimSpace(protocol)) {
	case "http", "http/protobuf", "http/json":
		return "http"
	default:
		return "grpc"
	}
}

func clampRatio(r float64) float64 {
	switch {
	case r < 0:
		return 0
	case r > 1:
		return 1
	}
	return r
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

type envValue string

func env(key string) envValue {
	return envValue(strings.TrimSpace(os.Getenv(key)))
}

func (v envValue) or(def string) string {
	if v == "" {
		return strings.TrimSpace(def)
	}
	return string(v)
}

func (v envValue) boolean(def bool) bool {
	switch strings.ToLower(string(v)) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	}
	return def
}

func (v envValue) float(def float64) float64 {
	if v == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(string(v), 64)
	if err != nil {
		return def
	}
	return parsed
}
