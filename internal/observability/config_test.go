package observability

import (
	"testing"

	"github.com/smallbiznis/commissionhub/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestLoadConfigMapsApplicationConfig(t *testing.T) {
	cfg := LoadConfig(config.Config{
		AppVersion:   " 1.2.0 ",
		Environment:  "production",
		OTLPEndpoint: "collector:4317",
		Observability: config.ObservabilityConfig{
			LogLevel:          "warn",
			OtelEnabled:       true,
			OtelProtocol:      "http",
			OtelSamplingRatio: 0.5,
		},
	})

	assert.Equal(t, "commissionhub", cfg.ServiceName)
	assert.Equal(t, "1.2.0", cfg.Version)
	assert.False(t, cfg.Debug())
	assert.Equal(t, "collector:4317", cfg.tracingConfig().ExporterEndpoint)
	assert.Equal(t, "http", cfg.metricsConfig().ExporterProtocol)
	assert.False(t, cfg.loggerConfig().IncludeStackOnError)
}

func TestDebugInDevelopmentLikeEnvironments(t *testing.T) {
	assert.True(t, Config{Environment: "test"}.Debug())
	assert.True(t, Config{Environment: "production", LogLevel: "DEBUG"}.Debug())
	assert.False(t, Config{Environment: "staging"}.Debug())
}
