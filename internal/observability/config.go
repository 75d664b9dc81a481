package observability

import (
	"strings"

	"github.com/smallbiznis/commissionhub/internal/config"
)

// Config is the observability slice of the application config.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel              string
	LogFormat             string
	LogSamplingInitial    int
	LogSamplingThereafter int

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64
}

func LoadConfig(cfg config.Config) Config {
	obs := cfg.Observability
	serviceName := strings.TrimSpace(cfg.AppName)
	if serviceName == "" {
		serviceName = "commissionhub"
	}

	return Config{
		ServiceName:           serviceName,
		Environment:           strings.TrimSpace(cfg.Environment),
		Version:               strings.TrimSpace(cfg.AppVersion),
		LogLevel:              obs.LogLevel,
		LogFormat:             obs.LogFormat,
		LogSamplingInitial:    obs.LogSamplingInitial,
		LogSamplingThereafter: obs.LogSamplingThereafter,
		OtelEnabled:           obs.OtelEnabled,
		OtelExporterEndpoint:  strings.TrimSpace(cfg.OTLPEndpoint),
		OtelExporterProtocol:  obs.OtelProtocol,
		OtelSamplingRatio:     obs.OtelSamplingRatio,
	}
}

// Debug is true for debug logging or any development-like environment.
func (c Config) Debug() bool {
	if strings.EqualFold(strings.TrimSpace(c.LogLevel), "debug") {
		return true
	}
	switch strings.ToLower(c.Environment) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}
