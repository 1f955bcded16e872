package observability

import (
	"strings"

	"github.com/smallbiznis/verdant/internal/config"
)

// Config is the resolved observability setup shared by the logger, tracer
// and meter providers.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string

	TracingEnabled bool
	MetricsEnabled bool
	Endpoint       string
	Protocol       string
	SamplingRatio  float64
}

func LoadConfig(cfg config.Config) Config {
	serviceName := strings.TrimSpace(cfg.AppName)
	if serviceName == "" {
		serviceName = "verdant"
	}
	obs := cfg.Observability

	ratio := obs.SamplingRatio
	if ratio <= 0 || ratio > 1 {
		ratio = 1
	}

	return Config{
		ServiceName:    serviceName,
		Environment:    strings.TrimSpace(cfg.Environment),
		Version:        strings.TrimSpace(cfg.AppVersion),
		LogLevel:       obs.LogLevel,
		LogFormat:      obs.LogFormat,
		TracingEnabled: obs.TracingEnabled && obs.OTLPEndpoint != "",
		MetricsEnabled: obs.MetricsEnabled && obs.OTLPEndpoint != "",
		Endpoint:       obs.OTLPEndpoint,
		Protocol:       obs.OTLPProtocol,
		SamplingRatio:  ratio,
	}
}

// Debug turns on development logging: console output, stack traces and
// gin debug mode.
func (c Config) Debug() bool {
	if c.LogLevel == "debug" {
		return true
	}
	switch strings.ToLower(c.Environment) {
	case "dev", "development", "local", "test":
		return true
	}
	return false
}
