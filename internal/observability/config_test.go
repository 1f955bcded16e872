package observability

import (
	"testing"

	"github.com/smallbiznis/verdant/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestLoadConfigRequiresEndpointForExport(t *testing.T) {
	cfg := LoadConfig(config.Config{
		Environment: "production",
		Observability: config.ObservabilityConfig{
			TracingEnabled: true,
			MetricsEnabled: true,
			SamplingRatio:  3,
		},
	})

	assert.Equal(t, "verdant", cfg.ServiceName)
	assert.False(t, cfg.TracingEnabled)
	assert.False(t, cfg.MetricsEnabled)
	assert.Equal(t, 1.0, cfg.SamplingRatio)
	assert.False(t, cfg.Debug())
}

func TestLoadConfigExportsWithEndpoint(t *testing.T) {
	cfg := LoadConfig(config.Config{
		AppName:     "verdant-api",
		Environment: "development",
		Observability: config.ObservabilityConfig{
			TracingEnabled: true,
			OTLPEndpoint:   "collector:4317",
			OTLPProtocol:   "grpc",
			SamplingRatio:  0.25,
		},
	})

	assert.Equal(t, "verdant-api", cfg.ServiceName)
	assert.True(t, cfg.TracingEnabled)
	assert.False(t, cfg.MetricsEnabled)
	assert.Equal(t, 0.25, cfg.SamplingRatio)
	assert.True(t, cfg.Debug())
}
