package config

import (
	"time"

	"github.com/haasonsaas/textgen/internal/observability"
)

// ObservabilityConfig configures metrics and tracing.
type ObservabilityConfig struct {
	// Metrics enables the Prometheus registry and the /metrics endpoint.
	Metrics bool `yaml:"metrics"`

	Tracing observability.TraceConfig `yaml:"tracing"`
}

// ServerConfig configures `textgen serve`.
type ServerConfig struct {
	// Addr is the listen address. Default: ":8080".
	Addr string `yaml:"addr"`

	// RequestTimeout bounds a single /v1/generate call. Zero means no limit
	// beyond the client's own.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// ShutdownTimeout bounds graceful shutdown. Default: 10s.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxBodyBytes caps request bodies. Default: 4MB.
	MaxBodyBytes int64 `yaml:"max_body_bytes"`
}
