// Attune - Customer Interaction Ingestion and Sentiment Analytics
// Copyright 2026 M. Reyes (attune-cx)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/attune-cx/attune

// Package config defines the service configuration and its layered loader.
//
// Configuration is resolved in three layers, later layers overriding earlier:
//  1. struct defaults
//  2. optional YAML file (CONFIG_PATH or the default search paths)
//  3. environment variables with the ATTUNE_ prefix, "__" for nesting
//     (ATTUNE_SERVER__PORT=8080 -> server.port)
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for the service.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Logging   LoggingConfig   `koanf:"logging"`
	Security  SecurityConfig  `koanf:"security"`
	RateLimit RateLimitConfig `koanf:"rate_limit"`
	Database  DatabaseConfig  `koanf:"database"`
	NATS      NATSConfig      `koanf:"nats"`
	Dispatch  DispatchConfig  `koanf:"dispatch"`
	Scoring   ScoringConfig   `koanf:"scoring"`
	Ingest    IngestConfig    `koanf:"ingest"`
	WebSocket WebSocketConfig `koanf:"websocket"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	CORSOrigins     []string      `koanf:"cors_origins"`
	TrustedProxies  []string      `koanf:"trusted_proxies"`
}

// Addr returns the listen address in host:port form.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// SecurityConfig holds token signing and verification-cache settings.
type SecurityConfig struct {
	// JWTSecret signs bearer tokens (HS256). Minimum 32 characters.
	JWTSecret string `koanf:"jwt_secret"`

	// TokenTTL is the lifetime of issued tokens.
	TokenTTL time.Duration `koanf:"token_ttl"`

	// TokenCacheTTL bounds how long a verification result may be trusted.
	// The effective cache lifetime of an entry is the smaller of this and
	// the token's own remaining validity, so revocations are observed no
	// later than this bound.
	TokenCacheTTL time.Duration `koanf:"token_cache_ttl"`

	// Bootstrap admin account, created at startup when the email does
	// not exist yet. Leave both empty to skip seeding.
	BootstrapAdminEmail    string `koanf:"bootstrap_admin_email"`
	BootstrapAdminPassword string `koanf:"bootstrap_admin_password"`
	BootstrapTenantID      string `koanf:"bootstrap_tenant_id"`
}

// LimitPolicy selects the behavior of a rate-limit scope when the
// coordination store is unreachable.
type LimitPolicy string

const (
	// FailOpen admits the request when the store is unreachable.
	FailOpen LimitPolicy = "open"

	// FailClosed rejects the request when the store is unreachable.
	FailClosed LimitPolicy = "closed"
)

// ScopeLimitConfig configures one rate-limit scope.
type ScopeLimitConfig struct {
	Requests int           `koanf:"requests"`
	Window   time.Duration `koanf:"window"`
	Policy   LimitPolicy   `koanf:"policy"`
}

// RateLimitConfig configures the three independent limiter scopes.
// Each scope uses its own counter keyspace so bursts in one scope cannot
// starve another.
type RateLimitConfig struct {
	Disabled bool `koanf:"disabled"`

	// Global is the coarse per-source-address ceiling.
	Global ScopeLimitConfig `koanf:"global"`

	// Principal is the per-authenticated-principal ceiling.
	Principal ScopeLimitConfig `koanf:"principal"`

	// Auth is the strict low ceiling for authentication endpoints.
	Auth ScopeLimitConfig `koanf:"auth"`
}

// DatabaseConfig holds DuckDB settings.
type DatabaseConfig struct {
	Path      string `koanf:"path"`
	MaxMemory string `koanf:"max_memory"`
	// Threads is the DuckDB thread count; 0 means runtime.NumCPU().
	Threads int `koanf:"threads"`

	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
}

// NATSConfig holds the coordination-store and queue transport settings.
type NATSConfig struct {
	URL            string        `koanf:"url"`
	EmbeddedServer bool          `koanf:"embedded_server"`
	StoreDir       string        `koanf:"store_dir"`
	MaxReconnects  int           `koanf:"max_reconnects"`
	ReconnectWait  time.Duration `koanf:"reconnect_wait"`

	// StreamName is the JetStream stream backing the analysis job queue.
	StreamName string `koanf:"stream_name"`

	// KV bucket names for the coordination keyspaces.
	RateLimitBucket  string `koanf:"rate_limit_bucket"`
	TokenCacheBucket string `koanf:"token_cache_bucket"`
}

// DispatchConfig holds the async job dispatcher settings.
type DispatchConfig struct {
	RetryMaxRetries      int           `koanf:"retry_max_retries"`
	RetryInitialInterval time.Duration `koanf:"retry_initial_interval"`
	RetryMaxInterval     time.Duration `koanf:"retry_max_interval"`
	RetryMultiplier      float64       `koanf:"retry_multiplier"`

	// BatchThrottlePerSecond caps batch-lane consumption so realtime jobs
	// keep their latency under load. 0 disables the throttle.
	BatchThrottlePerSecond int64 `koanf:"batch_throttle_per_second"`

	PoisonTopic  string        `koanf:"poison_topic"`
	CloseTimeout time.Duration `koanf:"close_timeout"`

	// DeadLetterPath is the badger directory for the inspection set.
	DeadLetterPath string `koanf:"dead_letter_path"`
}

// ScoringConfig holds the external sentiment-service client settings.
type ScoringConfig struct {
	URL     string        `koanf:"url"`
	Timeout time.Duration `koanf:"timeout"`

	// Circuit breaker settings.
	BreakerMaxFailures uint32        `koanf:"breaker_max_failures"`
	BreakerOpenFor     time.Duration `koanf:"breaker_open_for"`
}

// IngestConfig holds ingestion workflow settings.
type IngestConfig struct {
	// ChunkSize is the batch coordinator's transaction group size.
	ChunkSize int `koanf:"chunk_size"`

	// MaxBatchItems rejects oversized batch requests outright.
	MaxBatchItems int `koanf:"max_batch_items"`
}

// WebSocketConfig holds fan-out hub settings.
type WebSocketConfig struct {
	// SendBuffer is the per-client buffered channel size. A full buffer
	// drops the client rather than blocking the publisher.
	SendBuffer int `koanf:"send_buffer"`

	// UpgradesPerMinute guards the upgrade endpoint in-process.
	UpgradesPerMinute int `koanf:"upgrades_per_minute"`
}

// Validate checks configuration invariants that cannot be expressed as
// defaults. It is called once after loading.
func (c *Config) Validate() error {
	if len(c.Security.JWTSecret) < 32 {
		return fmt.Errorf("security.jwt_secret must be at least 32 characters")
	}
	if c.Security.TokenCacheTTL <= 0 {
		return fmt.Errorf("security.token_cache_ttl must be positive")
	}
	if c.Ingest.ChunkSize <= 0 {
		return fmt.Errorf("ingest.chunk_size must be positive")
	}
	for _, scope := range []struct {
		name string
		cfg  ScopeLimitConfig
	}{
		{"rate_limit.global", c.RateLimit.Global},
		{"rate_limit.principal", c.RateLimit.Principal},
		{"rate_limit.auth", c.RateLimit.Auth},
	} {
		if scope.cfg.Requests <= 0 || scope.cfg.Window <= 0 {
			return fmt.Errorf("%s: requests and window must be positive", scope.name)
		}
		if scope.cfg.Policy != FailOpen && scope.cfg.Policy != FailClosed {
			return fmt.Errorf("%s: policy must be %q or %q", scope.name, FailOpen, FailClosed)
		}
	}
	if c.Dispatch.RetryMaxRetries < 0 {
		return fmt.Errorf("dispatch.retry_max_retries must not be negative")
	}
	return nil
}
