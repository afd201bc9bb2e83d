// Attune - Customer Interaction Ingestion and Sentiment Analytics
// Copyright 2026 M. Reyes (attune-cx)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/attune-cx/attune

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order
// of priority. The first file found is used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/attune/config.yaml",
	"/etc/attune/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config
// file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// envPrefix is the prefix for configuration environment variables.
const envPrefix = "ATTUNE_"

// defaultConfig returns a Config with all sensible default values. Defaults
// are applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8420,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			CORSOrigins:     []string{},
			TrustedProxies:  []string{},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
		Security: SecurityConfig{
			JWTSecret:              "",
			TokenTTL:               24 * time.Hour,
			TokenCacheTTL:          5 * time.Minute,
			BootstrapAdminEmail:    "",
			BootstrapAdminPassword: "",
			BootstrapTenantID:      "default",
		},
		RateLimit: RateLimitConfig{
			Disabled: false,
			// Availability matters most at the coarse edge; safety matters
			// most on the credential path.
			Global:    ScopeLimitConfig{Requests: 300, Window: time.Minute, Policy: FailOpen},
			Principal: ScopeLimitConfig{Requests: 120, Window: time.Minute, Policy: FailOpen},
			Auth:      ScopeLimitConfig{Requests: 5, Window: time.Minute, Policy: FailClosed},
		},
		Database: DatabaseConfig{
			Path:            "/data/attune.duckdb",
			MaxMemory:       "2GB",
			Threads:         0,
			MaxOpenConns:    8,
			MaxIdleConns:    4,
			ConnMaxLifetime: time.Hour,
		},
		NATS: NATSConfig{
			URL:              "nats://127.0.0.1:4222",
			EmbeddedServer:   true,
			StoreDir:         "/data/nats/jetstream",
			MaxReconnects:    10,
			ReconnectWait:    2 * time.Second,
			StreamName:       "ANALYSIS_JOBS",
			RateLimitBucket:  "ratelimit",
			TokenCacheBucket: "tokencache",
		},
		Dispatch: DispatchConfig{
			RetryMaxRetries:        3,
			RetryInitialInterval:   500 * time.Millisecond,
			RetryMaxInterval:       time.Minute,
			RetryMultiplier:        2.0,
			BatchThrottlePerSecond: 50,
			PoisonTopic:            "jobs.analysis.poison",
			CloseTimeout:           30 * time.Second,
			DeadLetterPath:         "/data/attune-deadletter",
		},
		Scoring: ScoringConfig{
			URL:                "http://127.0.0.1:8500",
			Timeout:            10 * time.Second,
			BreakerMaxFailures: 5,
			BreakerOpenFor:     30 * time.Second,
		},
		Ingest: IngestConfig{
			ChunkSize:     100,
			MaxBatchItems: 10000,
		},
		WebSocket: WebSocketConfig{
			SendBuffer:        256,
			UpgradesPerMinute: 30,
		},
	}
}

// Load resolves the configuration from defaults, an optional YAML file, and
// environment variables, then validates it.
func Load() (*Config, error) {
	k := koanf.New(".")

	// Layer 1: struct defaults
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	// Layer 2: config file (optional)
	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	// Layer 3: environment variables (highest priority)
	// ATTUNE_SERVER__PORT=8080 -> server.port
	envProvider := env.Provider(envPrefix, ".", func(key string) string {
		key = strings.TrimPrefix(key, envPrefix)
		return strings.ReplaceAll(strings.ToLower(key), "__", ".")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// findConfigFile returns the first existing config file path, honoring the
// CONFIG_PATH override. Empty string means no file layer.
func findConfigFile() string {
	if path := os.Getenv(ConfigPathEnvVar); path != "" {
		return path
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
