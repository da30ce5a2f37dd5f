// Package config provides hierarchical configuration loading for CodeSense.
// Precedence: defaults < YAML file < environment variables.
package config

import "time"

// Config holds all runtime configuration for the CodeSense service.
type Config struct {
	Logging   Logging   `yaml:"logging"`
	LSP       LSP       `yaml:"lsp"`
	Cache     Cache     `yaml:"cache"`
	Rate      Rate      `yaml:"rate"`
	Workers   Workers   `yaml:"workers"`
	Installer Installer `yaml:"installer"`
	Telemetry Telemetry `yaml:"telemetry"`
	MCP       MCP       `yaml:"mcp"`
}

// MCP holds the protocol surface configuration. With an empty HTTPAddr the
// server speaks stdio only.
type MCP struct {
	HTTPAddr string `yaml:"http_addr"`
	APIKey   string `yaml:"api_key"`
}

// Logging holds structured logging configuration.
type Logging struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
	Async   bool   `yaml:"async"`
}

// LSP holds language server lifecycle and request configuration.
type LSP struct {
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout"` // tcp transports
	QuietPeriod     time.Duration `yaml:"quiet_period"`
	FallbackDelay   time.Duration `yaml:"fallback_delay"`
	ReadyCeiling    time.Duration `yaml:"ready_ceiling"`
	ProbeInterval   time.Duration `yaml:"probe_interval"`
	MaxDiagnostics  int           `yaml:"max_diagnostics"` // per file, 0 = unbounded
}

// Cache holds symbol and response cache configuration.
type Cache struct {
	SymbolEntries int           `yaml:"symbol_entries"`
	SymbolTTL     time.Duration `yaml:"symbol_ttl"`
	L1MaxSizeMB   int64         `yaml:"l1_max_size_mb"`
	L1Expire      time.Duration `yaml:"l1_expire"`
	L2Dir         string        `yaml:"l2_dir"` // empty disables the disk tier
	ResponseTTL   time.Duration `yaml:"response_ttl"`
}

// Rate holds the per-session request rate limiter configuration.
type Rate struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             float64 `yaml:"burst"` // 0 = 2x rate
}

// Workers holds the shared worker pool configuration.
type Workers struct {
	Width int `yaml:"width"`
}

// Installer holds language server download configuration.
type Installer struct {
	Dir        string        `yaml:"dir"`
	MaxRetries int           `yaml:"max_retries"`
	BaseDelay  time.Duration `yaml:"base_delay"`
}

// Telemetry holds OpenTelemetry export configuration. An empty endpoint
// leaves export disabled.
type Telemetry struct {
	Endpoint string `yaml:"endpoint"`
}

// Defaults returns a Config with sensible default values for local use.
func Defaults() Config {
	return Config{
		Logging: Logging{
			Level:   "info",
			Service: "codesense",
		},
		LSP: LSP{
			RequestTimeout:  15 * time.Second,
			ShutdownTimeout: 5 * time.Second,
			ConnectTimeout:  10 * time.Second,
			QuietPeriod:     time.Second,
			FallbackDelay:   5 * time.Second,
			ReadyCeiling:    30 * time.Second,
			ProbeInterval:   250 * time.Millisecond,
			MaxDiagnostics:  100,
		},
		Cache: Cache{
			SymbolEntries: 2048,
			SymbolTTL:     5 * time.Minute,
			L1MaxSizeMB:   64,
			L1Expire:      time.Minute,
			ResponseTTL:   2 * time.Minute,
		},
		Rate: Rate{
			RequestsPerSecond: 20,
		},
		Workers: Workers{
			Width: 10,
		},
		Installer: Installer{
			Dir:        ".codesense/servers",
			MaxRetries: 3,
			BaseDelay:  500 * time.Millisecond,
		},
	}
}
