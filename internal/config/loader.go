package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "codesense.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Logging.Level, "CODESENSE_LOG_LEVEL")
	setString(&cfg.Logging.Service, "CODESENSE_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "CODESENSE_LOG_ASYNC")

	setDuration(&cfg.LSP.RequestTimeout, "CODESENSE_LSP_REQUEST_TIMEOUT")
	setDuration(&cfg.LSP.ShutdownTimeout, "CODESENSE_LSP_SHUTDOWN_TIMEOUT")
	setDuration(&cfg.LSP.ConnectTimeout, "CODESENSE_LSP_CONNECT_TIMEOUT")
	setDuration(&cfg.LSP.QuietPeriod, "CODESENSE_LSP_QUIET_PERIOD")
	setDuration(&cfg.LSP.FallbackDelay, "CODESENSE_LSP_FALLBACK_DELAY")
	setDuration(&cfg.LSP.ReadyCeiling, "CODESENSE_LSP_READY_CEILING")
	setDuration(&cfg.LSP.ProbeInterval, "CODESENSE_LSP_PROBE_INTERVAL")
	setInt(&cfg.LSP.MaxDiagnostics, "CODESENSE_LSP_MAX_DIAGNOSTICS")

	setInt(&cfg.Cache.SymbolEntries, "CODESENSE_CACHE_SYMBOL_ENTRIES")
	setDuration(&cfg.Cache.SymbolTTL, "CODESENSE_CACHE_SYMBOL_TTL")
	setInt64(&cfg.Cache.L1MaxSizeMB, "CODESENSE_CACHE_L1_SIZE_MB")
	setDuration(&cfg.Cache.L1Expire, "CODESENSE_CACHE_L1_EXPIRE")
	setString(&cfg.Cache.L2Dir, "CODESENSE_CACHE_L2_DIR")
	setDuration(&cfg.Cache.ResponseTTL, "CODESENSE_CACHE_RESPONSE_TTL")

	setFloat64(&cfg.Rate.RequestsPerSecond, "CODESENSE_RATE_RPS")
	setFloat64(&cfg.Rate.Burst, "CODESENSE_RATE_BURST")

	setInt(&cfg.Workers.Width, "CODESENSE_WORKERS")

	setString(&cfg.Installer.Dir, "CODESENSE_INSTALLER_DIR")
	setInt(&cfg.Installer.MaxRetries, "CODESENSE_INSTALLER_MAX_RETRIES")
	setDuration(&cfg.Installer.BaseDelay, "CODESENSE_INSTALLER_BASE_DELAY")

	setString(&cfg.Telemetry.Endpoint, "CODESENSE_OTLP_ENDPOINT")

	setString(&cfg.MCP.HTTPAddr, "CODESENSE_MCP_HTTP_ADDR")
	setString(&cfg.MCP.APIKey, "CODESENSE_MCP_API_KEY")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.LSP.RequestTimeout <= 0 {
		return errors.New("lsp.request_timeout must be > 0")
	}
	if cfg.LSP.QuietPeriod <= 0 {
		return errors.New("lsp.quiet_period must be > 0")
	}
	if cfg.LSP.ReadyCeiling < cfg.LSP.FallbackDelay {
		return errors.New("lsp.ready_ceiling must be >= lsp.fallback_delay")
	}
	if cfg.Rate.RequestsPerSecond <= 0 {
		return errors.New("rate.requests_per_second must be > 0")
	}
	if cfg.Workers.Width < 1 {
		return errors.New("workers.width must be >= 1")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
