package config

import (
	"flag"
	"io"
)

// CLIFlags carries command line overrides. Nil pointers mean the flag was
// not set; CLI values win over both YAML and environment.
type CLIFlags struct {
	ConfigPath *string
	Root       *string
	LogLevel   *string
	OTLP       *string
}

// ParseFlags parses command line arguments into CLIFlags.
func ParseFlags(args []string) (CLIFlags, error) {
	fs := flag.NewFlagSet("codesense", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	configPath := fs.String("config", "", "path to YAML config file")
	fs.StringVar(configPath, "c", "", "path to YAML config file (shorthand)")
	root := fs.String("root", "", "project root directory")
	fs.StringVar(root, "r", "", "project root directory (shorthand)")
	logLevel := fs.String("log-level", "", "log level (debug, info, warn, error)")
	otlp := fs.String("otlp-endpoint", "", "OTLP gRPC endpoint for telemetry export")

	if err := fs.Parse(args); err != nil {
		return CLIFlags{}, err
	}

	flags := CLIFlags{}
	if *configPath != "" {
		flags.ConfigPath = configPath
	}
	if *root != "" {
		flags.Root = root
	}
	if *logLevel != "" {
		flags.LogLevel = logLevel
	}
	if *otlp != "" {
		flags.OTLP = otlp
	}
	return flags, nil
}

// LoadWithCLI loads configuration with CLI flags applied last. Returns the
// config and the resolved YAML path.
func LoadWithCLI(flags CLIFlags) (*Config, string, error) {
	path := DefaultConfigFile
	if flags.ConfigPath != nil {
		path = *flags.ConfigPath
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		return nil, "", err
	}

	applyCLI(cfg, flags)

	if err := validate(cfg); err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// applyCLI overlays set CLI flags onto cfg.
func applyCLI(cfg *Config, flags CLIFlags) {
	if flags.LogLevel != nil {
		cfg.Logging.Level = *flags.LogLevel
	}
	if flags.OTLP != nil {
		cfg.Telemetry.Endpoint = *flags.OTLP
	}
}
