package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// EnvConfigPath names the environment variable consulted by Discover.
const EnvConfigPath = "JOBCLUSTER_CONFIG"

// Load reads and parses configuration from a file. Values missing from the file
// keep their Defaults. Relative paths in the file are resolved against the
// directory holding it.
func Load(configPath string) (*Config, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	resolveRelativePaths(cfg, filepath.Dir(absPath))

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Parse decodes YAML configuration on top of Defaults. It performs env
// interpolation but no path resolution or validation.
func Parse(data []byte) (*Config, error) {
	cfg := Defaults()
	interpolated := interpolateEnv(string(data))
	if err := yaml.Unmarshal([]byte(interpolated), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return cfg, nil
}

// Discover finds the config file: $JOBCLUSTER_CONFIG first, then ./jobcluster.yaml.
func Discover() (string, error) {
	if p := os.Getenv(EnvConfigPath); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	local := "./jobcluster.yaml"
	if _, err := os.Stat(local); err == nil {
		return local, nil
	}

	return "", fmt.Errorf("no config found (checked: $%s, ./jobcluster.yaml)", EnvConfigPath)
}

func resolveRelativePaths(cfg *Config, baseDir string) {
	for _, p := range []*string{
		&cfg.Execution.JobGraph,
		&cfg.State.Path,
		&cfg.HA.LockDir,
		&cfg.Artifacts.Dir,
		&cfg.History.ArchiveDir,
	} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(baseDir, *p)
		}
	}
}

func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]

		if value, exists := os.LookupEnv(varName); exists {
			return value
		}

		// If not found, leave the placeholder (will fail validation if required)
		return match
	})
}

// validate performs basic validation on the configuration.
// execution.mode is deliberately left alone: the dispatcher bootstrap resolves it.
func validate(cfg *Config) error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[cfg.Service.LogLevel] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}
	if cfg.Service.LogFormat != "json" && cfg.Service.LogFormat != "text" {
		return fmt.Errorf("service.log_format must be json or text (got %q)", cfg.Service.LogFormat)
	}

	if cfg.Execution.JobGraph == "" {
		return fmt.Errorf("execution.job_graph is required")
	}

	if cfg.State.Path == "" {
		return fmt.Errorf("state.path is required")
	}

	if cfg.HA.LockDir == "" {
		return fmt.Errorf("high_availability.lock_dir is required")
	}
	if cfg.HA.CheckInterval <= 0 {
		return fmt.Errorf("high_availability.check_interval must be positive")
	}

	if cfg.Heartbeat.Interval <= 0 {
		return fmt.Errorf("heartbeat.interval must be positive")
	}
	if cfg.Heartbeat.Timeout <= cfg.Heartbeat.Interval {
		return fmt.Errorf("heartbeat.timeout (%s) must exceed heartbeat.interval (%s)", cfg.Heartbeat.Timeout, cfg.Heartbeat.Interval)
	}

	if cfg.RPC.Enabled {
		if cfg.RPC.Listen == "" {
			return fmt.Errorf("rpc.listen is required when rpc is enabled")
		}
		if envVarPattern.MatchString(cfg.RPC.APIKey) {
			matches := envVarPattern.FindStringSubmatch(cfg.RPC.APIKey)
			return fmt.Errorf("rpc.api_key: environment variable ${%s} is not set", matches[1])
		}
	}

	if cfg.Metrics.Enabled && cfg.Metrics.QueryPath != "" && cfg.Metrics.QueryPath[0] != '/' {
		return fmt.Errorf("metrics.query_path must start with '/' (got %q)", cfg.Metrics.QueryPath)
	}

	if cfg.Artifacts.Dir == "" {
		return fmt.Errorf("artifacts.dir is required")
	}

	if cfg.Resources.Slots <= 0 {
		return fmt.Errorf("resources.slots must be positive")
	}

	return nil
}
