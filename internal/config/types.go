package config

import "time"

// Config represents the complete jobcluster configuration.
type Config struct {
	Service   ServiceConfig   `yaml:"service"`
	Execution ExecutionConfig `yaml:"execution"`
	State     StateConfig     `yaml:"state"`
	HA        HAConfig        `yaml:"high_availability"`
	Heartbeat HeartbeatConfig `yaml:"heartbeat"`
	RPC       RPCConfig       `yaml:"rpc"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Artifacts ArtifactsConfig `yaml:"artifacts"`
	History   HistoryConfig   `yaml:"history"`
	Resources ResourcesConfig `yaml:"resources"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name      string `yaml:"name"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// ExecutionConfig selects the job to run and what happens once it is done.
type ExecutionConfig struct {
	// Mode is the raw execution mode string. It is resolved (and rejected if
	// invalid) at bootstrap, not here.
	Mode string `yaml:"mode"`
	// JobGraph is the path of the job graph file.
	JobGraph string `yaml:"job_graph"`
	// JobGraphChecksum is an optional BLAKE3 hex digest of the job graph file.
	JobGraphChecksum string `yaml:"job_graph_checksum,omitempty"`
}

// StateConfig defines state storage settings.
type StateConfig struct {
	Path string `yaml:"path"`
}

// HAConfig defines leader election settings.
type HAConfig struct {
	LockDir       string        `yaml:"lock_dir"`
	CheckInterval time.Duration `yaml:"check_interval"`
}

// HeartbeatConfig defines heartbeat settings between dispatcher and runner.
type HeartbeatConfig struct {
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
}

// RPCConfig defines the dispatcher HTTP gateway.
type RPCConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
	// APIKey, when set, is required as a bearer token on every route but /healthz.
	APIKey string `yaml:"api_key,omitempty"`
}

// MetricsConfig defines the metric group settings.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	// QueryPath is the HTTP path metrics are served on. Empty disables it.
	QueryPath string `yaml:"query_path"`
}

// ArtifactsConfig defines where job artifacts are stored.
type ArtifactsConfig struct {
	Dir string `yaml:"dir"`
}

// HistoryConfig defines where finished jobs are archived for the history server.
// An empty ArchiveDir disables history archiving.
type HistoryConfig struct {
	ArchiveDir string `yaml:"archive_dir,omitempty"`
}

// ResourcesConfig sizes the local resource broker.
type ResourcesConfig struct {
	Slots int `yaml:"slots"`
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:      "jobcluster",
			LogLevel:  "info",
			LogFormat: "json",
		},
		Execution: ExecutionConfig{
			Mode: "NORMAL",
		},
		State: StateConfig{
			Path: "./data/state.db",
		},
		HA: HAConfig{
			LockDir:       "./data/locks",
			CheckInterval: 5 * time.Second,
		},
		Heartbeat: HeartbeatConfig{
			Interval: 10 * time.Second,
			Timeout:  50 * time.Second,
		},
		RPC: RPCConfig{
			Enabled: true,
			Listen:  "127.0.0.1:8081",
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			QueryPath: "/metrics",
		},
		Artifacts: ArtifactsConfig{
			Dir: "./data/artifacts",
		},
		Resources: ResourcesConfig{
			Slots: 1,
		},
	}
}
