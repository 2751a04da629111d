package config

// ServerConfig contains listener and dispatch loop settings.
type ServerConfig struct {
	Host string `yaml:"host" json:"host"`
	Port int    `yaml:"port" json:"port"`
	// MaxRequests caps in-flight requests; queries beyond it are dropped.
	MaxRequests int `yaml:"max_requests" json:"max_requests"`
	// ServfailOnError answers SERVFAIL when forwarding fails.
	ServfailOnError bool `yaml:"servfail_on_error" json:"servfail_on_error"`
	// PollInterval bounds how long the loop sleeps before checking for shutdown (e.g. "100ms").
	PollInterval string `yaml:"poll_interval" json:"poll_interval"`
}

// UpstreamConfig contains the upstream resolver settings.
type UpstreamConfig struct {
	Server   string `yaml:"server" json:"server"`       // "ip:port", port defaults to 53
	Timeout  string `yaml:"timeout" json:"timeout"`     // Per-request deadline (e.g. "3s")
	RecvSize int    `yaml:"recv_size" json:"recv_size"` // Upstream receive buffer in bytes
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level            string            `yaml:"level" json:"level"`
	Structured       bool              `yaml:"structured" json:"structured"`
	StructuredFormat string            `yaml:"structured_format" json:"structured_format"`
	IncludePID       bool              `yaml:"include_pid" json:"include_pid"`
	ExtraFields      map[string]string `yaml:"extra_fields" json:"extra_fields,omitempty"`
}

// APIConfig contains management API settings.
//
// APIKey is a secret and is redacted wherever the config is displayed.
type APIConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Host    string `yaml:"host" json:"host"`
	Port    int    `yaml:"port" json:"port"`
	APIKey  string `yaml:"api_key" json:"api_key,omitempty"`
}

// QueryLogConfig controls the SQLite query log.
type QueryLogConfig struct {
	Enabled       bool   `yaml:"enabled" json:"enabled"`
	Path          string `yaml:"path" json:"path"`
	Buffer        int    `yaml:"buffer" json:"buffer"`                 // Pending entries before new ones are dropped
	Retention     string `yaml:"retention" json:"retention"`           // Age after which rows are pruned (e.g. "24h")
	PruneSchedule string `yaml:"prune_schedule" json:"prune_schedule"` // Cron spec with seconds field
}

// Config is the root configuration structure.
type Config struct {
	Server   ServerConfig   `yaml:"server" json:"server"`
	Upstream UpstreamConfig `yaml:"upstream" json:"upstream"`
	Logging  LoggingConfig  `yaml:"logging" json:"logging"`
	API      APIConfig      `yaml:"api" json:"api"`
	QueryLog QueryLogConfig `yaml:"querylog" json:"querylog"`
}
