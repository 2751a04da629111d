package config

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes environment overrides, e.g. HYDRAPROXY_UPSTREAM_SERVER.
const EnvPrefix = "HYDRAPROXY"

// ConfigEnvVar names the variable holding the config file path.
const ConfigEnvVar = EnvPrefix + "_CONFIG"

// ResolveConfigPath returns the flag value if set, else HYDRAPROXY_CONFIG.
func ResolveConfigPath(flag string) string {
	if p := strings.TrimSpace(flag); p != "" {
		return p
	}
	return strings.TrimSpace(os.Getenv(ConfigEnvVar))
}

// Load reads the config file at path (if any), applies environment
// overrides and validates the result. An empty path uses defaults only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	decoderOpt := func(dc *mapstructure.DecoderConfig) {
		dc.ErrorUnused = true
		dc.TagName = "yaml"
		dc.WeaklyTypedInput = true
	}

	cfg := new(Config)
	if err := v.Unmarshal(cfg, decoderOpt); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.max_requests", d.Server.MaxRequests)
	v.SetDefault("server.servfail_on_error", d.Server.ServfailOnError)
	v.SetDefault("server.poll_interval", d.Server.PollInterval)

	v.SetDefault("upstream.server", d.Upstream.Server)
	v.SetDefault("upstream.timeout", d.Upstream.Timeout)
	v.SetDefault("upstream.recv_size", d.Upstream.RecvSize)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.structured", d.Logging.Structured)
	v.SetDefault("logging.structured_format", d.Logging.StructuredFormat)
	v.SetDefault("logging.include_pid", d.Logging.IncludePID)
	v.SetDefault("logging.extra_fields", d.Logging.ExtraFields)

	v.SetDefault("api.enabled", d.API.Enabled)
	v.SetDefault("api.host", d.API.Host)
	v.SetDefault("api.port", d.API.Port)
	v.SetDefault("api.api_key", d.API.APIKey)

	v.SetDefault("querylog.enabled", d.QueryLog.Enabled)
	v.SetDefault("querylog.path", d.QueryLog.Path)
	v.SetDefault("querylog.buffer", d.QueryLog.Buffer)
	v.SetDefault("querylog.retention", d.QueryLog.Retention)
	v.SetDefault("querylog.prune_schedule", d.QueryLog.PruneSchedule)
}

// Dump writes cfg as YAML with secrets redacted.
func Dump(w io.Writer, cfg *Config) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg.Redacted()); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return enc.Close()
}
