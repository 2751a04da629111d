// Package config loads and validates the hydraproxy configuration.
//
// Configuration comes from an optional file (any format viper reads, YAML
// by convention) plus HYDRAPROXY_* environment overrides on top of built-in
// defaults. Durations are kept as strings so the effective config can be
// dumped back in the same form it was written.
package config

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/jroosing/hydraproxy/internal/socket"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

const redacted = "********"

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            1053,
			MaxRequests:     4096,
			ServfailOnError: true,
			PollInterval:    "100ms",
		},
		Upstream: UpstreamConfig{
			Server:   "8.8.8.8:53",
			Timeout:  "3s",
			RecvSize: 4096,
		},
		Logging: LoggingConfig{
			Level:            "INFO",
			StructuredFormat: "json",
			ExtraFields:      map[string]string{},
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8080,
		},
		QueryLog: QueryLogConfig{
			Path:          "hydraproxy.db",
			Buffer:        1024,
			Retention:     "24h",
			PruneSchedule: "0 */10 * * * *",
		},
	}
}

// Validate validates and normalizes the configuration.
func (cfg *Config) Validate() error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("%w: server.port must be 1..65535", ErrInvalid)
	}
	if _, err := netip.ParseAddr(cfg.Server.Host); err != nil {
		return fmt.Errorf("%w: server.host must be an IP address: %q", ErrInvalid, cfg.Server.Host)
	}
	if cfg.Server.MaxRequests <= 0 {
		cfg.Server.MaxRequests = 4096
	}
	if err := checkDuration("server.poll_interval", cfg.Server.PollInterval); err != nil {
		return err
	}

	ap, err := socket.ParseAddrPort(strings.TrimSpace(cfg.Upstream.Server))
	if err != nil {
		return fmt.Errorf("%w: upstream.server: %w", ErrInvalid, err)
	}
	cfg.Upstream.Server = ap.String()
	if err := checkDuration("upstream.timeout", cfg.Upstream.Timeout); err != nil {
		return err
	}
	if cfg.Upstream.RecvSize < 512 {
		cfg.Upstream.RecvSize = 512
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "INFO"
	}
	cfg.Logging.Level = strings.ToUpper(cfg.Logging.Level)
	if cfg.Logging.StructuredFormat == "" {
		cfg.Logging.StructuredFormat = "json"
	}
	if cfg.Logging.ExtraFields == nil {
		cfg.Logging.ExtraFields = map[string]string{}
	}

	if cfg.API.Host == "" {
		cfg.API.Host = "127.0.0.1"
	}
	if cfg.API.Enabled && (cfg.API.Port <= 0 || cfg.API.Port > 65535) {
		return fmt.Errorf("%w: api.port must be 1..65535", ErrInvalid)
	}

	if cfg.QueryLog.Enabled {
		if cfg.QueryLog.Path == "" {
			return fmt.Errorf("%w: querylog.path is required", ErrInvalid)
		}
		if err := checkDuration("querylog.retention", cfg.QueryLog.Retention); err != nil {
			return err
		}
	}
	if cfg.QueryLog.Buffer <= 0 {
		cfg.QueryLog.Buffer = 1024
	}
	return nil
}

func checkDuration(name, raw string) error {
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalid, name, err)
	}
	if d <= 0 {
		return fmt.Errorf("%w: %s must be positive", ErrInvalid, name)
	}
	return nil
}

// mustDuration parses a duration that Validate has already checked.
func mustDuration(raw string, fallback time.Duration) time.Duration {
	if d, err := time.ParseDuration(raw); err == nil && d > 0 {
		return d
	}
	return fallback
}

// PollIntervalDuration returns the parsed poll interval.
func (s ServerConfig) PollIntervalDuration() time.Duration {
	return mustDuration(s.PollInterval, 100*time.Millisecond)
}

// TimeoutDuration returns the parsed upstream timeout.
func (u UpstreamConfig) TimeoutDuration() time.Duration {
	return mustDuration(u.Timeout, 3*time.Second)
}

// AddrPort returns the upstream address.
func (u UpstreamConfig) AddrPort() (netip.AddrPort, error) {
	return socket.ParseAddrPort(u.Server)
}

// RetentionDuration returns the parsed query log retention.
func (q QueryLogConfig) RetentionDuration() time.Duration {
	return mustDuration(q.Retention, 24*time.Hour)
}

// ListenAddr returns the DNS listen address.
func (cfg *Config) ListenAddr() (netip.AddrPort, error) {
	a, err := netip.ParseAddr(cfg.Server.Host)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("%w: server.host: %w", ErrInvalid, err)
	}
	return netip.AddrPortFrom(a, uint16(cfg.Server.Port)), nil //nolint:gosec // validated port range
}

// Redacted returns a copy safe to display, with secrets masked.
func (cfg *Config) Redacted() *Config {
	out := *cfg
	if out.API.APIKey != "" {
		out.API.APIKey = redacted
	}
	out.Logging.ExtraFields = make(map[string]string, len(cfg.Logging.ExtraFields))
	for k, v := range cfg.Logging.ExtraFields {
		out.Logging.ExtraFields[k] = v
	}
	return &out
}
