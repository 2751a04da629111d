package main

import (
	"fmt"

	"github.com/jroosing/hydraproxy/internal/api"
	"github.com/jroosing/hydraproxy/internal/config"
	"github.com/jroosing/hydraproxy/internal/logging"
	"github.com/jroosing/hydraproxy/internal/server"
	"github.com/spf13/cobra"
)

type startFlags struct {
	config   string
	host     string
	port     int
	upstream string
	jsonLogs bool
	debug    bool
}

func newStartCmd() *cobra.Command {
	f := new(startFlags)
	cmd := &cobra.Command{
		Use:   "start [-c config_file]",
		Short: "Start the proxy.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadWithOverrides(f)
			if err != nil {
				return err
			}
			return start(cfg)
		},
		DisableFlagsInUseLine: true,
		SilenceUsage:          true,
	}
	fs := cmd.Flags()
	fs.StringVarP(&f.config, "config", "c", "", "config file (or set "+config.ConfigEnvVar+")")
	fs.StringVar(&f.host, "host", "", "override listen host")
	fs.IntVar(&f.port, "port", 0, "override listen port")
	fs.StringVar(&f.upstream, "upstream", "", "override upstream resolver ip[:port]")
	fs.BoolVar(&f.jsonLogs, "json-logs", false, "enable JSON structured logging")
	fs.BoolVar(&f.debug, "debug", false, "enable debug logging")
	return cmd
}

// loadWithOverrides loads the config and applies command line overrides.
func loadWithOverrides(f *startFlags) (*config.Config, error) {
	cfg, err := config.Load(config.ResolveConfigPath(f.config))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if f.host != "" {
		cfg.Server.Host = f.host
	}
	if f.port != 0 {
		cfg.Server.Port = f.port
	}
	if f.upstream != "" {
		cfg.Upstream.Server = f.upstream
	}
	if f.jsonLogs {
		cfg.Logging.Structured = true
		cfg.Logging.StructuredFormat = "json"
	}
	if f.debug {
		cfg.Logging.Level = "DEBUG"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func start(cfg *config.Config) error {
	logger := logging.Configure(logging.FromConfig(cfg.Logging))

	runner, err := server.NewRunner(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to start: %w", err)
	}

	if cfg.API.Enabled {
		deps := api.Deps{Stats: runner.Stats(), Metrics: runner.Metrics().Handler()}
		if db := runner.QueryLog(); db != nil {
			deps.QueryLog = db
		}
		srv := api.New(cfg, logging.Component(logger, "api"), deps)
		runner.Go(srv.Run)
	}

	if err := runner.Run(); err != nil {
		return fmt.Errorf("server exited with error: %w", err)
	}
	return nil
}
