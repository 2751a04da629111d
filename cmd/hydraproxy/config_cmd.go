package main

import (
	"github.com/jroosing/hydraproxy/internal/config"
	"github.com/spf13/cobra"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the configuration.",
	}

	var path string
	dump := &cobra.Command{
		Use:   "dump [-c config_file]",
		Short: "Print the effective configuration as YAML, secrets redacted.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(config.ResolveConfigPath(path))
			if err != nil {
				return err
			}
			return config.Dump(cmd.OutOrStdout(), cfg)
		},
		DisableFlagsInUseLine: true,
		SilenceUsage:          true,
	}
	dump.Flags().StringVarP(&path, "config", "c", "", "config file (or set "+config.ConfigEnvVar+")")
	cmd.AddCommand(dump)
	return cmd
}
