package cli

import (
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"

	"github.com/daq-spack/bcpub/pkg/config"
	"github.com/daq-spack/bcpub/pkg/util/console"
)

func newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show the configuration bcpub runs with",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the resolved configuration, after defaults and environment overrides",
			RunE:  showConfig,
			Args:  cobra.NoArgs,
		},
		&cobra.Command{
			Use:   "schema",
			Short: "Print the JSON schema of the config file",
			RunE: func(cmd *cobra.Command, args []string) error {
				console.Output(strings.TrimSpace(string(config.Schema(""))))
				return nil
			},
			Args: cobra.NoArgs,
		},
	)
	return cmd
}

func showConfig(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Filename() != "" {
		console.Infof("Loaded %s", cfg.Filename())
	} else {
		console.Info("No config file found, using defaults")
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	console.Output(strings.TrimSuffix(string(data), "\n"))
	return nil
}
