package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/daq-spack/bcpub/pkg/global"
	"github.com/daq-spack/bcpub/pkg/util/console"
)

var configFlag string

func NewRootCommand() (*cobra.Command, error) {
	rootCmd := cobra.Command{
		Use:   "bcpub",
		Short: "Build spack packages and publish them to buildcache mirrors",
		Long: `Build spack packages from source and publish each build, with its
dependency closure, to the buildcache bucket for its qualifier and
compiler epoch.`,
		Version: fmt.Sprintf("%s (built %s)", global.Version, global.BuildTime),
		// This stops errors being printed because we print them in cmd/bcpub/main.go
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := setupConsole(); err != nil {
				return err
			}
			cmd.SilenceUsage = true
			return nil
		},
		SilenceErrors: true,
	}
	setPersistentFlags(&rootCmd)

	rootCmd.AddCommand(
		newPublishCommand(),
		newBatchCommand(),
		newBucketCommand(),
		newMirrorCommand(),
		newConfigCommand(),
	)

	return &rootCmd, nil
}

func setPersistentFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().BoolVarP(&global.Verbose, "verbose", "v", false, "Verbose output")
	cmd.PersistentFlags().BoolVar(&global.NoColor, "no-color", false, "Disable colored output")
	cmd.PersistentFlags().StringVarP(&configFlag, "config", "c", os.Getenv(global.ConfigEnvVarName), "Path to "+global.ConfigFilename+", defaults to searching from the current directory upwards")
}

func setupConsole() error {
	if level := os.Getenv(global.LogLevelEnvVarName); level != "" {
		parsed, err := console.ParseLevel(level)
		if err != nil {
			return fmt.Errorf("%s: %w", global.LogLevelEnvVarName, err)
		}
		console.SetLevel(parsed)
	}
	if global.Verbose {
		console.SetLevel(console.DebugLevel)
	}
	if global.NoColor {
		console.SetColor(false)
	}
	return nil
}
