package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/daq-spack/bcpub/pkg/config"
	"github.com/daq-spack/bcpub/pkg/coordinate"
	"github.com/daq-spack/bcpub/pkg/errors"
	"github.com/daq-spack/bcpub/pkg/global"
	"github.com/daq-spack/bcpub/pkg/publish"
	"github.com/daq-spack/bcpub/pkg/spack"
	"github.com/daq-spack/bcpub/pkg/util/console"
	"github.com/daq-spack/bcpub/pkg/util/files"
)

var (
	qualifierFlags  []string
	compilerFlag    string
	archFlag        string
	mirrorFlag      string
	jobsFlag        int
	jsonFlag        bool
	skipInstallFlag bool
)

// newSpackCommand builds the spack adapter used by publishing commands.
var newSpackCommand = func(cfg *config.Config, logDir string) spack.Command {
	return cfg.SpackCommand(logDir)
}

func addCoordinateFlags(cmd *cobra.Command) {
	cmd.Flags().StringArrayVarP(&qualifierFlags, "qualifier", "q", nil, "Qualifier such as s=132, cxxstd=20 or +online (may be repeated)")
	cmd.Flags().StringVar(&compilerFlag, "compiler", "", "Compiler, e.g. gcc@13.1.0 or just 13.1.0 for gcc")
	addArchFlag(cmd)
}

func addArchFlag(cmd *cobra.Command) {
	cmd.Flags().StringVar(&archFlag, "arch", "", "Target architecture, defaults to arch in "+global.ConfigFilename)
}

func addMirrorFlag(cmd *cobra.Command) {
	cmd.Flags().StringVar(&mirrorFlag, "mirror", "", "Mirror base path or s3:// URL, defaults to mirror in "+global.ConfigFilename)
}

func addJobsFlag(cmd *cobra.Command) {
	cmd.Flags().IntVarP(&jobsFlag, "jobs", "j", 0, "Parallel build jobs, defaults to the number of CPUs")
}

func addJSONFlag(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&jsonFlag, "json", false, "Print the result as JSON")
}

func addSkipInstallFlag(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&skipInstallFlag, "skip-install", false, "Publish what is already installed without building")
}

// loadConfig reads the config file and the environment, then applies the
// flags the command defines and the user set.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.GetConfig(configFlag, global.ConfigFilename)
	if err != nil {
		return nil, err
	}
	if flagChanged(cmd, "mirror") {
		cfg.Mirror = mirrorFlag
	}
	if flagChanged(cmd, "arch") {
		cfg.Arch = archFlag
	}
	if flagChanged(cmd, "jobs") {
		if jobsFlag < 1 {
			return nil, errors.ConfigInvalid("--jobs must be at least 1")
		}
		cfg.Jobs = jobsFlag
	}
	return cfg, nil
}

func flagChanged(cmd *cobra.Command, name string) bool {
	f := cmd.Flags().Lookup(name)
	return f != nil && f.Changed
}

// mirrorBase returns the configured mirror, with local paths made absolute.
func mirrorBase(cfg *config.Config) (string, error) {
	if cfg.Mirror == "" {
		return "", errors.ConfigInvalid(fmt.Sprintf("No mirror configured. Set mirror in %s, %s or pass --mirror", global.ConfigFilename, global.MirrorEnvVarName))
	}
	if strings.Contains(cfg.Mirror, "://") && !strings.HasPrefix(cfg.Mirror, "file://") {
		return cfg.Mirror, nil
	}
	return files.ExpandUser(strings.TrimPrefix(cfg.Mirror, "file://"))
}

// parseCoordinate builds a coordinate from NAME@VERSION, the coordinate
// flags and the package settings of the config.
func parseCoordinate(cfg *config.Config, arg string) (coordinate.Coordinate, error) {
	name, version, found := strings.Cut(arg, "@")
	if !found || name == "" || version == "" {
		return coordinate.Coordinate{}, errors.ConfigInvalid(fmt.Sprintf("%q must be in the form NAME@VERSION", arg))
	}
	if compilerFlag == "" {
		return coordinate.Coordinate{}, errors.ConfigInvalid("--compiler is required")
	}
	compiler, err := coordinate.ParseCompilerSpec(compilerFlag)
	if err != nil {
		return coordinate.Coordinate{}, err
	}
	c := coordinate.Coordinate{
		Name:       name,
		Version:    version,
		Qualifiers: append([]string(nil), cfg.Qualifiers...),
		Compiler:   compiler,
		Arch:       cfg.Arch,
	}
	for _, q := range qualifierFlags {
		if key, value, found := strings.Cut(q, "="); found {
			c = c.WithQualifier(key, value)
		} else {
			c.Qualifiers = append(c.Qualifiers, q)
		}
	}
	return c, c.Validate()
}

func newPublisher(cfg *config.Config, logDir string) *publish.Publisher {
	opts := cfg.PublishOptions()
	opts.SkipInstall = skipInstallFlag
	return publish.NewPublisher(newSpackCommand(cfg, logDir), cfg.EpochTable(), opts)
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

func outputJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	console.Output(string(data))
	return nil
}
