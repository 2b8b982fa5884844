package config

import (
	"os"
	"strconv"

	"github.com/daq-spack/bcpub/pkg/global"
)

// ApplyEnvironment overrides config values from BCPUB_* variables. Flags
// are applied after this by the command line.
func ApplyEnvironment(c *Config) error {
	if v := os.Getenv(global.MirrorEnvVarName); v != "" {
		c.Mirror = v
	}
	if v := os.Getenv(global.ArchEnvVarName); v != "" {
		c.Arch = v
	}
	if v := os.Getenv(global.JobsEnvVarName); v != "" {
		jobs, err := strconv.Atoi(v)
		if err != nil {
			return &ValidationError{Field: global.JobsEnvVarName, Value: v, Message: "must be an integer"}
		}
		c.Jobs = jobs
	}
	return nil
}
