package spack

import (
	"os"
	"path/filepath"

	"github.com/daq-spack/bcpub/pkg/util/files"
)

const SpackCommandEnvVarName = "BCPUB_SPACK_COMMAND"

// SpackCommandFromEnvironment picks the spack executable: the environment
// override first, then the checkout under spackRoot, then spack on PATH.
func SpackCommandFromEnvironment(spackRoot string) string {
	if command := os.Getenv(SpackCommandEnvVarName); command != "" {
		return command
	}
	if spackRoot != "" {
		candidate := filepath.Join(spackRoot, "bin", "spack")
		if files.IsExecutable(candidate) {
			return candidate
		}
	}
	return "spack"
}
