package config

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/daq-spack/bcpub/pkg/global"
)

func TestApplyEnvironment(t *testing.T) {
	t.Setenv(global.MirrorEnvVarName, "s3://nightly-buildcache")
	t.Setenv(global.ArchEnvVarName, "linux-almalinux9-x86_64_v3")
	t.Setenv(global.JobsEnvVarName, "32")

	config := DefaultConfig()
	config.Mirror = "/srv/buildcache"
	require.NoError(t, ApplyEnvironment(config))
	require.Equal(t, "s3://nightly-buildcache", config.Mirror)
	require.Equal(t, "linux-almalinux9-x86_64_v3", config.Arch)
	require.Equal(t, 32, config.Jobs)
}

func TestApplyEnvironmentUnsetKeepsConfig(t *testing.T) {
	t.Setenv(global.MirrorEnvVarName, "")
	t.Setenv(global.JobsEnvVarName, "")

	config := DefaultConfig()
	config.Mirror = "/srv/buildcache"
	require.NoError(t, ApplyEnvironment(config))
	require.Equal(t, "/srv/buildcache", config.Mirror)
	require.Equal(t, DefaultConfig().Jobs, config.Jobs)
}

func TestApplyEnvironmentBadJobs(t *testing.T) {
	t.Setenv(global.JobsEnvVarName, "lots")
	err := ApplyEnvironment(DefaultConfig())
	require.ErrorContains(t, err, global.JobsEnvVarName)
}
