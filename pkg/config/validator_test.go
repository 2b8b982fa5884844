package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daq-spack/bcpub/pkg/errors"
)

func TestValidateConfig(t *testing.T) {
	config, err := FromYAML([]byte(testConfig))
	require.NoError(t, err)
	assert.NoError(t, ValidateConfig(config, "1.0"))
	assert.NoError(t, ValidateConfig(DefaultConfig(), "1.0"))
}

func TestValidateSuccess(t *testing.T) {
	config := `mirror: /srv/buildcache
jobs: 8
batch:
  - version: v4_01_00
    compiler: 13.1
    standard: 20`

	assert.NoError(t, Validate(config, "1.0"))
}

func TestValidateUnknownField(t *testing.T) {
	config := `mirror: /srv/buildcache
mirrors: /srv/other`

	err := Validate(config, "1.0")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "mirrors")
	assert.True(t, errors.IsConfigInvalid(err))
}

func TestValidateJobsMustBeInteger(t *testing.T) {
	err := Validate(`jobs: many`, "1.0")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "jobs: must be a integer")
}

func TestValidateBatchEntryNeedsCompiler(t *testing.T) {
	config := `batch:
  - version: v4_01_00
    qualifier: s132`

	err := Validate(config, "1.0")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "compiler is required")
}

func TestValidateNamespace(t *testing.T) {
	assert.NoError(t, Validate(`namespace: all`, "1.0"))
	assert.Error(t, Validate(`namespace: upstream`, "1.0"))
}
