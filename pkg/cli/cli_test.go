package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/daq-spack/bcpub/pkg/config"
	"github.com/daq-spack/bcpub/pkg/global"
	"github.com/daq-spack/bcpub/pkg/spack"
	"github.com/daq-spack/bcpub/pkg/spack/spacktest"
	"github.com/daq-spack/bcpub/pkg/util/console"
)

const testHash = "abcdefghijklmnop"

const baseConfig = `mirror: mirror
scratch_dir: hashes
log_dir: logs
arch: linux-almalinux9-x86_64_v2
package: artdaq-suite
`

func writeTestConfig(t *testing.T, extra string) (string, string) {
	t.Helper()
	for _, name := range []string{global.MirrorEnvVarName, global.ArchEnvVarName, global.JobsEnvVarName, global.LogLevelEnvVarName} {
		t.Setenv(name, "")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "bcpub.yaml")
	require.NoError(t, os.WriteFile(path, []byte(baseConfig+extra), 0o644))
	return path, dir
}

func useMockSpack(t *testing.T) *spacktest.MockCommand {
	t.Helper()
	mock := spacktest.NewMockCommand()
	mock.FindResults = []spack.Artifact{{Hash: testHash, InstallPath: "/opt/spack/artdaq-suite-" + testHash}}
	orig := newSpackCommand
	newSpackCommand = func(*config.Config, string) spack.Command { return mock }
	t.Cleanup(func() { newSpackCommand = orig })
	return mock
}

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout bytes.Buffer
	console.SetStdout(&stdout)
	console.SetOutput(io.Discard)
	t.Cleanup(func() {
		console.SetStdout(nil)
		console.SetOutput(nil)
		console.SetLevel(console.InfoLevel)
	})

	cmd, err := NewRootCommand()
	require.NoError(t, err)
	cmd.SetArgs(args)
	err = cmd.Execute()
	return stdout.String(), err
}

func TestPublishCommand(t *testing.T) {
	cfgPath, dir := writeTestConfig(t, "")
	mock := useMockSpack(t)

	out, err := runCommand(t, "publish", "artdaq-suite@v4_01_00", "-q", "s=132", "--compiler", "gcc@13.1.0", "--config", cfgPath)
	require.NoError(t, err)
	require.Contains(t, out, `ok "artdaq-suite@v4_01_00 s=132 %gcc@13.1.0 arch=linux-almalinux9-x86_64_v2"`)
	require.Contains(t, out, "bucket="+filepath.Join(dir, "mirror", "s132-e28"))
	require.Contains(t, out, "pushed=1")
	require.Equal(t, []string{testHash}, mock.PushedHashes())
	require.FileExists(t, filepath.Join(dir, "hashes", "artdaq-suite-v4_01_00-s132-gcc13.1.0-linux-almalinux9-x86_64_v2.hashes.txt"))
}

func TestPublishCommandJSON(t *testing.T) {
	cfgPath, _ := writeTestConfig(t, "")
	useMockSpack(t)

	out, err := runCommand(t, "publish", "artdaq-suite@v4_01_00", "-q", "s=132", "--compiler", "13.1.0", "--config", cfgPath, "--json")
	require.NoError(t, err)

	var result map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	require.Equal(t, float64(1), result["pushed_count"])
	require.Equal(t, testHash, result["selected_hash"])
	require.Equal(t, []any{"Install", "Reindex", "Spec", "HashDiscovery", "Push", "IndexUpdate"}, result["stages_completed"])
	require.NotContains(t, result, "error")
}

func TestPublishCommandFailure(t *testing.T) {
	cfgPath, _ := writeTestConfig(t, "")
	mock := useMockSpack(t)
	mock.InstallErr = errors.New("exit status 1")

	out, err := runCommand(t, "publish", "artdaq-suite@v4_01_00", "-q", "s=132", "--compiler", "13.1.0", "--config", cfgPath)
	require.Error(t, err)
	require.True(t, IsReported(err))
	require.Contains(t, out, "failed")
	require.Contains(t, out, "stage=Install error=INSTALL_FAILED")
	require.Equal(t, 0, mock.Count("BuildcachePush"))
}

func TestPublishCommandRequiresCompiler(t *testing.T) {
	cfgPath, _ := writeTestConfig(t, "")
	mock := useMockSpack(t)

	_, err := runCommand(t, "publish", "artdaq-suite@v4_01_00", "--config", cfgPath)
	require.ErrorContains(t, err, "--compiler is required")
	require.False(t, IsReported(err))
	require.Empty(t, mock.Calls())
}

func TestPublishCommandSkipInstallAndFlags(t *testing.T) {
	cfgPath, _ := writeTestConfig(t, "")
	mock := useMockSpack(t)
	other := t.TempDir()

	out, err := runCommand(t, "publish", "artdaq-suite@v4_01_00", "-q", "s=131", "--compiler", "12.1.0",
		"--arch", "linux-almalinux9-x86_64_v3", "--mirror", other, "--skip-install", "--config", cfgPath)
	require.NoError(t, err)
	require.Equal(t, 0, mock.Count("Install"))
	require.Contains(t, out, "arch=linux-almalinux9-x86_64_v3")
	require.Contains(t, out, "bucket="+filepath.Join(other, "s131-e26"))
}

func TestBatchCommandFromConfig(t *testing.T) {
	cfgPath, _ := writeTestConfig(t, `batch:
  - version: v4_01_00
    qualifier: s132
    compiler: 13.1.0
    standard: c++20
  - version: v4_02_00
    qualifier: s132
    compiler: 13.1.0
  - version: v3_13_00
    qualifier: s131
    compiler: 12.1.0
`)
	mock := useMockSpack(t)
	mock.InstallErrFor["v4_02_00"] = errors.New("exit status 2")

	out, err := runCommand(t, "batch", "--config", cfgPath, "--no-progress")
	require.Error(t, err)
	require.True(t, IsReported(err))
	require.Equal(t, "succeeded=2 failed=1 warnings=0\n", out)
	require.Equal(t, 3, mock.Count("Install"))
	require.Equal(t, 2, mock.Count("Activate"))
}

func TestBatchCommandFromListFile(t *testing.T) {
	cfgPath, dir := writeTestConfig(t, "")
	useMockSpack(t)
	list := filepath.Join(dir, "nightly.yaml")
	require.NoError(t, os.WriteFile(list, []byte(`- version: v4_01_00
  qualifier: s132
  compiler: gcc@13.1.0
- version: v4_01_00
  qualifier: s131
  compiler: gcc@13.1.0
`), 0o644))

	out, err := runCommand(t, "batch", list, "--config", cfgPath, "--json")
	require.NoError(t, err)

	var batch batchOutput
	require.NoError(t, json.Unmarshal([]byte(out), &batch))
	require.Equal(t, 2, batch.Succeeded)
	require.Len(t, batch.Results, 2)
	require.True(t, strings.HasSuffix(batch.Results[1].Bucket, "s131-e28"))
	require.NotEmpty(t, batch.ID)
}

func TestBatchCommandWithoutEntries(t *testing.T) {
	cfgPath, _ := writeTestConfig(t, "")
	useMockSpack(t)

	_, err := runCommand(t, "batch", "--config", cfgPath)
	require.ErrorContains(t, err, "No batch entries")
}

func TestBucketCommand(t *testing.T) {
	cfgPath, dir := writeTestConfig(t, "")

	out, err := runCommand(t, "bucket", "artdaq-suite@v4_01_00", "-q", "s=132", "--compiler", "gcc@13.1.0", "--config", cfgPath)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "mirror", "s132-e28")+"\n", out)

	out, err = runCommand(t, "bucket", "artdaq-suite@v4_01_00", "--compiler", "gcc@9.3.0", "-n", "--config", cfgPath)
	require.NoError(t, err)
	require.Equal(t, "e20\n", out)
}

func TestBucketCommandUnknownEpoch(t *testing.T) {
	cfgPath, _ := writeTestConfig(t, "")

	_, err := runCommand(t, "bucket", "artdaq-suite@v4_01_00", "--compiler", "gcc@4.8.5", "--config", cfgPath)
	require.ErrorContains(t, err, "no compiler epoch")
}

func writeIndex(t *testing.T, bucketDir string) {
	t.Helper()
	indexDir := filepath.Join(bucketDir, "build_cache")
	require.NoError(t, os.MkdirAll(indexDir, 0o755))
	index := `{"database": {"version": "7", "installs": {
  "` + testHash + `": {"spec": {"name": "artdaq-suite", "version": "v4_01_00", "compiler": {"name": "gcc", "version": "13.1.0"}}},
  "zyxwvutsrqponmlk": {"spec": {"name": "artdaq-core", "version": "v3_13_00"}}
}}}`
	require.NoError(t, os.WriteFile(filepath.Join(indexDir, "index.json"), []byte(index), 0o644))
}

func TestMirrorListCommand(t *testing.T) {
	cfgPath, dir := writeTestConfig(t, "")
	writeIndex(t, filepath.Join(dir, "mirror", "s132-e28"))

	out, err := runCommand(t, "mirror", "ls", "s132-e28", "--config", cfgPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	require.True(t, strings.HasPrefix(lines[0], "NAME"))
	require.Contains(t, lines[1], "artdaq-core")
	require.Contains(t, lines[2], "gcc@13.1.0")
	require.Contains(t, lines[2], testHash)

	out, err = runCommand(t, "mirror", "ls", "-q", filepath.Join(dir, "mirror", "s132-e28"), "--config", cfgPath)
	require.NoError(t, err)
	require.Equal(t, "zyxwvutsrqponmlk\n"+testHash+"\n", out)
}

func TestMirrorVerifyCommand(t *testing.T) {
	cfgPath, dir := writeTestConfig(t, "")
	writeIndex(t, filepath.Join(dir, "mirror", "s132-e28"))

	out, err := runCommand(t, "mirror", "verify", "s132-e28", "--config", cfgPath)
	require.NoError(t, err)
	require.Contains(t, out, "2 packages")

	_, err = runCommand(t, "mirror", "verify", "s131-e28", "--config", cfgPath)
	require.ErrorContains(t, err, "not usable")
}

func TestConfigCommands(t *testing.T) {
	cfgPath, dir := writeTestConfig(t, "jobs: 7\n")

	out, err := runCommand(t, "config", "show", "--config", cfgPath)
	require.NoError(t, err)
	require.Contains(t, out, "jobs: 7")
	require.Contains(t, out, "scratch_dir: "+filepath.Join(dir, "hashes"))

	out, err = runCommand(t, "config", "schema")
	require.NoError(t, err)
	require.Contains(t, out, `"$schema"`)
}

func TestParseCoordinate(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Arch = "linux-almalinux9-x86_64_v2"
	cfg.Qualifiers = []string{"s=131", "+online"}
	qualifierFlags = []string{"s=132", "cxxstd=20"}
	compilerFlag = "%gcc@13.1.0"
	t.Cleanup(func() {
		qualifierFlags = nil
		compilerFlag = ""
	})

	c, err := parseCoordinate(cfg, "artdaq-suite@v4_01_00")
	require.NoError(t, err)
	require.Equal(t, "artdaq-suite@v4_01_00 cxxstd=20 s=132 +online %gcc@13.1.0 arch=linux-almalinux9-x86_64_v2", c.SpecString())

	_, err = parseCoordinate(cfg, "artdaq-suite")
	require.ErrorContains(t, err, "NAME@VERSION")
}
