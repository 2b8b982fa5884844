package spack

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/daq-spack/bcpub/pkg/coordinate"
)

const fakeSpack = `#!/bin/sh
echo "$@" >> "$FAKE_SPACK_CALLS"
case "$1" in
  install)
    echo "building"
    exit "${FAKE_INSTALL_EXIT:-0}"
    ;;
  spec)
    echo "Concretized"
    echo "aaaaaaa1 artdaq-suite@v4_01_00"
    ;;
  location)
    echo "/opt/spack/gcc-13.1.0-xyz"
    ;;
  find)
    case "$*" in
      *--deps*)
        printf 'aaaaaaa1\n    bbbbbbb2\n        ccccccc3\n    ccccccc3\n'
        ;;
      *nomatch*)
        echo "==> No package matches the query: nomatch@1"
        exit 1
        ;;
      *)
        printf '==> 2 installed packages\naaaaaaa1 /opt/spack/linux/artdaq-suite-aaaaaaa1\nddddddd4 /cvmfs/upstream/artdaq-suite-ddddddd4\n'
        ;;
    esac
    ;;
  buildcache)
    if [ "$2" = "push" ]; then
      case "$*" in
        *aaaaaaa1*) echo "==> Error: aaaaaaa1 already exists; use -f to overwrite"; exit 1 ;;
        *eeeeeee5*) echo "==> Error: cannot write"; exit 3 ;;
      esac
      echo "==> Pushed"
    fi
    ;;
esac
exit 0
`

func newFakeSpack(t *testing.T) (*SpackCommand, string) {
	t.Helper()
	dir := t.TempDir()
	binary := filepath.Join(dir, "spack")
	require.NoError(t, os.WriteFile(binary, []byte(fakeSpack), 0o755))
	calls := filepath.Join(dir, "calls")
	cmd := &SpackCommand{
		Binary: binary,
		LogDir: filepath.Join(dir, "logs"),
		Env:    []string{"FAKE_SPACK_CALLS=" + calls},
	}
	return cmd, calls
}

func readCalls(t *testing.T, path string) []string {
	t.Helper()
	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimSpace(string(contents)), "\n")
}

func testCoordinate() coordinate.Coordinate {
	return coordinate.Coordinate{
		Name:       "artdaq-suite",
		Version:    "v4_01_00",
		Qualifiers: []string{"s=132"},
		Compiler:   coordinate.CompilerSpec{Family: "gcc", Version: "13.1.0"},
		Arch:       "linux-almalinux9-x86_64_v2",
	}
}

func TestSpackCommandInstallArgs(t *testing.T) {
	cmd, calls := newFakeSpack(t)

	err := cmd.Install(t.Context(), testCoordinate(), InstallOptions{Jobs: 8, Fresh: true, NoCache: true})
	require.NoError(t, err)
	require.Equal(t, []string{
		"install --fresh --no-cache -j 8 artdaq-suite@v4_01_00 s=132 %gcc@13.1.0 arch=linux-almalinux9-x86_64_v2",
	}, readCalls(t, calls))

	log, err := os.ReadFile(filepath.Join(cmd.LogDir, testCoordinate().Slug()+".install.log"))
	require.NoError(t, err)
	require.Contains(t, string(log), "building")
}

func TestSpackCommandInstallFailureNamesLog(t *testing.T) {
	cmd, _ := newFakeSpack(t)
	cmd.Env = append(cmd.Env, "FAKE_INSTALL_EXIT=2")

	err := cmd.Install(t.Context(), testCoordinate(), InstallOptions{})
	require.Error(t, err)

	var cmdErr *CommandError
	require.ErrorAs(t, err, &cmdErr)
	require.Equal(t, 2, cmdErr.ExitCode)
	require.Equal(t, filepath.Join(cmd.LogDir, testCoordinate().Slug()+".install.log"), LogPath(err))
	require.FileExists(t, LogPath(err))
}

func TestSpackCommandFindLocalOnly(t *testing.T) {
	cmd, calls := newFakeSpack(t)
	cmd.InstallRoot = "/opt/spack"

	artifacts, err := cmd.Find(t.Context(), testCoordinate(), NamespaceLocal)
	require.NoError(t, err)
	require.Equal(t, []Artifact{{Hash: "aaaaaaa1", InstallPath: "/opt/spack/linux/artdaq-suite-aaaaaaa1"}}, artifacts)
	require.Contains(t, readCalls(t, calls)[0], "--install-tree local")

	artifacts, err = cmd.Find(t.Context(), testCoordinate(), NamespaceAll)
	require.NoError(t, err)
	require.Len(t, artifacts, 2)
}

func TestSpackCommandFindNoMatch(t *testing.T) {
	cmd, _ := newFakeSpack(t)
	c := testCoordinate()
	c.Name = "nomatch"
	c.Version = "1"

	artifacts, err := cmd.Find(t.Context(), c, NamespaceLocal)
	require.NoError(t, err)
	require.Empty(t, artifacts)
}

func TestSpackCommandClosure(t *testing.T) {
	cmd, calls := newFakeSpack(t)

	hashes, err := cmd.Closure(t.Context(), "aaaaaaa1")
	require.NoError(t, err)
	require.Equal(t, []string{"aaaaaaa1", "bbbbbbb2", "ccccccc3"}, hashes)
	require.Equal(t, []string{"find --deps --no-groups --format {hash} /aaaaaaa1"}, readCalls(t, calls))

	_, err = cmd.Closure(t.Context(), "bbbbbbb2")
	require.Error(t, err)
}

func TestSpackCommandPushOutcomes(t *testing.T) {
	cmd, calls := newFakeSpack(t)
	opts := PushOptions{Unsigned: true, Only: "package"}

	outcome, err := cmd.BuildcachePush(t.Context(), "/mirror/s132-e28", "aaaaaaa1", opts)
	require.NoError(t, err)
	require.Equal(t, AlreadyPresent, outcome)

	outcome, err = cmd.BuildcachePush(t.Context(), "/mirror/s132-e28", "bbbbbbb2", opts)
	require.NoError(t, err)
	require.Equal(t, Pushed, outcome)

	outcome, err = cmd.BuildcachePush(t.Context(), "/mirror/s132-e28", "eeeeeee5", opts)
	require.Error(t, err)
	require.Equal(t, PushFailed, outcome)
	require.Equal(t, filepath.Join(cmd.LogDir, "push-s132-e28.log"), LogPath(err))

	require.Equal(t, "buildcache push --unsigned --only package /mirror/s132-e28 /bbbbbbb2", readCalls(t, calls)[1])
}

func TestSpackCommandActivate(t *testing.T) {
	cmd, calls := newFakeSpack(t)

	err := cmd.Activate(t.Context(), coordinate.CompilerSpec{Family: "gcc", Version: "13.1.0"}, "linux-almalinux9-x86_64_v2")
	require.NoError(t, err)
	require.Equal(t, []string{
		"location --install-dir gcc@13.1.0 arch=linux-almalinux9-x86_64_v2",
		"compiler find /opt/spack/gcc-13.1.0-xyz",
	}, readCalls(t, calls))
}

func TestSpackCommandSpecAndIndex(t *testing.T) {
	cmd, calls := newFakeSpack(t)

	spec, err := cmd.Spec(t.Context(), testCoordinate())
	require.NoError(t, err)
	require.Contains(t, spec, "Concretized")

	require.NoError(t, cmd.Reindex(t.Context()))
	require.NoError(t, cmd.BuildcacheUpdateIndex(t.Context(), "/mirror/s132-e28"))
	require.Equal(t, []string{
		"spec --long artdaq-suite@v4_01_00 s=132 %gcc@13.1.0 arch=linux-almalinux9-x86_64_v2",
		"reindex",
		"buildcache update-index /mirror/s132-e28",
	}, readCalls(t, calls))
}

func TestSpackCommandFromEnvironment(t *testing.T) {
	t.Setenv(SpackCommandEnvVarName, "")
	root := t.TempDir()
	require.Equal(t, "spack", SpackCommandFromEnvironment(root))

	require.NoError(t, os.MkdirAll(filepath.Join(root, "bin"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "bin", "spack"), []byte("#!/bin/sh\n"), 0o755))
	require.Equal(t, filepath.Join(root, "bin", "spack"), SpackCommandFromEnvironment(root))

	t.Setenv(SpackCommandEnvVarName, "/usr/local/bin/spack-wrapper")
	require.Equal(t, "/usr/local/bin/spack-wrapper", SpackCommandFromEnvironment(root))
}
