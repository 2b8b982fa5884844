package publish

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/daq-spack/bcpub/pkg/coordinate"
	bcerrors "github.com/daq-spack/bcpub/pkg/errors"
)

func TestRunBatchContinuesAfterFailure(t *testing.T) {
	p, mock, base := newTestPublisher(t)
	mock.InstallErrFor["v4_02_00"] = errors.New("build failed")
	coords := []coordinate.Coordinate{
		testCoordinate("v4_01_00"),
		testCoordinate("v4_02_00"),
		testCoordinate("v4_03_00"),
	}

	var seen []int
	batch := p.RunBatch(t.Context(), "", coords, base, func(i int, r Result) {
		seen = append(seen, i)
	})

	require.False(t, batch.OK())
	require.Len(t, batch.Results, 3)
	require.Equal(t, 2, batch.Succeeded)
	require.Equal(t, 1, batch.Failed)
	require.Equal(t, []int{0, 1, 2}, seen)
	require.True(t, batch.Results[0].OK())
	require.Equal(t, bcerrors.CodeInstallFailed, batch.Results[1].ErrorKind())
	require.True(t, batch.Results[2].OK())
	require.Equal(t, "v4_03_00", batch.Results[2].Coordinate.Version)
	require.Equal(t, 3, mock.Count("Install"))
	require.Equal(t, 6, mock.Count("BuildcachePush"))
	_, err := uuid.Parse(batch.ID)
	require.NoError(t, err)
}

func TestRunBatchKeepsGivenID(t *testing.T) {
	p, _, base := newTestPublisher(t)
	batch := p.RunBatch(t.Context(), "nightly-42", []coordinate.Coordinate{testCoordinate("v4_01_00")}, base, nil)
	require.Equal(t, "nightly-42", batch.ID)
}

func TestRunBatchActivatesOnCompilerChange(t *testing.T) {
	p, mock, base := newTestPublisher(t)
	gcc12 := testCoordinate("v3_13_00")
	gcc12.Compiler.Version = "12.1.0"
	coords := []coordinate.Coordinate{
		testCoordinate("v4_01_00"),
		testCoordinate("v4_02_00"),
		gcc12,
		testCoordinate("v4_03_00"),
	}

	batch := p.RunBatch(t.Context(), "", coords, base, nil)

	require.True(t, batch.OK())
	require.Equal(t, 3, mock.Count("Activate"))
	require.Equal(t, "Activate", mock.Methods()[0])
	require.Equal(t, "s132-e26", filepath.Base(batch.Results[2].Bucket))
}

func TestRunBatchActivateFailureOnlyWarns(t *testing.T) {
	p, mock, base := newTestPublisher(t)
	mock.ActivateErr = errors.New("compiler not found")

	batch := p.RunBatch(t.Context(), "", []coordinate.Coordinate{testCoordinate("v4_01_00")}, base, nil)

	require.True(t, batch.OK())
	require.Equal(t, 1, mock.Count("Install"))
}

func TestRunBatchCountsWarnings(t *testing.T) {
	p, mock, base := newTestPublisher(t)
	mock.UpdateIndexErr = errors.New("mirror unreachable")

	batch := p.RunBatch(t.Context(), "", []coordinate.Coordinate{testCoordinate("v4_01_00"), testCoordinate("v4_02_00")}, base, nil)

	require.True(t, batch.OK())
	require.Equal(t, 2, batch.Warnings)
}

func TestRunBatchCanceledMarksRemaining(t *testing.T) {
	p, mock, base := newTestPublisher(t)
	ctx, cancel := context.WithCancel(t.Context())
	coords := []coordinate.Coordinate{testCoordinate("v4_01_00"), testCoordinate("v4_02_00"), testCoordinate("v4_03_00")}

	batch := p.RunBatch(ctx, "", coords, base, func(i int, r Result) {
		if i == 0 {
			cancel()
		}
	})

	require.Len(t, batch.Results, 3)
	require.Equal(t, 1, batch.Succeeded)
	require.Equal(t, 2, batch.Failed)
	require.Equal(t, bcerrors.CodeCanceled, batch.Results[1].ErrorKind())
	require.Equal(t, bcerrors.CodeCanceled, batch.Results[2].ErrorKind())
	require.Contains(t, batch.Results[2].Err.Coordinate, "arch=linux-almalinux9-x86_64_v2")
	require.Equal(t, 1, mock.Count("Install"))
}

func TestTemplateExpand(t *testing.T) {
	tmpl := Template{
		Name:       "artdaq-suite",
		Arch:       "linux-almalinux9-x86_64_v2",
		Qualifiers: []string{"+online"},
	}
	coords, err := tmpl.Expand([]BatchEntry{
		{Version: "v4_01_00", Qualifier: "s132", Compiler: "13.1.0", Standard: "c++20"},
		{Version: "v3_13_00", Qualifier: "s=131", Compiler: "gcc@12.1.0", Standard: "17"},
		{Version: "v3_12_00", Compiler: "clang@14.0.6"},
	})
	require.NoError(t, err)
	require.Len(t, coords, 3)

	require.Equal(t, "artdaq-suite@v4_01_00 cxxstd=20 s=132 +online %gcc@13.1.0 arch=linux-almalinux9-x86_64_v2", coords[0].SpecString())
	s, ok := coords[1].Qualifier("s")
	require.True(t, ok)
	require.Equal(t, "131", s)
	std, ok := coords[1].Qualifier("cxxstd")
	require.True(t, ok)
	require.Equal(t, "17", std)
	require.Equal(t, coordinate.CompilerSpec{Family: "clang", Version: "14.0.6"}, coords[2].Compiler)
	require.Equal(t, []string{"+online"}, coords[2].Qualifiers)

	// the template's qualifiers are not shared between coordinates
	require.Equal(t, []string{"+online"}, tmpl.Qualifiers)
}

func TestTemplateExpandRejectsIncompleteEntries(t *testing.T) {
	tmpl := Template{Name: "artdaq-suite", Arch: "linux-almalinux9-x86_64_v2"}

	_, err := tmpl.Expand([]BatchEntry{{Version: "v4_01_00"}})
	require.Error(t, err)
	require.True(t, bcerrors.IsConfigInvalid(err))

	_, err = tmpl.Expand([]BatchEntry{{Compiler: "13.1.0"}})
	require.ErrorContains(t, err, "batch entry 1")
}

func TestNormalizeQualifierAndStandard(t *testing.T) {
	require.Equal(t, "s=132", normalizeQualifier("s132"))
	require.Equal(t, "s=132", normalizeQualifier(" s=132 "))
	require.Equal(t, "+debug", normalizeQualifier("+debug"))
	require.Equal(t, "20", normalizeStandard("c++20"))
	require.Equal(t, "20", normalizeStandard("cxx20"))
	require.Equal(t, "17", normalizeStandard("cxxstd=17"))
}
