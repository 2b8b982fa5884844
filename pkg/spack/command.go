// Package spack drives the spack command line. The Command interface is the
// whole contract the publisher relies on; SpackCommand implements it by
// shelling out, and spacktest.MockCommand implements it for tests.
package spack

import (
	"context"

	"github.com/daq-spack/bcpub/pkg/coordinate"
)

// Namespace restricts which install trees a query sees.
type Namespace string

const (
	// NamespaceLocal is the install tree managed here. Upstream (read-only)
	// installs are excluded because they cannot be pushed from here.
	NamespaceLocal Namespace = "local"
	NamespaceAll   Namespace = "all"
)

// Artifact is one installed concrete build.
type Artifact struct {
	Hash        string
	InstallPath string
}

type InstallOptions struct {
	Jobs int
	// Fresh re-concretizes instead of reusing installed specs, so stale
	// builds are rebuilt.
	Fresh bool
	// NoCache never pulls binaries from a buildcache.
	NoCache bool
	// Source keeps the package sources in the install prefix.
	Source    bool
	ExtraArgs []string
}

type PushOptions struct {
	Unsigned bool
	// Only is "package", "dependencies" or empty for both.
	Only  string
	Force bool
}

// PushOutcome is the structured result of pushing one hash.
type PushOutcome int

const (
	PushFailed PushOutcome = iota
	Pushed
	AlreadyPresent
)

func (o PushOutcome) String() string {
	switch o {
	case Pushed:
		return "pushed"
	case AlreadyPresent:
		return "already present"
	default:
		return "failed"
	}
}

type Command interface {
	// Activate prepares a fresh compiler and architecture context. It is
	// called before the first coordinate and whenever the compiler changes.
	Activate(ctx context.Context, compiler coordinate.CompilerSpec, arch string) error
	Install(ctx context.Context, c coordinate.Coordinate, opts InstallOptions) error
	Reindex(ctx context.Context) error
	// Spec returns the concrete, fully expanded spec as text.
	Spec(ctx context.Context, c coordinate.Coordinate) (string, error)
	Find(ctx context.Context, c coordinate.Coordinate, ns Namespace) ([]Artifact, error)
	// Closure returns hash followed by all of its transitive dependencies,
	// without duplicates.
	Closure(ctx context.Context, hash string) ([]string, error)
	// BuildcachePush pushes one hash. The error is non-nil only when the
	// outcome is PushFailed.
	BuildcachePush(ctx context.Context, mirrorPath string, hash string, opts PushOptions) (PushOutcome, error)
	BuildcacheUpdateIndex(ctx context.Context, mirrorPath string) error
}
