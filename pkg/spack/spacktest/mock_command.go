// Package spacktest provides a scripted spack.Command that records every call.
package spacktest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/daq-spack/bcpub/pkg/coordinate"
	"github.com/daq-spack/bcpub/pkg/spack"
)

// Call is one recorded invocation.
type Call struct {
	Method string
	Arg    string
}

func (c Call) String() string {
	if c.Arg == "" {
		return c.Method
	}
	return c.Method + " " + c.Arg
}

// MockCommand answers from its fields. Zero values mean success with empty
// results; pushes default to spack.Pushed.
type MockCommand struct {
	ActivateErr    error
	InstallErr     error
	ReindexErr     error
	SpecOutput     string
	SpecErr        error
	FindResults    []spack.Artifact
	FindErr        error
	Closures       map[string][]string
	ClosureErr     error
	PushOutcomes   map[string]spack.PushOutcome
	UpdateIndexErr error

	// InstallErrFor fails Install for coordinates whose version matches.
	InstallErrFor map[string]error

	mu    sync.Mutex
	calls []Call
}

func NewMockCommand() *MockCommand {
	return &MockCommand{
		Closures:      map[string][]string{},
		PushOutcomes:  map[string]spack.PushOutcome{},
		InstallErrFor: map[string]error{},
	}
}

func (m *MockCommand) record(method, arg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: method, Arg: arg})
}

// Calls returns every recorded call in order.
func (m *MockCommand) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

// Methods returns the method names of every recorded call in order.
func (m *MockCommand) Methods() []string {
	var methods []string
	for _, c := range m.Calls() {
		methods = append(methods, c.Method)
	}
	return methods
}

// PushedHashes returns the hash argument of every BuildcachePush in order.
func (m *MockCommand) PushedHashes() []string {
	var hashes []string
	for _, c := range m.Calls() {
		if c.Method == "BuildcachePush" {
			_, hash, _ := strings.Cut(c.Arg, " /")
			hashes = append(hashes, hash)
		}
	}
	return hashes
}

// Count returns how many times method was called.
func (m *MockCommand) Count(method string) int {
	n := 0
	for _, c := range m.Calls() {
		if c.Method == method {
			n++
		}
	}
	return n
}

func (m *MockCommand) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

func (m *MockCommand) Activate(ctx context.Context, compiler coordinate.CompilerSpec, arch string) error {
	m.record("Activate", compiler.String())
	return m.ActivateErr
}

func (m *MockCommand) Install(ctx context.Context, c coordinate.Coordinate, opts spack.InstallOptions) error {
	m.record("Install", c.SpecString())
	if err, ok := m.InstallErrFor[c.Version]; ok {
		return err
	}
	return m.InstallErr
}

func (m *MockCommand) Reindex(ctx context.Context) error {
	m.record("Reindex", "")
	return m.ReindexErr
}

func (m *MockCommand) Spec(ctx context.Context, c coordinate.Coordinate) (string, error) {
	m.record("Spec", c.SpecString())
	if m.SpecErr != nil {
		return "", m.SpecErr
	}
	if m.SpecOutput == "" {
		return "Concretized\n--------------------------------\n" + c.SpecString() + "\n", nil
	}
	return m.SpecOutput, nil
}

func (m *MockCommand) Find(ctx context.Context, c coordinate.Coordinate, ns spack.Namespace) ([]spack.Artifact, error) {
	m.record("Find", string(ns))
	return m.FindResults, m.FindErr
}

func (m *MockCommand) Closure(ctx context.Context, hash string) ([]string, error) {
	m.record("Closure", hash)
	if m.ClosureErr != nil {
		return nil, m.ClosureErr
	}
	if closure, ok := m.Closures[hash]; ok {
		return closure, nil
	}
	return []string{hash}, nil
}

func (m *MockCommand) BuildcachePush(ctx context.Context, mirrorPath string, hash string, opts spack.PushOptions) (spack.PushOutcome, error) {
	m.record("BuildcachePush", mirrorPath+" /"+hash)
	outcome, ok := m.PushOutcomes[hash]
	if !ok {
		outcome = spack.Pushed
	}
	if outcome == spack.PushFailed {
		return outcome, fmt.Errorf("mock push of %s failed", hash)
	}
	return outcome, nil
}

func (m *MockCommand) BuildcacheUpdateIndex(ctx context.Context, mirrorPath string) error {
	m.record("BuildcacheUpdateIndex", mirrorPath)
	return m.UpdateIndexErr
}

var _ spack.Command = (*MockCommand)(nil)
