// Package coordinate describes the buildable package variants the publisher
// works on and the compiler epochs used to partition mirror storage.
package coordinate

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/daq-spack/bcpub/pkg/errors"
)

const DefaultCompilerFamily = "gcc"

// CompilerSpec is a compiler family and version, e.g. gcc@13.1.0.
type CompilerSpec struct {
	Family  string `json:"family" yaml:"family"`
	Version string `json:"version" yaml:"version"`
}

// ParseCompilerSpec accepts "gcc@13.1.0" or a bare "13.1.0", which is taken
// to be gcc.
func ParseCompilerSpec(s string) (CompilerSpec, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "%")
	if s == "" {
		return CompilerSpec{}, errors.ConfigInvalid("compiler is required")
	}
	family, version, found := strings.Cut(s, "@")
	if !found {
		return CompilerSpec{Family: DefaultCompilerFamily, Version: s}, nil
	}
	if family == "" || version == "" {
		return CompilerSpec{}, errors.ConfigInvalid(fmt.Sprintf("compiler %q must be in the form family@version", s))
	}
	return CompilerSpec{Family: family, Version: version}, nil
}

func (c CompilerSpec) String() string {
	family := c.Family
	if family == "" {
		family = DefaultCompilerFamily
	}
	return family + "@" + c.Version
}

// Coordinate identifies one buildable package variant.
type Coordinate struct {
	Name       string       `json:"name"`
	Version    string       `json:"version"`
	Qualifiers []string     `json:"qualifiers,omitempty"`
	Compiler   CompilerSpec `json:"compiler"`
	Arch       string       `json:"arch"`
}

// Validate reports every missing required field at once. A missing field is
// a configuration error.
func (c Coordinate) Validate() error {
	var missing []string
	if c.Name == "" {
		missing = append(missing, "name")
	}
	if c.Version == "" {
		missing = append(missing, "version")
	}
	if c.Compiler.Version == "" {
		missing = append(missing, "compiler version")
	}
	if c.Arch == "" {
		missing = append(missing, "arch")
	}
	if len(missing) > 0 {
		return errors.ConfigInvalid(fmt.Sprintf("coordinate %s is missing %s", c.Label(), strings.Join(missing, ", ")))
	}
	return nil
}

// SortedQualifiers returns the qualifiers in their stable serialization:
// key=value entries ordered by key then value, followed by bare variants
// (+foo, ~bar) in the order given. Exact duplicates are dropped.
func (c Coordinate) SortedQualifiers() []string {
	seen := make(map[string]bool, len(c.Qualifiers))
	var keyed, bare []string
	for _, q := range c.Qualifiers {
		q = strings.TrimSpace(q)
		if q == "" || seen[q] {
			continue
		}
		seen[q] = true
		if strings.Contains(q, "=") {
			keyed = append(keyed, q)
		} else {
			bare = append(bare, q)
		}
	}
	sort.SliceStable(keyed, func(i, j int) bool {
		ki, vi, _ := strings.Cut(keyed[i], "=")
		kj, vj, _ := strings.Cut(keyed[j], "=")
		if ki != kj {
			return ki < kj
		}
		return vi < vj
	})
	return append(keyed, bare...)
}

// Qualifier returns the value of a key=value qualifier.
func (c Coordinate) Qualifier(key string) (string, bool) {
	for _, q := range c.Qualifiers {
		k, v, found := strings.Cut(strings.TrimSpace(q), "=")
		if found && k == key {
			return v, true
		}
	}
	return "", false
}

// WithQualifier returns a copy of c with key=value set, replacing any
// existing value for key.
func (c Coordinate) WithQualifier(key, value string) Coordinate {
	out := make([]string, 0, len(c.Qualifiers)+1)
	for _, q := range c.Qualifiers {
		if k, _, found := strings.Cut(strings.TrimSpace(q), "="); found && k == key {
			continue
		}
		out = append(out, q)
	}
	c.Qualifiers = append(out, key+"="+value)
	return c
}

// SpecString renders the coordinate as a spack spec:
// name@version q1 q2 %compiler arch=<arch>.
func (c Coordinate) SpecString() string {
	parts := []string{c.Name + "@" + c.Version}
	parts = append(parts, c.SortedQualifiers()...)
	if c.Compiler.Version != "" {
		parts = append(parts, "%"+c.Compiler.String())
	}
	if c.Arch != "" {
		parts = append(parts, "arch="+c.Arch)
	}
	return strings.Join(parts, " ")
}

// SpecArgs is SpecString split into command-line arguments.
func (c Coordinate) SpecArgs() []string {
	return strings.Fields(c.SpecString())
}

// Label is a short human name used in log lines.
func (c Coordinate) Label() string {
	label := c.Name
	if c.Version != "" {
		label += "@" + c.Version
	}
	if q := c.SortedQualifiers(); len(q) > 0 {
		label += " " + strings.Join(q, " ")
	}
	if c.Compiler.Version != "" {
		label += " %" + c.Compiler.String()
	}
	return label
}

func (c Coordinate) String() string {
	return c.SpecString()
}

var unsafeSlugChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Slug is a deterministic, filesystem-safe name built from every field of
// the coordinate. Scratch and log files are named after it so repeated runs
// overwrite their previous output.
func (c Coordinate) Slug() string {
	parts := []string{c.Name, c.Version}
	for _, q := range c.SortedQualifiers() {
		parts = append(parts, strings.ReplaceAll(q, "=", ""))
	}
	parts = append(parts, strings.ReplaceAll(c.Compiler.String(), "@", ""), c.Arch)
	for i, p := range parts {
		parts[i] = unsafeSlugChars.ReplaceAllString(p, "_")
	}
	return strings.Trim(strings.Join(parts, "-"), "-")
}
