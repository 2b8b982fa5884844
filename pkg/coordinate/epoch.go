package coordinate

import (
	"fmt"

	"github.com/hashicorp/go-version"

	"github.com/daq-spack/bcpub/pkg/errors"
)

// EpochRule maps a range of compiler versions to an epoch label such as e28.
type EpochRule struct {
	Family     string `json:"family" yaml:"family"`
	Constraint string `json:"constraint" yaml:"constraint"`
	Label      string `json:"label" yaml:"label"`
}

// EpochTable is evaluated in order; the first matching rule wins.
type EpochTable []EpochRule

// DefaultEpochs follows the compiler qualifiers of the artdaq/sbndaq releases.
var DefaultEpochs = EpochTable{
	{Family: "gcc", Constraint: ">= 6.4, < 6.5", Label: "e15"},
	{Family: "gcc", Constraint: ">= 7.3, < 7.4", Label: "e17"},
	{Family: "gcc", Constraint: ">= 8.2, < 8.3", Label: "e19"},
	{Family: "gcc", Constraint: ">= 9.3, < 9.4", Label: "e20"},
	{Family: "gcc", Constraint: ">= 12.1, < 12.2", Label: "e26"},
	{Family: "gcc", Constraint: ">= 13.1, < 13.2", Label: "e28"},
	{Family: "clang", Constraint: ">= 7.0, < 8.0", Label: "c7"},
	{Family: "clang", Constraint: ">= 14.0, < 15.0", Label: "c14"},
}

// Epoch returns the epoch label for a compiler.
func (t EpochTable) Epoch(c CompilerSpec) (string, error) {
	v, err := version.NewVersion(c.Version)
	if err != nil {
		return "", errors.UnknownEpoch(fmt.Sprintf("compiler %s has an unparseable version: %s", c, err))
	}
	family := c.Family
	if family == "" {
		family = DefaultCompilerFamily
	}
	for _, rule := range t {
		if rule.Family != family {
			continue
		}
		constraints, err := version.NewConstraint(rule.Constraint)
		if err != nil {
			return "", errors.ConfigInvalid(fmt.Sprintf("epoch %s has an invalid constraint %q: %s", rule.Label, rule.Constraint, err))
		}
		if constraints.Check(v) {
			return rule.Label, nil
		}
	}
	return "", errors.UnknownEpoch(fmt.Sprintf("no compiler epoch is defined for %s", c))
}

// Validate checks that every rule is complete and its constraint parses.
func (t EpochTable) Validate() error {
	for i, rule := range t {
		if rule.Family == "" || rule.Label == "" || rule.Constraint == "" {
			return errors.ConfigInvalid(fmt.Sprintf("epoch rule %d needs family, constraint and label", i))
		}
		if _, err := version.NewConstraint(rule.Constraint); err != nil {
			return errors.ConfigInvalid(fmt.Sprintf("epoch %s has an invalid constraint %q: %s", rule.Label, rule.Constraint, err))
		}
	}
	return nil
}
