package publish

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/daq-spack/bcpub/pkg/coordinate"
	"github.com/daq-spack/bcpub/pkg/errors"
	"github.com/daq-spack/bcpub/pkg/util/console"
)

// BatchEntry is one row of a batch list: which version to build with which
// qualifier, compiler and C++ standard.
type BatchEntry struct {
	Version   string `json:"version" yaml:"version"`
	Qualifier string `json:"qualifier,omitempty" yaml:"qualifier"`
	Compiler  string `json:"compiler" yaml:"compiler"`
	Standard  string `json:"standard,omitempty" yaml:"standard"`
}

// Template holds the fields shared by every entry of a batch.
type Template struct {
	Name       string
	Arch       string
	Qualifiers []string
}

var shortQualifier = regexp.MustCompile(`^([a-z]+)([0-9]+)$`)

// normalizeQualifier accepts s=132 or the short form s132.
func normalizeQualifier(q string) string {
	q = strings.TrimSpace(q)
	if strings.Contains(q, "=") {
		return q
	}
	if m := shortQualifier.FindStringSubmatch(q); m != nil {
		return m[1] + "=" + m[2]
	}
	return q
}

// normalizeStandard accepts 20, c++20, cxx20 or cxxstd=20.
func normalizeStandard(s string) string {
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"cxxstd=", "c++", "cxx"} {
		s = strings.TrimPrefix(s, prefix)
	}
	return s
}

// Expand turns entries into coordinates, keeping their order.
func (t Template) Expand(entries []BatchEntry) ([]coordinate.Coordinate, error) {
	coords := make([]coordinate.Coordinate, 0, len(entries))
	for i, e := range entries {
		compiler, err := coordinate.ParseCompilerSpec(e.Compiler)
		if err != nil {
			return nil, fmt.Errorf("batch entry %d: %w", i+1, err)
		}
		c := coordinate.Coordinate{
			Name:       t.Name,
			Version:    e.Version,
			Qualifiers: append([]string(nil), t.Qualifiers...),
			Compiler:   compiler,
			Arch:       t.Arch,
		}
		if e.Qualifier != "" {
			q := normalizeQualifier(e.Qualifier)
			if key, value, found := strings.Cut(q, "="); found {
				c = c.WithQualifier(key, value)
			} else {
				c.Qualifiers = append(c.Qualifiers, q)
			}
		}
		if e.Standard != "" {
			c = c.WithQualifier("cxxstd", normalizeStandard(e.Standard))
		}
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("batch entry %d: %w", i+1, err)
		}
		coords = append(coords, c)
	}
	return coords, nil
}

// NewBatchID returns a time-ordered batch identifier, so log directories
// named after it sort chronologically.
func NewBatchID() string {
	if id, err := uuid.NewV7(); err == nil {
		return id.String()
	}
	// fallback to a uuid v4 which is even less likely to fail
	if id, err := uuid.NewRandom(); err == nil {
		return id.String()
	}
	return fmt.Sprintf("batch-%d", time.Now().UnixNano())
}

// BatchResult holds one Result per coordinate, in batch order.
type BatchResult struct {
	ID        string        `json:"id"`
	Results   []Result      `json:"results"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Warnings  int           `json:"warnings"`
	Duration  time.Duration `json:"duration_ns"`
}

func (b BatchResult) OK() bool {
	return b.Failed == 0
}

// RunBatch publishes coordinates one after another in the order given. A
// failed coordinate is counted and the batch moves on. The spack
// environment is re-activated before the first coordinate and whenever the
// compiler or architecture changes. done, if set, is called after each
// coordinate. An empty id gets a new one from NewBatchID.
func (p *Publisher) RunBatch(ctx context.Context, id string, coords []coordinate.Coordinate, mirrorBase string, done func(i int, r Result)) BatchResult {
	start := p.Now()
	if id == "" {
		id = NewBatchID()
	}
	batch := BatchResult{ID: id}
	console.Infof("Starting batch %s with %d coordinates", batch.ID, len(coords))

	var active *coordinate.Coordinate
	for i, c := range coords {
		var result Result
		if err := ctx.Err(); err != nil {
			result = Result{
				Coordinate: c,
				Err: &errors.StageError{
					Coordinate: c.SpecString(),
					Stage:      StageStart.String(),
					ErrCode:    errors.CodeCanceled,
					Err:        err,
				},
			}
		} else {
			if active == nil || active.Compiler != c.Compiler || active.Arch != c.Arch {
				if err := p.Command.Activate(ctx, c.Compiler, c.Arch); err != nil {
					console.Warnf("Failed to activate %s for %s: %s", c.Compiler, c.Arch, err)
				}
				active = &coords[i]
			}
			result = p.Publish(ctx, c, mirrorBase)
		}

		if result.OK() {
			batch.Succeeded++
		} else {
			batch.Failed++
		}
		batch.Warnings += len(result.Warnings)
		batch.Results = append(batch.Results, result)
		if done != nil {
			done(i, result)
		}
	}
	batch.Duration = p.Now().Sub(start)

	if batch.Failed > 0 {
		console.Errorf("Batch %s: %d of %d coordinates failed", batch.ID, batch.Failed, len(coords))
		for _, r := range batch.Results {
			if r.Err != nil {
				console.Errorf("  %s", r.Err)
			}
		}
	} else {
		console.Infof("Batch %s: all %d coordinates published in %s", batch.ID, len(coords), console.FormatDuration(batch.Duration))
	}
	return batch
}
