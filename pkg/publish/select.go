package publish

import (
	"context"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/daq-spack/bcpub/pkg/spack"
	"github.com/daq-spack/bcpub/pkg/util/console"
)

// Candidate is an installed artifact with the modification time of its
// install prefix.
type Candidate struct {
	spack.Artifact
	Modified time.Time
}

// SelectFunc picks the artifact to publish when several installed builds
// match one coordinate. It is only called with two or more candidates.
type SelectFunc func(candidates []Candidate) Candidate

// SelectLatest picks the most recently modified install prefix. Equal times
// are broken by the lexicographically largest hash, so the choice does not
// depend on the order spack listed them in.
//
// Recency is a heuristic: nothing guarantees the newest build is the one
// the coordinate meant.
func SelectLatest(candidates []Candidate) Candidate {
	best := candidates[0]
	for _, c := range candidates[1:] {
		switch {
		case c.Modified.After(best.Modified):
			best = c
		case c.Modified.Equal(best.Modified) && c.Hash > best.Hash:
			best = c
		}
	}
	return best
}

// StatArtifacts reads the install prefix modification times. Prefixes that
// cannot be read get the zero time and so lose to any readable one.
func StatArtifacts(ctx context.Context, artifacts []spack.Artifact) ([]Candidate, error) {
	candidates := make([]Candidate, len(artifacts))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, a := range artifacts {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			candidates[i] = Candidate{Artifact: a}
			info, err := os.Stat(a.InstallPath)
			if err != nil {
				console.Debugf("Cannot stat %s for %s: %s", a.InstallPath, a.Hash, err)
				return nil
			}
			candidates[i].Modified = info.ModTime()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return candidates, nil
}
