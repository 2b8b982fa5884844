// Package mirror locates buildcache buckets and reads what has been
// published to them.
package mirror

import (
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/daq-spack/bcpub/pkg/coordinate"
)

// DefaultBucketQualifier is the qualifier key whose value names the bucket,
// e.g. s=132 gives s132.
const DefaultBucketQualifier = "s"

// Target is a buildcache destination: one bucket per (qualifier, compiler
// epoch) pair under a common base.
type Target struct {
	BasePath string
	Bucket   string
}

// BucketName renders the bucket partition name, e.g. s132-e28. An empty
// qualifier gives the bare epoch.
func BucketName(qualifierKey, qualifierValue, epoch string) string {
	if qualifierValue == "" {
		return epoch
	}
	return qualifierKey + qualifierValue + "-" + epoch
}

// NewTarget computes the bucket for a coordinate.
func NewTarget(base string, c coordinate.Coordinate, epochs coordinate.EpochTable, qualifierKey string) (Target, error) {
	if base == "" {
		return Target{}, fmt.Errorf("mirror base is required")
	}
	epoch, err := epochs.Epoch(c.Compiler)
	if err != nil {
		return Target{}, err
	}
	if qualifierKey == "" {
		qualifierKey = DefaultBucketQualifier
	}
	value, _ := c.Qualifier(qualifierKey)
	return Target{BasePath: base, Bucket: BucketName(qualifierKey, value, epoch)}, nil
}

// Path joins base and bucket. URL bases keep their scheme.
func (t Target) Path() string {
	if u, err := url.Parse(t.BasePath); err == nil && u.Scheme != "" && u.Scheme != "file" {
		u.Path = path.Join(u.Path, t.Bucket)
		return u.String()
	}
	return filepath.Join(LocalPath(t.BasePath), t.Bucket)
}

func (t Target) String() string {
	return t.Path()
}

// IsS3 reports whether the base is an s3:// URL.
func (t Target) IsS3() bool {
	return strings.HasPrefix(t.BasePath, "s3://")
}

// LocalPath strips a file:// scheme.
func LocalPath(p string) string {
	return strings.TrimPrefix(p, "file://")
}
