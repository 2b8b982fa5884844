package publish

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/daq-spack/bcpub/pkg/coordinate"
	"github.com/daq-spack/bcpub/pkg/util/files"
)

// Scratch holds the per-coordinate diagnostic dumps. File names derive from
// the coordinate, so a rerun overwrites the previous dump.
type Scratch struct {
	Dir string
}

func (s Scratch) SpecPath(c coordinate.Coordinate) string {
	return filepath.Join(s.Dir, c.Slug()+".spec.txt")
}

func (s Scratch) HashPath(c coordinate.Coordinate) string {
	return filepath.Join(s.Dir, c.Slug()+".hashes.txt")
}

func (s Scratch) WriteSpec(c coordinate.Coordinate, spec string) (string, error) {
	path := s.SpecPath(c)
	if !strings.HasSuffix(spec, "\n") {
		spec += "\n"
	}
	return path, files.WriteFileAtomic(path, []byte(spec))
}

// WriteHashes writes one hash per line, in closure order.
func (s Scratch) WriteHashes(c coordinate.Coordinate, hashes []string) (string, error) {
	path := s.HashPath(c)
	var buf bytes.Buffer
	for _, h := range hashes {
		buf.WriteString(h)
		buf.WriteByte('\n')
	}
	return path, files.WriteFileAtomic(path, buf.Bytes())
}

// Cleanup removes temp files left by an interrupted write.
func (s Scratch) Cleanup() error {
	return files.RemoveTemps(s.Dir)
}

// ReadHashes reads a hash dump back in file order. Blank lines are ignored.
func ReadHashes(path string) ([]string, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("Failed to read hash dump: %w", err)
	}
	var hashes []string
	scanner := bufio.NewScanner(bytes.NewReader(contents))
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			hashes = append(hashes, line)
		}
	}
	return hashes, scanner.Err()
}
