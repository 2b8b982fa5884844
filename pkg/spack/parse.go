package spack

import (
	"bufio"
	"fmt"
	"regexp"
	"strings"
)

// DefaultAlreadyCachedMarkers are the phrases spack prints when a pushed
// spec is already in the buildcache. Older releases refuse to overwrite the
// tarball with an error; newer ones report the spec as skipped. Each phrase
// names the buildcache or the overwrite refusal, so an unrelated "already
// exists" in a failing push is not mistaken for one.
var DefaultAlreadyCachedMarkers = []string{
	"already in the buildcache",
	"already in buildcache",
	"already exist in the buildcache",
	"exists in binary cache",
	"already exists; use -f to overwrite",
}

const noMatchMarker = "No package matches the query"

var (
	hashPattern   = regexp.MustCompile(`^[a-z0-9]{7,}$`)
	installStatus = regexp.MustCompile(`^\[[+^e-]\]\s*`)
)

// ClassifyPush turns the exit status and output of `spack buildcache push`
// into a PushOutcome. An "already in cache" marker wins over a non-zero exit,
// since older spack releases refuse to overwrite with an error.
func ClassifyPush(runErr error, output string, markers []string) PushOutcome {
	if len(markers) == 0 {
		markers = DefaultAlreadyCachedMarkers
	}
	lower := strings.ToLower(output)
	for _, marker := range markers {
		if marker != "" && strings.Contains(lower, strings.ToLower(marker)) {
			return AlreadyPresent
		}
	}
	if runErr != nil {
		return PushFailed
	}
	return Pushed
}

// ParseFind reads `spack find --format "{hash} {prefix}"` output.
func ParseFind(output string) ([]Artifact, error) {
	var artifacts []Artifact
	seen := map[string]bool{}
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if skipLine(line) {
			continue
		}
		hash, prefix, found := strings.Cut(line, " ")
		prefix = strings.TrimSpace(prefix)
		if !found || prefix == "" || !hashPattern.MatchString(hash) {
			return nil, fmt.Errorf("unexpected spack find output line %q", line)
		}
		if seen[hash] {
			continue
		}
		seen[hash] = true
		artifacts = append(artifacts, Artifact{Hash: hash, InstallPath: prefix})
	}
	return artifacts, scanner.Err()
}

// ParseClosure reads the dependency tree printed by
// `spack find --deps --format "{hash}" /<hash>`. Indentation and tree
// markers are dropped; order of first appearance is kept, so the root comes
// first.
func ParseClosure(output string) ([]string, error) {
	var hashes []string
	seen := map[string]bool{}
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if skipLine(line) {
			continue
		}
		hash := strings.TrimLeft(installStatus.ReplaceAllString(line, ""), "^ ")
		if !hashPattern.MatchString(hash) {
			return nil, fmt.Errorf("unexpected spack find output line %q", line)
		}
		if seen[hash] {
			continue
		}
		seen[hash] = true
		hashes = append(hashes, hash)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return hashes, nil
}

func skipLine(line string) bool {
	return line == "" || strings.HasPrefix(line, "==>") || strings.HasPrefix(line, "--")
}

func isNoMatch(output string) bool {
	return strings.Contains(output, noMatchMarker)
}
