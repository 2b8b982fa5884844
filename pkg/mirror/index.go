package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
)

// IndexKey is where spack keeps a bucket's package catalog.
const IndexKey = "build_cache/index.json"

// IndexEntry is one package recorded in a bucket index.
type IndexEntry struct {
	Hash     string `json:"hash"`
	Name     string `json:"name"`
	Version  string `json:"version"`
	Compiler string `json:"compiler,omitempty"`
}

type indexFile struct {
	Database struct {
		Version  json.RawMessage `json:"version"`
		Installs map[string]struct {
			Spec struct {
				Name     string          `json:"name"`
				Version  json.RawMessage `json:"version"`
				Compiler *struct {
					Name    string          `json:"name"`
					Version json.RawMessage `json:"version"`
				} `json:"compiler"`
			} `json:"spec"`
		} `json:"installs"`
	} `json:"database"`
}

// ParseIndex reads a spack buildcache index. Entries are sorted by name,
// version and hash.
func ParseIndex(data []byte) ([]IndexEntry, error) {
	var idx indexFile
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("Failed to parse buildcache index: %w", err)
	}
	if idx.Database.Installs == nil {
		return nil, fmt.Errorf("Buildcache index has no database.installs")
	}
	entries := make([]IndexEntry, 0, len(idx.Database.Installs))
	for hash, install := range idx.Database.Installs {
		entry := IndexEntry{
			Hash:    hash,
			Name:    install.Spec.Name,
			Version: rawString(install.Spec.Version),
		}
		if c := install.Spec.Compiler; c != nil && c.Name != "" {
			entry.Compiler = c.Name + "@" + rawString(c.Version)
		}
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		if a.Version != b.Version {
			return a.Version < b.Version
		}
		return a.Hash < b.Hash
	})
	return entries, nil
}

// versions appear both as strings and as numbers depending on the spack release
func rawString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// ReadIndex fetches and parses a bucket's index.
func ReadIndex(ctx context.Context, store Store) ([]IndexEntry, error) {
	data, err := store.Read(ctx, IndexKey)
	if err != nil {
		return nil, err
	}
	return ParseIndex(data)
}

// VerifyIndex confirms that the bucket index exists and parses, returning
// the number of packages it lists.
func VerifyIndex(ctx context.Context, store Store) (int, error) {
	if _, err := store.Stat(ctx, IndexKey); err != nil {
		return 0, err
	}
	entries, err := ReadIndex(ctx, store)
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

// Contains reports whether the index lists hash.
func Contains(entries []IndexEntry, hash string) bool {
	for _, e := range entries {
		if e.Hash == hash {
			return true
		}
	}
	return false
}
