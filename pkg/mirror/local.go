package mirror

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/daq-spack/bcpub/pkg/util/files"
)

type LocalStore struct {
	rootDir string
}

// NewLocalStore opens a bucket directory. The directory may not exist yet
// (nothing has been pushed); reads then return ErrNotFound.
func NewLocalStore(rootDir string) (*LocalStore, error) {
	exists, err := files.Exists(rootDir)
	if err != nil {
		return nil, err
	}
	if exists {
		isDir, err := files.IsDir(rootDir)
		if err != nil {
			return nil, err
		}
		if !isDir {
			return nil, fmt.Errorf("Mirror path %s is not a directory", rootDir)
		}
	}
	return &LocalStore{rootDir: rootDir}, nil
}

func (s *LocalStore) Stat(ctx context.Context, key string) (ObjectInfo, error) {
	info, err := os.Stat(s.pathForKey(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ObjectInfo{}, fmt.Errorf("%s: %w", key, ErrNotFound)
		}
		return ObjectInfo{}, fmt.Errorf("Failed to stat %s: %w", key, err)
	}
	return ObjectInfo{Key: key, Size: info.Size(), Modified: info.ModTime()}, nil
}

func (s *LocalStore) Read(ctx context.Context, key string) ([]byte, error) {
	contents, err := os.ReadFile(s.pathForKey(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
		}
		return nil, fmt.Errorf("Failed to read %s: %w", key, err)
	}
	return contents, nil
}

func (s *LocalStore) pathForKey(key string) string {
	return filepath.Join(s.rootDir, filepath.FromSlash(key))
}
