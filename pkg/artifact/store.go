package artifact

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// Store reads and writes screenshot artifacts
type Store struct {
	fs afero.Fs
}

// NewStore creates a store over the given filesystem
func NewStore(fs afero.Fs) *Store {
	return &Store{fs: fs}
}

// NewOsStore creates a store on the real filesystem
func NewOsStore() *Store {
	return NewStore(afero.NewOsFs())
}

// Save writes data to path, creating the parent directory and replacing
// any previous artifact at the same path
func (s *Store) Save(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := s.fs.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create artifact dir: %w", err)
		}
	}
	if err := afero.WriteFile(s.fs, path, data, 0644); err != nil {
		return fmt.Errorf("failed to save artifact: %w", err)
	}
	return nil
}

// Open opens the artifact at path for reading
func (s *Store) Open(path string) (afero.File, os.FileInfo, error) {
	f, err := s.fs.Open(path)
	if err != nil {
		return nil, nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	if info.IsDir() {
		f.Close()
		return nil, nil, fmt.Errorf("artifact path %s is a directory", path)
	}
	return f, info, nil
}

// Exists reports whether an artifact has been written at path
func (s *Store) Exists(path string) bool {
	ok, err := afero.Exists(s.fs, path)
	return err == nil && ok
}
