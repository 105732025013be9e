package filestore

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Store persists uploaded documents on the local filesystem under a
// single base directory, keyed by filename.
type Store struct {
	baseDir string
}

func New(baseDir string) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload directory failed: %w", err)
	}
	return &Store{baseDir: baseDir}, nil
}

// Path returns the on-disk path for a stored filename. The filename is
// reduced to its base component so callers cannot escape the base dir.
func (s *Store) Path(filename string) string {
	return filepath.Join(s.baseDir, filepath.Base(filename))
}

func (s *Store) Save(filename string, r io.Reader) (string, int64, error) {
	path := s.Path(filename)
	f, err := os.Create(path)
	if err != nil {
		return "", 0, fmt.Errorf("create file failed: %w", err)
	}
	defer f.Close()

	n, err := io.Copy(f, r)
	if err != nil {
		os.Remove(path)
		return "", 0, fmt.Errorf("write file failed: %w", err)
	}
	return path, n, nil
}

// Remove deletes the stored file. A missing file is not an error.
func (s *Store) Remove(filename string) error {
	err := os.Remove(s.Path(filename))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove file failed: %w", err)
	}
	return nil
}

func (s *Store) Exists(filename string) bool {
	_, err := os.Stat(s.Path(filename))
	return err == nil
}
