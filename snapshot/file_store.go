package snapshot

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

const (
	dirPerm  = 0o755
	filePerm = 0o644
)

// FileStore lays snapshots out as <root>/<case id>/<name>
type FileStore struct {
	root string
}

var _ Store = (*FileStore)(nil)

func NewFileStore(root string) *FileStore {
	return &FileStore{root: root}
}

// Root returns the snapshot root directory
func (s *FileStore) Root() string {
	return s.root
}

// Path returns the file backing key
func (s *FileStore) Path(key Key) string {
	return filepath.Join(s.root, filepath.FromSlash(key.CaseID), key.Name)
}

func (s *FileStore) Read(_ context.Context, key Key) ([]byte, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	content, err := os.ReadFile(s.Path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reading snapshot %s", key)
	}
	return content, nil
}

// Write replaces the snapshot atomically: readers see either the old or the
// new content, never a partial file.
func (s *FileStore) Write(_ context.Context, key Key, content []byte) error {
	if err := key.Validate(); err != nil {
		return err
	}
	dst := s.Path(key)
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return errors.Wrapf(err, "creating snapshot directory for %s", key)
	}

	tmp, err := os.CreateTemp(dir, "."+key.Name+".*.tmp")
	if err != nil {
		return errors.Wrapf(err, "creating temp file for %s", key)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "writing snapshot %s", key)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "closing snapshot %s", key)
	}
	if err := os.Chmod(tmpName, filePerm); err != nil {
		return errors.Wrapf(err, "setting permissions on snapshot %s", key)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		return errors.Wrapf(err, "replacing snapshot %s", key)
	}
	return nil
}
