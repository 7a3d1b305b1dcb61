// Package filestore persists uploaded files (photos, documents) and hands
// back opaque keys stored as custom field values.
package filestore

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

type Store interface {
	Save(filename string, data io.Reader) (key string, err error)
	Remove(key string) error
}

// Local stores files in a flat directory under random keys, keeping the
// original extension for content-type sniffing by the file server.
type Local struct {
	dir string
}

func NewLocal(dir string) (*Local, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("filestore.mkdir: %w", err)
	}
	return &Local{dir: dir}, nil
}

func (s *Local) Save(filename string, data io.Reader) (string, error) {
	key := uuid.NewString() + strings.ToLower(path.Ext(filename))

	f, err := os.Create(filepath.Join(s.dir, key))
	if err != nil {
		return "", fmt.Errorf("filestore.create: %w", err)
	}
	defer f.Close()

	if _, err = io.Copy(f, data); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("filestore.write: %w", err)
	}
	return key, nil
}

func (s *Local) Remove(key string) error {
	// keys are flat names; refuse anything that could escape the dir
	if key == "" || key != filepath.Base(key) {
		return nil
	}
	err := os.Remove(filepath.Join(s.dir, key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// Path resolves a key for serving; empty when the key is suspect.
func (s *Local) Path(key string) string {
	if key == "" || key != filepath.Base(key) {
		return ""
	}
	return filepath.Join(s.dir, key)
}
