package state

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"
)

// FileStore keeps watermarks in a TOML file:
//
//	["org/repo"]
//	main = "4f1c2d..."
//	"feature/login" = "9ab03e..."
type FileStore struct {
	path string
	log  *zap.SugaredLogger
}

// NewFileStore creates a FileStore backed by path.
func NewFileStore(path string, log *zap.SugaredLogger) *FileStore {
	return &FileStore{path: path, log: log}
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the state file. A missing, unreadable or corrupt file yields an
// empty mapping so every branch is treated as seen for the first time.
func (s *FileStore) Load() Watermarks {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.log.Infow("no state file found, starting with empty state", "path", s.path)
		return Watermarks{}
	}
	if err != nil {
		s.log.Warnw("could not read state file, starting with empty state", "path", s.path, "error", err)
		return Watermarks{}
	}

	var wm Watermarks
	if _, err := toml.Decode(string(data), &wm); err != nil {
		s.log.Warnw("state file is corrupt, starting with empty state", "path", s.path, "error", err)
		return Watermarks{}
	}
	if wm == nil {
		wm = Watermarks{}
	}
	s.log.Debugw("loaded state", "path", s.path, "branches", wm.Len())
	return wm
}

// Save atomically replaces the state file: the mapping is written to a
// temporary file in the same directory which is then renamed over the target.
func (s *FileStore) Save(wm Watermarks) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(wm); err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp state file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op once renamed

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("writing state: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing state file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replacing state file: %w", err)
	}
	s.log.Debugw("saved state", "path", s.path, "branches", wm.Len())
	return nil
}
