// Package local stores model artifact blobs as files in a directory.
package local

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/turtacn/ChemPredict/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ChemPredict/pkg/errors"
)

// Store is a directory of named blobs.  Writes go through a temporary file
// and a rename so readers never observe a partial blob.
type Store struct {
	dir    string
	logger logging.Logger
}

// New returns a store rooted at ResolveDir(dir).  The directory is created on
// first Put.
func New(dir string, log logging.Logger) *Store {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &Store{dir: ResolveDir(dir), logger: log}
}

// Dir returns the resolved root directory.
func (s *Store) Dir() string { return s.dir }

// Path returns the file path of name.
func (s *Store) Path(name string) string { return filepath.Join(s.dir, name) }

// ResolveDir makes a relative dir absolute.  It prefers the working
// directory; when dir does not exist there but exists next to the running
// executable, the executable's directory wins.
func ResolveDir(dir string) string {
	if dir == "" {
		dir = "."
	}
	if filepath.IsAbs(dir) {
		return filepath.Clean(dir)
	}
	cwdPath, err := filepath.Abs(dir)
	if err != nil {
		return dir
	}
	if _, err := os.Stat(cwdPath); err == nil {
		return cwdPath
	}
	if exe, err := os.Executable(); err == nil {
		if resolved, err := filepath.EvalSymlinks(exe); err == nil {
			exe = resolved
		}
		appPath := filepath.Join(filepath.Dir(exe), dir)
		if _, err := os.Stat(appPath); err == nil {
			return appPath
		}
	}
	return cwdPath
}

func checkName(name string) error {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return errors.InvalidInput("invalid artifact name").WithDetail(name)
	}
	return nil
}

// Put writes data to name atomically.
func (s *Store) Put(_ context.Context, name string, data []byte) error {
	if err := checkName(name); err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageError, "failed to create model directory").WithDetail(s.dir)
	}
	tmp, err := os.CreateTemp(s.dir, "."+name+".*")
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageError, "failed to create temporary file").WithDetail(s.dir)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return errors.Wrap(err, errors.ErrCodeStorageError, "failed to write artifact").WithDetail(name)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return errors.Wrap(err, errors.ErrCodeStorageError, "failed to close artifact").WithDetail(name)
	}
	if err := os.Rename(tmpName, s.Path(name)); err != nil {
		_ = os.Remove(tmpName)
		return errors.Wrap(err, errors.ErrCodeStorageError, "failed to move artifact into place").WithDetail(name)
	}
	s.logger.Debug("artifact written", logging.String("path", s.Path(name)), logging.Int("bytes", len(data)))
	return nil
}

// Get reads name.  A missing file yields ArtifactMissing.
func (s *Store) Get(_ context.Context, name string) ([]byte, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.Path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.ArtifactMissing(s.Path(name))
		}
		return nil, errors.Wrap(err, errors.ErrCodeStorageError, "failed to read artifact").WithDetail(s.Path(name))
	}
	return data, nil
}

// Exists reports whether name is a regular file.
func (s *Store) Exists(_ context.Context, name string) (bool, error) {
	if err := checkName(name); err != nil {
		return false, err
	}
	info, err := os.Stat(s.Path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, errors.Wrap(err, errors.ErrCodeStorageError, "failed to stat artifact").WithDetail(s.Path(name))
	}
	return info.Mode().IsRegular(), nil
}
