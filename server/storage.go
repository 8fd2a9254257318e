package server

import (
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// Storage is the hierarchical file store the server exposes.
//
// All names passed to Storage are absolute paths in the store's own
// namespace; the Resolver guarantees they lie under the server root.
//
// Error handling:
//   - Return errors satisfying errors.Is(err, os.ErrNotExist) for missing paths
//   - Return errors satisfying errors.Is(err, os.ErrPermission) for denied access
//
// Implementations must be safe for concurrent use by several sessions.
type Storage interface {
	// Open opens a file for reading.
	Open(name string) (io.ReadCloser, error)

	// Create creates or truncates a file for writing.
	Create(name string) (io.WriteCloser, error)

	// ReadDir returns the immediate entries of a directory, sorted by name.
	ReadDir(name string) ([]os.FileInfo, error)

	// Stat returns file or directory metadata, following symlinks.
	Stat(name string) (os.FileInfo, error)

	// Lstat is Stat without following a final symlink.
	Lstat(name string) (os.FileInfo, error)

	// Mkdir creates a single directory.
	Mkdir(name string) error

	// RemoveAll removes a path and everything below it.
	RemoveAll(name string) error

	// Canonicalize returns the absolute form of name with every symlink and
	// ".." resolved. The path must exist.
	Canonicalize(name string) (string, error)
}

// AferoStorage implements Storage on top of an afero filesystem.
//
// On the OS filesystem canonicalization follows symlinks. On other afero
// filesystems, which have no symlinks, it cleans the path lexically and
// checks that it exists.
type AferoStorage struct {
	fs           afero.Fs
	evalSymlinks bool
}

// NewAferoStorage wraps fs.
//
// Example with an in-memory store:
//
//	fs := afero.NewMemMapFs()
//	_ = fs.MkdirAll("/srv/ftp", 0755)
//	store := server.NewAferoStorage(fs)
func NewAferoStorage(fs afero.Fs) *AferoStorage {
	_, isOS := fs.(*afero.OsFs)
	return &AferoStorage{fs: fs, evalSymlinks: isOS}
}

// NewOSStorage returns a Storage backed by the local filesystem.
func NewOSStorage() *AferoStorage {
	return NewAferoStorage(afero.NewOsFs())
}

func (s *AferoStorage) Open(name string) (io.ReadCloser, error) {
	return s.fs.Open(name)
}

// Create refuses to follow a symlink in the final component on the OS
// filesystem.
func (s *AferoStorage) Create(name string) (io.WriteCloser, error) {
	flag := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if s.evalSymlinks {
		flag |= oNoFollow
	}
	return s.fs.OpenFile(name, flag, 0644)
}

func (s *AferoStorage) ReadDir(name string) ([]os.FileInfo, error) {
	return afero.ReadDir(s.fs, name)
}

func (s *AferoStorage) Stat(name string) (os.FileInfo, error) {
	return s.fs.Stat(name)
}

func (s *AferoStorage) Lstat(name string) (os.FileInfo, error) {
	if l, ok := s.fs.(afero.Lstater); ok {
		info, _, err := l.LstatIfPossible(name)
		return info, err
	}
	return s.fs.Stat(name)
}

func (s *AferoStorage) Mkdir(name string) error {
	return s.fs.Mkdir(name, 0755)
}

func (s *AferoStorage) RemoveAll(name string) error {
	return s.fs.RemoveAll(name)
}

func (s *AferoStorage) Canonicalize(name string) (string, error) {
	if s.evalSymlinks {
		// EvalSymlinks applies ".." to the resolved prefix, never lexically.
		resolved, err := filepath.EvalSymlinks(name)
		if err != nil {
			return "", err
		}
		return filepath.Abs(resolved)
	}

	clean := filepath.Clean(name)
	if _, err := s.fs.Stat(clean); err != nil {
		return "", err
	}
	return clean, nil
}
