package server

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

// Resolver maps client paths onto storage paths under a server root.
//
// Security Model:
//   - Client paths are virtual: "/" is the server root, never the real root
//   - Relative paths are joined onto the session's working directory
//   - The joined path is canonicalized by the storage backend first, so
//     symlinks and ".." are applied to real directories
//   - Only then is the result required to lie under the root
type Resolver struct {
	store Storage
	root  string
}

// NewResolver canonicalizes root and returns a Resolver confined to it.
// Returns an error if root does not exist or is not a directory.
func NewResolver(store Storage, root string) (*Resolver, error) {
	canon, err := store.Canonicalize(root)
	if err != nil {
		return nil, fmt.Errorf("root path validation failed: %w", err)
	}
	info, err := store.Stat(canon)
	if err != nil {
		return nil, fmt.Errorf("root path validation failed: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root path is not a directory: %s", root)
	}
	return &Resolver{store: store, root: canon}, nil
}

// Root returns the canonical server root.
func (r *Resolver) Root() string {
	return r.root
}

// Resolve maps clientPath, relative to the virtual working directory cwd,
// onto an existing canonical storage path under the root.
//
// Returns ErrNotFound if the path does not exist and ErrPermissionDenied if
// it resolves outside the root.
func (r *Resolver) Resolve(cwd, clientPath string) (string, error) {
	canon, err := r.store.Canonicalize(r.join(virtualJoin(cwd, clientPath)))
	if err != nil {
		return "", pathError(err)
	}
	if !r.contains(canon) {
		return "", ErrPermissionDenied
	}
	return canon, nil
}

// ResolveCreate maps a path that may not exist yet. The parent must resolve
// to an existing directory under the root; the final component is appended
// to it. If the target already exists it is canonicalized again so that a
// symlink cannot redirect a write outside the root; a symlink whose target
// is missing is refused.
func (r *Resolver) ResolveCreate(cwd, clientPath string) (string, error) {
	dir, base := path.Split(strings.TrimRight(virtualJoin(cwd, clientPath), "/"))
	if base == "" || base == "." || base == ".." {
		return "", ErrPermissionDenied
	}

	parent, err := r.Resolve("/", dir)
	if err != nil {
		return "", err
	}
	info, err := r.store.Stat(parent)
	if err != nil {
		return "", pathError(err)
	}
	if !info.IsDir() {
		return "", ErrNotFound
	}

	target := filepath.Join(parent, base)
	canon, err := r.store.Canonicalize(target)
	if err == nil {
		if !r.contains(canon) {
			return "", ErrPermissionDenied
		}
		return canon, nil
	}

	// An entry that exists but does not canonicalize is a dangling or
	// looping symlink. Creating through it would follow the link.
	if _, err := r.store.Lstat(target); err == nil {
		return "", ErrPermissionDenied
	}
	return target, nil
}

// Virtual strips the root from a resolved path and returns the client view,
// always starting with "/".
func (r *Resolver) Virtual(resolved string) string {
	rel, err := filepath.Rel(r.root, resolved)
	if err != nil || rel == "." {
		return "/"
	}
	return "/" + filepath.ToSlash(rel)
}

func (r *Resolver) join(virtual string) string {
	rel := filepath.FromSlash(strings.TrimLeft(virtual, "/"))
	return r.root + string(filepath.Separator) + rel
}

func (r *Resolver) contains(p string) bool {
	if p == r.root {
		return true
	}
	prefix := r.root
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return strings.HasPrefix(p, prefix)
}

// virtualJoin joins clientPath onto cwd without cleaning it. An absolute
// clientPath starts at the virtual root.
func virtualJoin(cwd, clientPath string) string {
	if strings.HasPrefix(clientPath, "/") {
		return clientPath
	}
	return strings.TrimRight(cwd, "/") + "/" + clientPath
}

// virtualParent returns the parent of a virtual directory. The parent of
// "/" is "/".
func virtualParent(cwd string) string {
	return path.Dir(path.Clean("/" + cwd))
}

// hasParentSegment reports whether p contains a ".." component.
func hasParentSegment(p string) bool {
	for _, seg := range strings.FieldsFunc(p, func(r rune) bool { return r == '/' || r == '\\' }) {
		if seg == ".." {
			return true
		}
	}
	return false
}
