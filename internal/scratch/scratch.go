// Package scratch manages the local working directory owned by one stage
// invocation.
package scratch

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Dir is a private directory under the scratch base. Everything below it is
// removed by Close.
type Dir struct {
	root string
}

// Acquire creates a fresh directory for the invocation under base. An empty
// base means the OS temp directory.
func Acquire(base, invocationID string) (*Dir, error) {
	if base == "" {
		base = os.TempDir()
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create scratch base %q: %w", base, err)
	}
	root, err := os.MkdirTemp(base, "sstpoints-"+invocationID+"-")
	if err != nil {
		return nil, fmt.Errorf("cannot create scratch directory: %w", err)
	}
	return &Dir{root: root}, nil
}

// Root returns the directory path.
func (d *Dir) Root() string {
	return d.root
}

// File returns the local path for rel, creating its parent directories.
func (d *Dir) File(rel string) (string, error) {
	p := filepath.Join(d.root, filepath.FromSlash(rel))
	if !strings.HasPrefix(p, d.root+string(filepath.Separator)) {
		return "", fmt.Errorf("scratch path %q escapes %s", rel, d.root)
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", fmt.Errorf("cannot create scratch path %q: %w", rel, err)
	}
	return p, nil
}

// Remove deletes a file created through File. A file that does not exist is
// not an error.
func (d *Dir) Remove(p string) error {
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Close removes the directory and everything in it.
func (d *Dir) Close() error {
	return os.RemoveAll(d.root)
}
