package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FS keeps objects as files under Root/bucket/key. It stands in for S3 in
// local runs and tests.
type FS struct {
	Root string
}

// NewFS creates a filesystem store rooted at root.
func NewFS(root string) *FS {
	return &FS{Root: root}
}

// Path returns the file backing bucket/key.
func (s *FS) Path(bucket, key string) (string, error) {
	p := filepath.Join(s.Root, bucket, filepath.FromSlash(key))
	if !strings.HasPrefix(p, filepath.Clean(s.Root)+string(filepath.Separator)) {
		return "", fmt.Errorf("object %s escapes the store root", URI(bucket, key))
	}
	return p, nil
}

// Upload copies filePath to bucket/key.
func (s *FS) Upload(_ context.Context, bucket, key, filePath string) error {
	dst, err := s.Path(bucket, key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	if err := copyFile(dst, filePath); err != nil {
		return fmt.Errorf("cannot upload %s: %w", URI(bucket, key), err)
	}
	return nil
}

// Download copies bucket/key to filePath.
func (s *FS) Download(_ context.Context, bucket, key, filePath string) error {
	src, err := s.Path(bucket, key)
	if err != nil {
		return err
	}
	if err := copyFile(filePath, src); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, URI(bucket, key))
		}
		return fmt.Errorf("cannot download %s: %w", URI(bucket, key), err)
	}
	return nil
}

func copyFile(dst, src string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
