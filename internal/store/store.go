// Package store moves files between the local scratch area and an object
// store.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when downloading an object that does not exist.
var ErrNotFound = errors.New("object not found")

// Store uploads and downloads whole objects through local files.
type Store interface {
	// Upload copies the local file to bucket/key, replacing any existing
	// object.
	Upload(ctx context.Context, bucket, key, filePath string) error
	// Download copies bucket/key into the local file.
	Download(ctx context.Context, bucket, key, filePath string) error
}

// URI returns the s3:// URI of an object.
func URI(bucket, key string) string {
	return "s3://" + bucket + "/" + key
}

// ParseURI splits an s3:// URI, or a bare "bucket/key" path, into bucket and
// key.
func ParseURI(uri string) (bucket, key string, err error) {
	path := strings.TrimPrefix(uri, "s3://")
	bucket, key, ok := strings.Cut(path, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("invalid object URI %q", uri)
	}
	return bucket, key, nil
}
