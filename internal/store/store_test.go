package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseURI(t *testing.T) {
	bucket, key, err := ParseURI("s3://podaac-ops/MUR-JPL-L4-GLOB-v4.1/2023.nc")
	require.NoError(t, err)
	assert.Equal(t, "podaac-ops", bucket)
	assert.Equal(t, "MUR-JPL-L4-GLOB-v4.1/2023.nc", key)

	bucket, key, err = ParseURI("out/c/json/granules.json")
	require.NoError(t, err)
	assert.Equal(t, "out", bucket)
	assert.Equal(t, "c/json/granules.json", key)

	for _, bad := range []string{"s3://bucket", "s3:///key", "", "bucket/"} {
		_, _, err := ParseURI(bad)
		assert.Error(t, err, bad)
	}
	assert.Equal(t, "s3://b/k/x.parquet", URI("b", "k/x.parquet"))
}

func TestFSRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewFS(t.TempDir())
	src := filepath.Join(t.TempDir(), "in.json")
	require.NoError(t, os.WriteFile(src, []byte(`[]`), 0o644))

	require.NoError(t, s.Upload(ctx, "out", "c/json/points.json", src))
	p, err := s.Path("out", "c/json/points.json")
	require.NoError(t, err)
	assert.FileExists(t, p)

	dst := filepath.Join(t.TempDir(), "back.json")
	require.NoError(t, s.Download(ctx, "out", "c/json/points.json", dst))
	b, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, `[]`, string(b))

	err = s.Download(ctx, "out", "missing", dst)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFSRejectsEscapingKeys(t *testing.T) {
	s := NewFS(t.TempDir())
	_, err := s.Path("out", "../../etc/passwd")
	assert.Error(t, err)
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "application/vnd.apache.parquet", contentType("c/geo_points/1/t.parquet"))
	assert.Equal(t, "application/json", contentType("c/json/points.json"))
	assert.Equal(t, "application/octet-stream", contentType("noext"))
}
