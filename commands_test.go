package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rtm0/sstpoints/internal/config"
	"github.com/rtm0/sstpoints/internal/edl"
	"github.com/rtm0/sstpoints/internal/manifest"
	"github.com/rtm0/sstpoints/internal/pipeline"
	"github.com/rtm0/sstpoints/internal/store"
)

func TestReadEventFromStdin(t *testing.T) {
	in := strings.NewReader(`{"prefix":"podaac","input_granule_s3path":"s3://b/k.nc","output_granule_s3bucket":"out","collection_name":"MUR"}`)
	var ev pipeline.ExplodeEvent
	require.NoError(t, readEvent("-", in, &ev))
	assert.Equal(t, "s3://b/k.nc", ev.GranulePath())
	assert.Equal(t, "MUR", ev.CollectionName)
}

func TestReadEventFromFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "event.json")
	body := `{"input_rows":{"time":{"0":"2023-01-01T09:00:00Z"}},"output_granule_s3bucket":"out","collection_name":"MUR"}`
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	var item manifest.Batch
	require.NoError(t, readEvent(p, nil, &item))
	assert.Equal(t, []string{"0"}, item.InputRows.Labels())
}

func TestReadEventErrors(t *testing.T) {
	var ev pipeline.QueryEvent
	assert.ErrorIs(t, readEvent(filepath.Join(t.TempDir(), "absent.json"), nil, &ev), pipeline.ErrEvent)
	assert.ErrorIs(t, readEvent("-", strings.NewReader("{"), &ev), pipeline.ErrEvent)
}

func TestStoreBackends(t *testing.T) {
	root := t.TempDir()
	st, err := newStore("fs", root, config.S3{})
	require.NoError(t, err)
	assert.Equal(t, store.NewFS(root), st)

	st, err = newStore("s3", "", config.S3{Endpoint: "localhost:9000", Region: "us-west-2", Insecure: true})
	require.NoError(t, err)
	assert.IsType(t, &store.MinIO{}, st)

	cfg := &config.Config{StoreBackend: "s3", Source: config.S3{Endpoint: "s3.us-west-2.amazonaws.com", Region: "us-west-2"}}
	src, err := sourceFactory(cfg)(&edl.Credentials{AccessKeyID: "AK", SecretAccessKey: "SK", SessionToken: "T"})
	require.NoError(t, err)
	assert.IsType(t, &store.MinIO{}, src)
}
