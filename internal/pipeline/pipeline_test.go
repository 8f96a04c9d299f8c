package pipeline

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/rtm0/sstpoints/internal/dispatch"
	"github.com/rtm0/sstpoints/internal/manifest"
	"github.com/rtm0/sstpoints/internal/metrics"
	"github.com/rtm0/sstpoints/internal/sst"
	"github.com/rtm0/sstpoints/internal/store"
)

type recordingNotifier struct {
	staged []dispatch.Staged
}

func (r *recordingNotifier) Notify(_ context.Context, s dispatch.Staged) error {
	r.staged = append(r.staged, s)
	return nil
}

func (r *recordingNotifier) Close() error { return nil }

type env struct {
	out      *store.FS
	notifier *recordingNotifier
	metrics  *metrics.Metrics
	scratch  string
	deps     Deps
}

func newEnv(t *testing.T) *env {
	e := &env{
		out:      store.NewFS(t.TempDir()),
		notifier: &recordingNotifier{},
		metrics:  metrics.New(),
		scratch:  t.TempDir(),
	}
	e.deps = Deps{
		Logger:       zerolog.Nop(),
		Output:       e.out,
		Notifier:     e.notifier,
		Metrics:      e.metrics,
		ScratchBase:  e.scratch,
		InvocationID: "inv-test",
	}
	return e
}

func (e *env) readManifest(t *testing.T, bucket, key string, v any) {
	t.Helper()
	p, err := e.out.Path(bucket, key)
	require.NoError(t, err)
	b, err := os.ReadFile(p)
	require.NoError(t, err)
	require.NoError(t, manifest.DecodeBytes(b, v))
}

func (e *env) exists(t *testing.T, bucket, key string) bool {
	t.Helper()
	p, err := e.out.Path(bucket, key)
	require.NoError(t, err)
	_, err = os.Stat(p)
	if errors.Is(err, os.ErrNotExist) {
		return false
	}
	require.NoError(t, err)
	return true
}

// scratchEmpty reports whether every invocation directory was removed.
func (e *env) scratchEmpty(t *testing.T) bool {
	t.Helper()
	entries, err := os.ReadDir(e.scratch)
	require.NoError(t, err)
	return len(entries) == 0
}

// testGrid is a 2x3 grid with one missing cell.
func testGrid() *sst.Grid {
	return &sst.Grid{
		Time: time.Date(2023, 1, 1, 9, 0, 0, 0, time.UTC),
		Lat:  []float64{-10, -9.99},
		Lon:  []float64{100, 100.01, 100.02},
		Value: [][]float64{
			{300, 301, 302},
			{303, math.NaN(), 305},
		},
		Anomaly: [][]float64{
			{0.1, 0.2, 0.3},
			{0.4, math.NaN(), 0.6},
		},
	}
}

func writeFile(t *testing.T, p string, b []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, b, 0o644))
}
