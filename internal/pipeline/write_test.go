package pipeline

import (
	"context"
	"errors"
	"io"
	"os"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rtm0/sstpoints/internal/manifest"
	"github.com/rtm0/sstpoints/internal/points"
	"github.com/rtm0/sstpoints/internal/sst"
)

func testBatch(t *testing.T) manifest.Batch {
	t.Helper()
	pts, err := sst.Flatten(testGrid())
	require.NoError(t, err)
	return manifest.Batch{
		InputRows:      manifest.NewTable(pts[:4]),
		OutputBucket:   "out",
		CollectionName: "MUR",
	}
}

func TestWriteStagesPoints(t *testing.T) {
	e := newEnv(t)
	report, err := NewWrite(e.deps).Run(context.Background(), testBatch(t))
	require.NoError(t, err)
	assert.Equal(t, "MUR/json/points-2023-01-01T09_00_00Z-0-3.json", report.Key)
	assert.Equal(t, 4, report.Rows)
	assert.Equal(t, 4, report.Written)
	assert.Empty(t, report.Failures)

	var items []manifest.Point
	e.readManifest(t, "out", report.Key, &items)
	require.Len(t, items, 4)
	assert.Equal(t, manifest.Point{
		InputS3Path:    "s3://out/MUR/geo_points/2/2023-01-01T09:00:00Z.parquet",
		CollectionName: "MUR",
		OutputS3Bucket: "out",
	}, items[2])

	p, err := e.out.Path("out", "MUR/geo_points/2/2023-01-01T09:00:00Z.parquet")
	require.NoError(t, err)
	f, err := os.Open(p)
	require.NoError(t, err)
	defer f.Close()
	st, err := f.Stat()
	require.NoError(t, err)
	got, err := points.ReadParquet(f, st.Size())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 2, got[0].PointID)
	assert.InDelta(t, 302, got[0].Value, 1e-9)

	require.Len(t, e.notifier.staged, 1)
	assert.Equal(t, "write", e.notifier.staged[0].Stage)
	assert.InDelta(t, 4, testutil.ToFloat64(e.metrics.PointsWritten), 0)
	assert.True(t, e.scratchEmpty(t))
}

func TestWriteSkipsFailedPoint(t *testing.T) {
	e := newEnv(t)
	enc := func(w io.Writer, p *sst.Point) error {
		if p.PointID == 2 {
			return errors.New("disk full")
		}
		return points.EncodeParquet(w, p)
	}
	report, err := NewWrite(e.deps, points.WithEncoder(enc)).Run(context.Background(), testBatch(t))
	require.NoError(t, err)
	assert.Equal(t, 3, report.Written)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, 2, report.Failures[0].PointID)

	var items []manifest.Point
	e.readManifest(t, "out", report.Key, &items)
	require.Len(t, items, 3)
	for _, it := range items {
		assert.NotContains(t, it.InputS3Path, "/geo_points/2/")
	}
	assert.False(t, e.exists(t, "out", "MUR/geo_points/2/2023-01-01T09:00:00Z.parquet"))
	assert.InDelta(t, 1, testutil.ToFloat64(e.metrics.PointsFailed), 0)
}

func TestWriteReportsUndecodableRows(t *testing.T) {
	e := newEnv(t)
	item := testBatch(t)
	item.InputRows[manifest.ColLat]["1"] = "north"
	delete(item.InputRows[manifest.ColValue], "3")

	report, err := NewWrite(e.deps).Run(context.Background(), item)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Written)
	require.Len(t, report.Failures, 2)
	assert.Equal(t, 1, report.Failures[0].PointID)
	assert.Equal(t, "2023-01-01T09:00:00Z", report.Failures[0].Time)
	assert.Equal(t, 3, report.Failures[1].PointID)

	var items []manifest.Point
	e.readManifest(t, "out", report.Key, &items)
	assert.Len(t, items, 2)
}

func TestWriteAllFailedStagesEmptyManifest(t *testing.T) {
	e := newEnv(t)
	enc := func(io.Writer, *sst.Point) error { return errors.New("boom") }
	report, err := NewWrite(e.deps, points.WithEncoder(enc)).Run(context.Background(), testBatch(t))
	require.NoError(t, err)
	assert.Zero(t, report.Written)

	var items []manifest.Point
	e.readManifest(t, "out", report.Key, &items)
	assert.NotNil(t, items)
	assert.Empty(t, items)
}

func TestWriteSchemaMismatch(t *testing.T) {
	e := newEnv(t)
	item := testBatch(t)
	delete(item.InputRows, manifest.ColAnomaly)
	item.InputRows["analysed_sst"] = map[string]any{"0": 1.0}

	_, err := NewWrite(e.deps).Run(context.Background(), item)
	assert.ErrorIs(t, err, manifest.ErrSchema)
	assert.Empty(t, e.notifier.staged)
}

func TestWriteRejectsEmptyOrIncompleteItem(t *testing.T) {
	e := newEnv(t)
	w := NewWrite(e.deps)

	_, err := w.Run(context.Background(), manifest.Batch{
		InputRows:      manifest.NewTable(nil),
		OutputBucket:   "out",
		CollectionName: "MUR",
	})
	assert.ErrorIs(t, err, manifest.ErrSchema)

	item := testBatch(t)
	item.OutputBucket = ""
	_, err = w.Run(context.Background(), item)
	assert.ErrorIs(t, err, manifest.ErrSchema)
}

func TestWriteIdempotent(t *testing.T) {
	e := newEnv(t)
	w := NewWrite(e.deps)
	first, err := w.Run(context.Background(), testBatch(t))
	require.NoError(t, err)
	second, err := w.Run(context.Background(), testBatch(t))
	require.NoError(t, err)
	assert.Equal(t, first.Key, second.Key)
	assert.Equal(t, first.Written, second.Written)
}

func TestWriteCancelled(t *testing.T) {
	e := newEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewWrite(e.deps).Run(ctx, testBatch(t))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, e.notifier.staged)
}
