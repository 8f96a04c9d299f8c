package manifest

import (
	"bytes"
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rtm0/sstpoints/internal/sst"
)

func points() []sst.Point {
	return []sst.Point{
		{Time: "2023-01-01T09:00:00Z", PointID: 4, RowIndex: 1, ColIndex: 1, Lat: -9.99, Lon: 100.01, Value: 303.15, Anomaly: 0.3},
		{Time: "2023-01-01T09:00:00Z", PointID: 5, RowIndex: 1, ColIndex: 2, Lat: -9.99, Lon: 100.02, Value: math.NaN(), Anomaly: math.NaN()},
		{Time: "2023-01-01T09:00:00Z", PointID: 10, RowIndex: 3, ColIndex: 1, Lat: -9.97, Lon: 100.01, Value: 1, Anomaly: -1},
	}
}

// throughJSON encodes a batch and decodes it the way the write stage does.
func throughJSON(t *testing.T, b Batch) Batch {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, b))
	var got Batch
	require.NoError(t, Decode(&buf, &got))
	return got
}

func TestTableThroughJSON(t *testing.T) {
	want := points()
	got := throughJSON(t, Batch{InputRows: NewTable(want), OutputBucket: "out", CollectionName: "MUR"})
	assert.Equal(t, "out", got.OutputBucket)
	assert.Equal(t, "MUR", got.CollectionName)
	assert.Equal(t, 3, got.InputRows.Len())

	pts, rowErrs, err := got.InputRows.Points()
	require.NoError(t, err)
	assert.Empty(t, rowErrs)
	require.Len(t, pts, 3)
	assert.Equal(t, want[0], pts[0])
	assert.True(t, math.IsNaN(pts[1].Value))
	assert.True(t, math.IsNaN(pts[1].Anomaly))
	assert.Equal(t, 5, pts[1].PointID)
	// Labels sort numerically, not lexically.
	assert.Equal(t, 10, pts[2].PointID)
}

func TestTableLayout(t *testing.T) {
	b, err := json.Marshal(NewTable(points()[:1]))
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"time": {"4": "2023-01-01T09:00:00Z"},
		"point_id": {"4": 4},
		"row_index": {"4": 1},
		"col_index": {"4": 1},
		"lat": {"4": -9.99},
		"lon": {"4": 100.01},
		"value": {"4": 303.15},
		"anomaly": {"4": 0.3}
	}`, string(b))
}

func TestTableRejectsColumnMismatch(t *testing.T) {
	tbl := NewTable(points())
	delete(tbl, ColAnomaly)
	_, _, err := tbl.Points()
	assert.ErrorIs(t, err, ErrSchema)
	assert.ErrorContains(t, err, "missing columns anomaly")

	tbl = NewTable(points())
	tbl["Y"] = map[string]any{"4": 1}
	_, _, err = tbl.Points()
	assert.ErrorIs(t, err, ErrSchema)
	assert.ErrorContains(t, err, "unexpected columns Y")
}

func TestTableReportsBadRows(t *testing.T) {
	tbl := NewTable(points())
	delete(tbl[ColLat], "4")
	tbl[ColPointID]["5"] = "five"
	tbl[ColRowIndex]["10"] = 2.5

	pts, rowErrs, err := tbl.Points()
	require.NoError(t, err)
	assert.Empty(t, pts)
	require.Len(t, rowErrs, 3)
	assert.Equal(t, "4", rowErrs[0].Label)
	assert.ErrorContains(t, rowErrs[0], `column "lat": no cell`)
	assert.Equal(t, "5", rowErrs[1].Label)
	assert.ErrorContains(t, rowErrs[1], `column "point_id"`)
	assert.Equal(t, "10", rowErrs[2].Label)
	assert.ErrorContains(t, rowErrs[2], "want integer")
}

func TestDecodeAcceptsPandasFloats(t *testing.T) {
	doc := `{
		"input_rows": {
			"time": {"0": "2023-01-01T09:00:00Z"},
			"point_id": {"0": 0.0},
			"row_index": {"0": 0},
			"col_index": {"0": 0},
			"lat": {"0": -89.99},
			"lon": {"0": -179.99},
			"value": {"0": null},
			"anomaly": {"0": 1.5}
		},
		"output_granule_s3bucket": "out",
		"collection_name": "MUR"
	}`
	var b Batch
	require.NoError(t, DecodeBytes([]byte(doc), &b))
	pts, rowErrs, err := b.InputRows.Points()
	require.NoError(t, err)
	assert.Empty(t, rowErrs)
	require.Len(t, pts, 1)
	assert.Equal(t, 0, pts[0].PointID)
	assert.True(t, pts[0].Missing())
	assert.Equal(t, 1.5, pts[0].Anomaly)
}

func TestLabelsOrder(t *testing.T) {
	tab := Table{
		ColTime:  {"10": "t", "9": "t", "b": "t", "100": "t"},
		ColValue: {"a": nil, "-1": nil, "2": nil},
	}
	assert.Equal(t, []string{"-1", "2", "9", "10", "100", "a", "b"}, tab.Labels())
	assert.Equal(t, "t", tab.Time("9"))
	assert.Equal(t, "", tab.Time("a"))
}
