package points

import (
	"io"

	"github.com/parquet-go/parquet-go"

	"github.com/rtm0/sstpoints/internal/sst"
)

// row is the Parquet schema of a point artifact.
type row struct {
	Time     string  `parquet:"time"`
	PointID  int64   `parquet:"point_id"`
	RowIndex int64   `parquet:"row_index"`
	ColIndex int64   `parquet:"col_index"`
	Lat      float64 `parquet:"lat"`
	Lon      float64 `parquet:"lon"`
	Value    float64 `parquet:"value"`
	Anomaly  float64 `parquet:"anomaly"`
}

// Encoder serializes a single point.
type Encoder func(w io.Writer, p *sst.Point) error

// EncodeParquet writes p as a single-row Parquet file.
func EncodeParquet(w io.Writer, p *sst.Point) error {
	pw := parquet.NewGenericWriter[row](w, parquet.Compression(&parquet.Snappy))
	r := row{
		Time:     p.Time,
		PointID:  int64(p.PointID),
		RowIndex: int64(p.RowIndex),
		ColIndex: int64(p.ColIndex),
		Lat:      p.Lat,
		Lon:      p.Lon,
		Value:    p.Value,
		Anomaly:  p.Anomaly,
	}
	if _, err := pw.Write([]row{r}); err != nil {
		return err
	}
	return pw.Close()
}

// ReadParquet reads the points of a Parquet file written by EncodeParquet.
func ReadParquet(r io.ReaderAt, size int64) ([]sst.Point, error) {
	rows, err := parquet.Read[row](r, size)
	if err != nil {
		return nil, err
	}
	pts := make([]sst.Point, len(rows))
	for i, r := range rows {
		pts[i] = sst.Point{
			Time:     r.Time,
			PointID:  int(r.PointID),
			RowIndex: int(r.RowIndex),
			ColIndex: int(r.ColIndex),
			Lat:      r.Lat,
			Lon:      r.Lon,
			Value:    r.Value,
			Anomaly:  r.Anomaly,
		}
	}
	return pts, nil
}
