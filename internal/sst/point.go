package sst

import (
	"fmt"
	"math"
)

// Point is a single grid cell of a granule taken at the granule's timestamp.
type Point struct {
	// Dimensions
	Time     string
	PointID  int
	RowIndex int
	ColIndex int
	Lat      float64
	Lon      float64

	// Metrics. Missing cells are NaN.
	Value   float64
	Anomaly float64
}

// ArtifactKey returns the object key a point is persisted under. The key only
// depends on the collection, the point id and the time, so writing the same
// point twice overwrites the same object.
func ArtifactKey(collection string, pointID int, time string) string {
	return fmt.Sprintf("%s/geo_points/%d/%s.parquet", collection, pointID, time)
}

// Key returns the artifact key of p within the collection.
func (p *Point) Key(collection string) string {
	return ArtifactKey(collection, p.PointID, p.Time)
}

// Missing reports whether the cell carries no value.
func (p *Point) Missing() bool {
	return math.IsNaN(p.Value)
}
