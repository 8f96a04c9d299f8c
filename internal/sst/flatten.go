package sst

import "time"

// Flatten turns the grid into one Point per cell in row-major order: the
// longitude varies fastest and point ids run from 0 to h*w-1, so that
// row = id / w and col = id % w. Cells with missing values are kept.
func Flatten(g *Grid) ([]Point, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	h, w := g.Shape()
	ts := g.Time.UTC().Format(time.RFC3339)
	pts := make([]Point, h*w)
	k := 0
	for i, la := range g.Lat {
		for j, lo := range g.Lon {
			pts[k] = Point{
				Time:     ts,
				PointID:  k,
				RowIndex: i,
				ColIndex: j,
				Lat:      la,
				Lon:      lo,
				Value:    g.Value[i][j],
				Anomaly:  g.Anomaly[i][j],
			}
			k++
		}
	}
	return pts, nil
}

// MissingCount returns the number of points without a value.
func MissingCount(pts []Point) int {
	n := 0
	for i := range pts {
		if pts[i].Missing() {
			n++
		}
	}
	return n
}
