package manifest

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/rtm0/sstpoints/internal/sst"
)

// Column names of a Table, in schema order.
const (
	ColTime     = "time"
	ColPointID  = "point_id"
	ColRowIndex = "row_index"
	ColColIndex = "col_index"
	ColLat      = "lat"
	ColLon      = "lon"
	ColValue    = "value"
	ColAnomaly  = "anomaly"
)

// Columns lists the point schema.
var Columns = []string{ColTime, ColPointID, ColRowIndex, ColColIndex, ColLat, ColLon, ColValue, ColAnomaly}

// ErrSchema is returned when a Table's columns differ from the point schema.
var ErrSchema = errors.New("row table does not match the point schema")

// Table is the column-oriented layout of a run of points:
// column name -> row label -> cell. Row labels are the point ids. Missing
// values are encoded as null.
type Table map[string]map[string]any

// NewTable lays out pts as a Table.
func NewTable(pts []sst.Point) Table {
	t := make(Table, len(Columns))
	for _, c := range Columns {
		t[c] = make(map[string]any, len(pts))
	}
	for i := range pts {
		p := &pts[i]
		label := strconv.Itoa(p.PointID)
		t[ColTime][label] = p.Time
		t[ColPointID][label] = p.PointID
		t[ColRowIndex][label] = p.RowIndex
		t[ColColIndex][label] = p.ColIndex
		t[ColLat][label] = nullable(p.Lat)
		t[ColLon][label] = nullable(p.Lon)
		t[ColValue][label] = nullable(p.Value)
		t[ColAnomaly][label] = nullable(p.Anomaly)
	}
	return t
}

func nullable(v float64) any {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}

// Len returns the number of distinct row labels.
func (t Table) Len() int {
	return len(t.labels())
}

// Labels returns the row labels in decoding order.
func (t Table) Labels() []string {
	return t.labels()
}

// Time returns the time cell of a row, or "" when it is absent or not a
// string.
func (t Table) Time(label string) string {
	s, _ := t[ColTime][label].(string)
	return s
}

// RowError describes a row that could not be decoded.
type RowError struct {
	Label string
	Err   error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %s: %v", e.Label, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

// Points validates the columns and decodes the rows in label order. Rows with
// absent or mistyped cells are reported individually and left out; a column
// set that differs from the schema fails the whole table.
func (t Table) Points() ([]sst.Point, []*RowError, error) {
	if err := t.checkColumns(); err != nil {
		return nil, nil, err
	}
	labels := t.labels()
	pts := make([]sst.Point, 0, len(labels))
	var rowErrs []*RowError
	for _, label := range labels {
		p, err := t.point(label)
		if err != nil {
			rowErrs = append(rowErrs, &RowError{Label: label, Err: err})
			continue
		}
		pts = append(pts, p)
	}
	return pts, rowErrs, nil
}

func (t Table) checkColumns() error {
	var missing, extra []string
	for _, c := range Columns {
		if _, ok := t[c]; !ok {
			missing = append(missing, c)
		}
	}
	known := make(map[string]bool, len(Columns))
	for _, c := range Columns {
		known[c] = true
	}
	for c := range t {
		if !known[c] {
			extra = append(extra, c)
		}
	}
	sort.Strings(extra)
	switch {
	case len(missing) > 0 && len(extra) > 0:
		return fmt.Errorf("%w: missing columns %s, unexpected columns %s", ErrSchema,
			strings.Join(missing, ","), strings.Join(extra, ","))
	case len(missing) > 0:
		return fmt.Errorf("%w: missing columns %s", ErrSchema, strings.Join(missing, ","))
	case len(extra) > 0:
		return fmt.Errorf("%w: unexpected columns %s", ErrSchema, strings.Join(extra, ","))
	}
	return nil
}

// labels returns the union of row labels over all columns, numeric labels
// first in numeric order.
func (t Table) labels() []string {
	seen := make(map[string]bool)
	for _, col := range t {
		for label := range col {
			seen[label] = true
		}
	}
	type key struct {
		s   string
		n   int
		num bool
	}
	keys := make([]key, 0, len(seen))
	for label := range seen {
		n, err := strconv.Atoi(label)
		keys = append(keys, key{s: label, n: n, num: err == nil})
	}
	slices.SortFunc(keys, func(a, b key) int {
		switch {
		case a.num && b.num:
			return cmp.Compare(a.n, b.n)
		case a.num:
			return -1
		case b.num:
			return 1
		}
		return strings.Compare(a.s, b.s)
	})
	labels := make([]string, len(keys))
	for i, k := range keys {
		labels[i] = k.s
	}
	return labels
}

func (t Table) point(label string) (sst.Point, error) {
	var p sst.Point
	var err error
	cell := func(col string) (any, error) {
		v, ok := t[col][label]
		if !ok {
			return nil, fmt.Errorf("column %q: no cell", col)
		}
		return v, nil
	}
	str := func(col string, dst *string) {
		if err != nil {
			return
		}
		var v any
		if v, err = cell(col); err != nil {
			return
		}
		s, ok := v.(string)
		if !ok {
			err = fmt.Errorf("column %q: want string, got %T", col, v)
			return
		}
		*dst = s
	}
	integer := func(col string, dst *int) {
		if err != nil {
			return
		}
		var v any
		if v, err = cell(col); err != nil {
			return
		}
		if *dst, err = toInt(v); err != nil {
			err = fmt.Errorf("column %q: %w", col, err)
		}
	}
	float := func(col string, dst *float64) {
		if err != nil {
			return
		}
		var v any
		if v, err = cell(col); err != nil {
			return
		}
		if *dst, err = toFloat(v); err != nil {
			err = fmt.Errorf("column %q: %w", col, err)
		}
	}
	str(ColTime, &p.Time)
	integer(ColPointID, &p.PointID)
	integer(ColRowIndex, &p.RowIndex)
	integer(ColColIndex, &p.ColIndex)
	float(ColLat, &p.Lat)
	float(ColLon, &p.Lon)
	float(ColValue, &p.Value)
	float(ColAnomaly, &p.Anomaly)
	if err != nil {
		return sst.Point{}, err
	}
	if p.Time == "" {
		return sst.Point{}, fmt.Errorf("column %q: empty", ColTime)
	}
	if p.PointID < 0 {
		return sst.Point{}, fmt.Errorf("column %q: negative id %d", ColPointID, p.PointID)
	}
	return p, nil
}

func toInt(v any) (int, error) {
	switch v := v.(type) {
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return int(i), nil
		}
		f, err := v.Float64()
		if err != nil {
			return 0, err
		}
		return floatToInt(f)
	case float64:
		return floatToInt(v)
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case int32:
		return int(v), nil
	}
	return 0, fmt.Errorf("want integer, got %T", v)
}

func floatToInt(f float64) (int, error) {
	if f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("want integer, got %v", f)
	}
	return int(f), nil
}

func toFloat(v any) (float64, error) {
	switch v := v.(type) {
	case nil:
		return math.NaN(), nil
	case json.Number:
		return v.Float64()
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	}
	return 0, fmt.Errorf("want number, got %T", v)
}
