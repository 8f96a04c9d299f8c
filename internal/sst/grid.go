package sst

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"
)

var (
	// ErrMalformed is returned for granules that lack an expected variable or
	// whose variables do not share the lat/lon grid.
	ErrMalformed = errors.New("malformed grid dataset")

	// ErrMultipleTimes is returned for granules holding more than one time
	// step. Only single-timestamp granules are supported.
	ErrMultipleTimes = errors.New("grid dataset has more than one timestamp")
)

// Variables names the NetCDF variables a Grid is read from.
type Variables struct {
	Lat     string
	Lon     string
	Time    string
	Value   string
	Anomaly string
}

// DefaultVariables matches GHRSST L4 granules such as MUR.
var DefaultVariables = Variables{
	Lat:     "lat",
	Lon:     "lon",
	Time:    "time",
	Value:   "analysed_sst",
	Anomaly: "sst_anomaly",
}

// Grid is one granule loaded into memory: a single timestamp, the lat/lon axes
// and two co-registered variables of shape (len(Lat), len(Lon)).
type Grid struct {
	Time    time.Time
	Lat     []float64
	Lon     []float64
	Value   [][]float64
	Anomaly [][]float64
}

// Shape returns the number of grid rows (latitudes) and columns (longitudes).
func (g *Grid) Shape() (h, w int) {
	return len(g.Lat), len(g.Lon)
}

// Validate checks that both variables have shape (len(Lat), len(Lon)).
func (g *Grid) Validate() error {
	h, w := g.Shape()
	if err := checkShape("value", g.Value, h, w); err != nil {
		return err
	}
	return checkShape("anomaly", g.Anomaly, h, w)
}

func checkShape(name string, v [][]float64, h, w int) error {
	if len(v) != h {
		return fmt.Errorf("%w: %s has %d rows, want %d", ErrMalformed, name, len(v), h)
	}
	for i, row := range v {
		if len(row) != w {
			return fmt.Errorf("%w: %s row %d has %d columns, want %d", ErrMalformed, name, i, len(row), w)
		}
	}
	return nil
}

// Summary returns the summary information about the grid suitable for
// logging.
func (g *Grid) Summary() []any {
	h, w := g.Shape()
	return []any{
		"time", g.Time.UTC().Format(time.RFC3339),
		"latCnt", h,
		"lonCnt", w,
		"totalPointCnt", h * w,
	}
}

// Open reads a single-timestamp granule from a NetCDF file.
func Open(filePath string, vars Variables) (*Grid, error) {
	nc, err := netcdf.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer nc.Close()

	g := &Grid{}
	if g.Lat, err = axisValues(nc, vars.Lat); err != nil {
		return nil, err
	}
	if g.Lon, err = axisValues(nc, vars.Lon); err != nil {
		return nil, err
	}
	if g.Time, err = timeValue(nc, vars.Time); err != nil {
		return nil, err
	}
	if g.Value, err = plane(nc, vars.Value); err != nil {
		return nil, err
	}
	if g.Anomaly, err = plane(nc, vars.Anomaly); err != nil {
		return nil, err
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

func varGetter(nc api.Group, name string) (api.VarGetter, error) {
	vg, err := nc.GetVarGetter(name)
	if err != nil {
		return nil, fmt.Errorf("%w: variable %q: %v", ErrMalformed, name, err)
	}
	return vg, nil
}

func axisValues(nc api.Group, name string) ([]float64, error) {
	vg, err := varGetter(nc, name)
	if err != nil {
		return nil, err
	}
	v, err := vg.Values()
	if err != nil {
		return nil, err
	}
	vals, ok := toFloats(v)
	if !ok {
		return nil, fmt.Errorf("%w: variable %q has unsupported type %T", ErrMalformed, name, v)
	}
	return vals, nil
}

func timeValue(nc api.Group, name string) (time.Time, error) {
	vals, err := axisValues(nc, name)
	if err != nil {
		return time.Time{}, err
	}
	switch {
	case len(vals) == 0:
		return time.Time{}, fmt.Errorf("%w: variable %q is empty", ErrMalformed, name)
	case len(vals) > 1:
		return time.Time{}, fmt.Errorf("%w: %d time steps", ErrMultipleTimes, len(vals))
	}
	vg, err := varGetter(nc, name)
	if err != nil {
		return time.Time{}, err
	}
	units, _ := attrString(vg.Attributes(), "units")
	unit, ref, err := ParseTimeUnits(units)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: variable %q: %v", ErrMalformed, name, err)
	}
	t, err := TimeAt(ref, unit, vals[0])
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: variable %q: %v", ErrMalformed, name, err)
	}
	return t, nil
}

// TimeAt returns ref plus v units. Whole days go through the calendar, so
// offsets beyond the range of time.Duration stay exact.
func TimeAt(ref time.Time, unit time.Duration, v float64) (time.Time, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return time.Time{}, fmt.Errorf("time value %v", v)
	}
	perDay := float64(24*time.Hour) / float64(unit)
	days := math.Trunc(v / perDay)
	if math.Abs(days) > math.MaxInt32 {
		return time.Time{}, fmt.Errorf("time value %v is out of range", v)
	}
	rest := (v - days*perDay) * float64(unit)
	return ref.UTC().AddDate(0, 0, int(days)).Add(time.Duration(math.Round(rest))), nil
}

// ParseTimeUnits parses CF time units such as
// "seconds since 1981-01-01 00:00:00 UTC".
func ParseTimeUnits(units string) (time.Duration, time.Time, error) {
	unit, since, ok := strings.Cut(strings.TrimSpace(units), " since ")
	if !ok {
		return 0, time.Time{}, fmt.Errorf("unsupported time units %q", units)
	}
	var d time.Duration
	switch strings.ToLower(unit) {
	case "seconds", "second", "secs", "s":
		d = time.Second
	case "minutes", "minute", "mins":
		d = time.Minute
	case "hours", "hour", "h":
		d = time.Hour
	case "days", "day", "d":
		d = 24 * time.Hour
	default:
		return 0, time.Time{}, fmt.Errorf("unsupported time unit %q", unit)
	}
	since = strings.TrimSuffix(strings.TrimSpace(since), " UTC")
	for _, layout := range []string{
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05Z",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04",
		"2006-01-02",
	} {
		if ref, err := time.ParseInLocation(layout, since, time.UTC); err == nil {
			return d, ref, nil
		}
	}
	return 0, time.Time{}, fmt.Errorf("unsupported reference time %q", since)
}

// plane reads a (lat, lon) variable, or the first step of a (time, lat, lon)
// variable, and unpacks it into physical values.
func plane(nc api.Group, name string) ([][]float64, error) {
	vg, err := varGetter(nc, name)
	if err != nil {
		return nil, err
	}
	var v any
	switch dims := vg.Dimensions(); len(dims) {
	case 2:
		v, err = vg.Values()
	case 3:
		v, err = vg.GetSlice(0, 1)
	default:
		return nil, fmt.Errorf("%w: variable %q has %d dimensions", ErrMalformed, name, len(dims))
	}
	if err != nil {
		return nil, err
	}
	p := newPacking(vg.Attributes())
	var rows [][]float64
	var ok bool
	switch v := v.(type) {
	case [][][]int16:
		rows, ok = first(v, p)
	case [][][]int32:
		rows, ok = first(v, p)
	case [][][]int8:
		rows, ok = first(v, p)
	case [][][]float32:
		rows, ok = first(v, p)
	case [][][]float64:
		rows, ok = first(v, p)
	case [][]int16:
		rows, ok = unpack(v, p), true
	case [][]int32:
		rows, ok = unpack(v, p), true
	case [][]int8:
		rows, ok = unpack(v, p), true
	case [][]float32:
		rows, ok = unpack(v, p), true
	case [][]float64:
		rows, ok = unpack(v, p), true
	default:
		return nil, fmt.Errorf("%w: variable %q has unsupported type %T", ErrMalformed, name, v)
	}
	if !ok {
		return nil, fmt.Errorf("%w: variable %q has no time step", ErrMalformed, name)
	}
	return rows, nil
}

type number interface {
	int8 | int16 | int32 | int64 | float32 | float64
}

// packing holds the CF packing attributes of a variable.
type packing struct {
	scale   float64
	offset  float64
	fill    float64
	hasFill bool
}

func newPacking(attrs api.AttributeMap) packing {
	p := packing{scale: 1}
	if v, ok := attrFloat(attrs, "scale_factor"); ok {
		p.scale = v
	}
	if v, ok := attrFloat(attrs, "add_offset"); ok {
		p.offset = v
	}
	p.fill, p.hasFill = attrFloat(attrs, "_FillValue")
	return p
}

func (p packing) value(raw float64) float64 {
	if p.hasFill && raw == p.fill {
		return math.NaN()
	}
	return raw*p.scale + p.offset
}

func first[T number](v [][][]T, p packing) ([][]float64, bool) {
	if len(v) == 0 {
		return nil, false
	}
	return unpack(v[0], p), true
}

func unpack[T number](v [][]T, p packing) [][]float64 {
	rows := make([][]float64, len(v))
	for i, row := range v {
		rows[i] = make([]float64, len(row))
		for j, raw := range row {
			rows[i][j] = p.value(float64(raw))
		}
	}
	return rows
}

func floats[T number](v []T) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

func toFloats(v any) ([]float64, bool) {
	switch v := v.(type) {
	case []float64:
		return v, true
	case []float32:
		return floats(v), true
	case []int64:
		return floats(v), true
	case []int32:
		return floats(v), true
	case []int16:
		return floats(v), true
	case []int8:
		return floats(v), true
	case float64:
		return []float64{v}, true
	case float32:
		return []float64{float64(v)}, true
	case int64:
		return []float64{float64(v)}, true
	case int32:
		return []float64{float64(v)}, true
	case int16:
		return []float64{float64(v)}, true
	case int8:
		return []float64{float64(v)}, true
	}
	return nil, false
}

func attrFloat(attrs api.AttributeMap, key string) (float64, bool) {
	if attrs == nil {
		return 0, false
	}
	v, has := attrs.Get(key)
	if !has {
		return 0, false
	}
	vals, ok := toFloats(v)
	if !ok || len(vals) == 0 {
		return 0, false
	}
	return vals[0], true
}

func attrString(attrs api.AttributeMap, key string) (string, bool) {
	if attrs == nil {
		return "", false
	}
	v, has := attrs.Get(key)
	if !has {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}
