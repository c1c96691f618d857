// Package era5 decodes downloaded ERA5-Land NetCDF files into canonical
// grids and per-variable data cubes.
package era5

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/fhs/go-netcdf/netcdf"

	"github.com/agroclim/era5-extract/internal/domain"
)

// Dataset is one open downloaded file. The axes are canonicalized at open
// time; every cube read through it comes out aligned. Owned by a single
// pipeline run and closed when the run finalizes.
type Dataset struct {
	nc    netcdf.Dataset
	path  string
	align domain.Alignment
	times []time.Time
}

var (
	latNames  = []string{"latitude", "lat", "y"}
	lonNames  = []string{"longitude", "lon", "x"}
	timeNames = []string{"time", "valid_time"}
)

// Open opens and indexes a downloaded NetCDF file.
func Open(path string) (*Dataset, error) {
	nc, err := netcdf.OpenFile(path, netcdf.NOWRITE)
	if err != nil {
		return nil, &domain.DecodeError{Err: fmt.Errorf("opening %s: %w", path, err)}
	}

	d := &Dataset{nc: nc, path: path}
	ok := false
	defer func() {
		if !ok {
			_ = nc.Close()
		}
	}()

	rawLats, err := readAxis(nc, latNames)
	if err != nil {
		return nil, &domain.DecodeError{Err: fmt.Errorf("latitude axis: %w", err)}
	}
	rawLons, err := readAxis(nc, lonNames)
	if err != nil {
		return nil, &domain.DecodeError{Err: fmt.Errorf("longitude axis: %w", err)}
	}
	d.align, err = domain.AlignAxes(rawLats, rawLons)
	if err != nil {
		return nil, &domain.DecodeError{Err: err}
	}

	if err := d.readTimeAxis(); err != nil {
		return nil, err
	}

	ok = true
	return d, nil
}

// Grid returns the canonical cell-center geometry.
func (d *Dataset) Grid() domain.Grid { return d.align.Grid }

// Times returns the dataset's time axis in UTC.
func (d *Dataset) Times() []time.Time { return d.times }

// HasVariable reports whether a variable exists in the file under the
// given name.
func (d *Dataset) HasVariable(name string) bool {
	_, err := d.nc.Var(name)
	return err == nil
}

// Variables lists the known ERA5-Land variables present in the file, by
// dataset-side short code.
func (d *Dataset) Variables() []string {
	var names []string
	seen := make(map[string]bool)
	for _, short := range domain.KnownVariables() {
		if !seen[short] && d.HasVariable(short) {
			seen[short] = true
			names = append(names, short)
		}
	}
	sort.Strings(names)
	return names
}

// Close releases the underlying file handle.
func (d *Dataset) Close() error { return d.nc.Close() }

func (d *Dataset) readTimeAxis() error {
	for _, name := range timeNames {
		v, err := d.nc.Var(name)
		if err != nil {
			continue
		}
		raw, err := readNumeric1D(v)
		if err != nil {
			return &domain.DecodeError{Err: fmt.Errorf("time axis %s: %w", name, err)}
		}
		units := readTextAttr(v, "units")
		times, err := decodeTimes(raw, units, name)
		if err != nil {
			return &domain.DecodeError{Err: err}
		}
		d.times = times
		return nil
	}
	return &domain.DecodeError{Err: fmt.Errorf("no recognized time dimension (tried %v)", timeNames)}
}

var timeUnitsPattern = regexp.MustCompile(`(?i)^\s*(hours|minutes|seconds|days)\s+since\s+(.+?)\s*$`)

// decodeTimes converts raw CF time values into UTC timestamps. When the
// units attribute is absent, the conventional ERA5 encodings are assumed:
// "time" counts hours since 1900-01-01, "valid_time" seconds since
// 1970-01-01.
func decodeTimes(raw []float64, units, varName string) ([]time.Time, error) {
	if units == "" {
		if varName == "valid_time" {
			units = "seconds since 1970-01-01"
		} else {
			units = "hours since 1900-01-01 00:00:00.0"
		}
	}
	m := timeUnitsPattern.FindStringSubmatch(units)
	if m == nil {
		return nil, fmt.Errorf("unsupported time units %q", units)
	}
	var step time.Duration
	switch strings.ToLower(m[1]) {
	case "hours":
		step = time.Hour
	case "minutes":
		step = time.Minute
	case "seconds":
		step = time.Second
	case "days":
		step = 24 * time.Hour
	}
	epoch, err := parseEpoch(m[2])
	if err != nil {
		return nil, fmt.Errorf("unsupported time units %q: %w", units, err)
	}
	times := make([]time.Time, len(raw))
	for i, v := range raw {
		times[i] = epoch.Add(time.Duration(v * float64(step))).UTC()
	}
	return times, nil
}

func parseEpoch(s string) (time.Time, error) {
	layouts := []string{
		"2006-01-02 15:04:05.0",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05Z",
		"2006-01-02",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable epoch %q", s)
}

// ReadCube reads one whole variable, applies packing attributes and axis
// alignment, and returns a canonical cube. Fill values become NaN.
func (d *Dataset) ReadCube(name string) (*domain.Cube, error) {
	v, err := d.nc.Var(name)
	if err != nil {
		return nil, &domain.VariableNotFoundError{Variable: name}
	}

	dims, err := v.Dims()
	if err != nil {
		return nil, &domain.DecodeError{Err: fmt.Errorf("dimensions of %s: %w", name, err)}
	}
	lens := make([]int, len(dims))
	for i, dim := range dims {
		n, err := dim.Len()
		if err != nil {
			return nil, &domain.DecodeError{Err: fmt.Errorf("dimension length of %s: %w", name, err)}
		}
		lens[i] = int(n)
	}

	nT := len(d.times)
	nLat := len(d.align.Grid.Lats)
	nLon := len(d.align.Grid.Lons)

	// ERA5 sometimes carries a length-1 ensemble/experiment dimension
	// (number, expver); squeeze it before shape checking.
	extra := len(lens) - 3
	effective := make([]int, 0, 3)
	for _, n := range lens {
		if extra > 0 && n == 1 {
			extra--
			continue
		}
		effective = append(effective, n)
	}
	if len(effective) != 3 || effective[0] != nT || effective[1] != nLat || effective[2] != nLon {
		return nil, &domain.DecodeError{Err: fmt.Errorf(
			"variable %s has shape %v, expected (time=%d, lat=%d, lon=%d)", name, lens, nT, nLat, nLon)}
	}

	flat, err := readNumericFlat(v, nT*nLat*nLon)
	if err != nil {
		return nil, &domain.DecodeError{Err: fmt.Errorf("reading %s: %w", name, err)}
	}

	// Unpack: fill comparison happens in packed space, scaling after.
	fill, hasFill := readNumAttr(v, "_FillValue", "missing_value")
	scale, hasScale := readNumAttr(v, "scale_factor")
	offset, hasOffset := readNumAttr(v, "add_offset")
	if !hasScale {
		scale = 1
	}
	if !hasOffset {
		offset = 0
	}
	for i, val := range flat {
		if hasFill && val == fill {
			flat[i] = math.NaN()
			continue
		}
		flat[i] = val*scale + offset
	}

	cube := &domain.Cube{
		Grid:   d.align.Grid,
		Times:  d.times,
		Values: make([][][]float64, nT),
	}
	for t := 0; t < nT; t++ {
		raw := make([][]float64, nLat)
		for i := 0; i < nLat; i++ {
			start := (t*nLat + i) * nLon
			raw[i] = flat[start : start+nLon]
		}
		cube.Values[t] = d.align.Apply(raw)
	}
	return cube, nil
}

func readAxis(nc netcdf.Dataset, names []string) ([]float64, error) {
	for _, name := range names {
		v, err := nc.Var(name)
		if err != nil {
			continue
		}
		data, err := readNumeric1D(v)
		if err == nil {
			return data, nil
		}
	}
	return nil, fmt.Errorf("variable not found (tried %v)", names)
}

// readNumeric1D reads a 1-D numeric variable as float64.
func readNumeric1D(v netcdf.Var) ([]float64, error) {
	dims, err := v.Dims()
	if err != nil {
		return nil, err
	}
	if len(dims) != 1 {
		return nil, fmt.Errorf("expected 1D variable, got %dD", len(dims))
	}
	n, err := dims[0].Len()
	if err != nil {
		return nil, err
	}
	return readNumericFlat(v, int(n))
}

// readNumericFlat reads a whole variable of the given element count as
// float64, converting from the stored type.
func readNumericFlat(v netcdf.Var, total int) ([]float64, error) {
	t, err := v.Type()
	if err != nil {
		return nil, fmt.Errorf("variable type: %w", err)
	}
	out := make([]float64, total)
	switch t {
	case netcdf.DOUBLE:
		if err := v.ReadFloat64s(out); err != nil {
			return nil, err
		}
	case netcdf.FLOAT:
		tmp := make([]float32, total)
		if err := v.ReadFloat32s(tmp); err != nil {
			return nil, err
		}
		for i, val := range tmp {
			out[i] = float64(val)
		}
	case netcdf.INT:
		tmp := make([]int32, total)
		if err := v.ReadInt32s(tmp); err != nil {
			return nil, err
		}
		for i, val := range tmp {
			out[i] = float64(val)
		}
	case netcdf.INT64:
		tmp := make([]int64, total)
		if err := v.ReadInt64s(tmp); err != nil {
			return nil, err
		}
		for i, val := range tmp {
			out[i] = float64(val)
		}
	case netcdf.SHORT:
		tmp := make([]int16, total)
		if err := v.ReadInt16s(tmp); err != nil {
			return nil, err
		}
		for i, val := range tmp {
			out[i] = float64(val)
		}
	default:
		return nil, fmt.Errorf("unsupported variable type %v", t)
	}
	return out, nil
}

// readNumAttr returns the first present numeric attribute among names.
func readNumAttr(v netcdf.Var, names ...string) (float64, bool) {
	for _, name := range names {
		a := v.Attr(name)
		n, err := a.Len()
		if err != nil || n == 0 {
			continue
		}
		buf64 := make([]float64, 1)
		if err := a.ReadFloat64s(buf64); err == nil {
			return buf64[0], true
		}
		buf32 := make([]float32, 1)
		if err := a.ReadFloat32s(buf32); err == nil {
			return float64(buf32[0]), true
		}
		bufi16 := make([]int16, 1)
		if err := a.ReadInt16s(bufi16); err == nil {
			return float64(bufi16[0]), true
		}
		bufi32 := make([]int32, 1)
		if err := a.ReadInt32s(bufi32); err == nil {
			return float64(bufi32[0]), true
		}
	}
	return 0, false
}

// readTextAttr returns a char attribute as a string, or "" when absent.
func readTextAttr(v netcdf.Var, name string) string {
	a := v.Attr(name)
	n, err := a.Len()
	if err != nil || n == 0 {
		return ""
	}
	buf := make([]byte, n)
	if err := a.ReadBytes(buf); err != nil {
		return ""
	}
	return strings.TrimRight(string(buf), "\x00")
}
