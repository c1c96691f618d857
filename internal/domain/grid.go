// Package domain holds the grid model and pure algorithms of the
// extraction pipeline: axis canonicalization, the half-cell affine
// transform, masking support and the bounding clipper.
package domain

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// DefaultResolution is the ERA5-Land cell size in degrees, used as a
// fallback when an axis is too short to measure spacing from.
const DefaultResolution = 0.1

// Grid is the canonical (latitude, longitude) cell-center geometry of a
// gridded dataset. Invariants: latitudes strictly ascending, longitudes
// strictly ascending within [-180, 180).
type Grid struct {
	Lats []float64
	Lons []float64
}

// Shape returns (rows, cols) = (len(Lats), len(Lons)).
func (g Grid) Shape() (int, int) { return len(g.Lats), len(g.Lons) }

// LatRes returns the latitude cell spacing, or fallback when the axis has
// fewer than two entries.
func (g Grid) LatRes(fallback float64) float64 { return axisRes(g.Lats, fallback) }

// LonRes returns the longitude cell spacing, or fallback when the axis has
// fewer than two entries.
func (g Grid) LonRes(fallback float64) float64 { return axisRes(g.Lons, fallback) }

func axisRes(ax []float64, fallback float64) float64 {
	if len(ax) < 2 {
		return fallback
	}
	return math.Abs(ax[1] - ax[0])
}

// NearestIndex returns the grid indices whose cell center is closest to
// (lat, lon).
func (g Grid) NearestIndex(lat, lon float64) (int, int) {
	return nearest(g.Lats, lat), nearest(g.Lons, lon)
}

func nearest(ax []float64, v float64) int {
	best := 0
	bestDist := math.Inf(1)
	for i, a := range ax {
		if d := math.Abs(a - v); d < bestDist {
			bestDist = d
			best = i
		}
	}
	return best
}

// Cube is one variable's (time, lat, lon) block on a canonical grid.
// Missing measurements are NaN.
type Cube struct {
	Grid
	Times  []time.Time
	Values [][][]float64 // [time][lat][lon]
}

// Slice returns the (lat, lon) plane for one timestamp.
func (c *Cube) Slice(timeIdx int) [][]float64 { return c.Values[timeIdx] }

// WrapLon maps a longitude into [-180, 180).
func WrapLon(lon float64) float64 {
	return math.Mod(lon+180.0, 360.0) - 180.0
}

// Alignment records how raw dataset axes are reordered onto the canonical
// grid: a longitude permutation (after wrapping a 0–360 axis) and an
// optional latitude flip. It is computed once per dataset and applied to
// every decoded slice.
type Alignment struct {
	Grid     Grid
	lonOrder []int // canonical column -> raw column
	flipLat  bool
}

// AlignAxes builds the Alignment for raw latitude/longitude vectors as
// they appear in the downloaded file.
func AlignAxes(rawLats, rawLons []float64) (Alignment, error) {
	a := Alignment{}

	needsWrap := false
	for _, lon := range rawLons {
		if lon > 180 {
			needsWrap = true
			break
		}
	}
	wrapped := make([]float64, len(rawLons))
	for j, lon := range rawLons {
		if needsWrap {
			wrapped[j] = WrapLon(lon)
		} else {
			wrapped[j] = lon
		}
	}
	a.lonOrder = make([]int, len(wrapped))
	for j := range a.lonOrder {
		a.lonOrder[j] = j
	}
	sort.SliceStable(a.lonOrder, func(x, y int) bool {
		return wrapped[a.lonOrder[x]] < wrapped[a.lonOrder[y]]
	})
	lons := make([]float64, len(wrapped))
	for j, raw := range a.lonOrder {
		lons[j] = wrapped[raw]
	}
	for j := 1; j < len(lons); j++ {
		if lons[j] <= lons[j-1] {
			return Alignment{}, fmt.Errorf("longitude axis not strictly ascending after wrap (duplicate %v)", lons[j])
		}
	}

	lats := make([]float64, len(rawLats))
	copy(lats, rawLats)
	if len(lats) > 1 && lats[0] > lats[len(lats)-1] {
		a.flipLat = true
		for i, j := 0, len(lats)-1; i < j; i, j = i+1, j-1 {
			lats[i], lats[j] = lats[j], lats[i]
		}
	}
	for i := 1; i < len(lats); i++ {
		if lats[i] <= lats[i-1] {
			return Alignment{}, fmt.Errorf("latitude axis not strictly monotonic")
		}
	}

	a.Grid = Grid{Lats: lats, Lons: lons}
	return a, nil
}

// Apply reorders one raw (lat, lon) slice onto the canonical grid.
func (a Alignment) Apply(raw [][]float64) [][]float64 {
	nLat := len(a.Grid.Lats)
	nLon := len(a.Grid.Lons)
	out := make([][]float64, nLat)
	for i := 0; i < nLat; i++ {
		src := i
		if a.flipLat {
			src = nLat - 1 - i
		}
		row := make([]float64, nLon)
		for j := 0; j < nLon; j++ {
			row[j] = raw[src][a.lonOrder[j]]
		}
		out[i] = row
	}
	return out
}

// Mask is a boolean plane over a grid: true cells belong to the region of
// interest under any-touch semantics.
type Mask [][]bool

// NewMask allocates an all-false mask with the grid's shape.
func NewMask(g Grid) Mask {
	rows, cols := g.Shape()
	m := make(Mask, rows)
	for i := range m {
		m[i] = make([]bool, cols)
	}
	return m
}

// Count returns the number of true cells and the total cell count.
func (m Mask) Count() (inside, total int) {
	for _, row := range m {
		for _, v := range row {
			if v {
				inside++
			}
		}
	}
	if len(m) > 0 {
		total = len(m) * len(m[0])
	}
	return inside, total
}

// ClipWindow is a half-open sub-rectangle of a grid: rows [R0,R1), cols
// [C0,C1).
type ClipWindow struct {
	R0, R1 int
	C0, C1 int
}

// BoundingClip returns the minimal window covering every true mask cell.
// ok is false when the mask has no true cell; callers then keep the full
// extent (nothing to clip).
func BoundingClip(m Mask) (w ClipWindow, ok bool) {
	w = ClipWindow{R0: len(m), C0: -1, C1: -1}
	if len(m) > 0 {
		w.C0 = len(m[0])
	}
	for i, row := range m {
		for j, v := range row {
			if !v {
				continue
			}
			ok = true
			if i < w.R0 {
				w.R0 = i
			}
			if i+1 > w.R1 {
				w.R1 = i + 1
			}
			if j < w.C0 {
				w.C0 = j
			}
			if j+1 > w.C1 {
				w.C1 = j + 1
			}
		}
	}
	if !ok {
		return ClipWindow{}, false
	}
	return w, true
}

// ClipSlice extracts the window from a data plane.
func ClipSlice(data [][]float64, w ClipWindow) [][]float64 {
	out := make([][]float64, w.R1-w.R0)
	for i := range out {
		out[i] = data[w.R0+i][w.C0:w.C1]
	}
	return out
}

// ClipMask extracts the window from a mask.
func ClipMask(m Mask, w ClipWindow) Mask {
	out := make(Mask, w.R1-w.R0)
	for i := range out {
		out[i] = m[w.R0+i][w.C0:w.C1]
	}
	return out
}

// ClipGrid extracts the window's coordinate vectors.
func ClipGrid(g Grid, w ClipWindow) Grid {
	return Grid{Lats: g.Lats[w.R0:w.R1], Lons: g.Lons[w.C0:w.C1]}
}

// ApplyMask returns a copy of data with cells outside the mask set to NaN.
func ApplyMask(data [][]float64, m Mask) [][]float64 {
	out := make([][]float64, len(data))
	for i := range data {
		row := make([]float64, len(data[i]))
		for j := range data[i] {
			if m[i][j] {
				row[j] = data[i][j]
			} else {
				row[j] = math.NaN()
			}
		}
		out[i] = row
	}
	return out
}
