// Package rasterize converts region polygons into grid-aligned forms: the
// boolean pixel mask for raster mode and the exact per-cell intersection
// geometries for vector mode. Both are built from the same half-cell
// offset transform so footprints and cell centers agree.
package rasterize

import (
	"fmt"

	"github.com/twpayne/go-geos"

	"github.com/agroclim/era5-extract/internal/adapter/geomio"
	"github.com/agroclim/era5-extract/internal/domain"
)

// Rasterizer holds the unioned region geometry in GEOS form for repeated
// cell tests. Not safe for concurrent use; the pipeline is sequential.
type Rasterizer struct {
	ctx    *geos.Context
	region *geos.Geom
	// region bbox for cell prefiltering
	minLon, minLat, maxLon, maxLat float64
}

// New builds a Rasterizer from the region's polygons. Multiple and
// overlapping polygons are unioned through a zero-width buffer, which also
// repairs minor ring defects.
func New(region *geomio.Region) (*Rasterizer, error) {
	ctx := geos.NewContext()
	geom, err := ctx.NewGeomFromWKT(region.WKT())
	if err != nil {
		return nil, &domain.GeometryError{Err: fmt.Errorf("building region geometry: %w", err)}
	}
	merged := geom.Buffer(0, 32)
	if merged.IsEmpty() {
		return nil, &domain.GeometryError{Err: fmt.Errorf("region geometry is empty after union")}
	}
	r := &Rasterizer{ctx: ctx, region: merged}
	r.minLon, r.minLat, r.maxLon, r.maxLat = region.Bounds()
	return r, nil
}

// Mask rasterizes the region onto the grid with any-touch semantics: a
// cell is true when the region touches any part of its footprint. This
// keeps thin or boundary-hugging polygons visible at ~11 km cells.
func (r *Rasterizer) Mask(g domain.Grid, fallbackRes float64) domain.Mask {
	mask := domain.NewMask(g)
	tr := domain.GridTransform(g, fallbackRes)
	i0, i1, j0, j1 := r.cellRange(g, tr)
	for i := i0; i < i1; i++ {
		for j := j0; j < j1; j++ {
			minLon, minLat, maxLon, maxLat := tr.CellBounds(i, j)
			cell, err := r.ctx.NewGeomFromWKT(geomio.BoxWKT(minLon, minLat, maxLon, maxLat))
			if err != nil {
				continue
			}
			if cell.Intersects(r.region) {
				mask[i][j] = true
			}
		}
	}
	return mask
}

// cellRange prefilters grid indices by the region bounding box so the
// per-cell GEOS tests only run near the region.
func (r *Rasterizer) cellRange(g domain.Grid, tr domain.Transform) (i0, i1, j0, j1 int) {
	rows, cols := g.Shape()
	i0, j0 = rows, cols
	for i := 0; i < rows; i++ {
		_, _, _, maxLat := tr.CellBounds(i, 0)
		if maxLat >= r.minLat {
			i0 = i
			break
		}
	}
	for i := rows - 1; i >= 0; i-- {
		_, minLat, _, _ := tr.CellBounds(i, 0)
		if minLat <= r.maxLat {
			i1 = i + 1
			break
		}
	}
	for j := 0; j < cols; j++ {
		_, _, maxLon, _ := tr.CellBounds(0, j)
		if maxLon >= r.minLon {
			j0 = j
			break
		}
	}
	for j := cols - 1; j >= 0; j-- {
		minLon, _, _, _ := tr.CellBounds(0, j)
		if minLon <= r.maxLon {
			j1 = j + 1
			break
		}
	}
	if i0 > i1 {
		i1 = i0
	}
	if j0 > j1 {
		j1 = j0
	}
	return i0, i1, j0, j1
}
