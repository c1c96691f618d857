package rasterize

import (
	"fmt"

	geojson "github.com/paulmach/go.geojson"

	"github.com/agroclim/era5-extract/internal/adapter/geomio"
	"github.com/agroclim/era5-extract/internal/domain"
)

// Cell is one grid cell's exact intersection with the region: the clipped
// footprint geometry plus the owning grid indices and center coordinates.
// Geometry is time-invariant, so the set is computed once per run and
// reused for every (variable, timestamp) layer.
type Cell struct {
	Row, Col  int
	CenterLat float64
	CenterLon float64
	Geometry  *geojson.Geometry
}

// Cells computes the intersection of every grid cell footprint with the
// region. Cells whose intersection is empty or degenerate (zero area, a
// shared edge or corner) are discarded.
func (r *Rasterizer) Cells(g domain.Grid, fallbackRes float64) ([]Cell, error) {
	tr := domain.GridTransform(g, fallbackRes)
	i0, i1, j0, j1 := r.cellRange(g, tr)

	var cells []Cell
	for i := i0; i < i1; i++ {
		for j := j0; j < j1; j++ {
			minLon, minLat, maxLon, maxLat := tr.CellBounds(i, j)
			box, err := r.ctx.NewGeomFromWKT(geomio.BoxWKT(minLon, minLat, maxLon, maxLat))
			if err != nil {
				return nil, fmt.Errorf("building footprint (%d,%d): %w", i, j, err)
			}
			if !box.Intersects(r.region) {
				continue
			}
			clipped := box.Intersection(r.region)
			if clipped == nil || clipped.IsEmpty() {
				continue
			}
			// Zero-width buffer drops line/point pieces from mixed
			// intersection results.
			clipped = clipped.Buffer(0, 32)
			if clipped.IsEmpty() || clipped.Area() <= 0 {
				continue
			}
			geom, err := geomio.ParseWKT(clipped.ToWKT())
			if err != nil {
				return nil, fmt.Errorf("decoding intersection (%d,%d): %w", i, j, err)
			}
			cells = append(cells, Cell{
				Row:       i,
				Col:       j,
				CenterLat: g.Lats[i],
				CenterLon: g.Lons[j],
				Geometry:  geom,
			})
		}
	}
	return cells, nil
}
