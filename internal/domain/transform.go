package domain

// Transform is the affine mapping between grid indices and geographic
// space. The origin sits at the outer south-west corner of the extent,
// half a cell out from the first cell center, so that cell centers land
// exactly on the coordinate vectors. The provider's coordinates denote
// cell centers; without the half-cell shift every footprint would be off
// by half a pixel.
type Transform struct {
	West   float64 // outer west edge (min lon - LonRes/2)
	South  float64 // outer south edge (min lat - LatRes/2)
	LonRes float64
	LatRes float64
}

// GridTransform derives the transform from canonical axes. fallbackRes is
// used when an axis is too short to measure spacing from.
func GridTransform(g Grid, fallbackRes float64) Transform {
	lonRes := g.LonRes(fallbackRes)
	latRes := g.LatRes(fallbackRes)
	t := Transform{LonRes: lonRes, LatRes: latRes}
	if len(g.Lons) > 0 {
		t.West = g.Lons[0] - lonRes/2
	}
	if len(g.Lats) > 0 {
		t.South = g.Lats[0] - latRes/2
	}
	return t
}

// CellBounds returns the square footprint of the cell at ascending-
// latitude row i, column j.
func (t Transform) CellBounds(i, j int) (minLon, minLat, maxLon, maxLat float64) {
	minLon = t.West + float64(j)*t.LonRes
	minLat = t.South + float64(i)*t.LatRes
	return minLon, minLat, minLon + t.LonRes, minLat + t.LatRes
}

// North returns the outer north edge for nRows rows, as needed by
// north-up raster geotransforms.
func (t Transform) North(nRows int) float64 {
	return t.South + float64(nRows)*t.LatRes
}
