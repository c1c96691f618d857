package emit

import (
	"fmt"
	"math"
	"os"

	geojson "github.com/paulmach/go.geojson"

	"github.com/agroclim/era5-extract/internal/adapter/rasterize"
	"github.com/agroclim/era5-extract/internal/domain"
)

// WriteVectorGrid writes one GeoJSON FeatureCollection: one feature per
// intersection cell, carrying the variable value under its long name plus
// the cell-center coordinates. values is the full clipped plane indexed
// by cell row/col; NaN becomes a JSON null.
func WriteVectorGrid(path string, cells []rasterize.Cell, values [][]float64, variable string) error {
	fc := geojson.NewFeatureCollection()
	for _, c := range cells {
		f := geojson.NewFeature(c.Geometry)
		v := values[c.Row][c.Col]
		if math.IsNaN(v) {
			f.SetProperty(variable, nil)
		} else {
			f.SetProperty(variable, v)
		}
		f.SetProperty("lat_center", c.CenterLat)
		f.SetProperty("lon_center", c.CenterLon)
		fc.AddFeature(f)
	}

	data, err := fc.MarshalJSON()
	if err != nil {
		return &domain.WriteError{Path: path, Err: fmt.Errorf("encoding feature collection: %w", err)}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return &domain.WriteError{Path: path, Err: err}
	}
	return nil
}
