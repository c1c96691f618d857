// Package emit writes the pipeline's output artifacts: masked GeoTIFF
// rasters, vector grid layers and the point-mode CSV.
package emit

import (
	"fmt"
	"math"
	"sync"

	"github.com/airbusgeo/godal"

	"github.com/agroclim/era5-extract/internal/domain"
	"github.com/agroclim/era5-extract/internal/logger"
)

// NoDataValue is the raster sentinel for cells outside the region mask.
const NoDataValue = -9999.0

// wgs84WKT spells the geographic CRS out in full instead of resolving
// "EPSG:4326" through the CRS database, which is not present in every
// runtime environment.
const wgs84WKT = `GEOGCS["WGS 84",DATUM["WGS_1984",SPHEROID["WGS 84",6378137,298.257223563]],PRIMEM["Greenwich",0],UNIT["degree",0.0174532925199433]]`

var registerDrivers sync.Once

// WriteRaster writes one single-band float32 GeoTIFF. data is an
// ascending-latitude plane (row 0 = southmost) with NaN marking masked
// cells; rows are flipped to north-up on write. The NoData value is
// asserted twice: at creation and again through a reopen in update mode,
// because the first write path does not reliably persist it in every
// GDAL build.
func WriteRaster(path string, data [][]float64, grid domain.Grid, fallbackRes float64) error {
	registerDrivers.Do(func() { godal.RegisterAll() })

	height := len(data)
	if height == 0 || len(data[0]) == 0 {
		return &domain.WriteError{Path: path, Err: fmt.Errorf("empty data plane")}
	}
	width := len(data[0])

	tr := domain.GridTransform(grid, fallbackRes)

	options := []string{"COMPRESS=LZW"}
	if min(height, width) >= 256 {
		options = append(options,
			"TILED=YES",
			fmt.Sprintf("BLOCKXSIZE=%d", min(256, width)),
			fmt.Sprintf("BLOCKYSIZE=%d", min(256, height)),
		)
	}

	ds, err := godal.Create(godal.GTiff, path, 1, godal.Float32, width, height,
		godal.CreationOption(options...))
	if err != nil {
		return &domain.WriteError{Path: path, Err: err}
	}
	closed := false
	defer func() {
		if !closed {
			_ = ds.Close()
		}
	}()

	if err := ds.SetGeoTransform([6]float64{tr.West, tr.LonRes, 0, tr.North(height), 0, -tr.LatRes}); err != nil {
		return &domain.WriteError{Path: path, Err: fmt.Errorf("setting geotransform: %w", err)}
	}
	sr, err := godal.NewSpatialRefFromWKT(wgs84WKT)
	if err != nil {
		return &domain.WriteError{Path: path, Err: fmt.Errorf("building WGS84 reference: %w", err)}
	}
	if err := ds.SetSpatialRef(sr); err != nil {
		sr.Close()
		return &domain.WriteError{Path: path, Err: fmt.Errorf("setting spatial reference: %w", err)}
	}
	sr.Close()

	band := ds.Bands()[0]
	if err := band.SetNoData(NoDataValue); err != nil {
		return &domain.WriteError{Path: path, Err: fmt.Errorf("setting nodata: %w", err)}
	}

	// North-up: output row 0 is the northmost (last) input row.
	buf := make([]float32, height*width)
	for i := 0; i < height; i++ {
		src := data[height-1-i]
		for j := 0; j < width; j++ {
			v := src[j]
			if math.IsNaN(v) {
				buf[i*width+j] = NoDataValue
			} else {
				buf[i*width+j] = float32(v)
			}
		}
	}
	if err := band.Write(0, 0, buf, width, height); err != nil {
		return &domain.WriteError{Path: path, Err: fmt.Errorf("writing band: %w", err)}
	}

	if err := ds.SetMetadata("AREA_OR_POINT", "Area"); err != nil {
		logger.Warnf("could not set AREA_OR_POINT on %s: %v", path, err)
	}

	if levels := overviewLevels(height, width); len(levels) > 0 {
		if err := ds.BuildOverviews(godal.Levels(levels...), godal.Resampling(godal.Average)); err != nil {
			logger.Warnf("could not build overviews for %s: %v", path, err)
		}
	}

	if err := ds.Close(); err != nil {
		closed = true
		return &domain.WriteError{Path: path, Err: fmt.Errorf("closing dataset: %w", err)}
	}
	closed = true

	return reassertNoData(path)
}

// overviewLevels returns the reduction levels {2,4,8,16,32} strictly
// below half the smaller dimension; nothing for rasters of 16 cells or
// fewer on a side.
func overviewLevels(height, width int) []int {
	minDim := min(height, width)
	if minDim <= 16 {
		return nil
	}
	var levels []int
	for _, level := range []int{2, 4, 8, 16, 32} {
		if level < minDim/2 {
			levels = append(levels, level)
		}
	}
	return levels
}

// reassertNoData reopens the file and sets the band NoData again.
func reassertNoData(path string) error {
	ds, err := godal.Open(path, godal.Update())
	if err != nil {
		return &domain.WriteError{Path: path, Err: fmt.Errorf("reopening for nodata: %w", err)}
	}
	defer ds.Close()
	if err := ds.Bands()[0].SetNoData(NoDataValue); err != nil {
		return &domain.WriteError{Path: path, Err: fmt.Errorf("reasserting nodata: %w", err)}
	}
	return nil
}
