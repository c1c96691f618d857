package usecase

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/agroclim/era5-extract/internal/adapter/cds"
	"github.com/agroclim/era5-extract/internal/adapter/geomio"
	"github.com/agroclim/era5-extract/internal/adapter/rasterize"
	"github.com/agroclim/era5-extract/internal/domain"
	"github.com/agroclim/era5-extract/internal/logger"
)

// polygonAreaBuffer widens the request bounds so boundary cells are fully
// covered by the downloaded grid.
const polygonAreaBuffer = 0.2

// PolygonParams describes one polygon extraction run.
type PolygonParams struct {
	GeometryPath string
	Window       domain.RequestWindow
	OutDir       string
	Resolution   float64 // fallback cell size in degrees
	OutputFormat string  // FormatRaster or FormatVector
}

// ExtractPolygons runs the polygon pipeline: request, align, mask, then
// one artifact per (variable, timestamp). Variables missing from the
// dataset are skipped with a warning; the run still succeeds. A nil error
// with a partially filled Result is the normal partial-success outcome.
func (p *Pipeline) ExtractPolygons(ctx context.Context, params PolygonParams) (*Result, error) {
	if err := params.Window.Validate(); err != nil {
		return nil, err
	}
	if params.OutputFormat != FormatRaster && params.OutputFormat != FormatVector {
		return nil, &domain.InputError{Err: fmt.Errorf("unknown output format %q", params.OutputFormat)}
	}
	if params.Resolution <= 0 {
		params.Resolution = domain.DefaultResolution
	}
	if err := os.MkdirAll(params.OutDir, 0o755); err != nil {
		return nil, &domain.InputError{Err: fmt.Errorf("creating output directory: %w", err)}
	}

	region, err := geomio.ReadFile(params.GeometryPath)
	if err != nil {
		return nil, err
	}
	if !region.HasPolygons() {
		return nil, &domain.InputError{Err: fmt.Errorf("input contains no polygon geometries")}
	}
	rasterizer, err := rasterize.New(region)
	if err != nil {
		return nil, err
	}

	tmpPath := filepath.Join(p.TempDir, fmt.Sprintf("temp_era5_polygons_%s_%s.nc",
		params.Window.DateSuffix(), uuid.NewString()))

	req := cds.Request{
		Variables: params.Window.Variables,
		Years:     params.Window.Years(),
		Months:    params.Window.Months(),
		Days:      params.Window.Days(),
		Hours:     params.Window.HourStrings(),
		Area:      region.Area(polygonAreaBuffer),
	}
	var ds GridSource
	defer func() { p.finalize(ds, tmpPath) }()
	if err := p.retriever.Retrieve(ctx, req, tmpPath); err != nil {
		return nil, err
	}

	ds, err = p.open(tmpPath)
	if err != nil {
		return nil, err
	}

	logger.Infof("dataset variables: %s", strings.Join(ds.Variables(), ", "))

	grid := ds.Grid()
	mask := rasterizer.Mask(grid, params.Resolution)
	inside, total := mask.Count()
	logger.Infof("region mask covers %d of %d cells", inside, total)

	selected := selectTimes(ds.Times(), params.Window)
	logger.Infof("selected %d of %d timestamps", len(selected), len(ds.Times()))

	var cells []rasterize.Cell
	if params.OutputFormat == FormatVector {
		cells, err = rasterizer.Cells(grid, params.Resolution)
		if err != nil {
			return nil, err
		}
		if len(cells) == 0 {
			logger.Warnf("0 intersections between region and grid; no vector layers will be emitted")
		}
	}

	result := &Result{}
	for _, requested := range params.Window.Variables {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		dsName, longName, ok := resolveVariable(ds, requested)
		if !ok {
			logger.Warnf("variable %s not present in dataset under any name, skipping", requested)
			result.Skipped = append(result.Skipped, requested)
			continue
		}
		cube, err := ds.ReadCube(dsName)
		if err != nil {
			logger.Warnf("reading variable %s: %v, skipping", dsName, err)
			result.Skipped = append(result.Skipped, requested)
			continue
		}

		switch params.OutputFormat {
		case FormatRaster:
			err = p.emitRasters(ctx, result, params, longName, cube, mask, selected)
		case FormatVector:
			err = p.emitVectors(ctx, result, params, longName, cube, cells, selected)
		}
		if err != nil {
			return nil, err
		}
	}
	return result, nil
}

// emitRasters writes one clipped, NoData-masked GeoTIFF per selected
// timestamp. An empty mask falls back to the full unclipped extent, which
// then comes out entirely NoData.
func (p *Pipeline) emitRasters(ctx context.Context, result *Result, params PolygonParams,
	longName string, cube *domain.Cube, mask domain.Mask, selected []int) error {

	win, ok := domain.BoundingClip(mask)
	if !ok {
		rows, cols := cube.Grid.Shape()
		win = domain.ClipWindow{R0: 0, R1: rows, C0: 0, C1: cols}
		logger.Warnf("region does not intersect the grid; emitting the full extent for %s", longName)
	}
	clipGrid := domain.ClipGrid(cube.Grid, win)
	clipMask := domain.ClipMask(mask, win)

	for _, t := range selected {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		masked := domain.ApplyMask(domain.ClipSlice(cube.Slice(t), win), clipMask)
		path := filepath.Join(params.OutDir,
			fmt.Sprintf("%s_%s.tif", longName, cube.Times[t].Format("20060102_1504")))
		if err := p.writeRaster(path, masked, clipGrid, params.Resolution); err != nil {
			logger.Warnf("writing %s: %v, skipping artifact", path, err)
			continue
		}
		p.report(result, Artifact{Kind: ArtifactRaster, Path: path})
	}
	return nil
}

// emitVectors writes one GeoJSON layer per selected timestamp over the
// precomputed intersection cells. Geometry is shared across layers; only
// the attribute value and filename differ.
func (p *Pipeline) emitVectors(ctx context.Context, result *Result, params PolygonParams,
	longName string, cube *domain.Cube, cells []rasterize.Cell, selected []int) error {

	if len(cells) == 0 {
		return nil
	}
	for _, t := range selected {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		path := filepath.Join(params.OutDir,
			fmt.Sprintf("%s_%s_grid.geojson", longName, cube.Times[t].Format("20060102_1504")))
		if err := p.writeVector(path, cells, cube.Slice(t), longName); err != nil {
			logger.Warnf("writing %s: %v, skipping artifact", path, err)
			continue
		}
		p.report(result, Artifact{Kind: ArtifactVector, Path: path})
	}
	return nil
}
