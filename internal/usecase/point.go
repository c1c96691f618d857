package usecase

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/agroclim/era5-extract/internal/adapter/cds"
	"github.com/agroclim/era5-extract/internal/adapter/geomio"
	"github.com/agroclim/era5-extract/internal/domain"
	"github.com/agroclim/era5-extract/internal/logger"
)

// pointAreaBuffer widens the request bounds around the input points.
const pointAreaBuffer = 0.1

// PointParams describes one point extraction run.
type PointParams struct {
	GeometryPath string
	Window       domain.RequestWindow
	OutDir       string
}

// ExtractPoints runs the point sibling: nearest-neighbor lookup per input
// point across the selected timestamps, written as one CSV. Input feature
// attributes and the original feature index are carried through.
func (p *Pipeline) ExtractPoints(ctx context.Context, params PointParams) (*Result, error) {
	if err := params.Window.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(params.OutDir, 0o755); err != nil {
		return nil, &domain.InputError{Err: fmt.Errorf("creating output directory: %w", err)}
	}

	region, err := geomio.ReadFile(params.GeometryPath)
	if err != nil {
		return nil, err
	}
	points := region.Points()
	if len(points) == 0 {
		return nil, &domain.InputError{Err: fmt.Errorf("input contains no point geometries")}
	}

	tmpPath := filepath.Join(p.TempDir, fmt.Sprintf("temp_era5_%s_%s.nc",
		params.Window.DateSuffix(), uuid.NewString()))

	req := cds.Request{
		Variables: params.Window.Variables,
		Years:     params.Window.Years(),
		Months:    params.Window.Months(),
		Days:      params.Window.Days(),
		Hours:     params.Window.HourStrings(),
		Area:      region.Area(pointAreaBuffer),
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
	times := ds.Times()
	selected := selectTimes(times, params.Window)

	result := &Result{}
	var longNames []string
	cubes := make(map[string]*domain.Cube)
	for _, requested := range params.Window.Variables {
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
		longNames = append(longNames, longName)
		cubes[longName] = cube
	}

	attrKeys := attributeKeys(points)
	header := append([]string{"time"}, longNames...)
	header = append(header, attrKeys...)
	header = append(header, "original_index")

	var rows [][]string
	for _, pt := range points {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		i, j := grid.NearestIndex(pt.Lat, pt.Lon)
		for _, t := range selected {
			row := make([]string, 0, len(header))
			row = append(row, times[t].UTC().Format("2006-01-02 15:04"))
			for _, longName := range longNames {
				row = append(row, formatValue(cubes[longName].Values[t][i][j]))
			}
			for _, key := range attrKeys {
				row = append(row, formatAttribute(pt.Properties[key]))
			}
			row = append(row, fmt.Sprintf("%d", pt.Index))
			rows = append(rows, row)
		}
	}

	csvPath := filepath.Join(params.OutDir, fmt.Sprintf("era5_results_%s_to_%s.csv",
		params.Window.Start.Format("20060102"), params.Window.End.Format("20060102")))
	if err := p.writeCSV(csvPath, header, rows); err != nil {
		return nil, err
	}
	p.report(result, Artifact{Kind: ArtifactResult, Path: csvPath})
	return result, nil
}

// attributeKeys returns the sorted union of property keys over all points.
func attributeKeys(points []geomio.PointFeature) []string {
	seen := make(map[string]bool)
	var keys []string
	for _, pt := range points {
		for key := range pt.Properties {
			if !seen[key] {
				seen[key] = true
				keys = append(keys, key)
			}
		}
	}
	sort.Strings(keys)
	return keys
}

func formatAttribute(v interface{}) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%v", v)
}
