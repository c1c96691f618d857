// Package main provides the extraction worker, invoked by a plugin host
// as a child process. Progress is one-way: structured marker lines on
// stdout, diagnostics on stderr.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/agroclim/era5-extract/internal/adapter/cds"
	"github.com/agroclim/era5-extract/internal/domain"
	"github.com/agroclim/era5-extract/internal/logger"
	"github.com/agroclim/era5-extract/internal/usecase"
)

const version = "0.1.0"

func main() {
	// Parse command-line flags.
	polygons := flag.String("polygons", "", "Path to a GeoJSON file of region polygons")
	points := flag.String("points", "", "Path to a GeoJSON file of input points")
	start := flag.String("start", "", "Start date, inclusive (YYYY-MM-DD)")
	end := flag.String("end", "", "End date, inclusive (YYYY-MM-DD)")
	hours := flag.String("hours", "", "Comma-separated hours of day (\"00\"..\"23\")")
	vars := flag.String("vars", "", "Comma-separated provider variable names")
	out := flag.String("out", ".", "Output directory")
	resolution := flag.Float64("resolution", domain.DefaultResolution,
		"Fallback grid cell size in degrees (polygon mode)")
	outputFormat := flag.String("output-format", usecase.FormatRaster,
		"Polygon output format: raster or vector")
	debug := flag.Bool("debug", false, "Enable debug logging")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("era5-extract version %s\n", version)
		return
	}

	logger.Init(*debug)
	defer logger.Sync()

	if (*polygons == "") == (*points == "") {
		logger.Fatalf("exactly one of -polygons or -points is required")
	}

	window, err := buildWindow(*start, *end, *hours, *vars)
	if err != nil {
		logger.Fatalf("%v", err)
	}

	client, err := cds.NewClientFromEnv()
	if err != nil {
		logger.Fatalf("%v", err)
	}

	pipeline := usecase.New(client, printMarker)

	var result *usecase.Result
	if *polygons != "" {
		result, err = pipeline.ExtractPolygons(context.Background(), usecase.PolygonParams{
			GeometryPath: *polygons,
			Window:       window,
			OutDir:       *out,
			Resolution:   *resolution,
			OutputFormat: *outputFormat,
		})
	} else {
		result, err = pipeline.ExtractPoints(context.Background(), usecase.PointParams{
			GeometryPath: *points,
			Window:       window,
			OutDir:       *out,
		})
	}
	if err != nil {
		// Fatal run-level failure: nonzero exit. Partial variable skips
		// never reach here.
		logger.Errorf("extraction failed: %v", err)
		logger.Sync()
		os.Exit(1)
	}
	logger.Infof("done: %d artifacts, %d variables skipped",
		len(result.Artifacts), len(result.Skipped))
}

// printMarker writes one discovery marker per artifact on its own stdout
// line, with no other content sharing the line. The host extracts paths
// by prefix.
func printMarker(a usecase.Artifact) {
	fmt.Println(markerLine(a))
}

func markerLine(a usecase.Artifact) string {
	switch a.Kind {
	case usecase.ArtifactRaster:
		return "RASTER_PATH:" + a.Path
	case usecase.ArtifactVector:
		return "VECTOR_PATH:" + a.Path
	default:
		return "RESULT_PATH:" + a.Path
	}
}

func buildWindow(start, end, hours, vars string) (domain.RequestWindow, error) {
	startDate, err := time.Parse("2006-01-02", start)
	if err != nil {
		return domain.RequestWindow{}, fmt.Errorf("invalid -start date (expected YYYY-MM-DD): %v", err)
	}
	endDate, err := time.Parse("2006-01-02", end)
	if err != nil {
		return domain.RequestWindow{}, fmt.Errorf("invalid -end date (expected YYYY-MM-DD): %v", err)
	}
	hourSet, err := domain.ParseHours(hours)
	if err != nil {
		return domain.RequestWindow{}, err
	}
	variables, err := domain.ParseVariables(vars)
	if err != nil {
		return domain.RequestWindow{}, err
	}
	w := domain.RequestWindow{
		Start:     startDate.UTC(),
		End:       endDate.UTC(),
		Hours:     hourSet,
		Variables: variables,
	}
	return w, w.Validate()
}
