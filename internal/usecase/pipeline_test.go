package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/agroclim/era5-extract/internal/adapter/cds"
	"github.com/agroclim/era5-extract/internal/adapter/rasterize"
	"github.com/agroclim/era5-extract/internal/domain"
)

type stubRetriever struct {
	req    cds.Request
	err    error
	called bool
}

func (s *stubRetriever) Retrieve(_ context.Context, req cds.Request, dest string) error {
	s.called = true
	s.req = req
	if s.err != nil {
		return s.err
	}
	return os.WriteFile(dest, []byte("stub"), 0o644)
}

type stubSource struct {
	grid   domain.Grid
	times  []time.Time
	cubes  map[string]*domain.Cube
	closed bool
}

func (s *stubSource) Grid() domain.Grid         { return s.grid }
func (s *stubSource) Times() []time.Time        { return s.times }
func (s *stubSource) HasVariable(n string) bool { _, ok := s.cubes[n]; return ok }
func (s *stubSource) Close() error              { s.closed = true; return nil }

func (s *stubSource) Variables() []string {
	names := make([]string, 0, len(s.cubes))
	for name := range s.cubes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *stubSource) ReadCube(n string) (*domain.Cube, error) {
	cube, ok := s.cubes[n]
	if !ok {
		return nil, &domain.VariableNotFoundError{Variable: n}
	}
	return cube, nil
}

type rasterWrite struct {
	path string
	data [][]float64
	grid domain.Grid
}

type vectorWrite struct {
	path  string
	cells []rasterize.Cell
}

type recorder struct {
	rasters   []rasterWrite
	vectors   []vectorWrite
	csvHeader []string
	csvRows   [][]string
	artifacts []Artifact
}

func newTestPipeline(t *testing.T, src *stubSource) (*Pipeline, *stubRetriever, *recorder) {
	t.Helper()
	rec := &recorder{}
	ret := &stubRetriever{}
	p := New(ret, func(a Artifact) { rec.artifacts = append(rec.artifacts, a) })
	p.TempDir = t.TempDir()
	p.open = func(string) (GridSource, error) { return src, nil }
	p.writeRaster = func(path string, data [][]float64, grid domain.Grid, _ float64) error {
		rec.rasters = append(rec.rasters, rasterWrite{path, data, grid})
		return nil
	}
	p.writeVector = func(path string, cells []rasterize.Cell, _ [][]float64, _ string) error {
		rec.vectors = append(rec.vectors, vectorWrite{path, cells})
		return nil
	}
	p.writeCSV = func(_ string, header []string, rows [][]string) error {
		rec.csvHeader = header
		rec.csvRows = rows
		return nil
	}
	return p, ret, rec
}

// testGrid is 3x3 at 0.1 degrees: lats 40.0..40.2, lons -3.2..-3.0.
func testGrid() domain.Grid {
	return domain.Grid{
		Lats: []float64{40.0, 40.1, 40.2},
		Lons: []float64{-3.2, -3.1, -3.0},
	}
}

func hourlyTimes(start time.Time, n int) []time.Time {
	out := make([]time.Time, n)
	for i := range out {
		out[i] = start.Add(time.Duration(i) * time.Hour)
	}
	return out
}

func constantCube(g domain.Grid, times []time.Time, v float64) *domain.Cube {
	rows, cols := g.Shape()
	values := make([][][]float64, len(times))
	for t := range values {
		plane := make([][]float64, rows)
		for i := range plane {
			row := make([]float64, cols)
			for j := range row {
				row[j] = v
			}
			plane[i] = row
		}
		values[t] = plane
	}
	return &domain.Cube{Grid: g, Times: times, Values: values}
}

// writeSquare writes a GeoJSON polygon covering only the cell centered at
// (40.0, -3.2).
func writeSquare(t *testing.T) string {
	t.Helper()
	return writeGeoJSON(t, `{"type": "Polygon", "coordinates":
		[[[-3.24, 39.96], [-3.16, 39.96], [-3.16, 40.04], [-3.24, 40.04], [-3.24, 39.96]]]}`)
}

func writeGeoJSON(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "region.geojson")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write geometry: %v", err)
	}
	return path
}

func areaNear(got, want [4]float64) bool {
	for i := range got {
		if math.Abs(got[i]-want[i]) > 1e-9 {
			return false
		}
	}
	return true
}

func testWindow() domain.RequestWindow {
	return domain.RequestWindow{
		Start:     time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		End:       time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC),
		Hours:     []int{0, 12},
		Variables: []string{"2m_temperature"},
	}
}

func TestExtractPolygonsRasterSelectsHours(t *testing.T) {
	g := testGrid()
	times := hourlyTimes(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), 48)
	src := &stubSource{grid: g, times: times, cubes: map[string]*domain.Cube{
		"t2m": constantCube(g, times, 288.15),
	}}
	p, ret, rec := newTestPipeline(t, src)

	res, err := p.ExtractPolygons(context.Background(), PolygonParams{
		GeometryPath: writeSquare(t),
		Window:       testWindow(),
		OutDir:       t.TempDir(),
		OutputFormat: FormatRaster,
	})
	if err != nil {
		t.Fatalf("ExtractPolygons: %v", err)
	}

	// 2 hours x 2 days = 4 rasters.
	if len(res.Artifacts) != 4 {
		t.Fatalf("artifact count = %d, want 4", len(res.Artifacts))
	}
	if len(rec.artifacts) != 4 {
		t.Errorf("sink received %d artifacts", len(rec.artifacts))
	}
	wantName := "2m_temperature_20240601_0000.tif"
	if got := filepath.Base(res.Artifacts[0].Path); got != wantName {
		t.Errorf("first artifact = %s, want %s", got, wantName)
	}
	if res.Artifacts[0].Kind != ArtifactRaster {
		t.Errorf("artifact kind = %s", res.Artifacts[0].Kind)
	}

	// The polygon covers exactly one cell, so the clip is 1x1 with the
	// masked value preserved.
	w := rec.rasters[0]
	if len(w.data) != 1 || len(w.data[0]) != 1 {
		t.Fatalf("clipped shape = %dx%d, want 1x1", len(w.data), len(w.data[0]))
	}
	if w.data[0][0] != 288.15 {
		t.Errorf("masked value = %v", w.data[0][0])
	}
	if w.grid.Lats[0] != 40.0 || w.grid.Lons[0] != -3.2 {
		t.Errorf("clipped grid = %v", w.grid)
	}

	if !ret.called {
		t.Error("retriever was not called")
	}
	if !areaNear(ret.req.Area, [4]float64{40.24, -3.44, 39.76, -2.96}) {
		t.Errorf("request area = %v", ret.req.Area)
	}
	if !src.closed {
		t.Error("dataset was not closed")
	}
	leftovers, _ := filepath.Glob(filepath.Join(p.TempDir, "temp_era5_*"))
	if len(leftovers) != 0 {
		t.Errorf("temp files not removed: %v", leftovers)
	}
}

func TestExtractPolygonsSkipsMissingVariable(t *testing.T) {
	g := testGrid()
	times := hourlyTimes(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), 24)
	src := &stubSource{grid: g, times: times, cubes: map[string]*domain.Cube{
		"t2m": constantCube(g, times, 1),
	}}
	p, _, _ := newTestPipeline(t, src)

	window := testWindow()
	window.End = window.Start
	window.Variables = []string{"2m_temperature", "total_precipitation"}

	res, err := p.ExtractPolygons(context.Background(), PolygonParams{
		GeometryPath: writeSquare(t),
		Window:       window,
		OutDir:       t.TempDir(),
		OutputFormat: FormatRaster,
	})
	if err != nil {
		t.Fatalf("ExtractPolygons: %v", err)
	}
	if len(res.Skipped) != 1 || res.Skipped[0] != "total_precipitation" {
		t.Errorf("skipped = %v", res.Skipped)
	}
	// 1 day x 2 hours for the variable that resolved.
	if len(res.Artifacts) != 2 {
		t.Errorf("artifact count = %d, want 2", len(res.Artifacts))
	}
}

func TestExtractPolygonsOutsideCoverage(t *testing.T) {
	g := testGrid()
	times := hourlyTimes(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), 24)
	src := &stubSource{grid: g, times: times, cubes: map[string]*domain.Cube{
		"t2m": constantCube(g, times, 5),
	}}

	region := writeGeoJSON(t, `{"type": "Polygon", "coordinates":
		[[[10.0, 50.0], [10.1, 50.0], [10.1, 50.1], [10.0, 50.1], [10.0, 50.0]]]}`)
	window := testWindow()
	window.End = window.Start

	t.Run("raster falls back to full extent", func(t *testing.T) {
		p, _, rec := newTestPipeline(t, src)
		res, err := p.ExtractPolygons(context.Background(), PolygonParams{
			GeometryPath: region,
			Window:       window,
			OutDir:       t.TempDir(),
			OutputFormat: FormatRaster,
		})
		if err != nil {
			t.Fatalf("ExtractPolygons: %v", err)
		}
		if len(res.Artifacts) != 2 {
			t.Fatalf("artifact count = %d, want 2", len(res.Artifacts))
		}
		w := rec.rasters[0]
		if len(w.data) != 3 || len(w.data[0]) != 3 {
			t.Fatalf("shape = %dx%d, want full 3x3 extent", len(w.data), len(w.data[0]))
		}
		for i := range w.data {
			for j := range w.data[i] {
				if !math.IsNaN(w.data[i][j]) {
					t.Fatalf("cell (%d,%d) = %v, want NaN everywhere", i, j, w.data[i][j])
				}
			}
		}
	})

	t.Run("vector emits zero layers", func(t *testing.T) {
		src.closed = false
		p, _, rec := newTestPipeline(t, src)
		res, err := p.ExtractPolygons(context.Background(), PolygonParams{
			GeometryPath: region,
			Window:       window,
			OutDir:       t.TempDir(),
			OutputFormat: FormatVector,
		})
		if err != nil {
			t.Fatalf("ExtractPolygons: %v", err)
		}
		if len(res.Artifacts) != 0 || len(rec.vectors) != 0 {
			t.Errorf("expected no vector layers, got %d", len(res.Artifacts))
		}
	})
}

func TestExtractPolygonsVectorReusesGeometry(t *testing.T) {
	g := testGrid()
	times := hourlyTimes(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), 24)
	src := &stubSource{grid: g, times: times, cubes: map[string]*domain.Cube{
		"t2m": constantCube(g, times, 2),
	}}
	p, _, rec := newTestPipeline(t, src)

	window := testWindow()
	window.End = window.Start

	res, err := p.ExtractPolygons(context.Background(), PolygonParams{
		GeometryPath: writeSquare(t),
		Window:       window,
		OutDir:       t.TempDir(),
		OutputFormat: FormatVector,
	})
	if err != nil {
		t.Fatalf("ExtractPolygons: %v", err)
	}
	if len(rec.vectors) != 2 {
		t.Fatalf("vector layer count = %d, want 2", len(rec.vectors))
	}
	// Geometry is computed once and shared between layers.
	if &rec.vectors[0].cells[0] != &rec.vectors[1].cells[0] {
		t.Error("vector layers do not share the precomputed cell set")
	}
	if !strings.HasSuffix(rec.vectors[0].path, "2m_temperature_20240601_0000_grid.geojson") {
		t.Errorf("layer path = %s", rec.vectors[0].path)
	}
	for _, a := range res.Artifacts {
		if a.Kind != ArtifactVector {
			t.Errorf("artifact kind = %s", a.Kind)
		}
	}
}

func TestExtractPolygonsFatalErrors(t *testing.T) {
	g := testGrid()
	src := &stubSource{grid: g, times: hourlyTimes(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), 24)}

	t.Run("invalid window", func(t *testing.T) {
		p, ret, _ := newTestPipeline(t, src)
		window := testWindow()
		window.Hours = nil
		_, err := p.ExtractPolygons(context.Background(), PolygonParams{
			GeometryPath: writeSquare(t),
			Window:       window,
			OutDir:       t.TempDir(),
			OutputFormat: FormatRaster,
		})
		var ie *domain.InputError
		if !errors.As(err, &ie) {
			t.Fatalf("expected InputError, got %v", err)
		}
		if ret.called {
			t.Error("retriever called despite invalid input")
		}
	})

	t.Run("unknown output format", func(t *testing.T) {
		p, _, _ := newTestPipeline(t, src)
		_, err := p.ExtractPolygons(context.Background(), PolygonParams{
			GeometryPath: writeSquare(t),
			Window:       testWindow(),
			OutDir:       t.TempDir(),
			OutputFormat: "shapefile",
		})
		var ie *domain.InputError
		if !errors.As(err, &ie) {
			t.Fatalf("expected InputError, got %v", err)
		}
	})

	t.Run("retrieval failure", func(t *testing.T) {
		p, ret, _ := newTestPipeline(t, src)
		ret.err = &domain.RetrievalError{Err: fmt.Errorf("auth failure")}
		_, err := p.ExtractPolygons(context.Background(), PolygonParams{
			GeometryPath: writeSquare(t),
			Window:       testWindow(),
			OutDir:       t.TempDir(),
			OutputFormat: FormatRaster,
		})
		var re *domain.RetrievalError
		if !errors.As(err, &re) {
			t.Fatalf("expected RetrievalError, got %v", err)
		}
	})

	t.Run("point input rejected", func(t *testing.T) {
		p, _, _ := newTestPipeline(t, src)
		region := writeGeoJSON(t, `{"type": "Point", "coordinates": [-3.2, 40.0]}`)
		_, err := p.ExtractPolygons(context.Background(), PolygonParams{
			GeometryPath: region,
			Window:       testWindow(),
			OutDir:       t.TempDir(),
			OutputFormat: FormatRaster,
		})
		var ie *domain.InputError
		if !errors.As(err, &ie) {
			t.Fatalf("expected InputError, got %v", err)
		}
	})
}

func TestExtractPoints(t *testing.T) {
	g := testGrid()
	times := hourlyTimes(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), 24)
	cube := constantCube(g, times, 0)
	// Distinct values per cell so the nearest-neighbor pick is visible.
	for ti := range cube.Values {
		for i := range cube.Values[ti] {
			for j := range cube.Values[ti][i] {
				cube.Values[ti][i][j] = float64(100*i + 10*j + ti)
			}
		}
	}
	src := &stubSource{grid: g, times: times, cubes: map[string]*domain.Cube{"t2m": cube}}
	p, ret, rec := newTestPipeline(t, src)

	region := writeGeoJSON(t, `{"type": "FeatureCollection", "features": [
		{"type": "Feature", "properties": {"name": "site-a"},
		 "geometry": {"type": "Point", "coordinates": [-3.01, 40.19]}}]}`)
	window := testWindow()
	window.End = window.Start

	res, err := p.ExtractPoints(context.Background(), PointParams{
		GeometryPath: region,
		Window:       window,
		OutDir:       t.TempDir(),
	})
	if err != nil {
		t.Fatalf("ExtractPoints: %v", err)
	}

	if len(res.Artifacts) != 1 || res.Artifacts[0].Kind != ArtifactResult {
		t.Fatalf("artifacts = %v", res.Artifacts)
	}
	if got := filepath.Base(res.Artifacts[0].Path); got != "era5_results_20240601_to_20240601.csv" {
		t.Errorf("csv name = %s", got)
	}
	if !areaNear(ret.req.Area, [4]float64{40.29, -3.11, 40.09, -2.91}) {
		t.Errorf("request area = %v", ret.req.Area)
	}

	wantHeader := []string{"time", "2m_temperature", "name", "original_index"}
	if len(rec.csvHeader) != len(wantHeader) {
		t.Fatalf("header = %v", rec.csvHeader)
	}
	for i, h := range wantHeader {
		if rec.csvHeader[i] != h {
			t.Fatalf("header = %v, want %v", rec.csvHeader, wantHeader)
		}
	}
	// 2 selected hours for one point. Nearest cell is (row 2, col 2).
	if len(rec.csvRows) != 2 {
		t.Fatalf("row count = %d", len(rec.csvRows))
	}
	if rec.csvRows[0][0] != "2024-06-01 00:00" {
		t.Errorf("time cell = %q", rec.csvRows[0][0])
	}
	if rec.csvRows[0][1] != "220" {
		t.Errorf("value cell = %q, want 220", rec.csvRows[0][1])
	}
	if rec.csvRows[1][1] != "232" {
		t.Errorf("hour-12 value = %q, want 232", rec.csvRows[1][1])
	}
	if rec.csvRows[0][2] != "site-a" || rec.csvRows[0][3] != "0" {
		t.Errorf("attribute cells = %v", rec.csvRows[0])
	}
	if !src.closed {
		t.Error("dataset was not closed")
	}
}

func TestExtractPointsRejectsPolygonOnlyInput(t *testing.T) {
	g := testGrid()
	src := &stubSource{grid: g, times: hourlyTimes(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), 24)}
	p, _, _ := newTestPipeline(t, src)

	_, err := p.ExtractPoints(context.Background(), PointParams{
		GeometryPath: writeSquare(t),
		Window:       testWindow(),
		OutDir:       t.TempDir(),
	})
	var ie *domain.InputError
	if !errors.As(err, &ie) {
		t.Fatalf("expected InputError, got %v", err)
	}
}
