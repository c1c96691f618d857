// Package usecase runs the extraction pipelines: load geometries, issue
// the bulk data request, align the grid, and emit rasters, vector grids
// or the point CSV. One Pipeline value serves one run at a time.
package usecase

import (
	"context"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/agroclim/era5-extract/internal/adapter/cds"
	"github.com/agroclim/era5-extract/internal/adapter/emit"
	"github.com/agroclim/era5-extract/internal/adapter/era5"
	"github.com/agroclim/era5-extract/internal/adapter/rasterize"
	"github.com/agroclim/era5-extract/internal/domain"
	"github.com/agroclim/era5-extract/internal/logger"
)

// Output formats for the polygon pipeline.
const (
	FormatRaster = "raster"
	FormatVector = "vector"
)

// Retriever downloads the gridded dataset for one bulk request.
type Retriever interface {
	Retrieve(ctx context.Context, req cds.Request, dest string) error
}

// GridSource is one open downloaded dataset with canonical axes.
type GridSource interface {
	Grid() domain.Grid
	Times() []time.Time
	Variables() []string
	HasVariable(name string) bool
	ReadCube(name string) (*domain.Cube, error)
	Close() error
}

// Pipeline wires the retrieval client to the decoders and emitters.
type Pipeline struct {
	retriever Retriever
	sink      ArtifactSink

	// TempDir holds the run's intermediate dataset file.
	TempDir string

	open        func(path string) (GridSource, error)
	writeRaster func(path string, data [][]float64, grid domain.Grid, fallbackRes float64) error
	writeVector func(path string, cells []rasterize.Cell, values [][]float64, variable string) error
	writeCSV    func(path string, header []string, rows [][]string) error
}

// New builds a Pipeline over the given retriever. sink may be nil.
func New(retriever Retriever, sink ArtifactSink) *Pipeline {
	return &Pipeline{
		retriever: retriever,
		sink:      sink,
		TempDir:   os.TempDir(),
		open: func(path string) (GridSource, error) {
			return era5.Open(path)
		},
		writeRaster: emit.WriteRaster,
		writeVector: emit.WriteVectorGrid,
		writeCSV:    emit.WriteCSV,
	}
}

func (p *Pipeline) report(res *Result, a Artifact) {
	res.Artifacts = append(res.Artifacts, a)
	if p.sink != nil {
		p.sink(a)
	}
}

// resolveVariable maps a requested variable to the name it carries in the
// dataset. Requests use long names but either direction is accepted; the
// dataset usually exposes the short code.
func resolveVariable(ds GridSource, requested string) (dsName, longName string, ok bool) {
	longName = domain.LongName(requested)
	short := domain.ShortName(longName)
	for _, candidate := range []string{short, longName, requested} {
		if ds.HasVariable(candidate) {
			return candidate, longName, true
		}
	}
	return "", longName, false
}

// selectTimes returns the indices of dataset timestamps whose hour of day
// is in the requested set.
func selectTimes(times []time.Time, w domain.RequestWindow) []int {
	var idx []int
	for t, ts := range times {
		if w.ContainsHour(ts) {
			idx = append(idx, t)
		}
	}
	return idx
}

// finalize always runs, also after partial failure: close the dataset
// handle and best-effort delete the run's temp file.
func (p *Pipeline) finalize(ds GridSource, tmpPath string) {
	if ds != nil {
		if err := ds.Close(); err != nil {
			logger.Warnf("closing dataset: %v", err)
		}
	}
	if err := os.Remove(tmpPath); err != nil && !os.IsNotExist(err) {
		logger.Debugf("could not remove temp file %s: %v", tmpPath, err)
	}
}

func formatValue(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
