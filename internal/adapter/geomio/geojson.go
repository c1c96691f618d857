// Package geomio loads region-of-interest geometries from GeoJSON files
// and normalizes them to geographic (EPSG:4326) coordinates before any
// grid operation sees them.
package geomio

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"regexp"
	"strconv"

	geojson "github.com/paulmach/go.geojson"

	"github.com/agroclim/era5-extract/internal/domain"
)

// Region is an immutable set of input geometries in geographic
// coordinates. It is read once per run and never modified afterwards.
type Region struct {
	features []*geojson.Feature
	polygons [][][][]float64 // polygon -> ring -> vertex -> [lon, lat]
	points   []PointFeature
}

// PointFeature is one input point with its source attributes, used by the
// point extraction mode.
type PointFeature struct {
	Lon, Lat   float64
	Index      int
	Properties map[string]interface{}
}

// ReadFile loads a GeoJSON file (FeatureCollection, single Feature or
// bare Geometry) and normalizes it to EPSG:4326.
func ReadFile(path string) (*Region, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &domain.InputError{Err: fmt.Errorf("reading geometry file: %w", err)}
	}
	return Parse(data)
}

// Parse builds a Region from raw GeoJSON bytes.
func Parse(data []byte) (*Region, error) {
	features, err := decodeFeatures(data)
	if err != nil {
		return nil, &domain.InputError{Err: err}
	}
	if len(features) == 0 {
		return nil, &domain.InputError{Err: fmt.Errorf("geometry file contains no features")}
	}

	epsg, err := declaredEPSG(data)
	if err != nil {
		return nil, &domain.InputError{Err: err}
	}
	if epsg != 0 && epsg != 4326 {
		if err := reprojectFeatures(features, epsg); err != nil {
			return nil, &domain.InputError{Err: err}
		}
	}

	r := &Region{features: features}
	for idx, f := range features {
		if f.Geometry == nil {
			continue
		}
		collectGeometry(r, f, idx, f.Geometry)
	}
	if len(r.polygons) == 0 && len(r.points) == 0 {
		return nil, &domain.InputError{Err: fmt.Errorf("no polygon or point geometries in input")}
	}
	return r, nil
}

func decodeFeatures(data []byte) ([]*geojson.Feature, error) {
	if fc, err := geojson.UnmarshalFeatureCollection(data); err == nil && len(fc.Features) > 0 {
		return fc.Features, nil
	}
	if f, err := geojson.UnmarshalFeature(data); err == nil && f.Geometry != nil {
		return []*geojson.Feature{f}, nil
	}
	g, err := geojson.UnmarshalGeometry(data)
	if err != nil {
		return nil, fmt.Errorf("not valid GeoJSON: %w", err)
	}
	return []*geojson.Feature{geojson.NewFeature(g)}, nil
}

func collectGeometry(r *Region, f *geojson.Feature, idx int, g *geojson.Geometry) {
	switch g.Type {
	case geojson.GeometryPolygon:
		r.polygons = append(r.polygons, g.Polygon)
	case geojson.GeometryMultiPolygon:
		r.polygons = append(r.polygons, g.MultiPolygon...)
	case geojson.GeometryPoint:
		r.points = append(r.points, PointFeature{
			Lon:        g.Point[0],
			Lat:        g.Point[1],
			Index:      idx,
			Properties: f.Properties,
		})
	case geojson.GeometryMultiPoint:
		for _, p := range g.MultiPoint {
			r.points = append(r.points, PointFeature{
				Lon:        p[0],
				Lat:        p[1],
				Index:      idx,
				Properties: f.Properties,
			})
		}
	case geojson.GeometryCollection:
		for _, sub := range g.Geometries {
			collectGeometry(r, f, idx, sub)
		}
	}
}

// crsEPSGPattern matches both "EPSG:4326" and the OGC URN form
// "urn:ogc:def:crs:EPSG::4326".
var crsEPSGPattern = regexp.MustCompile(`(?i)EPSG:+(\d+)$`)

// declaredEPSG extracts the EPSG code from a legacy GeoJSON "crs" member.
// Returns 0 when no crs member is present (RFC 7946 input, already
// WGS 84). CRS84 is treated as 4326.
func declaredEPSG(data []byte) (int, error) {
	var doc struct {
		CRS *struct {
			Properties struct {
				Name string `json:"name"`
			} `json:"properties"`
		} `json:"crs"`
	}
	if err := json.Unmarshal(data, &doc); err != nil || doc.CRS == nil {
		return 0, nil
	}
	name := doc.CRS.Properties.Name
	if name == "" || name == "urn:ogc:def:crs:OGC:1.3:CRS84" {
		return 0, nil
	}
	m := crsEPSGPattern.FindStringSubmatch(name)
	if m == nil {
		return 0, fmt.Errorf("unsupported crs declaration %q (reproject to EPSG:4326 first)", name)
	}
	code, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, fmt.Errorf("unsupported crs declaration %q", name)
	}
	return code, nil
}

// Polygons returns every polygon as ring/vertex coordinate arrays.
func (r *Region) Polygons() [][][][]float64 { return r.polygons }

// Points returns the input points with their attributes.
func (r *Region) Points() []PointFeature { return r.points }

// Features returns the normalized source features.
func (r *Region) Features() []*geojson.Feature { return r.features }

// HasPolygons reports whether the region carries polygon geometry.
func (r *Region) HasPolygons() bool { return len(r.polygons) > 0 }

// WKT renders all polygons as a single MULTIPOLYGON for GEOS.
func (r *Region) WKT() string { return MultiPolygonWKT(r.polygons) }

// Bounds returns the total bounds (minLon, minLat, maxLon, maxLat) over
// every geometry in the region.
func (r *Region) Bounds() (minLon, minLat, maxLon, maxLat float64) {
	minLon, minLat = math.Inf(1), math.Inf(1)
	maxLon, maxLat = math.Inf(-1), math.Inf(-1)
	visit := func(lon, lat float64) {
		minLon = math.Min(minLon, lon)
		maxLon = math.Max(maxLon, lon)
		minLat = math.Min(minLat, lat)
		maxLat = math.Max(maxLat, lat)
	}
	for _, poly := range r.polygons {
		for _, ring := range poly {
			for _, v := range ring {
				visit(v[0], v[1])
			}
		}
	}
	for _, p := range r.points {
		visit(p.Lon, p.Lat)
	}
	return minLon, minLat, maxLon, maxLat
}

// Area returns the provider request area [N, W, S, E] with a safety
// buffer in degrees around the total bounds.
func (r *Region) Area(buffer float64) [4]float64 {
	minLon, minLat, maxLon, maxLat := r.Bounds()
	return [4]float64{maxLat + buffer, minLon - buffer, minLat - buffer, maxLon + buffer}
}
