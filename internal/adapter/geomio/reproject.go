package geomio

import (
	"fmt"

	"github.com/airbusgeo/godal"

	geojson "github.com/paulmach/go.geojson"
)

// reprojectFeatures transforms every coordinate of the given features from
// the declared EPSG code to EPSG:4326, in place. godal spatial refs use
// traditional GIS (lon, lat) axis order, matching GeoJSON.
func reprojectFeatures(features []*geojson.Feature, epsg int) error {
	src, err := godal.NewSpatialRefFromEPSG(epsg)
	if err != nil {
		return fmt.Errorf("unknown source EPSG:%d: %w", epsg, err)
	}
	defer src.Close()

	dst, err := godal.NewSpatialRefFromEPSG(4326)
	if err != nil {
		return fmt.Errorf("creating EPSG:4326 reference: %w", err)
	}
	defer dst.Close()

	tr, err := godal.NewTransform(src, dst)
	if err != nil {
		return fmt.Errorf("creating EPSG:%d -> EPSG:4326 transform: %w", epsg, err)
	}
	defer tr.Close()

	transformPair := func(v []float64) error {
		xs := []float64{v[0]}
		ys := []float64{v[1]}
		if err := tr.TransformEx(xs, ys, nil, nil); err != nil {
			return fmt.Errorf("transforming coordinate (%v, %v): %w", v[0], v[1], err)
		}
		v[0], v[1] = xs[0], ys[0]
		return nil
	}

	var walk func(g *geojson.Geometry) error
	walk = func(g *geojson.Geometry) error {
		if g == nil {
			return nil
		}
		switch g.Type {
		case geojson.GeometryPoint:
			return transformPair(g.Point)
		case geojson.GeometryMultiPoint:
			for _, p := range g.MultiPoint {
				if err := transformPair(p); err != nil {
					return err
				}
			}
		case geojson.GeometryLineString:
			for _, p := range g.LineString {
				if err := transformPair(p); err != nil {
					return err
				}
			}
		case geojson.GeometryPolygon:
			for _, ring := range g.Polygon {
				for _, p := range ring {
					if err := transformPair(p); err != nil {
						return err
					}
				}
			}
		case geojson.GeometryMultiPolygon:
			for _, poly := range g.MultiPolygon {
				for _, ring := range poly {
					for _, p := range ring {
						if err := transformPair(p); err != nil {
							return err
						}
					}
				}
			}
		case geojson.GeometryCollection:
			for _, sub := range g.Geometries {
				if err := walk(sub); err != nil {
					return err
				}
			}
		}
		return nil
	}

	for _, f := range features {
		if err := walk(f.Geometry); err != nil {
			return err
		}
	}
	return nil
}
