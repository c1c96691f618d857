package geomio

import (
	"fmt"
	"strconv"
	"strings"

	geojson "github.com/paulmach/go.geojson"
)

// WKT is the bridge between GeoJSON coordinate arrays and GEOS. GEOS
// intersections come back as POLYGON or MULTIPOLYGON text (degenerate
// results are normalized away by the callers before decoding).

// BoxWKT renders an axis-aligned rectangle as a POLYGON.
func BoxWKT(minLon, minLat, maxLon, maxLat float64) string {
	var b strings.Builder
	b.WriteString("POLYGON((")
	writeCoord(&b, minLon, minLat)
	b.WriteString(", ")
	writeCoord(&b, maxLon, minLat)
	b.WriteString(", ")
	writeCoord(&b, maxLon, maxLat)
	b.WriteString(", ")
	writeCoord(&b, minLon, maxLat)
	b.WriteString(", ")
	writeCoord(&b, minLon, minLat)
	b.WriteString("))")
	return b.String()
}

// MultiPolygonWKT renders polygon coordinate arrays as a MULTIPOLYGON.
func MultiPolygonWKT(polygons [][][][]float64) string {
	if len(polygons) == 0 {
		return "MULTIPOLYGON EMPTY"
	}
	var b strings.Builder
	b.WriteString("MULTIPOLYGON(")
	for pi, poly := range polygons {
		if pi > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for ri, ring := range poly {
			if ri > 0 {
				b.WriteString(", ")
			}
			b.WriteString("(")
			for vi, v := range ring {
				if vi > 0 {
					b.WriteString(", ")
				}
				writeCoord(&b, v[0], v[1])
			}
			b.WriteString(")")
		}
		b.WriteString(")")
	}
	b.WriteString(")")
	return b.String()
}

func writeCoord(b *strings.Builder, x, y float64) {
	b.WriteString(strconv.FormatFloat(x, 'f', -1, 64))
	b.WriteString(" ")
	b.WriteString(strconv.FormatFloat(y, 'f', -1, 64))
}

// ParseWKT decodes POLYGON and MULTIPOLYGON text into a GeoJSON geometry.
func ParseWKT(s string) (*geojson.Geometry, error) {
	s = strings.TrimSpace(s)
	upper := strings.ToUpper(s)
	switch {
	case strings.HasPrefix(upper, "MULTIPOLYGON"):
		body := strings.TrimSpace(s[len("MULTIPOLYGON"):])
		if strings.EqualFold(body, "EMPTY") {
			return geojson.NewMultiPolygonGeometry(), nil
		}
		inner, err := stripParens(body)
		if err != nil {
			return nil, err
		}
		var polys [][][][]float64
		for _, part := range splitTopLevel(inner) {
			poly, err := parsePolygonBody(part)
			if err != nil {
				return nil, err
			}
			polys = append(polys, poly)
		}
		return geojson.NewMultiPolygonGeometry(polys...), nil
	case strings.HasPrefix(upper, "POLYGON"):
		body := strings.TrimSpace(s[len("POLYGON"):])
		if strings.EqualFold(body, "EMPTY") {
			return geojson.NewPolygonGeometry(nil), nil
		}
		poly, err := parsePolygonBody(body)
		if err != nil {
			return nil, err
		}
		return geojson.NewPolygonGeometry(poly), nil
	default:
		return nil, fmt.Errorf("unsupported WKT geometry %q", firstWord(upper))
	}
}

func parsePolygonBody(s string) ([][][]float64, error) {
	inner, err := stripParens(s)
	if err != nil {
		return nil, err
	}
	var rings [][][]float64
	for _, part := range splitTopLevel(inner) {
		ringBody, err := stripParens(part)
		if err != nil {
			return nil, err
		}
		var ring [][]float64
		for _, pair := range splitTopLevel(ringBody) {
			fields := strings.Fields(pair)
			if len(fields) < 2 {
				return nil, fmt.Errorf("bad WKT coordinate %q", pair)
			}
			x, err := strconv.ParseFloat(fields[0], 64)
			if err != nil {
				return nil, fmt.Errorf("bad WKT coordinate %q: %w", pair, err)
			}
			y, err := strconv.ParseFloat(fields[1], 64)
			if err != nil {
				return nil, fmt.Errorf("bad WKT coordinate %q: %w", pair, err)
			}
			ring = append(ring, []float64{x, y})
		}
		rings = append(rings, ring)
	}
	return rings, nil
}

// stripParens removes one balanced outer paren pair.
func stripParens(s string) (string, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "(") || !strings.HasSuffix(s, ")") {
		return "", fmt.Errorf("expected parenthesized WKT group, got %q", s)
	}
	return s[1 : len(s)-1], nil
}

// splitTopLevel splits on commas outside any paren group.
func splitTopLevel(s string) []string {
	var parts []string
	depth := 0
	start := 0
	for i, c := range s {
		switch c {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	if last := strings.TrimSpace(s[start:]); last != "" {
		parts = append(parts, last)
	}
	return parts
}

func firstWord(s string) string {
	if i := strings.IndexAny(s, " ("); i > 0 {
		return s[:i]
	}
	return s
}
