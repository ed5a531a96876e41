package shapefile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"go.uber.org/zap"

	"github.com/wegman-software/adminraster-go/internal/geometry"
	"github.com/wegman-software/adminraster-go/internal/logger"
	"github.com/wegman-software/adminraster-go/internal/tiling"
)

var (
	// ErrWrongShapeType is returned for shapefiles that do not hold polygons
	ErrWrongShapeType = errors.New("shapefile does not contain polygons")
	// ErrMissingField is returned when a requested attribute column is absent
	ErrMissingField = errors.New("attribute field not found")
	// ErrNoShapefile is returned when a dataset directory holds no .shp file
	ErrNoShapefile = errors.New("no shapefile found")
)

// Row is one attribute record keyed by field name
type Row map[string]string

// Stats summarises a feature read
type Stats struct {
	Records  int
	Polygons int
	Points   int
	Bounds   orb.Bound
}

// FindFiles returns the .shp file of a dataset. path may name the .shp
// file directly or a directory containing exactly one.
func FindFiles(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if !info.IsDir() {
		if !strings.EqualFold(filepath.Ext(path), ".shp") {
			return "", fmt.Errorf("%s: %w", path, ErrNoShapefile)
		}
		return path, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	var found []string
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".shp") {
			found = append(found, filepath.Join(path, e.Name()))
		}
	}
	switch len(found) {
	case 0:
		return "", fmt.Errorf("%s: %w", path, ErrNoShapefile)
	case 1:
		return found[0], nil
	default:
		sort.Strings(found)
		return "", fmt.Errorf("%s holds %d shapefiles, pass one explicitly", path, len(found))
	}
}

// ReadFeatures reads every polygon record of a shapefile. Each part of a
// record becomes one geometry.Polygon in raster space; the record index is
// the feature id shared by all its parts.
func ReadFeatures(path string) ([]geometry.Polygon, Stats, error) {
	r, err := shp.Open(path)
	if err != nil {
		return nil, Stats{}, fmt.Errorf("failed to open shapefile: %w", err)
	}
	defer r.Close()

	if r.GeometryType != shp.POLYGON {
		return nil, Stats{}, fmt.Errorf("%s has shape type %d: %w", path, r.GeometryType, ErrWrongShapeType)
	}

	var polys []geometry.Polygon
	var stats Stats
	first := true

	for r.Next() {
		idx, shape := r.Shape()
		stats.Records++

		poly, ok := shape.(*shp.Polygon)
		if !ok {
			// Null shapes carry no geometry but still consume a feature id
			continue
		}

		for j := 0; j < len(poly.Parts); j++ {
			start := poly.Parts[j]
			end := int32(len(poly.Points))
			if j+1 < len(poly.Parts) {
				end = poly.Parts[j+1]
			}
			if start < 0 || end > int32(len(poly.Points)) || start >= end {
				logger.Get().Warn("Skipping malformed part",
					zap.Int("record", idx),
					zap.Int("part", j))
				continue
			}

			ring := make(orb.Ring, 0, end-start)
			for k := start; k < end; k++ {
				pt := poly.Points[k]
				ring = append(ring, tiling.ToRasterSpace(pt.X, pt.Y))
				if first {
					stats.Bounds = orb.Bound{Min: orb.Point{pt.X, pt.Y}, Max: orb.Point{pt.X, pt.Y}}
					first = false
				} else {
					stats.Bounds = stats.Bounds.Extend(orb.Point{pt.X, pt.Y})
				}
			}
			stats.Points += len(ring)
			polys = append(polys, geometry.Polygon{FeatureID: idx, Ring: ring})
		}
	}
	if err := r.Err(); err != nil {
		return nil, Stats{}, fmt.Errorf("failed to read shapefile: %w", err)
	}

	stats.Polygons = len(polys)
	return polys, stats, nil
}

// ReadTable reads the named attribute columns of every record. Field names
// match case-insensitively. A column missing from the table fails the read.
func ReadTable(path string, fields []string) ([]Row, error) {
	r, err := shp.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open shapefile: %w", err)
	}
	defer r.Close()

	index := make(map[string]int, len(fields))
	available := r.Fields()
	for _, want := range fields {
		found := -1
		for i, f := range available {
			if strings.EqualFold(f.String(), want) {
				found = i
				break
			}
		}
		if found < 0 {
			return nil, fmt.Errorf("%s: field %q: %w", path, want, ErrMissingField)
		}
		index[want] = found
	}

	var rows []Row
	for r.Next() {
		idx, _ := r.Shape()
		row := make(Row, len(fields))
		for name, col := range index {
			row[name] = cleanAttribute(r.ReadAttribute(idx, col))
		}
		rows = append(rows, row)
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("failed to read attributes: %w", err)
	}
	return rows, nil
}

func cleanAttribute(s string) string {
	return strings.TrimSpace(strings.TrimRight(s, "\x00"))
}
