package tiling

import (
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/paulmach/orb"
)

// Fixed layout of the global tiling scheme
const (
	// GridColumns is the number of tile columns per hemisphere canvas
	GridColumns = 18
	// GridRows is the number of tile rows per hemisphere canvas
	GridRows = 18
	// TilesPerHemisphere is also the tile index offset of the eastern block
	TilesPerHemisphere = GridColumns * GridRows
	// TileCount is the total number of tiles across both hemispheres
	TileCount = 2 * TilesPerHemisphere

	// TileDegrees is the geographic extent of one tile edge
	TileDegrees = 10
	// HemisphereDegrees is the geographic extent of one canvas edge
	HemisphereDegrees = GridColumns * TileDegrees
)

// ErrOutOfRange is returned for coordinates or addresses outside the valid domain
var ErrOutOfRange = errors.New("out of range")

// Hemisphere selects one of the two canvases
type Hemisphere int

const (
	West Hemisphere = iota // lon <= 0
	East                   // lon > 0
)

// Hemispheres lists both canvases in tile index order
var Hemispheres = []Hemisphere{West, East}

// String returns the directory-style name of the hemisphere
func (h Hemisphere) String() string {
	if h == East {
		return "east"
	}
	return "west"
}

// Offset returns the first tile index of the hemisphere
func (h Hemisphere) Offset() int {
	return int(h) * TilesPerHemisphere
}

// Grid describes the pixel resolution of the tiling scheme.
// The production layout is DefaultGrid (0.01° per pixel).
type Grid struct {
	PixelsPerDegree int
}

// DefaultGrid stores 100 pixels per degree: 1000x1000 pixel tiles
// on two 18000x18000 pixel canvases.
var DefaultGrid = Grid{PixelsPerDegree: 100}

// TileSize returns the edge length of one tile in pixels
func (g Grid) TileSize() int {
	return TileDegrees * g.PixelsPerDegree
}

// CanvasSize returns the edge length of one hemisphere canvas in pixels
func (g Grid) CanvasSize() int {
	return HemisphereDegrees * g.PixelsPerDegree
}

// TileAddress identifies one pixel inside the tiling scheme
type TileAddress struct {
	Tile int // 0..TileCount-1
	X    int // pixel column inside the tile
	Y    int // pixel row inside the tile
}

// String returns the address in tile/x/y format
func (a TileAddress) String() string {
	return fmt.Sprintf("%d/%d/%d", a.Tile, a.X, a.Y)
}

// Hemisphere returns the canvas the tile was cut from
func (a TileAddress) Hemisphere() Hemisphere {
	return HemisphereOf(a.Tile)
}

// HemisphereOf returns the canvas a tile index belongs to
func HemisphereOf(tile int) Hemisphere {
	if tile >= TilesPerHemisphere {
		return East
	}
	return West
}

// RowColumn returns the grid position of a tile within its hemisphere
func RowColumn(tile int) (row, col int) {
	local := tile % TilesPerHemisphere
	return local / GridColumns, local % GridColumns
}

// Cell is the geographic extent of one pixel
type Cell struct {
	MinLon, MinLat, MaxLon, MaxLat float64
}

// Contains checks if a point falls inside the cell, edges included
func (c Cell) Contains(lon, lat float64) bool {
	return lon >= c.MinLon && lon <= c.MaxLon && lat >= c.MinLat && lat <= c.MaxLat
}

// Center returns the midpoint of the cell
func (c Cell) Center() (lon, lat float64) {
	return (c.MinLon + c.MaxLon) / 2, (c.MinLat + c.MaxLat) / 2
}

// ValidateLonLat rejects coordinates outside lon [-180,180], lat [-90,90]
func ValidateLonLat(lon, lat float64) error {
	if math.IsNaN(lon) || lon < -180 || lon > 180 {
		return fmt.Errorf("longitude %v: %w", lon, ErrOutOfRange)
	}
	if math.IsNaN(lat) || lat < -90 || lat > 90 {
		return fmt.Errorf("latitude %v: %w", lat, ErrOutOfRange)
	}
	return nil
}

// ToRasterSpace shifts a geographic coordinate into the plane shared by
// both canvases: x grows eastward from -180, y grows southward from 90.
func ToRasterSpace(lon, lat float64) orb.Point {
	return orb.Point{lon + 180, (lat - 90) * -1}
}

// ToTileAddress converts a coordinate to its tile/pixel address.
// lon == 0 belongs to the western canvas. Points on the far canvas
// edges (lon 0/180, lat -90) fall into the last pixel column/row.
func (g Grid) ToTileAddress(lon, lat float64) (TileAddress, error) {
	if err := ValidateLonLat(lon, lat); err != nil {
		return TileAddress{}, err
	}

	hemi := West
	adjLon := lon + 180
	if lon > 0 {
		hemi = East
		adjLon = lon
	}
	adjLat := (lat - 90) * -1

	ppd := float64(g.PixelsPerDegree)
	last := g.CanvasSize() - 1
	px := clamp(int(math.Floor(adjLon*ppd)), 0, last)
	py := clamp(int(math.Floor(adjLat*ppd)), 0, last)

	ts := g.TileSize()
	col := px / ts
	row := py / ts

	return TileAddress{
		Tile: row*GridColumns + col + hemi.Offset(),
		X:    px - col*ts,
		Y:    py - row*ts,
	}, nil
}

// ToGeoCell returns the geographic cell covered by a tile pixel
func (g Grid) ToGeoCell(a TileAddress) (Cell, error) {
	ts := g.TileSize()
	if a.Tile < 0 || a.Tile >= TileCount || a.X < 0 || a.X >= ts || a.Y < 0 || a.Y >= ts {
		return Cell{}, fmt.Errorf("tile address %s: %w", a, ErrOutOfRange)
	}

	row, col := RowColumn(a.Tile)
	px := float64(col*ts + a.X)
	py := float64(row*ts + a.Y)
	ppd := float64(g.PixelsPerDegree)

	lonShift := -180.0
	if a.Hemisphere() == East {
		lonShift = 0
	}

	return Cell{
		MinLon: px/ppd + lonShift,
		MaxLon: (px+1)/ppd + lonShift,
		MaxLat: 90 - py/ppd,
		MinLat: 90 - (py+1)/ppd,
	}, nil
}

// TileBounds returns the pixel rectangle a tile occupies on its canvas
func (g Grid) TileBounds(tile int) image.Rectangle {
	row, col := RowColumn(tile)
	ts := g.TileSize()
	return image.Rect(col*ts, row*ts, (col+1)*ts, (row+1)*ts)
}

// CanvasX converts a raster-space x coordinate to a pixel column on the
// given hemisphere canvas. The result is fractional and unclamped.
func (g Grid) CanvasX(h Hemisphere, x float64) float64 {
	return (x - float64(int(h)*HemisphereDegrees)) * float64(g.PixelsPerDegree)
}

// CanvasY converts a raster-space y coordinate to a pixel row
func (g Grid) CanvasY(y float64) float64 {
	return y * float64(g.PixelsPerDegree)
}

// ToTileAddress converts a coordinate using DefaultGrid
func ToTileAddress(lon, lat float64) (TileAddress, error) {
	return DefaultGrid.ToTileAddress(lon, lat)
}

// ToGeoCell converts an address using DefaultGrid
func ToGeoCell(a TileAddress) (Cell, error) {
	return DefaultGrid.ToGeoCell(a)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
