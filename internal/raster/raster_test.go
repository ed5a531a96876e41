package raster

import (
	"context"
	"errors"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"

	"github.com/wegman-software/adminraster-go/internal/colorcode"
	"github.com/wegman-software/adminraster-go/internal/geometry"
	"github.com/wegman-software/adminraster-go/internal/tiling"
)

var (
	red  = color.RGBA{R: 0xff, A: 0xff}
	blue = color.RGBA{B: 0xff, A: 0xff}
)

func rect(x0, y0, x1, y1 float64) [][2]float64 {
	return [][2]float64{{x0, y0}, {x1, y0}, {x1, y1}, {x0, y1}}
}

func countColor(cv *Canvas, c color.RGBA) int {
	n := 0
	for y := 0; y < cv.Size(); y++ {
		for x := 0; x < cv.Size(); x++ {
			if cv.RGBAt(x, y) == c {
				n++
			}
		}
	}
	return n
}

func TestFillSquare(t *testing.T) {
	cv := NewCanvas(10, colorcode.BackgroundColor)
	NewRasterizer(NonZero).Fill(cv, Path{rect(2, 2, 6, 6)}, red)

	for y := 0; y < 10; y++ {
		for x := 0; x < 10; x++ {
			inside := x >= 2 && x < 6 && y >= 2 && y < 6
			got := cv.RGBAt(x, y)
			if inside && got != red {
				t.Errorf("pixel (%d, %d) = %v, want red", x, y, got)
			}
			if !inside && got != colorcode.BackgroundColor {
				t.Errorf("pixel (%d, %d) = %v, want background", x, y, got)
			}
		}
	}
}

func TestFillSharedEdgeDoesNotLeak(t *testing.T) {
	tests := []struct {
		name        string
		left, right [][2]float64
		wantLeft    int
		wantRight   int
	}{
		{
			name:      "vertical edge on pixel boundary",
			left:      rect(0, 0, 5, 10),
			right:     rect(5, 0, 10, 10),
			wantLeft:  50,
			wantRight: 50,
		},
		{
			name:      "vertical edge through pixel centres",
			left:      rect(0, 0, 4.5, 10),
			right:     rect(4.5, 0, 10, 10),
			wantLeft:  40,
			wantRight: 60,
		},
		{
			name:      "diagonal edge",
			left:      [][2]float64{{0, 0}, {10, 0}, {0, 10}},
			right:     [][2]float64{{10, 0}, {10, 10}, {0, 10}},
			wantLeft:  45,
			wantRight: 55,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cv := NewCanvas(10, colorcode.BackgroundColor)
			r := NewRasterizer(NonZero)
			r.Fill(cv, Path{tt.left}, red)
			r.Fill(cv, Path{tt.right}, blue)

			if got := countColor(cv, red); got != tt.wantLeft {
				t.Errorf("left pixels = %d, want %d", got, tt.wantLeft)
			}
			if got := countColor(cv, blue); got != tt.wantRight {
				t.Errorf("right pixels = %d, want %d", got, tt.wantRight)
			}
			if got := countColor(cv, colorcode.BackgroundColor); got != 0 {
				t.Errorf("background pixels = %d, want 0", got)
			}
		})
	}
}

func TestFillRules(t *testing.T) {
	outer := rect(0, 0, 10, 10)
	sameDir := rect(3, 3, 7, 7)
	reversed := [][2]float64{{3, 3}, {3, 7}, {7, 7}, {7, 3}}

	tests := []struct {
		name      string
		rule      FillRule
		hole      [][2]float64
		wantFills bool
	}{
		{"nonzero same orientation", NonZero, sameDir, true},
		{"nonzero opposite orientation", NonZero, reversed, false},
		{"evenodd same orientation", EvenOdd, sameDir, false},
		{"evenodd opposite orientation", EvenOdd, reversed, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cv := NewCanvas(10, colorcode.BackgroundColor)
			NewRasterizer(tt.rule).Fill(cv, Path{outer, tt.hole}, red)

			if got := cv.RGBAt(5, 5) == red; got != tt.wantFills {
				t.Errorf("hole filled = %v, want %v", got, tt.wantFills)
			}
			if cv.RGBAt(1, 1) != red {
				t.Error("outer ring not filled")
			}
		})
	}
}

func TestFillClipsToCanvas(t *testing.T) {
	cv := NewCanvas(10, colorcode.BackgroundColor)
	NewRasterizer(NonZero).Fill(cv, Path{rect(-5, -5, 15, 15)}, red)
	if got := countColor(cv, red); got != 100 {
		t.Errorf("painted pixels = %d, want 100", got)
	}
}

func TestParseFillRule(t *testing.T) {
	for _, s := range []string{"", "nonzero", "evenodd"} {
		if _, ok := ParseFillRule(s); !ok {
			t.Errorf("ParseFillRule(%q) rejected", s)
		}
	}
	if _, ok := ParseFillRule("winding"); ok {
		t.Error("ParseFillRule(winding) accepted")
	}
}

// square returns a closed ring in raster space covering lon [w,e], lat [s,n]
func square(w, s, e, n float64) orb.Ring {
	return orb.Ring{
		tiling.ToRasterSpace(w, n),
		tiling.ToRasterSpace(e, n),
		tiling.ToRasterSpace(e, s),
		tiling.ToRasterSpace(w, s),
		tiling.ToRasterSpace(w, n),
	}
}

func TestPaintHemispheres(t *testing.T) {
	grid := tiling.Grid{PixelsPerDegree: 1}
	enc := NewEncoder(Config{Grid: grid})

	polys := []geometry.Polygon{
		{FeatureID: 5, Ring: square(-100, 40, -90, 50)},
		{FeatureID: 6, Ring: square(-2, -1, 2, 1)},
		{FeatureID: 7, Ring: square(120, -30, 130, -20)},
		{FeatureID: 7, Ring: square(140, -30, 150, -20)},
	}

	cvs, err := enc.Paint(context.Background(), polys)
	if err != nil {
		t.Fatalf("Paint: %v", err)
	}
	defer cvs.Close()

	probe := func(lon, lat float64) (int, bool) {
		addr, err := grid.ToTileAddress(lon, lat)
		if err != nil {
			t.Fatal(err)
		}
		cv := cvs.Get(addr.Hemisphere())
		b := grid.TileBounds(addr.Tile)
		return colorcode.Decode(cv.RGBAt(b.Min.X+addr.X, b.Min.Y+addr.Y))
	}

	tests := []struct {
		name     string
		lon, lat float64
		wantID   int
		wantHit  bool
	}{
		{"inside western square", -95.5, 45.5, 5, true},
		{"outside western square", -85.5, 45.5, 0, false},
		{"prime meridian straddler west", -1.5, 0.5, 6, true},
		{"prime meridian straddler east", 1.5, -0.5, 6, true},
		{"multi-part first ring", 125.5, -25.5, 7, true},
		{"multi-part second ring", 145.5, -25.5, 7, true},
		{"between parts", 135.5, -25.5, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, ok := probe(tt.lon, tt.lat)
			if ok != tt.wantHit || (ok && id != tt.wantID) {
				t.Errorf("probe(%v, %v) = %d, %v, want %d, %v", tt.lon, tt.lat, id, ok, tt.wantID, tt.wantHit)
			}
		})
	}

	if got := countColor(cvs.East, color.RGBA{B: 5, A: 0xff}); got != 0 {
		t.Errorf("western feature leaked %d pixels onto the eastern canvas", got)
	}
}

func TestPaintRejectsUnencodableID(t *testing.T) {
	enc := NewEncoder(Config{Grid: tiling.Grid{PixelsPerDegree: 1}})
	polys := []geometry.Polygon{{FeatureID: colorcode.Background, Ring: square(0, 0, 1, 1)}}
	if _, err := enc.Paint(context.Background(), polys); !errors.Is(err, colorcode.ErrCapacity) {
		t.Errorf("error = %v, want ErrCapacity", err)
	}
}

func TestPaintHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	enc := NewEncoder(Config{Grid: tiling.Grid{PixelsPerDegree: 1}})
	polys := []geometry.Polygon{{FeatureID: 1, Ring: square(0, 0, 1, 1)}}
	if _, err := enc.Paint(ctx, polys); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestTiles(t *testing.T) {
	grid := tiling.Grid{PixelsPerDegree: 1}
	enc := NewEncoder(Config{Grid: grid})
	cvs, err := enc.Paint(context.Background(), []geometry.Polygon{
		{FeatureID: 9, Ring: square(10, 70, 20, 80)},
	})
	if err != nil {
		t.Fatal(err)
	}
	defer cvs.Close()

	for _, h := range tiling.Hemispheres {
		var indices []int
		err := enc.Tiles(context.Background(), cvs.Get(h), h, func(tile Tile) error {
			indices = append(indices, tile.Index)
			if b := tile.Image.Bounds(); b.Dx() != grid.TileSize() || b.Dy() != grid.TileSize() {
				t.Errorf("tile %d bounds = %v", tile.Index, b)
			}
			return nil
		})
		if err != nil {
			t.Fatalf("Tiles(%v): %v", h, err)
		}
		if len(indices) != tiling.TilesPerHemisphere {
			t.Fatalf("%v tiles = %d, want %d", h, len(indices), tiling.TilesPerHemisphere)
		}
		for i, idx := range indices {
			if idx != h.Offset()+i {
				t.Fatalf("%v tile %d index = %d, want %d", h, i, idx, h.Offset()+i)
			}
		}
	}

	// lon 10..20, lat 70..80 is row 1, column 1 of the eastern block
	want := tiling.TilesPerHemisphere + 1*tiling.GridColumns + 1
	err = enc.Tiles(context.Background(), cvs.East, tiling.East, func(tile Tile) error {
		id, ok := colorcode.Decode(tile.Image.At(5, 5))
		if tile.Index == want && (!ok || id != 9) {
			t.Errorf("tile %d centre = %d, %v, want 9", tile.Index, id, ok)
		}
		if tile.Index != want && ok {
			t.Errorf("tile %d carries feature %d", tile.Index, id)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestTilesStopsOnEmitError(t *testing.T) {
	enc := NewEncoder(Config{Grid: tiling.Grid{PixelsPerDegree: 1}})
	cv := NewCanvas(enc.Grid().CanvasSize(), colorcode.BackgroundColor)
	boom := errors.New("boom")
	calls := 0
	err := enc.Tiles(context.Background(), cv, tiling.West, func(Tile) error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) {
		t.Errorf("error = %v, want boom", err)
	}
	if calls != 1 {
		t.Errorf("emit called %d times, want 1", calls)
	}
}

func TestPNGIsLossless(t *testing.T) {
	cv := NewCanvas(10, colorcode.BackgroundColor)
	c, err := colorcode.Encode(0x12ab34)
	if err != nil {
		t.Fatal(err)
	}
	NewRasterizer(NonZero).Fill(cv, Path{rect(0, 0, 5, 5)}, c)

	data, err := EncodePNG(cv.Crop(cv.Bounds()))
	if err != nil {
		t.Fatal(err)
	}
	img, err := DecodePNG(data)
	if err != nil {
		t.Fatal(err)
	}
	if id, ok := colorcode.Decode(img.At(2, 2)); !ok || id != 0x12ab34 {
		t.Errorf("decoded = %x, %v, want 12ab34", id, ok)
	}
	if _, ok := colorcode.Decode(img.At(8, 8)); ok {
		t.Error("background decoded as a feature")
	}
}

func TestMappedCanvas(t *testing.T) {
	path := filepath.Join(t.TempDir(), "canvas.rgb")
	cv, err := NewMappedCanvas(path, 16, colorcode.BackgroundColor)
	if err != nil {
		t.Fatalf("NewMappedCanvas: %v", err)
	}

	NewRasterizer(NonZero).Fill(cv, Path{rect(0, 0, 8, 8)}, red)
	if got := countColor(cv, red); got != 64 {
		t.Errorf("painted pixels = %d, want 64", got)
	}
	if cv.RGBAt(12, 12) != colorcode.BackgroundColor {
		t.Error("unpainted pixel is not background")
	}

	if err := cv.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("scratch file still present: %v", err)
	}
}

func TestEncoderScratchDir(t *testing.T) {
	dir := t.TempDir()
	enc := NewEncoder(Config{Grid: tiling.Grid{PixelsPerDegree: 1}, ScratchDir: dir})
	cvs, err := enc.Paint(context.Background(), []geometry.Polygon{
		{FeatureID: 3, Ring: square(-50, 0, -40, 10)},
	})
	if err != nil {
		t.Fatal(err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 2 {
		t.Errorf("scratch files = %d, want 2", len(entries))
	}
	if err := cvs.Close(); err != nil {
		t.Fatal(err)
	}
	entries, _ = os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("scratch files after Close = %d, want 0", len(entries))
	}
}
