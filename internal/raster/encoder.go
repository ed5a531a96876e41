package raster

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"path/filepath"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wegman-software/adminraster-go/internal/colorcode"
	"github.com/wegman-software/adminraster-go/internal/geometry"
	"github.com/wegman-software/adminraster-go/internal/logger"
	"github.com/wegman-software/adminraster-go/internal/tiling"
)

// Config holds encoder settings
type Config struct {
	Grid tiling.Grid
	Rule FillRule
	// ScratchDir, when set, holds memory-mapped canvas files instead of
	// allocating the canvases on the heap
	ScratchDir string
}

// Encoder paints feature polygons onto the two hemisphere canvases and
// cuts them into tiles
type Encoder struct {
	cfg Config
}

// NewEncoder creates an encoder. A zero Grid means tiling.DefaultGrid.
func NewEncoder(cfg Config) *Encoder {
	if cfg.Grid.PixelsPerDegree <= 0 {
		cfg.Grid = tiling.DefaultGrid
	}
	return &Encoder{cfg: cfg}
}

// Grid returns the pixel grid the encoder paints on
func (e *Encoder) Grid() tiling.Grid {
	return e.cfg.Grid
}

// Canvases holds one painted canvas per hemisphere
type Canvases struct {
	West *Canvas
	East *Canvas
}

// Get returns the canvas for h
func (c *Canvases) Get(h tiling.Hemisphere) *Canvas {
	if h == tiling.East {
		return c.East
	}
	return c.West
}

// Close releases both canvases
func (c *Canvases) Close() error {
	var first error
	for _, cv := range []*Canvas{c.West, c.East} {
		if cv == nil {
			continue
		}
		if err := cv.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// feature is a run of polygons sharing one feature id, painted as one path
type feature struct {
	id    int
	color color.RGBA
	rings [][][2]float64 // raster space
	minX  float64
	maxX  float64
}

// Paint fills every polygon with its feature colour on both hemisphere
// canvases. Consecutive polygons with the same FeatureID form one shape,
// so holes inside a multi-ring feature follow the fill rule. The two
// canvases are painted concurrently.
//
// A feature id outside the colour range aborts the whole pass with
// colorcode.ErrCapacity.
func (e *Encoder) Paint(ctx context.Context, polys []geometry.Polygon) (*Canvases, error) {
	features, err := groupFeatures(polys)
	if err != nil {
		return nil, err
	}

	log := logger.Get()
	log.Info("Painting canvases",
		zap.Int("polygons", len(polys)),
		zap.Int("features", len(features)),
		zap.Int("canvas_size", e.cfg.Grid.CanvasSize()),
		zap.String("fill_rule", e.cfg.Rule.String()))

	out := &Canvases{}
	g, gctx := errgroup.WithContext(ctx)
	for _, h := range tiling.Hemispheres {
		h := h
		g.Go(func() error {
			cv, err := e.newCanvas(h)
			if err != nil {
				return err
			}
			if h == tiling.East {
				out.East = cv
			} else {
				out.West = cv
			}
			return e.paintHemisphere(gctx, cv, h, features)
		})
	}
	if err := g.Wait(); err != nil {
		out.Close()
		return nil, err
	}
	return out, nil
}

func (e *Encoder) newCanvas(h tiling.Hemisphere) (*Canvas, error) {
	size := e.cfg.Grid.CanvasSize()
	if e.cfg.ScratchDir == "" {
		return NewCanvas(size, colorcode.BackgroundColor), nil
	}
	path := filepath.Join(e.cfg.ScratchDir, fmt.Sprintf("canvas_%s.rgb", h))
	return NewMappedCanvas(path, size, colorcode.BackgroundColor)
}

func (e *Encoder) paintHemisphere(ctx context.Context, cv *Canvas, h tiling.Hemisphere, features []feature) error {
	grid := e.cfg.Grid
	r := NewRasterizer(e.cfg.Rule)

	lo := float64(int(h) * tiling.HemisphereDegrees)
	hi := lo + tiling.HemisphereDegrees

	var path Path
	painted := 0
	for i, f := range features {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if f.maxX <= lo || f.minX >= hi {
			continue
		}

		path = path[:0]
		for _, ring := range f.rings {
			pr := make([][2]float64, len(ring))
			for j, p := range ring {
				pr[j] = [2]float64{grid.CanvasX(h, p[0]), grid.CanvasY(p[1])}
			}
			path = append(path, pr)
		}
		r.Fill(cv, path, f.color)
		painted++
	}

	logger.Get().Debug("Hemisphere painted",
		zap.Stringer("hemisphere", h),
		zap.Int("features", painted))
	return nil
}

// groupFeatures merges runs of polygons sharing a FeatureID and resolves
// their colours
func groupFeatures(polys []geometry.Polygon) ([]feature, error) {
	var out []feature
	for _, p := range polys {
		if len(out) == 0 || out[len(out)-1].id != p.FeatureID {
			c, err := colorcode.Encode(p.FeatureID)
			if err != nil {
				return nil, err
			}
			out = append(out, feature{
				id:    p.FeatureID,
				color: c,
				minX:  math.Inf(1),
				maxX:  math.Inf(-1),
			})
		}
		f := &out[len(out)-1]
		ring := make([][2]float64, 0, len(p.Ring))
		for _, pt := range p.Ring {
			ring = append(ring, [2]float64{pt[0], pt[1]})
			f.minX = min(f.minX, pt[0])
			f.maxX = max(f.maxX, pt[0])
		}
		f.rings = append(f.rings, ring)
	}
	return out, nil
}

// Tile is one cut of a hemisphere canvas
type Tile struct {
	Index int
	Image *image.RGBA
}

// Tiles cuts cv into its 18x18 grid in row-major order and passes each
// tile to emit. Tile indices carry the hemisphere offset.
func (e *Encoder) Tiles(ctx context.Context, cv *Canvas, h tiling.Hemisphere, emit func(Tile) error) error {
	if cv.Size() != e.cfg.Grid.CanvasSize() {
		return fmt.Errorf("canvas size %d does not match grid size %d", cv.Size(), e.cfg.Grid.CanvasSize())
	}
	for i := 0; i < tiling.TilesPerHemisphere; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		idx := h.Offset() + i
		t := Tile{Index: idx, Image: cv.Crop(e.cfg.Grid.TileBounds(idx))}
		if err := emit(t); err != nil {
			return fmt.Errorf("tile %d: %w", idx, err)
		}
	}
	return nil
}

// EncodePNG serialises a tile losslessly
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestCompression}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodePNG reads a tile written by EncodePNG
func DecodePNG(data []byte) (image.Image, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode png: %w", err)
	}
	return img, nil
}
