package lookup

import (
	"context"
	"fmt"
	"image"
	"strconv"
	"time"

	"github.com/karlseguin/ccache/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/wegman-software/adminraster-go/internal/admin"
	"github.com/wegman-software/adminraster-go/internal/colorcode"
	"github.com/wegman-software/adminraster-go/internal/logger"
	"github.com/wegman-software/adminraster-go/internal/raster"
	"github.com/wegman-software/adminraster-go/internal/tiling"
)

// TileSource returns the encoded PNG of a tile
type TileSource interface {
	Tile(ctx context.Context, index int) ([]byte, error)
}

// RegionSource resolves a feature id to its region names. found is false
// when no region carries the id.
type RegionSource interface {
	Region(ctx context.Context, id int) (rec admin.Record, found bool, err error)
}

// Options configures a Resolver
type Options struct {
	Grid      tiling.Grid   // zero means tiling.DefaultGrid
	CacheSize int64         // decoded tiles kept in memory
	CacheTTL  time.Duration // zero keeps tiles for an hour
}

// Result describes one lookup. Found is false when the pixel holds the
// background or a colour with no region; that is not an error.
type Result struct {
	Lon, Lat  float64
	Address   tiling.TileAddress
	Color     string
	FeatureID int
	Found     bool
	Region    admin.Record
}

// Resolver answers point queries by sampling stored tiles. Decoded tiles
// are cached and concurrent loads of the same tile are merged. It is safe
// for concurrent use.
type Resolver struct {
	grid     tiling.Grid
	tiles    TileSource
	regions  RegionSource
	cache    *ccache.Cache[image.Image]
	ttl      time.Duration
	inflight singleflight.Group
}

// NewResolver creates a resolver. regions may be nil when only feature
// ids are needed.
func NewResolver(tiles TileSource, regions RegionSource, opts Options) *Resolver {
	if opts.Grid.PixelsPerDegree <= 0 {
		opts.Grid = tiling.DefaultGrid
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 64
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = time.Hour
	}
	prune := uint32(opts.CacheSize / 8)
	if prune == 0 {
		prune = 1
	}
	return &Resolver{
		grid:    opts.Grid,
		tiles:   tiles,
		regions: regions,
		cache:   ccache.New(ccache.Configure[image.Image]().MaxSize(opts.CacheSize).ItemsToPrune(prune)),
		ttl:     opts.CacheTTL,
	}
}

// Close stops the cache worker
func (r *Resolver) Close() {
	r.cache.Stop()
}

// FeatureAt samples the pixel under (lon, lat) and decodes its feature id.
// Out of range coordinates fail with tiling.ErrOutOfRange.
func (r *Resolver) FeatureAt(ctx context.Context, lon, lat float64) (Result, error) {
	addr, err := r.grid.ToTileAddress(lon, lat)
	if err != nil {
		return Result{}, err
	}

	res := Result{Lon: lon, Lat: lat, Address: addr}

	img, err := r.tile(ctx, addr.Tile)
	if err != nil {
		return Result{}, err
	}

	b := img.Bounds()
	c := img.At(b.Min.X+addr.X, b.Min.Y+addr.Y)
	res.Color = colorcode.Name(c)
	res.FeatureID, res.Found = colorcode.Decode(c)

	logger.Get().Debug("Sampled pixel",
		zap.Stringer("address", addr),
		zap.String("color", res.Color),
		zap.Bool("found", res.Found))
	return res, nil
}

// Lookup resolves (lon, lat) to its admin region
func (r *Resolver) Lookup(ctx context.Context, lon, lat float64) (Result, error) {
	res, err := r.FeatureAt(ctx, lon, lat)
	if err != nil || !res.Found || r.regions == nil {
		return res, err
	}

	rec, found, err := r.regions.Region(ctx, res.FeatureID)
	if err != nil {
		return Result{}, err
	}
	res.Found = found
	if found {
		res.Region = rec
	}
	return res, nil
}

func (r *Resolver) tile(ctx context.Context, index int) (image.Image, error) {
	key := strconv.Itoa(index)
	if item := r.cache.Get(key); item != nil && !item.Expired() {
		return item.Value(), nil
	}

	v, err, _ := r.inflight.Do(key, func() (any, error) {
		data, err := r.tiles.Tile(ctx, index)
		if err != nil {
			return nil, err
		}
		img, err := raster.DecodePNG(data)
		if err != nil {
			return nil, fmt.Errorf("tile %d: %w", index, err)
		}
		ts := r.grid.TileSize()
		if b := img.Bounds(); b.Dx() != ts || b.Dy() != ts {
			return nil, fmt.Errorf("tile %d is %dx%d, want %dx%d", index, b.Dx(), b.Dy(), ts, ts)
		}
		r.cache.Set(key, img, r.ttl)
		return img, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(image.Image), nil
}
