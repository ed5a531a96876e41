package pipeline

import (
	"context"
	"time"

	"github.com/wegman-software/adminraster-go/internal/admin"
	"github.com/wegman-software/adminraster-go/internal/store"
)

// RegionStore persists the results of an encode run. *store.Store
// implements it.
type RegionStore interface {
	EnsureSchema(ctx context.Context) error
	ReplaceRegions(ctx context.Context, r *admin.Regions) error
	ReplaceTiles(ctx context.Context, tiles []store.TileBlob) error
}

// ResultCache is invalidated after new tiles are committed.
// *cache.Results implements it.
type ResultCache interface {
	Flush(ctx context.Context) (int, error)
}

// ReadStats holds input statistics
type ReadStats struct {
	Admin0Records   int
	Admin1Records   int
	Polygons        int
	DegenerateRings int
}

// TileStats holds tile output statistics per hemisphere
type TileStats struct {
	Hemisphere string
	Tiles      int
	Bytes      int64
	Optimized  int
}

// EncodeStats holds combined encode statistics
type EncodeStats struct {
	Read      ReadStats
	West      TileStats
	East      TileStats
	Regions   int
	Persisted bool
	Duration  time.Duration
}

// TotalTiles returns the number of tiles written across both hemispheres
func (s *EncodeStats) TotalTiles() int {
	return s.West.Tiles + s.East.Tiles
}
