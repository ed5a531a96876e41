package pipeline

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wegman-software/adminraster-go/internal/admin"
	"github.com/wegman-software/adminraster-go/internal/config"
	"github.com/wegman-software/adminraster-go/internal/export"
	"github.com/wegman-software/adminraster-go/internal/geometry"
	"github.com/wegman-software/adminraster-go/internal/hook"
	"github.com/wegman-software/adminraster-go/internal/logger"
	"github.com/wegman-software/adminraster-go/internal/metrics"
	"github.com/wegman-software/adminraster-go/internal/raster"
	"github.com/wegman-software/adminraster-go/internal/shapefile"
	"github.com/wegman-software/adminraster-go/internal/store"
	"github.com/wegman-software/adminraster-go/internal/style"
	"github.com/wegman-software/adminraster-go/internal/tiling"
)

// CoordinatorConfig holds pipeline-specific configuration
type CoordinatorConfig struct {
	// Grid defaults to tiling.DefaultGrid
	Grid tiling.Grid
	// ProgressInterval between tile progress log lines, 0 disables them
	ProgressInterval time.Duration
	// ExportPath, when set, receives the region table as Parquet
	ExportPath string
}

// Coordinator orchestrates an encode run: read the datasets, build region
// records, paint, tile, write files and persist
type Coordinator struct {
	cfg     *config.Config
	pipeCfg CoordinatorConfig
	store   RegionStore
	cache   ResultCache
}

// NewCoordinator creates a new pipeline coordinator. st and rc may be nil
// to skip persistence or cache invalidation.
func NewCoordinator(cfg *config.Config, pipeCfg CoordinatorConfig, st RegionStore, rc ResultCache) *Coordinator {
	if pipeCfg.Grid.PixelsPerDegree <= 0 {
		pipeCfg.Grid = tiling.DefaultGrid
	}
	return &Coordinator{
		cfg:     cfg,
		pipeCfg: pipeCfg,
		store:   st,
		cache:   rc,
	}
}

// Run executes the encode
func (c *Coordinator) Run(ctx context.Context) (*EncodeStats, error) {
	log := logger.Get()
	start := time.Now()
	stats := &EncodeStats{
		West: TileStats{Hemisphere: tiling.West.String()},
		East: TileStats{Hemisphere: tiling.East.String()},
	}

	if c.cfg.MetricsInterval > 0 {
		metricsCtx, cancelMetrics := context.WithCancel(ctx)
		defer cancelMetrics()

		collector := metrics.NewCollector(c.cfg.MetricsInterval, log)
		go collector.Start(metricsCtx)
		log.Info("System metrics collection started",
			zap.Duration("interval", c.cfg.MetricsInterval))
	}

	rule, ok := raster.ParseFillRule(c.cfg.FillRule)
	if !ok {
		return nil, fmt.Errorf("unknown fill rule %q", c.cfg.FillRule)
	}

	regions, admin1Shp, err := c.buildRegions(stats)
	if err != nil {
		return nil, err
	}
	stats.Regions = len(regions.Admin1)

	polys, shpStats, err := shapefile.ReadFeatures(admin1Shp)
	if err != nil {
		return nil, fmt.Errorf("failed to read admin1 geometry: %w", err)
	}
	if shpStats.Records != len(regions.Admin1) {
		return nil, fmt.Errorf("admin1 geometry has %d records but attribute table has %d",
			shpStats.Records, len(regions.Admin1))
	}
	polys, stats.Read.DegenerateRings = dropDegenerate(polys)
	stats.Read.Polygons = len(polys)

	log.Info("Read admin1 geometry",
		zap.String("file", admin1Shp),
		zap.Int("records", shpStats.Records),
		zap.Int("polygons", len(polys)),
		zap.Int("points", shpStats.Points),
		zap.Int("degenerate_rings", stats.Read.DegenerateRings))

	enc := raster.NewEncoder(raster.Config{
		Grid:       c.pipeCfg.Grid,
		Rule:       rule,
		ScratchDir: c.cfg.ScratchDir,
	})

	paintStart := time.Now()
	canvases, err := enc.Paint(ctx, polys)
	if err != nil {
		return nil, fmt.Errorf("paint failed: %w", err)
	}
	defer canvases.Close()
	log.Info("Painted canvases", zap.Duration("duration", time.Since(paintStart).Round(time.Millisecond)))

	blobs := make([]store.TileBlob, tiling.TileCount)
	progress := NewProgressTracker(tiling.TileCount, "tiles")
	progressCtx, cancelProgress := context.WithCancel(ctx)
	defer cancelProgress()
	if c.pipeCfg.ProgressInterval > 0 {
		go c.reportProgress(progressCtx, progress)
	}

	for _, h := range tiling.Hemispheres {
		ts, err := c.writeTiles(ctx, enc, canvases.Get(h), h, blobs, progress)
		if err != nil {
			return nil, err
		}
		if h == tiling.East {
			stats.East = ts
		} else {
			stats.West = ts
		}
	}
	cancelProgress()

	if c.store != nil {
		if err := c.persist(ctx, regions, blobs); err != nil {
			return nil, err
		}
		stats.Persisted = true
	}

	if c.pipeCfg.ExportPath != "" {
		if err := export.WriteRegions(c.pipeCfg.ExportPath, regions.Records()); err != nil {
			return nil, fmt.Errorf("region export failed: %w", err)
		}
		log.Info("Exported regions", zap.String("file", c.pipeCfg.ExportPath))
	}

	if c.cache != nil {
		n, err := c.cache.Flush(ctx)
		if err != nil {
			log.Warn("Failed to flush lookup cache", zap.Error(err))
		} else if n > 0 {
			log.Info("Flushed lookup cache", zap.Int("entries", n))
		}
	}

	stats.Duration = time.Since(start)
	return stats, nil
}

// buildRegions reads both attribute tables and derives the region records.
// It returns the admin1 shapefile path for the geometry pass.
func (c *Coordinator) buildRegions(stats *EncodeStats) (*admin.Regions, string, error) {
	styleCfg := style.DefaultConfig()
	if c.cfg.StyleFile != "" {
		var err error
		if styleCfg, err = style.LoadConfig(c.cfg.StyleFile); err != nil {
			return nil, "", err
		}
	}

	admin0Shp, err := shapefile.FindFiles(c.cfg.Admin0Path)
	if err != nil {
		return nil, "", fmt.Errorf("admin0 dataset: %w", err)
	}
	admin1Shp, err := shapefile.FindFiles(c.cfg.Admin1Path)
	if err != nil {
		return nil, "", fmt.Errorf("admin1 dataset: %w", err)
	}

	rows0, err := shapefile.ReadTable(admin0Shp, styleCfg.Admin0.Columns())
	if err != nil {
		return nil, "", fmt.Errorf("admin0 attributes: %w", err)
	}
	rows1, err := shapefile.ReadTable(admin1Shp, styleCfg.Admin1.Columns())
	if err != nil {
		return nil, "", fmt.Errorf("admin1 attributes: %w", err)
	}
	stats.Read.Admin0Records = len(rows0)
	stats.Read.Admin1Records = len(rows1)

	var h admin.Hook
	if c.cfg.HookFile != "" {
		rt := hook.NewRuntime()
		defer rt.Close()
		if err := rt.LoadFile(c.cfg.HookFile); err != nil {
			return nil, "", err
		}
		h = rt
		logger.Get().Info("Loaded region hook", zap.String("file", c.cfg.HookFile))
	}

	regions, err := admin.Build(rows0, rows1, styleCfg, h)
	if err != nil {
		return nil, "", err
	}
	return regions, admin1Shp, nil
}

// dropDegenerate removes rings that have no interior point. Such rings
// cover no pixel centre worth keeping and are reported, not fatal.
func dropDegenerate(polys []geometry.Polygon) ([]geometry.Polygon, int) {
	log := logger.Get()
	kept := polys[:0]
	dropped := 0
	for _, p := range polys {
		if _, err := geometry.InteriorPoint(p.Ring); err != nil {
			dropped++
			metrics.DegenerateRingsTotal.Inc()
			log.Warn("Skipping ring",
				zap.Int("feature_id", p.FeatureID),
				zap.Int("vertices", len(p.Ring)),
				zap.Error(err))
			continue
		}
		kept = append(kept, p)
	}
	return kept, dropped
}

// writeTiles cuts one canvas and writes its tiles with a bounded worker
// pool. Each tile lands in blobs at its global index.
func (c *Coordinator) writeTiles(ctx context.Context, enc *raster.Encoder, cv *raster.Canvas, h tiling.Hemisphere, blobs []store.TileBlob, progress *ProgressTracker) (TileStats, error) {
	dir := filepath.Join(c.cfg.OutputDir, h.String())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return TileStats{}, fmt.Errorf("failed to create tile directory: %w", err)
	}

	workers := c.cfg.Workers
	if workers <= 0 {
		workers = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	results := make([]tileResult, tiling.TilesPerHemisphere)
	emitErr := enc.Tiles(gctx, cv, h, func(t raster.Tile) error {
		g.Go(func() error {
			res, err := c.writeTile(gctx, dir, h, t)
			if err != nil {
				return err
			}
			results[t.Index-h.Offset()] = res
			blobs[t.Index] = store.TileBlob{Index: t.Index, PNG: res.data}
			progress.Add(1, int64(len(res.data)))
			metrics.TilesWrittenTotal.WithLabelValues(h.String()).Inc()
			return nil
		})
		return nil
	})
	if err := g.Wait(); err != nil {
		return TileStats{}, err
	}
	if emitErr != nil {
		return TileStats{}, emitErr
	}

	ts := TileStats{Hemisphere: h.String(), Tiles: tiling.TilesPerHemisphere}
	for _, r := range results {
		ts.Bytes += int64(len(r.data))
		if r.optimized {
			ts.Optimized++
		}
	}
	logger.Get().Info("Wrote tiles",
		zap.String("hemisphere", h.String()),
		zap.String("dir", dir),
		zap.Int("tiles", ts.Tiles),
		zap.String("size", FormatBytes(ts.Bytes)),
		zap.Int("optimized", ts.Optimized))
	return ts, nil
}

type tileResult struct {
	data      []byte
	optimized bool
}

// TileFileName returns the file name of a tile inside its hemisphere
// directory. Files are numbered per hemisphere from 0.
func TileFileName(index int) string {
	return fmt.Sprintf("tile_%d.png", index%tiling.TilesPerHemisphere)
}

func (c *Coordinator) writeTile(ctx context.Context, dir string, h tiling.Hemisphere, t raster.Tile) (tileResult, error) {
	data, err := raster.EncodePNG(t.Image)
	if err != nil {
		return tileResult{}, fmt.Errorf("tile %d: %w", t.Index, err)
	}

	path := filepath.Join(dir, TileFileName(t.Index))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return tileResult{}, fmt.Errorf("failed to write %s: %w", path, err)
	}

	res := tileResult{data: data}
	if !c.cfg.Optimize {
		return res, nil
	}

	if err := exec.CommandContext(ctx, c.cfg.OptimizeCommand, "-silent", path).Run(); err != nil {
		logger.Get().Warn("Failed to optimize tile",
			zap.String("hemisphere", h.String()),
			zap.String("file", path),
			zap.Error(err))
		return res, nil
	}
	optimized, err := os.ReadFile(path)
	if err != nil {
		return tileResult{}, fmt.Errorf("failed to read optimized %s: %w", path, err)
	}
	return tileResult{data: optimized, optimized: true}, nil
}

// persist writes regions and tiles as two separate transactions
func (c *Coordinator) persist(ctx context.Context, regions *admin.Regions, blobs []store.TileBlob) error {
	log := logger.Get()
	if err := c.store.EnsureSchema(ctx); err != nil {
		return err
	}

	dbStart := time.Now()
	if err := c.store.ReplaceRegions(ctx, regions); err != nil {
		return fmt.Errorf("failed to write regions: %w", err)
	}
	log.Info("Committed region records",
		zap.Int("sov", len(regions.Sov)),
		zap.Int("admin0", len(regions.Admin0)),
		zap.Int("admin1", len(regions.Admin1)))

	if err := c.store.ReplaceTiles(ctx, blobs); err != nil {
		return fmt.Errorf("failed to write tiles: %w", err)
	}
	log.Info("Committed tiles",
		zap.Int("tiles", len(blobs)),
		zap.Duration("duration", time.Since(dbStart).Round(time.Millisecond)))
	return nil
}

// reportProgress periodically logs tile progress
func (c *Coordinator) reportProgress(ctx context.Context, p *ProgressTracker) {
	log := logger.Get()
	ticker := time.NewTicker(c.pipeCfg.ProgressInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pr := p.Calculate()
			log.Info("Tile progress",
				zap.Int64("written", pr.Current),
				zap.Int64("total", pr.Total),
				zap.String("percent", fmt.Sprintf("%.1f%%", pr.Percentage)),
				zap.String("size", FormatBytes(pr.Bytes)),
				zap.String("eta", FormatETA(pr.ETA)))
		}
	}
}
