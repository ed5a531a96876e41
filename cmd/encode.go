package cmd

import (
	"context"
	"os"
	"os/signal"
	"time"

	"go.uber.org/zap"

	"github.com/spf13/cobra"
	"github.com/wegman-software/adminraster-go/internal/cache"
	"github.com/wegman-software/adminraster-go/internal/logger"
	"github.com/wegman-software/adminraster-go/internal/pipeline"
)

var (
	skipDatabase     bool
	exportPath       string
	progressInterval time.Duration
)

var encodeCmd = &cobra.Command{
	Use:   "encode <admin0-dataset> <admin1-dataset>",
	Short: "Paint admin1 regions into tiles and store them",
	Long: `Encode admin boundary shapefiles into colour-coded raster tiles.

Each dataset is a directory holding one shapefile, or the .shp file itself.
The two datasets must live in different locations.

  1. Read admin0 and admin1 attribute tables and derive region records
  2. Paint every admin1 polygon in the colour of its id on two canvases
  3. Cut each canvas into 324 tiles, written to <output-dir>/west and east
  4. Store region records and tile blobs in PostgreSQL (one transaction each)

Pass --optimize to run OptiPNG on every tile before it is stored.`,
	Args: cobra.ExactArgs(2),
	Run:  runEncode,
}

func init() {
	rootCmd.AddCommand(encodeCmd)

	encodeCmd.Flags().StringVarP(&cfg.OutputDir, "output-dir", "o", cfg.OutputDir, "Directory for tile PNG files")
	encodeCmd.Flags().StringVar(&cfg.ScratchDir, "scratch-dir", "", "Directory for memory-mapped canvases (default: in memory)")
	encodeCmd.Flags().StringVar(&cfg.FillRule, "fill-rule", cfg.FillRule, "Polygon fill rule: nonzero or evenodd")
	encodeCmd.Flags().StringVarP(&cfg.StyleFile, "style", "S", "", "YAML attribute field mapping")
	encodeCmd.Flags().StringVar(&cfg.HookFile, "hook", "", "Lua script defining process_region(region)")
	encodeCmd.Flags().BoolVar(&cfg.Optimize, "optimize", false, "Optimize tile PNGs with OptiPNG")
	encodeCmd.Flags().StringVar(&cfg.OptimizeCommand, "optimize-command", cfg.OptimizeCommand, "PNG optimizer executable")
	encodeCmd.Flags().BoolVar(&skipDatabase, "no-db", false, "Write tile files only, skip PostgreSQL")
	encodeCmd.Flags().StringVar(&exportPath, "parquet", "", "Also export the region table to this Parquet file")
	encodeCmd.Flags().DurationVar(&progressInterval, "progress-interval", 5*time.Second, "Interval for tile progress logging (0 disables)")
	encodeCmd.Flags().StringVar(&cfg.RedisAddr, "redis", cfg.RedisAddr, "Redis address of a lookup result cache to flush")
}

func runEncode(cmd *cobra.Command, args []string) {
	cfg.Admin0Path = args[0]
	cfg.Admin1Path = args[1]
	log := logger.Get()

	if err := cfg.ValidateEncode(); err != nil {
		exitWithError("invalid configuration", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	log.Info("Starting encode",
		zap.String("admin0", cfg.Admin0Path),
		zap.String("admin1", cfg.Admin1Path),
		zap.String("output_dir", cfg.OutputDir),
		zap.String("fill_rule", cfg.FillRule),
		zap.Int("workers", cfg.Workers),
		zap.Bool("optimize", cfg.Optimize),
		zap.Bool("database", !skipDatabase))

	var st pipeline.RegionStore
	if !skipDatabase {
		s := openStore(ctx)
		defer s.Close()
		st = s
	}

	var rc pipeline.ResultCache
	if results := cache.Open(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisTTL); results != nil {
		defer results.Close()
		rc = results
	}

	pipeCfg := pipeline.CoordinatorConfig{
		ProgressInterval: progressInterval,
		ExportPath:       exportPath,
	}
	stats, err := pipeline.NewCoordinator(cfg, pipeCfg, st, rc).Run(ctx)
	if err != nil {
		exitWithError("encode failed", err)
	}

	log.Info("Encode complete",
		zap.Duration("total_time", stats.Duration.Round(time.Second)),
		zap.Int("admin0", stats.Read.Admin0Records),
		zap.Int("admin1", stats.Read.Admin1Records),
		zap.Int("polygons", stats.Read.Polygons),
		zap.Int("degenerate_rings", stats.Read.DegenerateRings),
		zap.Int("tiles", stats.TotalTiles()),
		zap.String("tile_bytes", pipeline.FormatBytes(stats.West.Bytes+stats.East.Bytes)),
		zap.Bool("persisted", stats.Persisted))
}
