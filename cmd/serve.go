package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/spf13/cobra"
	"github.com/wegman-software/adminraster-go/internal/cache"
	"github.com/wegman-software/adminraster-go/internal/logger"
	"github.com/wegman-software/adminraster-go/internal/lookup"
	"github.com/wegman-software/adminraster-go/internal/server"
	"github.com/wegman-software/adminraster-go/internal/tiling"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve lookups over HTTP",
	Long: `Serve point lookups over HTTP.

  GET /lookup?lon=<lon>&lat=<lat>   region at a coordinate (JSON)
  GET /metrics                      Prometheus metrics
  GET /healthz                      liveness

Decoded tiles are kept in memory. With --redis, results are also cached
per pixel in Redis; encode flushes that cache after writing new tiles.`,
	Args: cobra.NoArgs,
	Run:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&cfg.ListenAddr, "listen", "l", cfg.ListenAddr, "HTTP listen address")
	serveCmd.Flags().Int64Var(&cfg.TileCacheSize, "tile-cache", cfg.TileCacheSize, "Number of decoded tiles kept in memory")
	serveCmd.Flags().StringVar(&cfg.RedisAddr, "redis", cfg.RedisAddr, "Redis address for the result cache (empty disables)")
	serveCmd.Flags().StringVar(&cfg.RedisPassword, "redis-password", cfg.RedisPassword, "Redis password")
	serveCmd.Flags().DurationVar(&cfg.RedisTTL, "redis-ttl", cfg.RedisTTL, "Lifetime of cached results")
}

func runServe(cmd *cobra.Command, args []string) {
	log := logger.Get()
	if err := cfg.Validate(); err != nil {
		exitWithError("invalid configuration", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st := openStore(ctx)
	defer st.Close()

	n, err := st.TileCount(ctx)
	if err != nil {
		exitWithError("failed to read tiles", err)
	}
	if n != tiling.TileCount {
		log.Warn("Tile table is incomplete, run encode first",
			zap.Int("tiles", n),
			zap.Int("expected", tiling.TileCount))
	}

	results := cache.Open(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisTTL)
	if err := results.Ping(ctx); err != nil {
		log.Warn("Redis unreachable, result cache disabled", zap.Error(err))
		results.Close()
		results = nil
	}
	defer results.Close()

	resolver := lookup.NewResolver(st, st, lookup.Options{CacheSize: cfg.TileCacheSize})
	defer resolver.Close()

	srv := server.New(resolver, results, tiling.DefaultGrid)
	if err := srv.Run(ctx, cfg.ListenAddr); err != nil {
		exitWithError("server failed", err)
	}
	log.Info("Server stopped")
}
