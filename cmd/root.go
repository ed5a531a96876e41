package cmd

import (
	"context"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/spf13/cobra"
	"github.com/wegman-software/adminraster-go/internal/config"
	"github.com/wegman-software/adminraster-go/internal/logger"
	"github.com/wegman-software/adminraster-go/internal/store"
)

var (
	cfg             = config.DefaultConfig()
	verbose         bool
	logFile         string
	metricsInterval time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "adminraster",
	Short: "Administrative boundary raster encoder and lookup",
	Long: `adminraster paints admin1 boundary polygons into a pair of colour-coded
rasters, one per hemisphere, and answers which region contains a coordinate
by reading a single pixel.

Features:
  - Every region is painted in a unique RGB colour derived from its id
  - 648 tiles of 10x10 degrees stored as PNG blobs in PostgreSQL
  - Region records (admin1, admin0, sovereign state) stored alongside
  - Lookups from the command line or over HTTP with tile and result caching`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg.Verbose = verbose
		cfg.LogFile = logFile
		cfg.MetricsInterval = metricsInterval

		if logFile != "" {
			logger.InitWithFile(verbose, logFile)
		} else {
			logger.Init(verbose)
		}
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Sync()
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// .env and ADMINRASTER_* variables supply defaults, flags override them
	_ = godotenv.Load(".env")
	cfg.ApplyEnv()

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().IntVarP(&cfg.Workers, "workers", "j", cfg.Workers, "Number of parallel workers")

	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Path to log file for persistent logging (JSON format)")
	rootCmd.PersistentFlags().DurationVar(&metricsInterval, "metrics-interval", 30*time.Second, "Interval for system metrics logging (0 disables)")

	rootCmd.PersistentFlags().StringVar(&cfg.DBHost, "db-host", cfg.DBHost, "PostgreSQL host")
	rootCmd.PersistentFlags().IntVar(&cfg.DBPort, "db-port", cfg.DBPort, "PostgreSQL port")
	rootCmd.PersistentFlags().StringVarP(&cfg.DBName, "db-name", "d", cfg.DBName, "PostgreSQL database name")
	rootCmd.PersistentFlags().StringVarP(&cfg.DBUser, "db-user", "U", cfg.DBUser, "PostgreSQL user")
	rootCmd.PersistentFlags().StringVarP(&cfg.DBPassword, "db-password", "W", cfg.DBPassword, "PostgreSQL password")
	rootCmd.PersistentFlags().StringVar(&cfg.DBSchema, "db-schema", cfg.DBSchema, "PostgreSQL schema")
}

// openStore connects to the configured database
func openStore(ctx context.Context) *store.Store {
	st, err := store.Open(ctx, cfg.ConnectionString(), cfg.Workers)
	if err != nil {
		exitWithError("failed to connect to database", err)
	}
	return st
}

func exitWithError(msg string, err error) {
	log := logger.Get()
	if err != nil {
		log.Error(msg, zap.Error(err))
	} else {
		log.Error(msg)
	}
	logger.Sync()
	os.Exit(1)
}
