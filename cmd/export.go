package cmd

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spf13/cobra"
	"github.com/wegman-software/adminraster-go/internal/export"
	"github.com/wegman-software/adminraster-go/internal/logger"
)

var exportCmd = &cobra.Command{
	Use:   "export <output.parquet>",
	Short: "Export stored admin1 regions to Parquet",
	Long: `Export the admin1 table with resolved country and sovereign names and
the hex colour each region is painted in (id, name, color, disputed,
admin0, sov).`,
	Args: cobra.ExactArgs(1),
	Run:  runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) {
	log := logger.Get()
	start := time.Now()
	ctx := context.Background()

	st := openStore(ctx)
	defer st.Close()

	records, err := st.Records(ctx)
	if err != nil {
		exitWithError("failed to read regions", err)
	}
	if err := export.WriteRegions(args[0], records); err != nil {
		exitWithError("export failed", err)
	}

	log.Info("Export complete",
		zap.String("file", args[0]),
		zap.Int("regions", len(records)),
		zap.Duration("duration", time.Since(start).Round(time.Millisecond)))
}
