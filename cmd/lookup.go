package cmd

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/spf13/cobra"
	"github.com/wegman-software/adminraster-go/internal/logger"
	"github.com/wegman-software/adminraster-go/internal/lookup"
	"github.com/wegman-software/adminraster-go/internal/tiling"
)

var lookupCmd = &cobra.Command{
	Use:   "lookup <lon> <lat>",
	Short: "Print the admin region containing a coordinate",
	Long: `Look up the admin1 region at a longitude/latitude pair.

Longitude must lie in [-180, 180] and latitude in [-90, 90]. Negative
values may need a "--" separator, e.g. adminraster lookup -- -79.4 43.7`,
	Args: cobra.ExactArgs(2),
	Run:  runLookup,
}

func init() {
	rootCmd.AddCommand(lookupCmd)
}

func runLookup(cmd *cobra.Command, args []string) {
	lon, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		exitWithError("invalid longitude", err)
	}
	lat, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		exitWithError("invalid latitude", err)
	}

	ctx := context.Background()
	st := openStore(ctx)
	defer st.Close()

	resolver := lookup.NewResolver(st, st, lookup.Options{CacheSize: cfg.TileCacheSize})
	defer resolver.Close()

	res, err := resolver.Lookup(ctx, lon, lat)
	if errors.Is(err, tiling.ErrOutOfRange) {
		exitWithError("coordinate out of range", err)
	}
	if err != nil {
		exitWithError("lookup failed", err)
	}

	logger.Get().Debug("Sampled pixel",
		zap.Stringer("address", res.Address),
		zap.String("color", res.Color))

	out := cmd.OutOrStdout()
	if !res.Found {
		fmt.Fprintln(out, "Nothing found at input coordinates")
		return
	}
	fmt.Fprintf(out, "Admin1: %s\n", res.Region.Admin1)
	fmt.Fprintf(out, "Admin0: %s\n", res.Region.Admin0)
	fmt.Fprintf(out, "Sov: %s\n", res.Region.Sov)
	fmt.Fprintf(out, "Disputed: %t\n", res.Region.Disputed)
}
