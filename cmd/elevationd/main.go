package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/walkthru-earth/elevationd/internal/bulk"
	"github.com/walkthru-earth/elevationd/internal/config"
	"github.com/walkthru-earth/elevationd/internal/geo"
)

func geoSector(minLat, maxLat, minLon, maxLon float64) geo.Sector {
	return geo.NewSectorDegrees(minLat, maxLat, minLon, maxLon)
}

func main() {
	root := &cobra.Command{
		Use:   "elevationd",
		Short: "Tiled elevation sampling service",
	}
	root.AddCommand(serveCmd(), bulkDownloadCmd())

	if err := root.Execute(); err != nil {
		slog.Default().Error("elevationd exited with error", "err", err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP elevation service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			return runServe(cfg)
		},
	}
}

func bulkDownloadCmd() *cobra.Command {
	var minLat, maxLat, minLon, maxLon, resolution float64

	cmd := &cobra.Command{
		Use:   "bulk-download",
		Short: "Pre-fetch every tile covering a sector at a target resolution",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			a, err := buildApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			sector := geoSector(minLat, maxLat, minLon, maxLon)
			return a.downloader.Run(context.Background(), sector, resolution, func(p bulk.Progress) {
				fmt.Printf("\r%d/%d tiles (%d/%d bytes)", p.CurrentCount, p.TotalCount, p.CurrentSize, p.TotalSize)
				if p.Done {
					fmt.Println()
				}
			})
		},
	}

	cmd.Flags().Float64Var(&minLat, "min-lat", -90, "minimum latitude, degrees")
	cmd.Flags().Float64Var(&maxLat, "max-lat", 90, "maximum latitude, degrees")
	cmd.Flags().Float64Var(&minLon, "min-lon", -180, "minimum longitude, degrees")
	cmd.Flags().Float64Var(&maxLon, "max-lon", 180, "maximum longitude, degrees")
	cmd.Flags().Float64Var(&resolution, "resolution", 0, "target texel size in radians (0 picks the finest level)")

	return cmd
}
