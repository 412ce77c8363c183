// Package analyze implements the one-shot command that runs a single image
// or video through the ingestion pipeline from the command line.
package analyze

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roadwatch/roadwatch-go/internal/conf"
	"github.com/roadwatch/roadwatch-go/internal/datastore"
	"github.com/roadwatch/roadwatch-go/internal/detector"
	"github.com/roadwatch/roadwatch-go/internal/geocode"
	"github.com/roadwatch/roadwatch-go/internal/mediastore"
	"github.com/roadwatch/roadwatch-go/internal/observability"
	"github.com/roadwatch/roadwatch-go/internal/pipeline"
)

// Command returns the analyze command, which ingests one file and prints
// the outcome as JSON.
func Command(settings *conf.Settings) *cobra.Command {
	var (
		lat, lng    float64
		hasCoords   bool
		forceCreate bool
	)

	cmd := &cobra.Command{
		Use:   "analyze [file]",
		Short: "Analyze a single image or video file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hasCoords = cmd.Flags().Changed("lat") && cmd.Flags().Changed("lng")
			return run(cmd.Context(), settings, args[0], lat, lng, hasCoords, forceCreate)
		},
	}

	cmd.Flags().Float64Var(&lat, "lat", 0, "Latitude override when the file has no GPS metadata")
	cmd.Flags().Float64Var(&lng, "lng", 0, "Longitude override when the file has no GPS metadata")
	cmd.Flags().BoolVar(&forceCreate, "force", false, "Create a record even when nearby duplicates exist")

	return cmd
}

func run(ctx context.Context, settings *conf.Settings, path string, lat, lng float64, hasCoords, force bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	store, err := datastore.New(settings)
	if err != nil {
		return err
	}
	if err := store.Open(); err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	media, err := mediastore.New(settings)
	if err != nil {
		return err
	}

	p := pipeline.New(settings, store, detector.NewClient(settings),
		geocode.NewClient(settings), media, observability.NewMetrics())

	var manualLat, manualLng *float64
	if hasCoords {
		manualLat, manualLng = &lat, &lng
	}

	var out any
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".mp4", ".avi", ".mov", ".mkv", ".webm":
		out, err = p.ProcessVideo(ctx, &pipeline.VideoRequest{
			Filename:        filepath.Base(path),
			Data:            data,
			ManualLatitude:  manualLat,
			ManualLongitude: manualLng,
			ReporterEmail:   conf.SystemReporter,
		})
	default:
		out, err = p.ProcessImage(ctx, &pipeline.ImageRequest{
			Filename:        filepath.Base(path),
			Data:            data,
			ManualLatitude:  manualLat,
			ManualLongitude: manualLng,
			ForceCreate:     force,
			ReporterEmail:   conf.SystemReporter,
		})
	}
	if err != nil {
		return err
	}

	encoded, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(encoded))
	return nil
}
