// Package server implements the command that runs the HTTP ingestion API.
package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/spf13/cobra"

	"github.com/roadwatch/roadwatch-go/internal/api"
	"github.com/roadwatch/roadwatch-go/internal/conf"
	"github.com/roadwatch/roadwatch-go/internal/datastore"
	"github.com/roadwatch/roadwatch-go/internal/detector"
	"github.com/roadwatch/roadwatch-go/internal/geocode"
	"github.com/roadwatch/roadwatch-go/internal/logging"
	"github.com/roadwatch/roadwatch-go/internal/mediastore"
	"github.com/roadwatch/roadwatch-go/internal/observability"
	"github.com/roadwatch/roadwatch-go/internal/pipeline"
	"github.com/roadwatch/roadwatch-go/internal/security"
)

// Command returns the server command for the RoadWatch API.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Run the RoadWatch ingestion and registry API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(settings)
		},
	}

	cmd.Flags().StringVar(&settings.WebServer.Port, "port", settings.WebServer.Port, "Port to listen on")

	return cmd
}

func run(settings *conf.Settings) error {
	logger := logging.ForService("server")

	store, err := datastore.New(settings)
	if err != nil {
		return fmt.Errorf("configuring registry store: %w", err)
	}
	if err := store.Open(); err != nil {
		return fmt.Errorf("opening registry store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("closing registry store", "error", err)
		}
	}()

	sec, err := security.NewManager(settings)
	if err != nil {
		return fmt.Errorf("configuring security manager: %w", err)
	}

	media, err := mediastore.New(settings)
	if err != nil {
		return fmt.Errorf("configuring media store: %w", err)
	}

	det := detector.NewClient(settings)
	geocoder := geocode.NewClient(settings)
	metrics := observability.NewMetrics()
	p := pipeline.New(settings, store, det, geocoder, media, metrics)

	e := echo.New()
	e.HideBanner = true
	api.New(e, settings, store, p, sec, media, metrics)

	// The model sidecar may still be warming up; a failed probe is logged
	// but never blocks startup.
	probeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := det.HealthCheck(probeCtx); err != nil {
		logger.Warn("detection service is not reachable yet", "error", err)
	}
	cancel()

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + settings.WebServer.Port
		logger.Info("starting HTTP server", "addr", addr, "version", settings.Version)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("HTTP server failed: %w", err)
	case sig := <-quit:
		logger.Info("shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}
