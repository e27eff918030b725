package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/bryanchriswhite/photobooth/internal/api"
	"github.com/bryanchriswhite/photobooth/internal/logger"
	"github.com/bryanchriswhite/photobooth/internal/output"
	"github.com/bryanchriswhite/photobooth/internal/overlay"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the photobooth server",
	Long: `Start the photobooth HTTP server with the configured camera.

The server exposes the capture session over a REST API and websocket,
serves a live MJPEG preview with countdown and flash overlays, and
renders composites on request.`,
	Example: `  # Start server on default port (8080)
  photobooth serve

  # Start server on custom port
  photobooth serve --port 9090

  # Use the test pattern instead of a camera
  photobooth serve --source static

  # Start with debug logging
  photobooth serve --log-level debug --pretty`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	configMgr, cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logger.WithComponent("serve")
	log.Info().
		Str("config", configMgr.GetConfigPath()).
		Str("log_level", cfg.LogLevel).
		Msg("Configuration loaded")

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	// A camera that fails here can still be acquired later through retake.
	if err := a.booth.Open(); err != nil {
		log.Warn().Err(err).Msg("Video source unavailable, use retake once it is connected")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go a.booth.Run(ctx)

	opts := api.Options{
		Layout:       a.layout,
		ExportPrefix: cfg.Export.Prefix,
	}

	if cfg.Preview.Enabled {
		previewCfg := output.Config{
			Width:   cfg.Preview.Width,
			Height:  cfg.Preview.Height,
			FPS:     cfg.Preview.FPS,
			Quality: cfg.Preview.Quality,
		}
		stream := output.NewMJPEGOutput(previewCfg)
		ov := overlay.NewSessionOverlay()
		unsubscribe := a.booth.Sequencer().Subscribe(ov.Apply)
		defer unsubscribe()
		ov.Apply(a.booth.Sequencer().Snapshot())

		preview := output.NewPreview(a.source, ov, stream, previewCfg)
		go func() {
			if err := preview.Run(ctx); err != nil {
				log.Error().Err(err).Msg("Preview stopped")
			}
		}()
		opts.Preview = stream
	}

	server := api.NewServer(a.booth, a.renderer, opts)
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(cfg.ServerPort)
	}()

	log.Info().
		Int("port", cfg.ServerPort).
		Str("source", a.source.Name()).
		Str("layout", a.layout.Name).
		Msgf("Photobooth is running at http://localhost:%d", cfg.ServerPort)

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
