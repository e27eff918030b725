package commands

import (
	"fmt"
	"time"

	"github.com/bryanchriswhite/photobooth/internal/booth"
	"github.com/bryanchriswhite/photobooth/internal/capture"
	"github.com/bryanchriswhite/photobooth/internal/compose"
	"github.com/bryanchriswhite/photobooth/internal/config"
	"github.com/bryanchriswhite/photobooth/internal/layout"
	"github.com/bryanchriswhite/photobooth/internal/loader"
	"github.com/bryanchriswhite/photobooth/internal/logger"
	"github.com/bryanchriswhite/photobooth/internal/photo"
	"github.com/bryanchriswhite/photobooth/internal/store"
	"github.com/bryanchriswhite/photobooth/internal/store/sqlite"
	"github.com/bryanchriswhite/photobooth/internal/theme"
	"github.com/spf13/viper"
)

// loadConfig opens the config file and applies command-line overrides
func loadConfig() (*config.Manager, *config.Config, error) {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize config manager: %w", err)
	}

	// Flags win over the file for this run only; nothing is saved.
	configMgr.Mutate(func(cfg *config.Config) {
		if viper.IsSet("server_port") {
			if port := viper.GetInt("server_port"); port > 0 {
				cfg.ServerPort = port
			}
		}
		if viper.IsSet("log_level") {
			if level := viper.GetString("log_level"); level != "" {
				cfg.LogLevel = level
			}
		}
		if viper.IsSet("camera.source") {
			if source := viper.GetString("camera.source"); source != "" {
				cfg.Camera.Source = source
			}
		}
	})

	cfg := configMgr.Get()
	logger.Init(cfg.LogLevel, viper.GetBool("pretty"))
	return configMgr, cfg, nil
}

// openStore returns the SQLite store at path, or an in-memory store when
// path is empty
func openStore(path string) (store.PhotoStore, error) {
	if path == "" {
		return store.NewMemory(), nil
	}
	st, err := sqlite.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open photo store: %w", err)
	}
	return st, nil
}

// newRenderer builds the loader, theme catalog and compositor from cfg.
// File references resolve inside the themes directory and any extra roots.
func newRenderer(cfg *config.Config, registry *photo.Registry, fileRoots ...string) (*compose.Renderer, layout.Layout, error) {
	lay, err := layout.ByName(cfg.Composite.Layout, cfg.Composite.Width, cfg.Composite.Height)
	if err != nil {
		return nil, layout.Layout{}, err
	}

	catalog, err := theme.LoadCatalog(cfg.Themes.Dir, cfg.Themes.ManifestPath())
	if err != nil {
		return nil, layout.Layout{}, fmt.Errorf("failed to load themes: %w", err)
	}

	l := loader.New(loader.Options{
		Origin:      cfg.Origin,
		Registry:    registry,
		Concurrency: cfg.Composite.LoadConcurrency,
		Timeout:     time.Duration(cfg.Composite.LoadTimeoutSecs) * time.Second,
		FileRoots:   append([]string{cfg.Themes.Dir}, fileRoots...),
	})

	r := compose.NewRenderer(l, catalog, compose.Options{
		Width:      cfg.Composite.Width,
		Height:     cfg.Composite.Height,
		Shrink:     cfg.Composite.Shrink,
		StampDate:  cfg.Composite.StampDate,
		Decorate:   cfg.Composite.Decorate,
		DateFormat: cfg.Composite.DateFormat,
		Caption:    cfg.Composite.Caption,
	})
	return r, lay, nil
}

// app is everything one booth needs, wired from config
type app struct {
	cfg      *config.Config
	registry *photo.Registry
	store    store.PhotoStore
	source   capture.VideoSource
	booth    *booth.Service
	renderer *compose.Renderer
	layout   layout.Layout
}

func newApp(cfg *config.Config) (*app, error) {
	registry := photo.NewRegistry()

	renderer, lay, err := newRenderer(cfg, registry)
	if err != nil {
		return nil, err
	}

	source, err := capture.NewSource(cfg.Camera)
	if err != nil {
		return nil, fmt.Errorf("failed to create video source: %w", err)
	}

	st, err := openStore(cfg.Storage.Path)
	if err != nil {
		return nil, err
	}

	svc := booth.NewService(source, registry, st, booth.ServiceConfig{
		Slots:   len(lay.Slots),
		Capture: cfg.Capture,
	})

	return &app{
		cfg:      cfg,
		registry: registry,
		store:    st,
		source:   source,
		booth:    svc,
		renderer: renderer,
		layout:   lay,
	}, nil
}

// Close releases the camera and the store
func (a *app) Close() {
	log := logger.WithComponent("app")
	if err := a.booth.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to release video source")
	}
	if err := a.store.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close photo store")
	}
}
