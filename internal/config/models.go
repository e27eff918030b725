package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/bryanchriswhite/photobooth/internal/logger"
	"gopkg.in/yaml.v3"
)

// Source kinds for CameraConfig.Source
const (
	SourceGStreamer = "gstreamer"
	SourceX11       = "x11"
	SourceStatic    = "static"
)

// Config represents the application configuration
type Config struct {
	ServerPort int    `json:"server_port" yaml:"server_port"`
	LogLevel   string `json:"log_level" yaml:"log_level"`
	// Origin is the origin the booth is served from; remote images from any
	// other origin must grant CORS access or they taint the composite.
	Origin string `json:"origin" yaml:"origin"`

	Camera    CameraConfig    `json:"camera" yaml:"camera"`
	Capture   CaptureConfig   `json:"capture" yaml:"capture"`
	Composite CompositeConfig `json:"composite" yaml:"composite"`
	Themes    ThemesConfig    `json:"themes" yaml:"themes"`
	Storage   StorageConfig   `json:"storage" yaml:"storage"`
	Export    ExportConfig    `json:"export" yaml:"export"`
	Preview   PreviewConfig   `json:"preview" yaml:"preview"`
}

// CameraConfig selects and sizes the video source
type CameraConfig struct {
	Source      string `json:"source" yaml:"source"`
	Device      string `json:"device" yaml:"device"`
	Width       int    `json:"width" yaml:"width"`
	Height      int    `json:"height" yaml:"height"`
	FPS         int    `json:"fps" yaml:"fps"`
	StaticImage string `json:"static_image,omitempty" yaml:"static_image,omitempty"`
}

// CaptureConfig drives the countdown/flash/grab sequence
type CaptureConfig struct {
	ShotCount      int `json:"shot_count" yaml:"shot_count"`
	CountdownStart int `json:"countdown_start" yaml:"countdown_start"`
	FlashMillis    int `json:"flash_ms" yaml:"flash_ms"`
}

// CompositeConfig describes the output canvas
type CompositeConfig struct {
	Layout          string  `json:"layout" yaml:"layout"`
	Width           int     `json:"width" yaml:"width"`
	Height          int     `json:"height" yaml:"height"`
	Shrink          float64 `json:"shrink" yaml:"shrink"`
	StampDate       bool    `json:"stamp_date" yaml:"stamp_date"`
	Decorate        bool    `json:"decorate" yaml:"decorate"`
	DateFormat      string  `json:"date_format" yaml:"date_format"`
	Caption         string  `json:"caption" yaml:"caption"`
	LoadConcurrency int     `json:"load_concurrency" yaml:"load_concurrency"`
	LoadTimeoutSecs int     `json:"load_timeout_s" yaml:"load_timeout_s"`
}

// ThemesConfig locates the theme manifest and overlay graphics
type ThemesConfig struct {
	Dir      string `json:"dir" yaml:"dir"`
	Manifest string `json:"manifest" yaml:"manifest"`
}

// ManifestPath returns the manifest location, resolved against Dir when relative
func (t ThemesConfig) ManifestPath() string {
	if filepath.IsAbs(t.Manifest) {
		return t.Manifest
	}
	return filepath.Join(t.Dir, t.Manifest)
}

// StorageConfig locates the photo store database
type StorageConfig struct {
	Path string `json:"path" yaml:"path"`
}

// ExportConfig controls where composites are written by the CLI
type ExportConfig struct {
	Dir    string `json:"dir" yaml:"dir"`
	Prefix string `json:"prefix" yaml:"prefix"`
}

// PreviewConfig sizes the live MJPEG preview
type PreviewConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
	Width   int  `json:"width" yaml:"width"`
	Height  int  `json:"height" yaml:"height"`
	FPS     int  `json:"fps" yaml:"fps"`
	Quality int  `json:"quality" yaml:"quality"`
}

// Manager handles configuration
type Manager struct {
	configPath string
	configDir  string
	config     *Config
	mu         sync.RWMutex
}

// NewManager creates a new configuration manager
func NewManager(configFile string) (*Manager, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}

	configDir := filepath.Join(homeDir, ".config", "photobooth")
	actualConfigPath := filepath.Join(configDir, "config.yaml")
	if configFile != "" {
		actualConfigPath = configFile
		configDir = filepath.Dir(configFile)
	}

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	m := &Manager{
		configPath: actualConfigPath,
		configDir:  configDir,
	}

	if err := m.load(); err != nil {
		if os.IsNotExist(err) {
			logger.WithComponent("config").Info().
				Str("path", m.configPath).
				Msg("Config file not found, creating new config")
			m.config = m.getDefaults()
			if err := m.Save(); err != nil {
				return nil, fmt.Errorf("failed to create default config: %w", err)
			}
		} else {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	logger.WithComponent("config").Info().
		Str("path", m.configPath).
		Str("camera_source", m.config.Camera.Source).
		Int("shot_count", m.config.Capture.ShotCount).
		Msg("Config loaded")

	return m, nil
}

// Defaults returns the built-in configuration with storage under dir
func Defaults(dir string) *Config {
	return &Config{
		ServerPort: 8080,
		LogLevel:   "info",
		Origin:     "http://localhost:8080",
		Camera: CameraConfig{
			Source: SourceGStreamer,
			Device: "/dev/video0",
			Width:  1280,
			Height: 720,
			FPS:    15,
		},
		Capture: CaptureConfig{
			ShotCount:      4,
			CountdownStart: 3,
			FlashMillis:    150,
		},
		Composite: CompositeConfig{
			Layout:          "strip4",
			Width:           1000,
			Height:          3000,
			Shrink:          0.95,
			StampDate:       true,
			Decorate:        true,
			DateFormat:      "2006-01-02",
			Caption:         "Dear Memory",
			LoadConcurrency: 8,
			LoadTimeoutSecs: 10,
		},
		Themes: ThemesConfig{
			Dir:      "themes",
			Manifest: "themes.json",
		},
		Storage: StorageConfig{
			Path: filepath.Join(dir, "photobooth.db"),
		},
		Export: ExportConfig{
			Dir:    "exports",
			Prefix: "photobooth",
		},
		Preview: PreviewConfig{
			Enabled: true,
			Width:   960,
			Height:  540,
			FPS:     10,
			Quality: 80,
		},
	}
}

// getDefaults returns default configuration
func (m *Manager) getDefaults() *Config {
	return Defaults(m.configDir)
}

// load reads the configuration from disk
func (m *Manager) load() error {
	data, err := os.ReadFile(m.configPath)
	if err != nil {
		return err
	}

	// Start from defaults so missing sections keep sane values
	cfg := m.getDefaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.normalize()

	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
	return nil
}

// normalize clamps values to supported ranges
func (c *Config) normalize() {
	if c.Capture.ShotCount < 1 {
		c.Capture.ShotCount = 1
	}
	if c.Capture.ShotCount > 8 {
		c.Capture.ShotCount = 8
	}
	if c.Capture.CountdownStart < 1 {
		c.Capture.CountdownStart = 1
	}
	if c.Capture.FlashMillis < 0 {
		c.Capture.FlashMillis = 0
	}
	if c.Composite.Shrink <= 0 || c.Composite.Shrink > 1 {
		c.Composite.Shrink = 1
	}
	if c.Composite.LoadConcurrency < 1 {
		c.Composite.LoadConcurrency = 1
	}
	if c.Camera.FPS < 1 {
		c.Camera.FPS = 1
	}
	if c.Preview.FPS < 1 {
		c.Preview.FPS = 1
	}
	if c.Preview.Width < 1 || c.Preview.Height < 1 {
		c.Preview.Width, c.Preview.Height = 960, 540
	}
}

// Get returns a copy of the current configuration
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.config == nil {
		return m.getDefaults()
	}
	cfg := *m.config
	return &cfg
}

// Save saves the current configuration to disk
func (m *Manager) Save() error {
	m.mu.RLock()
	cfg := m.config
	m.mu.RUnlock()

	if cfg == nil {
		cfg = m.getDefaults()
	}

	logger.WithComponent("config").Debug().
		Str("path", m.configPath).
		Msg("Saving config")

	if err := os.MkdirAll(filepath.Dir(m.configPath), 0755); err != nil {
		logger.WithComponent("config").Error().
			Err(err).
			Str("config_dir", filepath.Dir(m.configPath)).
			Msg("Failed to create config directory")
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		logger.WithComponent("config").Error().
			Err(err).
			Msg("Failed to marshal config")
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(m.configPath, data, 0644); err != nil {
		logger.WithComponent("config").Error().
			Err(err).
			Str("path", m.configPath).
			Msg("Failed to write config")
		return err
	}

	logger.WithComponent("config").Info().
		Str("path", m.configPath).
		Msg("Config saved successfully")
	return nil
}

// Update replaces the entire configuration
func (m *Manager) Update(cfg *Config) error {
	cfg.normalize()
	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
	return m.Save()
}

// Mutate applies fn to the active configuration without saving
func (m *Manager) Mutate(fn func(cfg *Config)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.config == nil {
		m.config = m.getDefaults()
	}
	fn(m.config)
	m.config.normalize()
}

// Keys lists the dotted keys accepted by Value and Set
func Keys() []string {
	return []string{
		"server_port", "log_level", "origin",
		"camera.source", "camera.device", "camera.width", "camera.height", "camera.fps", "camera.static_image",
		"capture.shot_count", "capture.countdown_start", "capture.flash_ms",
		"composite.layout", "composite.width", "composite.height", "composite.shrink",
		"composite.stamp_date", "composite.decorate", "composite.date_format", "composite.caption",
		"composite.load_concurrency", "composite.load_timeout_s",
		"themes.dir", "themes.manifest",
		"storage.path",
		"export.dir", "export.prefix",
		"preview.enabled", "preview.width", "preview.height", "preview.fps", "preview.quality",
	}
}

// field returns a pointer to the value addressed by key
func (c *Config) field(key string) (interface{}, bool) {
	switch key {
	case "server_port":
		return &c.ServerPort, true
	case "log_level":
		return &c.LogLevel, true
	case "origin":
		return &c.Origin, true
	case "camera.source":
		return &c.Camera.Source, true
	case "camera.device":
		return &c.Camera.Device, true
	case "camera.width":
		return &c.Camera.Width, true
	case "camera.height":
		return &c.Camera.Height, true
	case "camera.fps":
		return &c.Camera.FPS, true
	case "camera.static_image":
		return &c.Camera.StaticImage, true
	case "capture.shot_count":
		return &c.Capture.ShotCount, true
	case "capture.countdown_start":
		return &c.Capture.CountdownStart, true
	case "capture.flash_ms":
		return &c.Capture.FlashMillis, true
	case "composite.layout":
		return &c.Composite.Layout, true
	case "composite.width":
		return &c.Composite.Width, true
	case "composite.height":
		return &c.Composite.Height, true
	case "composite.shrink":
		return &c.Composite.Shrink, true
	case "composite.stamp_date":
		return &c.Composite.StampDate, true
	case "composite.decorate":
		return &c.Composite.Decorate, true
	case "composite.date_format":
		return &c.Composite.DateFormat, true
	case "composite.caption":
		return &c.Composite.Caption, true
	case "composite.load_concurrency":
		return &c.Composite.LoadConcurrency, true
	case "composite.load_timeout_s":
		return &c.Composite.LoadTimeoutSecs, true
	case "themes.dir":
		return &c.Themes.Dir, true
	case "themes.manifest":
		return &c.Themes.Manifest, true
	case "storage.path":
		return &c.Storage.Path, true
	case "export.dir":
		return &c.Export.Dir, true
	case "export.prefix":
		return &c.Export.Prefix, true
	case "preview.enabled":
		return &c.Preview.Enabled, true
	case "preview.width":
		return &c.Preview.Width, true
	case "preview.height":
		return &c.Preview.Height, true
	case "preview.fps":
		return &c.Preview.FPS, true
	case "preview.quality":
		return &c.Preview.Quality, true
	}
	return nil, false
}

// Value returns the value stored under a dotted key
func (m *Manager) Value(key string) (interface{}, error) {
	cfg := m.Get()
	ptr, ok := cfg.field(key)
	if !ok {
		return nil, fmt.Errorf("configuration key not found: %s", key)
	}
	switch p := ptr.(type) {
	case *int:
		return *p, nil
	case *string:
		return *p, nil
	case *bool:
		return *p, nil
	case *float64:
		return *p, nil
	}
	return nil, fmt.Errorf("unsupported key type: %s", key)
}

// Set parses value into the field addressed by key. The change is not saved.
func (m *Manager) Set(key, value string) error {
	var setErr error
	m.Mutate(func(cfg *Config) {
		ptr, ok := cfg.field(key)
		if !ok {
			setErr = fmt.Errorf("configuration key not found: %s", key)
			return
		}
		switch p := ptr.(type) {
		case *int:
			n, err := strconv.Atoi(value)
			if err != nil {
				setErr = fmt.Errorf("invalid number for %s: %s", key, value)
				return
			}
			*p = n
		case *float64:
			f, err := strconv.ParseFloat(value, 64)
			if err != nil {
				setErr = fmt.Errorf("invalid number for %s: %s", key, value)
				return
			}
			*p = f
		case *bool:
			b, err := strconv.ParseBool(value)
			if err != nil {
				setErr = fmt.Errorf("invalid boolean for %s: %s (use: true or false)", key, value)
				return
			}
			*p = b
		case *string:
			if key == "log_level" {
				valid := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
				if !valid[strings.ToLower(value)] {
					setErr = fmt.Errorf("invalid log level: %s (use: debug, info, warn, error)", value)
					return
				}
			}
			if key == "camera.source" {
				switch value {
				case SourceGStreamer, SourceX11, SourceStatic:
				default:
					setErr = fmt.Errorf("invalid camera source: %s (use: gstreamer, x11, static)", value)
					return
				}
			}
			*p = value
		}
	})
	return setErr
}

// GetConfigPath returns the config file location
func (m *Manager) GetConfigPath() string {
	return m.configPath
}

// GetConfigDir returns the config directory
func (m *Manager) GetConfigDir() string {
	return m.configDir
}
