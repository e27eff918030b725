// Package theme loads frame themes from a JSON manifest.
package theme

import (
	"encoding/json"
	"errors"
	"fmt"
	"image/color"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bryanchriswhite/photobooth/internal/logger"
	"github.com/mazznoer/csscolorparser"
)

// Position is where the overlay sits relative to the photos
type Position string

const (
	Above Position = "above"
	Below Position = "below"
)

// Text colors
const (
	TextBlack = "black"
	TextWhite = "white"
)

// DefaultName names the fallback theme
const DefaultName = "default"

// GradientStop is one color stop, Offset in [0,1]
type GradientStop struct {
	Offset float64 `json:"offset"`
	Color  string  `json:"color"`
}

// Gradient replaces the flat background when present
type Gradient struct {
	// Type is "linear" (top-left to bottom-right) or "radial" (centered)
	Type  string         `json:"type"`
	Stops []GradientStop `json:"stops"`
}

// FrameTheme decorates a composite
type FrameTheme struct {
	Name            string    `json:"name"`
	BackgroundColor string    `json:"backgroundColor,omitempty"`
	OverlayPosition Position  `json:"overlayPosition,omitempty"`
	TextColor       string    `json:"textColor,omitempty"`
	Gradient        *Gradient `json:"gradient,omitempty"`
}

// Default is used when a theme is unknown
func Default() FrameTheme {
	return FrameTheme{
		Name:            DefaultName,
		BackgroundColor: "white",
		OverlayPosition: Above,
		TextColor:       TextBlack,
	}
}

// withDefaults fills missing or invalid fields
func (t FrameTheme) withDefaults() FrameTheme {
	def := Default()
	if strings.TrimSpace(t.BackgroundColor) == "" {
		t.BackgroundColor = def.BackgroundColor
	}
	if t.OverlayPosition != Above && t.OverlayPosition != Below {
		t.OverlayPosition = def.OverlayPosition
	}
	if t.TextColor != TextBlack && t.TextColor != TextWhite {
		t.TextColor = def.TextColor
	}
	if t.Gradient != nil && len(t.Gradient.Stops) < 2 {
		t.Gradient = nil
	}
	return t
}

// Background returns the parsed background color, white if unparseable
func (t FrameTheme) Background() color.RGBA {
	c, err := ParseColor(t.BackgroundColor)
	if err != nil {
		return color.RGBA{255, 255, 255, 255}
	}
	return c
}

// Text returns the stamp color
func (t FrameTheme) Text() color.RGBA {
	if t.TextColor == TextWhite {
		return color.RGBA{255, 255, 255, 255}
	}
	return color.RGBA{0, 0, 0, 255}
}

// Shadow returns a translucent drop shadow contrasting with Text
func (t FrameTheme) Shadow() color.RGBA {
	if t.TextColor == TextWhite {
		return color.RGBA{0, 0, 0, 140}
	}
	return color.RGBA{255, 255, 255, 140}
}

// ParseColor parses a CSS color string
func ParseColor(s string) (color.RGBA, error) {
	c, err := csscolorparser.Parse(strings.TrimSpace(s))
	if err != nil {
		return color.RGBA{}, fmt.Errorf("parse color %q: %w", s, err)
	}
	straight := color.NRGBA{R: channel(c.R), G: channel(c.G), B: channel(c.B), A: channel(c.A)}
	return color.RGBAModel.Convert(straight).(color.RGBA), nil
}

// ParseManifest decodes a manifest array. Entries without a name are
// rejected; missing fields take defaults.
func ParseManifest(r io.Reader) ([]FrameTheme, error) {
	var entries []FrameTheme
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode theme manifest: %w", err)
	}

	themes := make([]FrameTheme, 0, len(entries))
	for i, entry := range entries {
		entry.Name = strings.TrimSpace(entry.Name)
		if entry.Name == "" {
			return nil, fmt.Errorf("theme manifest entry %d has no name", i)
		}
		if entry.BackgroundColor != "" {
			if _, err := ParseColor(entry.BackgroundColor); err != nil {
				return nil, fmt.Errorf("theme %s: %w", entry.Name, err)
			}
		}
		if entry.Gradient != nil {
			for _, stop := range entry.Gradient.Stops {
				if _, err := ParseColor(stop.Color); err != nil {
					return nil, fmt.Errorf("theme %s gradient: %w", entry.Name, err)
				}
			}
		}
		themes = append(themes, entry.withDefaults())
	}
	return themes, nil
}

// Catalog is the set of themes available to the compositor
type Catalog struct {
	dir    string
	themes map[string]FrameTheme
	order  []string
}

// NewCatalog builds a catalog over themes whose overlays live in dir
func NewCatalog(dir string, themes []FrameTheme) *Catalog {
	c := &Catalog{dir: dir, themes: make(map[string]FrameTheme, len(themes))}
	for _, t := range themes {
		if _, dup := c.themes[t.Name]; !dup {
			c.order = append(c.order, t.Name)
		}
		c.themes[t.Name] = t.withDefaults()
	}
	return c
}

// LoadCatalog reads the manifest at manifestPath. A missing manifest yields
// an empty catalog in which every name resolves to the default theme.
func LoadCatalog(dir, manifestPath string) (*Catalog, error) {
	log := logger.WithComponent("theme")

	f, err := os.Open(manifestPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Warn().Str("path", manifestPath).Msg("Theme manifest not found, using default theme only")
			return NewCatalog(dir, nil), nil
		}
		return nil, fmt.Errorf("open theme manifest: %w", err)
	}
	defer f.Close()

	themes, err := ParseManifest(f)
	if err != nil {
		return nil, err
	}
	log.Info().Str("path", manifestPath).Int("themes", len(themes)).Msg("Theme manifest loaded")
	return NewCatalog(dir, themes), nil
}

// Lookup finds a theme by name
func (c *Catalog) Lookup(name string) (FrameTheme, bool) {
	t, ok := c.themes[name]
	return t, ok
}

// Resolve returns the named theme or the default
func (c *Catalog) Resolve(name string) FrameTheme {
	if t, ok := c.Lookup(name); ok {
		return t
	}
	if name != "" && name != DefaultName {
		logger.WithComponent("theme").Debug().Str("theme", name).Msg("Unknown theme, using default")
	}
	return Default()
}

// OverlayPath locates a theme's overlay graphic by naming convention
func (c *Catalog) OverlayPath(name string) string {
	return filepath.Join(c.dir, filepath.Base(name)+".png")
}

// List returns the themes in manifest order
func (c *Catalog) List() []FrameTheme {
	out := make([]FrameTheme, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.themes[name])
	}
	return out
}

// Names returns the theme names sorted
func (c *Catalog) Names() []string {
	names := append([]string(nil), c.order...)
	sort.Strings(names)
	return names
}

// StopColors returns the parsed stops sorted by offset
func (g *Gradient) StopColors() ([]float64, []color.RGBA) {
	if g == nil {
		return nil, nil
	}
	stops := append([]GradientStop(nil), g.Stops...)
	sort.SliceStable(stops, func(i, j int) bool { return stops[i].Offset < stops[j].Offset })

	offsets := make([]float64, 0, len(stops))
	colors := make([]color.RGBA, 0, len(stops))
	for _, s := range stops {
		c, err := ParseColor(s.Color)
		if err != nil {
			continue
		}
		offsets = append(offsets, clamp01(s.Offset))
		colors = append(colors, c)
	}
	return offsets, colors
}

func channel(v float64) uint8 {
	return uint8(math.Round(clamp01(v) * 255))
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
