package theme

import (
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const manifest = `[
  {"name": "polaroid", "backgroundColor": "#ffffff", "overlayPosition": "above", "textColor": "black"},
  {"name": "noir", "backgroundColor": "rgb(10, 20, 30)", "overlayPosition": "below", "textColor": "white"},
  {"name": "bare"},
  {"name": "odd", "overlayPosition": "sideways", "textColor": "purple"},
  {"name": "wood", "gradient": {"type": "linear", "stops": [{"offset": 1, "color": "#c19a6b"}, {"offset": 0, "color": "#6e3b1f"}]}}
]`

func TestParseManifestDefaults(t *testing.T) {
	themes, err := ParseManifest(strings.NewReader(manifest))
	if err != nil {
		t.Fatalf("ParseManifest: %v", err)
	}
	if len(themes) != 5 {
		t.Fatalf("len = %d, want 5", len(themes))
	}

	noir := themes[1]
	if noir.OverlayPosition != Below || noir.Text() != (color.RGBA{255, 255, 255, 255}) {
		t.Fatalf("noir = %+v", noir)
	}
	if noir.Background() != (color.RGBA{10, 20, 30, 255}) {
		t.Fatalf("noir background = %v", noir.Background())
	}

	for _, th := range themes[2:4] {
		if th.BackgroundColor != "white" || th.OverlayPosition != Above || th.TextColor != TextBlack {
			t.Errorf("%s did not take defaults: %+v", th.Name, th)
		}
	}
}

func TestParseManifestRejectsBadEntries(t *testing.T) {
	bad := []string{
		`{"name": "not-an-array"}`,
		`[{"backgroundColor": "red"}]`,
		`[{"name": "x", "backgroundColor": "definitely-not-a-color"}]`,
		`[{"name": "x", "gradient": {"type": "linear", "stops": [{"offset": 0, "color": "nope"}, {"offset": 1, "color": "red"}]}}]`,
	}
	for _, in := range bad {
		if _, err := ParseManifest(strings.NewReader(in)); err == nil {
			t.Errorf("expected error for %s", in)
		}
	}
}

func TestResolveUnknownFallsBackToDefault(t *testing.T) {
	themes, _ := ParseManifest(strings.NewReader(manifest))
	c := NewCatalog("themes", themes)

	for i := 0; i < 2; i++ {
		got := c.Resolve("does-not-exist")
		if got.Background() != (color.RGBA{255, 255, 255, 255}) || got.OverlayPosition != Above || got.TextColor != TextBlack {
			t.Fatalf("fallback = %+v, want white/above/black", got)
		}
	}
	if got := c.Resolve("noir"); got.Name != "noir" {
		t.Fatalf("Resolve(noir) = %s", got.Name)
	}
}

func TestGradientStops(t *testing.T) {
	themes, _ := ParseManifest(strings.NewReader(manifest))
	wood := themes[4]
	offsets, colors := wood.Gradient.StopColors()
	if len(offsets) != 2 || offsets[0] != 0 || offsets[1] != 1 {
		t.Fatalf("offsets = %v", offsets)
	}
	if colors[0] != (color.RGBA{0x6e, 0x3b, 0x1f, 255}) {
		t.Fatalf("first stop = %v", colors[0])
	}

	single := FrameTheme{Name: "x", Gradient: &Gradient{Type: "linear", Stops: []GradientStop{{Color: "red"}}}}.withDefaults()
	if single.Gradient != nil {
		t.Fatal("single-stop gradient should be dropped")
	}
}

func TestLoadCatalog(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "themes.json")
	if err := os.WriteFile(path, []byte(manifest), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	c, err := LoadCatalog(dir, path)
	if err != nil {
		t.Fatalf("LoadCatalog: %v", err)
	}
	if list := c.List(); len(list) != 5 || list[0].Name != "polaroid" {
		t.Fatalf("List = %+v", list)
	}
	if got := c.OverlayPath("polaroid"); got != filepath.Join(dir, "polaroid.png") {
		t.Fatalf("OverlayPath = %s", got)
	}
	if got := c.OverlayPath("../../etc/passwd"); filepath.Dir(got) != dir {
		t.Fatalf("OverlayPath escaped the themes dir: %s", got)
	}

	missing, err := LoadCatalog(dir, filepath.Join(dir, "missing.json"))
	if err != nil {
		t.Fatalf("missing manifest: %v", err)
	}
	if len(missing.List()) != 0 || missing.Resolve("polaroid").Name != DefaultName {
		t.Fatal("missing manifest should resolve everything to default")
	}
}

func TestBundledManifest(t *testing.T) {
	f, err := os.Open(filepath.Join("..", "..", "themes", "themes.json"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	themes, err := ParseManifest(f)
	if err != nil {
		t.Fatalf("bundled manifest invalid: %v", err)
	}
	if len(themes) == 0 {
		t.Fatal("bundled manifest empty")
	}
}
