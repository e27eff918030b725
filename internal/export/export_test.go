package export

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bryanchriswhite/photobooth/internal/apperr"
	"github.com/bryanchriswhite/photobooth/internal/photo"
)

type fakeRaster struct {
	img     *image.RGBA
	tainted bool
}

func (f fakeRaster) Image() *image.RGBA { return f.img }
func (f fakeRaster) Tainted() bool      { return f.tainted }

func raster(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.SetRGBA(1, 1, color.RGBA{9, 8, 7, 255})
	return img
}

func TestEncode(t *testing.T) {
	data, err := Encode(fakeRaster{img: raster(4, 3)})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Bounds().Dx() != 4 || decoded.Bounds().Dy() != 3 {
		t.Fatalf("bounds = %v", decoded.Bounds())
	}
}

func TestEncodeTaintedBlocked(t *testing.T) {
	data, err := Encode(fakeRaster{img: raster(4, 3), tainted: true})
	if !errors.Is(err, apperr.ErrExportBlocked) {
		t.Fatalf("err = %v, want ExportBlocked", err)
	}
	if data != nil {
		t.Fatal("tainted export returned bytes")
	}
	if apperr.KindOf(err).Recoverable() {
		t.Fatal("ExportBlocked should not be recoverable")
	}
}

func TestFilename(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	if got := Filename("", now); got != "photobooth-1700000000123.png" {
		t.Fatalf("Filename = %s", got)
	}
	if got := Filename("strip", now); got != "strip-1700000000123.png" {
		t.Fatalf("Filename = %s", got)
	}
}

func TestSave(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "exports")
	path, err := Save(fakeRaster{img: raster(2, 2)}, dir, "", time.UnixMilli(42))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if filepath.Base(path) != "photobooth-42.png" {
		t.Fatalf("path = %s", path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("stat: %v", err)
	}

	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Fatalf("temp file left behind: %s", e.Name())
		}
	}

	blockedDir := filepath.Join(t.TempDir(), "blocked")
	if _, err := Save(fakeRaster{img: raster(2, 2), tainted: true}, blockedDir, "", time.Now()); !errors.Is(err, apperr.ErrExportBlocked) {
		t.Fatalf("err = %v, want ExportBlocked", err)
	}
	if _, err := os.Stat(blockedDir); !os.IsNotExist(err) {
		t.Fatal("blocked export must not create files")
	}
}

func TestThumbnail(t *testing.T) {
	still := photo.New(raster(400, 200))
	data, err := Thumbnail(still, 100)
	if err != nil {
		t.Fatalf("Thumbnail: %v", err)
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cfg.Width != 100 || cfg.Height != 50 {
		t.Fatalf("thumbnail = %dx%d, want 100x50", cfg.Width, cfg.Height)
	}

	small, _ := Thumbnail(photo.New(raster(10, 10)), 100)
	cfg, _ = png.DecodeConfig(bytes.NewReader(small))
	if cfg.Width != 10 {
		t.Fatalf("small image resized to %d", cfg.Width)
	}

	still.Tainted = true
	if _, err := Thumbnail(still, 100); !errors.Is(err, apperr.ErrExportBlocked) {
		t.Fatalf("err = %v, want ExportBlocked", err)
	}
	if _, err := Still(still); !errors.Is(err, apperr.ErrExportBlocked) {
		t.Fatalf("Still err = %v, want ExportBlocked", err)
	}
}
