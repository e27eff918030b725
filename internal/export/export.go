// Package export serializes composites and stills to PNG files.
package export

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"time"

	"github.com/bryanchriswhite/photobooth/internal/apperr"
	"github.com/bryanchriswhite/photobooth/internal/logger"
	"github.com/bryanchriswhite/photobooth/internal/photo"
	"github.com/disintegration/imaging"
)

// DefaultPrefix starts generated filenames
const DefaultPrefix = "photobooth"

// Raster is an exportable surface
type Raster interface {
	Image() *image.RGBA
	Tainted() bool
}

// Encode returns the raster as PNG bytes. A tainted raster is refused with
// an ExportBlocked error and nothing is encoded.
func Encode(r Raster) ([]byte, error) {
	if r.Tainted() {
		logger.WithComponent("export").Warn().Msg("Export blocked, composite contains cross-origin pixels")
		return nil, apperr.New(apperr.KindExportBlocked, "composite contains cross-origin images that did not allow export")
	}
	return encodePNG(r.Image())
}

// Still returns a single captured or loaded still as PNG bytes
func Still(img *photo.StillImage) ([]byte, error) {
	if img.Tainted {
		return nil, apperr.New(apperr.KindExportBlocked, "image was loaded cross-origin without permission")
	}
	return img.EncodePNG()
}

// Thumbnail returns a PNG of img scaled to fit within maxSide pixels
func Thumbnail(img *photo.StillImage, maxSide int) ([]byte, error) {
	if img.Tainted {
		return nil, apperr.New(apperr.KindExportBlocked, "image was loaded cross-origin without permission")
	}
	if maxSide <= 0 || (img.Width <= maxSide && img.Height <= maxSide) {
		return img.EncodePNG()
	}
	thumb := imaging.Fit(img.Pixels, maxSide, maxSide, imaging.Lanczos)
	return encodePNG(thumb)
}

// Filename generates a download name from the export time
func Filename(prefix string, now time.Time) string {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return fmt.Sprintf("%s-%d.png", prefix, now.UnixMilli())
}

// Save encodes r and writes it into dir under a generated name, returning
// the written path
func Save(r Raster, dir, prefix string, now time.Time) (string, error) {
	data, err := Encode(r)
	if err != nil {
		return "", err
	}
	return WriteFile(data, dir, Filename(prefix, now))
}

// WriteFile writes encoded bytes into dir, creating it as needed
func WriteFile(data []byte, dir, name string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create export directory: %w", err)
	}
	path := filepath.Join(dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return "", fmt.Errorf("write export: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("finalize export: %w", err)
	}
	logger.WithComponent("export").Info().Str("path", path).Int("bytes", len(data)).Msg("Image exported")
	return path, nil
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, apperr.Wrap(apperr.KindCaptureFailed, "encode png", err)
	}
	return buf.Bytes(), nil
}
