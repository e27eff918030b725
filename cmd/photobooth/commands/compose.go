package commands

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/bryanchriswhite/photobooth/internal/export"
	"github.com/bryanchriswhite/photobooth/internal/loader"
	"github.com/bryanchriswhite/photobooth/internal/logger"
	"github.com/bryanchriswhite/photobooth/internal/photo"
	"github.com/bryanchriswhite/photobooth/internal/store"
	"github.com/spf13/cobra"
)

var composeCmd = &cobra.Command{
	Use:   "compose [REF...]",
	Short: "Composite photos into a themed strip",
	Long: `Composite photos into the configured layout and write the result as a PNG.

Each REF is a file path, an http(s) URL or a data: URL. Without refs the
persisted selection is used, then the last captured set.`,
	Example: `  # Composite the last selection or capture
  photobooth compose

  # Composite two files with the noir theme
  photobooth compose --theme noir a.png b.png

  # Write into a specific directory
  photobooth compose --out ./strips`,
	RunE: runCompose,
}

var (
	composeTheme string
	composeOut   string
)

func init() {
	rootCmd.AddCommand(composeCmd)

	composeCmd.Flags().StringVarP(&composeTheme, "theme", "t", "", "frame theme (default theme when empty)")
	composeCmd.Flags().StringVarP(&composeOut, "out", "o", "", "output directory (default is export.dir)")
}

func runCompose(cmd *cobra.Command, args []string) error {
	_, cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logger.WithComponent("compose-cmd")

	renderer, lay, err := newRenderer(cfg, photo.NewRegistry(), argDirs(args)...)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	refs := args
	if len(refs) == 0 {
		refs, err = persistedRefs(ctx, cfg.Storage.Path)
		if err != nil {
			return err
		}
	}
	if len(refs) > len(lay.Slots) {
		return fmt.Errorf("%d photos given, layout %s holds %d", len(refs), lay.Name, len(lay.Slots))
	}

	result, err := renderer.Compose(ctx, refs, composeTheme, lay.Slots)
	if err != nil {
		return err
	}
	log.Info().
		Int("drawn", result.Drawn()).
		Int("refs", len(refs)).
		Str("layout", lay.Name).
		Msg("Composite rendered")

	dir := composeOut
	if dir == "" {
		dir = cfg.Export.Dir
	}
	path, err := export.Save(result.Canvas, dir, cfg.Export.Prefix, time.Now())
	if err != nil {
		return err
	}
	fmt.Println(path)
	return nil
}

// argDirs returns the directories of file refs named on the command line
func argDirs(args []string) []string {
	var dirs []string
	for _, ref := range args {
		if loader.IsFileRef(ref) {
			dirs = append(dirs, filepath.Dir(strings.TrimPrefix(ref, "file://")))
		}
	}
	return dirs
}

// persistedRefs returns the saved selection, falling back to the last
// captured set
func persistedRefs(ctx context.Context, path string) ([]string, error) {
	if path == "" {
		return nil, errors.New("no photos given and no storage.path configured")
	}
	st, err := openStore(path)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	for _, key := range []string{store.KeySelected, store.KeyCaptured} {
		refs, err := st.Get(ctx, "default", key)
		if err != nil {
			return nil, fmt.Errorf("load %s photos: %w", key, err)
		}
		if len(refs) > 0 {
			return refs, nil
		}
	}
	return nil, errors.New("no photos given and none captured yet")
}
