package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/bryanchriswhite/photobooth/internal/config"
	"github.com/bryanchriswhite/photobooth/internal/layout"
	"github.com/bryanchriswhite/photobooth/internal/theme"
	"github.com/spf13/cobra"
)

var themesCmd = &cobra.Command{
	Use:   "themes",
	Short: "List frame themes and layouts",
	Long: `List the frame themes from the configured manifest and the layouts
the compositor can fill.`,
	Example: `  # List themes in table format (default)
  photobooth themes

  # List themes in JSON format
  photobooth themes --format json`,
	RunE: runThemes,
}

var themesFormat string

func init() {
	rootCmd.AddCommand(themesCmd)

	themesCmd.Flags().StringVarP(&themesFormat, "format", "f", "table", "output format (table or json)")
}

func runThemes(cmd *cobra.Command, args []string) error {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg := configMgr.Get()

	catalog, err := theme.LoadCatalog(cfg.Themes.Dir, cfg.Themes.ManifestPath())
	if err != nil {
		return fmt.Errorf("failed to load themes: %w", err)
	}

	switch themesFormat {
	case "json":
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(map[string]interface{}{
			"themes":  catalog.List(),
			"layouts": layout.Names(),
		})
	case "table":
		return printThemesTable(catalog.List(), cfg.Composite.Layout)
	default:
		return fmt.Errorf("unsupported format: %s (use 'table' or 'json')", themesFormat)
	}
}

func printThemesTable(themes []theme.FrameTheme, current string) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)

	fmt.Fprintln(w, "NAME\tBACKGROUND\tTEXT\tOVERLAY")
	fmt.Fprintln(w, "----\t----------\t----\t-------")

	for _, th := range themes {
		background := th.BackgroundColor
		if th.Gradient != nil {
			background = th.Gradient.Type + " gradient"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", th.Name, background, th.TextColor, th.OverlayPosition)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Println()
	for _, name := range layout.Names() {
		marker := " "
		if name == current {
			marker = "*"
		}
		fmt.Printf("%s %s\n", marker, name)
	}
	return nil
}
