package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/bryanchriswhite/photobooth/internal/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "photobooth",
		Short: "Photobooth - timed multi-shot capture and photo strip compositing",
		Long: `Photobooth drives a camera through a countdown, flash and capture cycle,
keeps the shots for selection, and composites the chosen photos into a
decorated strip ready for download.

Features:
  • GStreamer camera, X11 screen or static image sources
  • Countdown and flash overlays on a live MJPEG preview
  • Four and eight shot layouts
  • Themes with flat or gradient backgrounds and overlay graphics
  • Captured sets that survive restarts (SQLite)
  • REST API with a websocket state stream`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger.Init(viper.GetString("log_level"), viper.GetBool("pretty"))
		},
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/photobooth/config.yaml)")
	rootCmd.PersistentFlags().Int("port", 0, "server port (default is 8080)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("source", "", "camera source (gstreamer, x11, static)")
	rootCmd.PersistentFlags().Bool("pretty", false, "human-readable console logs")

	// Bind flags to viper
	viper.BindPFlag("server_port", rootCmd.PersistentFlags().Lookup("port"))
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("camera.source", rootCmd.PersistentFlags().Lookup("source"))
	viper.BindPFlag("pretty", rootCmd.PersistentFlags().Lookup("pretty"))
	viper.SetEnvPrefix("PHOTOBOOTH")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// GetConfigFile returns the config file path
func GetConfigFile() string {
	return cfgFile
}
