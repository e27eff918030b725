package commands

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/bryanchriswhite/photobooth/internal/apperr"
	"github.com/bryanchriswhite/photobooth/internal/booth"
	"github.com/bryanchriswhite/photobooth/internal/export"
	"github.com/bryanchriswhite/photobooth/internal/logger"
	"github.com/spf13/cobra"
)

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Run one capture sequence and save the shots",
	Long: `Run a full countdown, flash and capture sequence against the configured
camera without starting the server. Each shot is written as a PNG and the
set is persisted so "photobooth compose" can use it.`,
	Example: `  # Capture with the configured camera into the export directory
  photobooth capture

  # Fast run against the test pattern
  photobooth capture --source static --interval 100ms --out ./shots`,
	RunE: runCapture,
}

var (
	captureOut      string
	captureInterval time.Duration
	captureReady    time.Duration
)

func init() {
	rootCmd.AddCommand(captureCmd)

	captureCmd.Flags().StringVarP(&captureOut, "out", "o", "", "output directory (default is export.dir)")
	captureCmd.Flags().DurationVar(&captureInterval, "interval", booth.TickInterval, "countdown step")
	captureCmd.Flags().DurationVar(&captureReady, "ready-timeout", 10*time.Second, "how long to wait for the first camera frame")
}

func runCapture(cmd *cobra.Command, args []string) error {
	_, cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logger.WithComponent("capture-cmd")

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.booth.Open(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := waitReady(ctx, a, captureReady); err != nil {
		return err
	}

	seq := a.booth.Sequencer()
	changed := make(chan struct{}, 1)
	unsubscribe := seq.Subscribe(func(booth.Snapshot) {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	go seq.Run(ctx, captureInterval)

	if err := a.booth.Start(); err != nil {
		return err
	}
	log.Info().Int("shots", seq.Target()).Dur("interval", captureInterval).Msg("Capture sequence started")

	if err := waitFinished(ctx, seq, changed); err != nil {
		return err
	}

	dir := captureOut
	if dir == "" {
		dir = cfg.Export.Dir
	}
	now := time.Now()
	for i, img := range a.booth.Photos() {
		data, err := export.Still(img)
		if err != nil {
			return err
		}
		name := export.Filename(fmt.Sprintf("%s-%02d", cfg.Export.Prefix, i+1), now)
		path, err := export.WriteFile(data, dir, name)
		if err != nil {
			return err
		}
		fmt.Println(path)
	}
	return nil
}

// waitReady polls the source until it reports a frame
func waitReady(ctx context.Context, a *app, timeout time.Duration) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for !a.source.IsReady() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return apperr.New(apperr.KindSourceNotReady, fmt.Sprintf("%s produced no frame within %s", a.source.Name(), timeout))
		case <-ticker.C:
		}
	}
	return nil
}

// waitFinished blocks until the run has completed and been persisted, or
// has failed
func waitFinished(ctx context.Context, seq *booth.Sequencer, changed <-chan struct{}) error {
	last := booth.Snapshot{}
	for {
		select {
		case <-ctx.Done():
			return errors.New("capture interrupted")
		case <-changed:
		}

		snap := seq.Snapshot()
		if snap.Error != "" && !snap.Running {
			fmt.Println()
			return fmt.Errorf("capture failed after %d of %d shots: %s", snap.Count, snap.Target, snap.Error)
		}
		if snap.State == booth.StateIdle && !snap.Running && snap.Count >= snap.Target {
			fmt.Println()
			return nil
		}
		if snap.State == booth.StateCountdown && (snap.Countdown != last.Countdown || snap.Count != last.Count) {
			fmt.Printf("\rshot %d/%d  %d ", snap.Count+1, snap.Target, snap.Countdown)
		}
		last = snap
	}
}
