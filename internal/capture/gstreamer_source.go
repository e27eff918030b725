package capture

import (
	"bufio"
	"fmt"
	"image"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/bryanchriswhite/photobooth/internal/logger"
)

// Resolution is a requested capture size
type Resolution struct {
	Width  int
	Height int
}

// GStreamerSource reads raw RGBA frames from a camera through a
// gst-launch-1.0 subprocess, which keeps cgo out of the process.
type GStreamerSource struct {
	device      string
	resolutions []Resolution
	fps         int

	// command builds the subprocess; replaced in tests
	command func(pipeline string) *exec.Cmd

	mu          sync.RWMutex
	cmd         *exec.Cmd
	stdout      io.ReadCloser
	stderr      io.ReadCloser
	latestFrame *image.RGBA
	frameWidth  int
	frameHeight int
	running     bool
	stopChan    chan struct{}
	done        chan struct{}
	firstFrame  chan struct{}

	// startupWait bounds how long Start waits for the first frame before
	// deciding a resolution works
	startupWait time.Duration
}

// NewGStreamerSource creates a camera source for device. The preferred
// resolution is tried first, then 640x480.
func NewGStreamerSource(device string, preferred Resolution, fps int) *GStreamerSource {
	resolutions := []Resolution{preferred}
	if preferred != (Resolution{Width: FallbackWidth, Height: FallbackHeight}) {
		resolutions = append(resolutions, Resolution{Width: FallbackWidth, Height: FallbackHeight})
	}
	if fps <= 0 {
		fps = 15
	}
	return &GStreamerSource{
		device:      device,
		resolutions: resolutions,
		fps:         fps,
		startupWait: 3 * time.Second,
		command: func(pipeline string) *exec.Cmd {
			return exec.Command("sh", "-c", "gst-launch-1.0 -q "+pipeline)
		},
	}
}

// Pipeline returns the gst-launch pipeline for a resolution
func (g *GStreamerSource) Pipeline(res Resolution) string {
	// v4l2src -> convert -> scale -> RGBA at the requested size -> raw frames on stdout
	return fmt.Sprintf(
		"v4l2src device=%s ! "+
			"videoconvert ! "+
			"videoscale ! "+
			"videorate ! "+
			"video/x-raw,format=RGBA,width=%d,height=%d,framerate=%d/1 ! "+
			"fdsink fd=1 sync=false",
		g.device, res.Width, res.Height, g.fps,
	)
}

// Start launches the pipeline, falling back through the resolution list when
// a pipeline exits before delivering its first frame
func (g *GStreamerSource) Start() error {
	log := logger.WithComponent("gstreamer-source")

	var lastErr error
	for _, res := range g.resolutions {
		g.mu.Lock()
		if g.running {
			g.mu.Unlock()
			return nil
		}
		err := g.startLocked(res)
		done, first := g.done, g.firstFrame
		g.mu.Unlock()

		if err == nil {
			select {
			case <-first:
				return nil
			case <-time.After(g.startupWait):
				// Slow cameras keep running and become ready later
				return nil
			case <-done:
				g.Stop()
				err = fmt.Errorf("pipeline exited before first frame")
			}
		}

		log.Warn().
			Err(err).
			Int("width", res.Width).
			Int("height", res.Height).
			Msg("Camera pipeline failed, trying next resolution")
		lastErr = err
	}
	return fmt.Errorf("camera %s unavailable: %w", g.device, lastErr)
}

func (g *GStreamerSource) startLocked(res Resolution) error {
	log := logger.WithComponent("gstreamer-source")
	pipelineStr := g.Pipeline(res)
	log.Debug().Str("pipeline", pipelineStr).Msg("Starting GStreamer subprocess")

	cmd := g.command(pipelineStr)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to get stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to get stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start gst-launch: %w", err)
	}

	g.cmd = cmd
	g.stdout = stdout
	g.stderr = stderr
	g.frameWidth = res.Width
	g.frameHeight = res.Height
	g.latestFrame = nil
	g.running = true
	g.stopChan = make(chan struct{})
	g.done = make(chan struct{})
	g.firstFrame = make(chan struct{})

	go g.readFrames(stdout, res.Width, res.Height, g.stopChan, g.done, g.firstFrame)
	go g.logStderr(stderr)

	log.Info().
		Str("device", g.device).
		Int("width", res.Width).
		Int("height", res.Height).
		Int("pid", cmd.Process.Pid).
		Msg("GStreamer subprocess started")
	return nil
}

// readFrames continuously reads raw RGBA frames from stdout
func (g *GStreamerSource) readFrames(stdout io.Reader, width, height int, stop <-chan struct{}, done, first chan struct{}) {
	defer close(done)
	gotFirst := false
	log := logger.WithComponent("gstreamer-source")

	frameSize := width * height * 4
	reader := bufio.NewReaderSize(stdout, frameSize*2)
	frameBuffer := make([]byte, frameSize)

	for {
		select {
		case <-stop:
			return
		default:
		}

		n, err := io.ReadFull(reader, frameBuffer)
		if err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				log.Debug().Msg("EOF from GStreamer subprocess")
				g.mu.Lock()
				if g.stopChan == stop {
					g.running = false
				}
				g.mu.Unlock()
				return
			}
			log.Error().Err(err).Int("bytes_read", n).Msg("Error reading frame")
			time.Sleep(10 * time.Millisecond)
			continue
		}

		img := image.NewRGBA(image.Rect(0, 0, width, height))
		copy(img.Pix, frameBuffer)

		g.mu.Lock()
		g.latestFrame = img
		g.mu.Unlock()

		if !gotFirst {
			gotFirst = true
			close(first)
		}
	}
}

// logStderr logs any errors from the GStreamer subprocess
func (g *GStreamerSource) logStderr(stderr io.Reader) {
	log := logger.WithComponent("gstreamer-source")
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.Contains(line, "ERROR") || strings.Contains(line, "WARN") {
			log.Warn().Str("gst", line).Msg("GStreamer message")
		} else {
			log.Debug().Str("gst", line).Msg("GStreamer output")
		}
	}
}

// Stop kills the subprocess and releases the camera
func (g *GStreamerSource) Stop() error {
	g.mu.Lock()
	if g.cmd == nil {
		g.mu.Unlock()
		return nil
	}
	cmd := g.cmd
	stop := g.stopChan
	g.cmd = nil
	g.running = false
	g.latestFrame = nil
	g.mu.Unlock()

	close(stop)
	if cmd.Process != nil {
		logger.WithComponent("gstreamer-source").Debug().Int("pid", cmd.Process.Pid).Msg("Killing GStreamer subprocess")
		cmd.Process.Kill()
	}
	cmd.Wait()

	logger.WithComponent("gstreamer-source").Info().Str("device", g.device).Msg("Camera released")
	return nil
}

// IsReady reports whether at least one frame has arrived
func (g *GStreamerSource) IsReady() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.running && g.latestFrame != nil
}

// NativeSize returns the negotiated frame size
func (g *GStreamerSource) NativeSize() (int, int) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.frameWidth, g.frameHeight
}

// Frame returns a copy of the most recent frame
func (g *GStreamerSource) Frame() (*image.RGBA, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.latestFrame == nil {
		return nil, fmt.Errorf("no frame received yet")
	}
	out := image.NewRGBA(g.latestFrame.Bounds())
	copy(out.Pix, g.latestFrame.Pix)
	return out, nil
}

// Name returns the source name
func (g *GStreamerSource) Name() string {
	return "gstreamer:" + g.device
}
