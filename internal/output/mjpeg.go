package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"net/http"
	"sync"
	"time"

	"github.com/bryanchriswhite/photobooth/internal/logger"
)

// Boundary separates parts of the multipart stream
const Boundary = "frame"

// MJPEGOutput streams frames as Motion JPEG over HTTP, so the live preview
// plays in a plain <img> tag
type MJPEGOutput struct {
	config  Config
	running bool
	mu      sync.RWMutex

	frameCount uint64
	startTime  time.Time
	lastUpdate time.Time
	lastFrame  []byte

	clientsMu sync.RWMutex
	clients   map[chan []byte]struct{}
}

// Stats describes the stream for /stream/stats
type Stats struct {
	Name       string  `json:"name"`
	Running    bool    `json:"running"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	TargetFPS  int     `json:"target_fps"`
	ActualFPS  float64 `json:"actual_fps"`
	Frames     uint64  `json:"frames"`
	Clients    int     `json:"clients"`
	LastUpdate string  `json:"last_update,omitempty"`
	UptimeSecs float64 `json:"uptime_s"`
}

// NewMJPEGOutput creates a new MJPEG stream output
func NewMJPEGOutput(config Config) *MJPEGOutput {
	return &MJPEGOutput{
		config:  config,
		clients: make(map[chan []byte]struct{}),
	}
}

// Start initializes the MJPEG output. The HTTP handler is registered
// separately via Handler().
func (m *MJPEGOutput) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return fmt.Errorf("MJPEG output already running")
	}

	m.running = true
	m.startTime = time.Now()
	m.frameCount = 0

	logger.WithComponent("preview").Info().
		Int("width", m.config.Width).
		Int("height", m.config.Height).
		Int("fps", m.config.FPS).
		Msg("MJPEG output started")
	return nil
}

// Stop cleanly shuts down the output and disconnects every client
func (m *MJPEGOutput) Stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = false
	frames := m.frameCount
	m.mu.Unlock()

	m.clientsMu.Lock()
	for ch := range m.clients {
		close(ch)
	}
	m.clients = make(map[chan []byte]struct{})
	m.clientsMu.Unlock()

	logger.WithComponent("preview").Info().Uint64("frames", frames).Msg("MJPEG output stopped")
	return nil
}

// WriteFrame encodes a frame and sends it to all connected clients. Slow
// clients miss frames rather than stall the encoder.
func (m *MJPEGOutput) WriteFrame(frame *image.RGBA) error {
	if !m.IsRunning() {
		return fmt.Errorf("MJPEG output not running")
	}

	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, frame, &jpeg.Options{Quality: m.config.quality()}); err != nil {
		return fmt.Errorf("failed to encode JPEG: %w", err)
	}
	jpegData := buf.Bytes()

	m.mu.Lock()
	m.frameCount++
	m.lastUpdate = time.Now()
	m.lastFrame = jpegData
	m.mu.Unlock()

	m.clientsMu.RLock()
	for ch := range m.clients {
		select {
		case ch <- jpegData:
		default:
		}
	}
	m.clientsMu.RUnlock()

	return nil
}

// LastFrame returns the most recent encoded frame, or nil
func (m *MJPEGOutput) LastFrame() []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastFrame
}

// Name returns the output type name
func (m *MJPEGOutput) Name() string {
	return "MJPEG HTTP Stream"
}

// IsRunning returns true if the output is active
func (m *MJPEGOutput) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

// ClientCount returns the number of connected viewers
func (m *MJPEGOutput) ClientCount() int {
	m.clientsMu.RLock()
	defer m.clientsMu.RUnlock()
	return len(m.clients)
}

// Stats returns a snapshot of stream statistics
func (m *MJPEGOutput) Stats() Stats {
	m.mu.RLock()
	running := m.running
	frames := m.frameCount
	startTime := m.startTime
	lastUpdate := m.lastUpdate
	m.mu.RUnlock()

	s := Stats{
		Name:      m.Name(),
		Running:   running,
		Width:     m.config.Width,
		Height:    m.config.Height,
		TargetFPS: m.config.FPS,
		Frames:    frames,
		Clients:   m.ClientCount(),
	}
	if running && !startTime.IsZero() {
		s.UptimeSecs = time.Since(startTime).Seconds()
		if s.UptimeSecs > 0 {
			s.ActualFPS = float64(frames) / s.UptimeSecs
		}
	}
	if !lastUpdate.IsZero() {
		s.LastUpdate = lastUpdate.UTC().Format(time.RFC3339Nano)
	}
	return s
}

// Handler returns an http.HandlerFunc serving the MJPEG stream. Mount it at
// /stream. The latest frame is sent immediately so a new viewer never waits
// a full frame interval for a picture.
func (m *MJPEGOutput) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !m.IsRunning() {
			http.Error(w, "preview not running", http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+Boundary)
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		w.Header().Set("Pragma", "no-cache")
		w.Header().Set("Expires", "0")
		w.Header().Set("Connection", "close")

		frameChan := make(chan []byte, 2)
		if last := m.LastFrame(); last != nil {
			frameChan <- last
		}

		m.clientsMu.Lock()
		m.clients[frameChan] = struct{}{}
		clientCount := len(m.clients)
		m.clientsMu.Unlock()

		log := logger.WithComponent("preview")
		log.Debug().Int("clients", clientCount).Msg("Client connected")

		defer func() {
			m.clientsMu.Lock()
			delete(m.clients, frameChan)
			remaining := len(m.clients)
			m.clientsMu.Unlock()
			log.Debug().Int("clients", remaining).Msg("Client disconnected")
		}()

		for {
			select {
			case <-r.Context().Done():
				return
			case jpegData, ok := <-frameChan:
				if !ok {
					return
				}
				if err := writePart(w, jpegData); err != nil {
					return
				}
				if f, ok := w.(http.Flusher); ok {
					f.Flush()
				}
			}
		}
	}
}

func writePart(w http.ResponseWriter, jpegData []byte) error {
	if _, err := fmt.Fprintf(w, "--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", Boundary, len(jpegData)); err != nil {
		return err
	}
	if _, err := w.Write(jpegData); err != nil {
		return err
	}
	_, err := fmt.Fprint(w, "\r\n")
	return err
}

// StatsHandler returns an HTTP handler reporting stream statistics as JSON
func (m *MJPEGOutput) StatsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(m.Stats()); err != nil {
			logger.WithComponent("preview").Warn().Err(err).Msg("Failed to write stats")
		}
	}
}
