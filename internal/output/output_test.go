package output

import (
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/bryanchriswhite/photobooth/internal/capture"
)

func TestLetterbox(t *testing.T) {
	tests := []struct {
		name          string
		src           image.Rectangle
		width, height int
		want          image.Rectangle
	}{
		{"same aspect", image.Rect(0, 0, 1280, 720), 640, 360, image.Rect(0, 0, 640, 360)},
		{"pillarbox", image.Rect(0, 0, 400, 400), 800, 400, image.Rect(200, 0, 600, 400)},
		{"letterbox", image.Rect(0, 0, 800, 400), 400, 400, image.Rect(0, 100, 400, 300)},
		{"empty source", image.Rect(0, 0, 0, 10), 400, 400, image.Rectangle{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Letterbox(tt.src, tt.width, tt.height); got != tt.want {
				t.Errorf("Letterbox = %v, want %v", got, tt.want)
			}
		})
	}
}

type recordingLayer struct {
	mu    sync.Mutex
	calls int
}

func (l *recordingLayer) Render(img *image.RGBA) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	img.SetRGBA(0, 0, color.RGBA{255, 0, 255, 255})
}

func TestPreviewFrame(t *testing.T) {
	src := capture.NewTestPattern(140, 70)
	layer := &recordingLayer{}
	p := NewPreview(src, layer, NewMJPEGOutput(Config{}), Config{Width: 200, Height: 200, FPS: 10})

	frame := p.Frame()
	if frame.Bounds() != image.Rect(0, 0, 200, 200) {
		t.Fatalf("frame bounds = %v", frame.Bounds())
	}
	if got := frame.RGBAAt(100, 100); got != (color.RGBA{0, 0, 0, 255}) {
		t.Errorf("not-ready source should give black, got %v", got)
	}
	if layer.calls != 1 {
		t.Errorf("layer rendered %d times, want 1", layer.calls)
	}
	if got := frame.RGBAAt(0, 0); got != (color.RGBA{255, 0, 255, 255}) {
		t.Errorf("layer not drawn on top: %v", got)
	}

	if err := src.Start(); err != nil {
		t.Fatal(err)
	}
	frame = p.Frame()
	// 140x70 fits as 200x100 centered vertically.
	if got := frame.RGBAAt(100, 20); got != (color.RGBA{0, 0, 0, 255}) {
		t.Errorf("letterbox bar = %v, want black", got)
	}
	if got := frame.RGBAAt(5, 100); got.R < 200 || got.G < 200 || got.B < 200 {
		t.Errorf("first bar should be white, got %v", got)
	}
}

type captureOutput struct {
	mu      sync.Mutex
	frames  int
	started bool
	stopped bool
	got     chan struct{}
}

func (c *captureOutput) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started = true
	return nil
}

func (c *captureOutput) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
	return nil
}

func (c *captureOutput) WriteFrame(*image.RGBA) error {
	c.mu.Lock()
	c.frames++
	n := c.frames
	c.mu.Unlock()
	if n == 2 {
		close(c.got)
	}
	return nil
}

func (c *captureOutput) Name() string    { return "capture" }
func (c *captureOutput) IsRunning() bool { return true }

func TestPreviewRun(t *testing.T) {
	src := capture.NewTestPattern(64, 48)
	if err := src.Start(); err != nil {
		t.Fatal(err)
	}
	out := &captureOutput{got: make(chan struct{})}
	p := NewPreview(src, nil, out, Config{Width: 64, Height: 48, FPS: 100})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	select {
	case <-out.got:
	case <-time.After(5 * time.Second):
		t.Fatal("preview produced no frames")
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}

	out.mu.Lock()
	defer out.mu.Unlock()
	if !out.started || !out.stopped {
		t.Errorf("output lifecycle started=%v stopped=%v", out.started, out.stopped)
	}
	if src.FramesServed() < 2 {
		t.Errorf("source read %d times", src.FramesServed())
	}
}

func TestMJPEGWriteFrameRequiresStart(t *testing.T) {
	m := NewMJPEGOutput(Config{Width: 8, Height: 8})
	if err := m.WriteFrame(image.NewRGBA(image.Rect(0, 0, 8, 8))); err == nil {
		t.Fatal("WriteFrame before Start succeeded")
	}
	if err := m.Start(); err != nil {
		t.Fatal(err)
	}
	if err := m.Start(); err == nil {
		t.Fatal("second Start succeeded")
	}
	if err := m.Stop(); err != nil {
		t.Fatal(err)
	}
	if err := m.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
}

func TestMJPEGStream(t *testing.T) {
	m := NewMJPEGOutput(Config{Width: 32, Height: 16, FPS: 5})
	if err := m.Start(); err != nil {
		t.Fatal(err)
	}
	defer m.Stop()

	frame := image.NewRGBA(image.Rect(0, 0, 32, 16))
	for i := range frame.Pix {
		frame.Pix[i] = 200
	}
	if err := m.WriteFrame(frame); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/stream", m.Handler())
	mux.Handle("/stream/stats", m.StatsHandler())
	srv := httptest.NewServer(mux)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/stream", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /stream: %v", err)
	}
	defer resp.Body.Close()

	part, err := multipart.NewReader(resp.Body, Boundary).NextPart()
	if err != nil {
		t.Fatalf("NextPart: %v", err)
	}
	if ct := part.Header.Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("part Content-Type = %q", ct)
	}
	img, err := jpeg.Decode(part)
	if err != nil {
		t.Fatalf("decode part: %v", err)
	}
	if img.Bounds().Dx() != 32 || img.Bounds().Dy() != 16 {
		t.Errorf("frame size = %v", img.Bounds())
	}

	statsResp, err := http.Get(srv.URL + "/stream/stats")
	if err != nil {
		t.Fatalf("GET stats: %v", err)
	}
	defer statsResp.Body.Close()
	var stats Stats
	if err := json.NewDecoder(statsResp.Body).Decode(&stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if !stats.Running || stats.Frames != 1 || stats.Width != 32 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.Clients != 1 {
		t.Errorf("clients = %d, want 1", stats.Clients)
	}
}

func TestMJPEGStreamNotRunning(t *testing.T) {
	m := NewMJPEGOutput(Config{})
	rec := httptest.NewRecorder()
	m.Handler()(rec, httptest.NewRequest(http.MethodGet, "/stream", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}
