package capture

import (
	"fmt"
	"image"
	"sync"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/bryanchriswhite/photobooth/internal/logger"
)

// X11Source treats a region of the X11 root window as a video feed. Useful
// for kiosks that show a camera app full screen, and for demos without a
// camera attached.
type X11Source struct {
	conn   *xgb.Conn
	root   xproto.Window
	screen *xproto.ScreenInfo
	region image.Rectangle
	mu     sync.Mutex
}

// NewX11Source creates a source for region of the root window. An empty
// region selects the whole screen.
func NewX11Source(region image.Rectangle) *X11Source {
	return &X11Source{region: region}
}

// Start connects to the X server
func (c *X11Source) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return nil
	}

	conn, err := xgb.NewConn()
	if err != nil {
		return fmt.Errorf("failed to connect to X server: %w", err)
	}

	setup := xproto.Setup(conn)
	screen := setup.DefaultScreen(conn)

	c.conn = conn
	c.screen = screen
	c.root = screen.Root

	full := image.Rect(0, 0, int(screen.WidthInPixels), int(screen.HeightInPixels))
	if c.region.Empty() {
		c.region = full
	} else {
		c.region = c.region.Intersect(full)
	}

	logger.WithComponent("x11-source").Info().
		Int("width", c.region.Dx()).
		Int("height", c.region.Dy()).
		Uint8("depth", screen.RootDepth).
		Msg("X11 source connected")
	return nil
}

// Stop closes the X11 connection
func (c *X11Source) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	return nil
}

// IsReady reports whether the connection is up with a usable region
func (c *X11Source) IsReady() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil && !c.region.Empty()
}

// NativeSize returns the captured region size
func (c *X11Source) NativeSize() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.region.Dx(), c.region.Dy()
}

// Name returns the source name
func (c *X11Source) Name() string {
	return "x11"
}

// Frame captures the region of the root window
func (c *X11Source) Frame() (*image.RGBA, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil, fmt.Errorf("x11 source not started")
	}

	reply, err := xproto.GetImage(
		c.conn,
		xproto.ImageFormatZPixmap,
		xproto.Drawable(c.root),
		int16(c.region.Min.X), int16(c.region.Min.Y),
		uint16(c.region.Dx()), uint16(c.region.Dy()),
		0xffffffff,
	).Reply()
	if err != nil {
		return nil, fmt.Errorf("failed to get image: %w", err)
	}

	return convertBGRA(reply.Data, c.region.Dx(), c.region.Dy(), int(c.screen.RootDepth))
}

// convertBGRA converts ZPixmap data at 24/32 bit depth to RGBA
func convertBGRA(data []byte, width, height, depth int) (*image.RGBA, error) {
	if depth != 24 && depth != 32 {
		return nil, fmt.Errorf("unsupported root depth %d", depth)
	}
	if len(data) < width*height*4 {
		return nil, fmt.Errorf("short image data: %d bytes for %dx%d", len(data), width, height)
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for i := 0; i < width*height*4; i += 4 {
		img.Pix[i] = data[i+2]
		img.Pix[i+1] = data[i+1]
		img.Pix[i+2] = data[i]
		img.Pix[i+3] = 255
	}
	return img, nil
}
