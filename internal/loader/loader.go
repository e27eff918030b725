// Package loader resolves image references into decoded stills.
//
// A reference is one of: a registry handle (blob:...), an inline data URL,
// an http(s) URL, or a local file path. File paths only resolve inside one
// of Options.FileRoots. Remote images are requested with
// the booth's Origin; a cross-origin response that does not grant access
// still decodes, but the still is marked tainted so that any canvas it is
// drawn on refuses to export.
package loader

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bryanchriswhite/photobooth/internal/apperr"
	"github.com/bryanchriswhite/photobooth/internal/logger"
	"github.com/bryanchriswhite/photobooth/internal/photo"
	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/sync/errgroup"

	// Registered decoders
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// Defaults applied by New
const (
	DefaultConcurrency = 8
	DefaultTimeout     = 10 * time.Second
	DefaultMaxBytes    = 32 << 20
	DefaultRetries     = 3
)

// NoRetries disables retrying remote fetches
const NoRetries = -1

// ErrOutsideRoots is returned for file references outside Options.FileRoots
var ErrOutsideRoots = errors.New("file reference outside allowed directories")

// Options configures a Loader
type Options struct {
	// Origin is scheme://host[:port] the booth is served from
	Origin      string
	Registry    *photo.Registry
	Client      *http.Client
	Concurrency int
	Timeout     time.Duration
	MaxBytes    int64
	// Retries is the number of remote attempts. Zero means DefaultRetries;
	// NoRetries makes a single attempt.
	Retries int
	// FileRoots are the directories file references may be read from.
	// With none, every file reference is refused.
	FileRoots []string
	// RetryBackOff builds the backoff between remote attempts; each fetch
	// gets its own since backoffs carry state
	RetryBackOff func() backoff.BackOff
}

// Result is the outcome for one reference of a batch
type Result struct {
	Image *photo.StillImage
	Err   error
}

// OK reports whether the reference resolved
func (r Result) OK() bool {
	return r.Err == nil && r.Image != nil
}

// Loader resolves references
type Loader struct {
	opts   Options
	origin *url.URL
	roots  []string
	log    zerolog.Logger
}

// New creates a loader
func New(opts Options) *Loader {
	if opts.Client == nil {
		opts.Client = &http.Client{}
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxBytes
	}
	switch {
	case opts.Retries == 0:
		opts.Retries = DefaultRetries
	case opts.Retries < 0:
		opts.Retries = 1
	}

	l := &Loader{opts: opts, log: *logger.WithComponent("loader")}
	for _, root := range opts.FileRoots {
		abs, err := canonical(root)
		if err != nil {
			l.log.Warn().Err(err).Str("root", root).Msg("Ignoring file root")
			continue
		}
		l.roots = append(l.roots, abs)
	}
	if opts.Origin != "" {
		if u, err := url.Parse(opts.Origin); err == nil && u.Host != "" {
			l.origin = u
		} else {
			l.log.Warn().Str("origin", opts.Origin).Msg("Ignoring unparseable origin, all remote images are cross-origin")
		}
	}
	return l
}

// LoadAll resolves refs concurrently. The result slice is index-aligned
// with refs; a failed reference fails only its own entry.
func (l *Loader) LoadAll(ctx context.Context, refs []string) []Result {
	results := make([]Result, len(refs))

	var g errgroup.Group
	g.SetLimit(l.opts.Concurrency)
	for i, ref := range refs {
		g.Go(func() error {
			img, err := l.Load(ctx, ref)
			results[i] = Result{Image: img, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, r := range results {
		if !r.OK() {
			failed++
		}
	}
	l.log.Debug().Int("refs", len(refs)).Int("failed", failed).Msg("Batch loaded")
	return results
}

// Load resolves a single reference
func (l *Loader) Load(ctx context.Context, ref string) (*photo.StillImage, error) {
	img, err := l.load(ctx, ref)
	if err != nil {
		if !errors.Is(err, apperr.ErrLoadFailed) {
			err = apperr.Wrap(apperr.KindLoadFailed, "load "+describe(ref), err)
		}
		l.log.Warn().Err(err).Str("ref", describe(ref)).Msg("Image load failed")
		return nil, err
	}
	return img, nil
}

func (l *Loader) load(ctx context.Context, ref string) (*photo.StillImage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ref = strings.TrimSpace(ref)

	switch {
	case ref == "":
		return nil, fmt.Errorf("empty reference")
	case photo.IsHandle(ref):
		if l.opts.Registry == nil {
			return nil, fmt.Errorf("no registry for handle references")
		}
		return l.opts.Registry.Resolve(ref)
	case strings.HasPrefix(ref, "data:"):
		data, err := decodeDataURL(ref)
		if err != nil {
			return nil, err
		}
		return decode(bytes.NewReader(data), ref, false)
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		return l.fetch(ctx, ref)
	default:
		return l.readFile(ref)
	}
}

// IsFileRef reports whether ref would be read from the local filesystem
func IsFileRef(ref string) bool {
	ref = strings.TrimSpace(ref)
	switch {
	case ref == "", photo.IsHandle(ref), strings.HasPrefix(ref, "data:"),
		strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		return false
	}
	return true
}

func (l *Loader) readFile(path string) (*photo.StillImage, error) {
	abs, err := canonical(strings.TrimPrefix(path, "file://"))
	if err != nil {
		return nil, err
	}
	if !l.allowed(abs) {
		return nil, ErrOutsideRoots
	}
	f, err := os.Open(abs)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return decode(io.LimitReader(f, l.opts.MaxBytes), path, false)
}

func (l *Loader) allowed(path string) bool {
	for _, root := range l.roots {
		rel, err := filepath.Rel(root, path)
		if err != nil {
			continue
		}
		if rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// canonical makes path absolute with symlinks resolved
func canonical(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}

type fetched struct {
	body    []byte
	tainted bool
}

func (l *Loader) fetch(ctx context.Context, rawURL string) (*photo.StillImage, error) {
	target, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, l.opts.Timeout)
	defer cancel()

	retryOpts := []backoff.RetryOption{backoff.WithMaxTries(uint(l.opts.Retries))}
	if l.opts.RetryBackOff != nil {
		retryOpts = append(retryOpts, backoff.WithBackOff(l.opts.RetryBackOff()))
	}
	retryOpts = append(retryOpts, backoff.WithNotify(func(err error, wait time.Duration) {
		l.log.Debug().Err(err).Dur("wait", wait).Str("url", rawURL).Msg("Retrying image fetch")
	}))

	res, err := backoff.Retry(ctx, func() (fetched, error) {
		return l.fetchOnce(ctx, target)
	}, retryOpts...)
	if err != nil {
		return nil, err
	}

	img, err := decode(bytes.NewReader(res.body), rawURL, res.tainted)
	if err != nil {
		return nil, err
	}
	if img.Tainted {
		l.log.Warn().Str("url", rawURL).Msg("Cross-origin image without CORS grant, composite will not export")
	}
	return img, nil
}

func (l *Loader) fetchOnce(ctx context.Context, target *url.URL) (fetched, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return fetched{}, backoff.Permanent(err)
	}
	sameOrigin := l.sameOrigin(target)
	if l.origin != nil && !sameOrigin {
		req.Header.Set("Origin", l.origin.Scheme+"://"+l.origin.Host)
	}

	resp, err := l.opts.Client.Do(req)
	if err != nil {
		return fetched{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return fetched{}, fmt.Errorf("fetch %s: %s", target.Redacted(), resp.Status)
	}
	if resp.StatusCode != http.StatusOK {
		return fetched{}, backoff.Permanent(fmt.Errorf("fetch %s: %s", target.Redacted(), resp.Status))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, l.opts.MaxBytes+1))
	if err != nil {
		return fetched{}, err
	}
	if int64(len(body)) > l.opts.MaxBytes {
		return fetched{}, backoff.Permanent(fmt.Errorf("fetch %s: body exceeds %d bytes", target.Redacted(), l.opts.MaxBytes))
	}

	return fetched{body: body, tainted: !sameOrigin && !l.corsGranted(resp.Header)}, nil
}

func (l *Loader) sameOrigin(u *url.URL) bool {
	if l.origin == nil {
		return false
	}
	return strings.EqualFold(u.Scheme, l.origin.Scheme) && strings.EqualFold(u.Host, l.origin.Host)
}

func (l *Loader) corsGranted(h http.Header) bool {
	allow := strings.TrimSpace(h.Get("Access-Control-Allow-Origin"))
	if allow == "*" {
		return true
	}
	if allow == "" || l.origin == nil {
		return false
	}
	return strings.EqualFold(strings.TrimSuffix(allow, "/"), l.origin.Scheme+"://"+l.origin.Host)
}

func decode(r io.Reader, source string, tainted bool) (*photo.StillImage, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	rgba, ok := img.(*image.RGBA)
	if !ok {
		b := img.Bounds()
		rgba = image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		xdraw.Draw(rgba, rgba.Bounds(), img, b.Min, xdraw.Src)
	}
	still := photo.New(rgba)
	if still.Width == 0 || still.Height == 0 {
		return nil, fmt.Errorf("decoded %s image has no pixels", format)
	}
	still.Source = source
	still.Tainted = tainted
	return still, nil
}

func decodeDataURL(ref string) ([]byte, error) {
	meta, payload, ok := strings.Cut(strings.TrimPrefix(ref, "data:"), ",")
	if !ok {
		return nil, fmt.Errorf("malformed data url")
	}
	if strings.HasSuffix(meta, ";base64") {
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, fmt.Errorf("decode data url: %w", err)
		}
		return data, nil
	}
	data, err := url.PathUnescape(payload)
	if err != nil {
		return nil, fmt.Errorf("decode data url: %w", err)
	}
	return []byte(data), nil
}

// describe shortens inline references for logs and errors
func describe(ref string) string {
	if strings.HasPrefix(ref, "data:") && len(ref) > 32 {
		return ref[:32] + "..."
	}
	return ref
}
