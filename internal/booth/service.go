package booth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bryanchriswhite/photobooth/internal/apperr"
	"github.com/bryanchriswhite/photobooth/internal/capture"
	"github.com/bryanchriswhite/photobooth/internal/config"
	"github.com/bryanchriswhite/photobooth/internal/logger"
	"github.com/bryanchriswhite/photobooth/internal/photo"
	"github.com/bryanchriswhite/photobooth/internal/store"
	"github.com/rs/zerolog"
)

// ErrInvalidSelection is returned for selections that are too large,
// repeat a photo, or name a photo outside the captured set.
var ErrInvalidSelection = errors.New("invalid selection")

const persistTimeout = 10 * time.Second

// ServiceConfig configures a booth Service
type ServiceConfig struct {
	Session string
	// Slots caps the size of a selection
	Slots   int
	Capture config.CaptureConfig
}

// Service owns one booth session: the live source, the sequencer, and the
// hand-off of captured and selected photos through the store.
type Service struct {
	source   capture.VideoSource
	registry *photo.Registry
	seq      *Sequencer
	store    store.PhotoStore
	session  string
	slots    int
	log      zerolog.Logger

	sourceMu sync.Mutex
}

// sourceCamera adapts a VideoSource and Grabber to the sequencer
type sourceCamera struct {
	src     capture.VideoSource
	grabber *capture.Grabber
}

func (c sourceCamera) IsReady() bool                     { return c.src.IsReady() }
func (c sourceCamera) Grab() (*photo.StillImage, error) { return c.grabber.Grab(c.src) }

// NewService wires a sequencer to src. Finished sets are persisted under
// store.KeyCaptured.
func NewService(src capture.VideoSource, registry *photo.Registry, st store.PhotoStore, cfg ServiceConfig) *Service {
	if cfg.Session == "" {
		cfg.Session = "default"
	}
	s := &Service{
		source:   src,
		registry: registry,
		store:    st,
		session:  cfg.Session,
		slots:    cfg.Slots,
		log:      logger.WithComponent("booth").With().Str("session", cfg.Session).Logger(),
	}
	s.seq = NewSequencer(sourceCamera{src: src, grabber: capture.NewGrabber(registry)}, Options{
		Target:         cfg.Capture.ShotCount,
		CountdownStart: cfg.Capture.CountdownStart,
		FlashDuration:  time.Duration(cfg.Capture.FlashMillis) * time.Millisecond,
		Releaser:       registry,
		OnComplete:     s.onComplete,
	})
	return s
}

// Sequencer exposes the underlying state machine
func (s *Service) Sequencer() *Sequencer { return s.seq }

// Source exposes the live source for previews
func (s *Service) Source() capture.VideoSource { return s.source }

// Registry exposes the handle registry for loaders
func (s *Service) Registry() *photo.Registry { return s.registry }

// Session returns the session id
func (s *Service) Session() string { return s.session }

// Run drives the countdown from the wall clock until ctx is done
func (s *Service) Run(ctx context.Context) {
	s.seq.Run(ctx, TickInterval)
}

// Open acquires the video source
func (s *Service) Open() error {
	s.sourceMu.Lock()
	defer s.sourceMu.Unlock()
	if err := s.source.Start(); err != nil {
		return apperr.Wrap(apperr.KindSourceNotReady, "start "+s.source.Name(), err)
	}
	s.log.Info().Str("source", s.source.Name()).Msg("Video source acquired")
	return nil
}

// Close cancels any run and releases the video source
func (s *Service) Close() error {
	s.seq.Cancel()
	s.sourceMu.Lock()
	defer s.sourceMu.Unlock()
	if err := s.source.Stop(); err != nil {
		return fmt.Errorf("stop %s: %w", s.source.Name(), err)
	}
	s.log.Info().Str("source", s.source.Name()).Msg("Video source released")
	return nil
}

// Retake cancels any run, releases the camera and acquires it again. The
// source reports not ready until its first new frame.
func (s *Service) Retake() error {
	s.seq.Cancel()
	s.sourceMu.Lock()
	defer s.sourceMu.Unlock()

	if err := s.source.Stop(); err != nil {
		s.log.Warn().Err(err).Msg("Failed to release video source")
	}
	if err := s.source.Start(); err != nil {
		return apperr.Wrap(apperr.KindSourceNotReady, "restart "+s.source.Name(), err)
	}
	s.log.Info().Str("source", s.source.Name()).Msg("Video source re-acquired")
	return nil
}

// Start begins a capture run
func (s *Service) Start() error {
	return s.seq.Start()
}

// Cancel stops a capture run
func (s *Service) Cancel() {
	s.seq.Cancel()
}

// Clear drops the captured set and the persisted lists
func (s *Service) Clear(ctx context.Context) error {
	if err := s.seq.Clear(); err != nil {
		return err
	}
	if err := s.store.Put(ctx, s.session, store.KeyCaptured, nil); err != nil {
		return fmt.Errorf("clear captured photos: %w", err)
	}
	if err := s.store.Put(ctx, s.session, store.KeySelected, nil); err != nil {
		return fmt.Errorf("clear selection: %w", err)
	}
	return nil
}

// Remove deletes one captured photo and re-persists the set
func (s *Service) Remove(ctx context.Context, index int) error {
	if err := s.seq.Remove(index); err != nil {
		return err
	}
	return s.persist(ctx, s.seq.Images())
}

// Photos returns the captured stills in shot order
func (s *Service) Photos() []*photo.StillImage {
	return s.seq.Images()
}

// Photo returns one captured still
func (s *Service) Photo(index int) (*photo.StillImage, error) {
	images := s.seq.Images()
	if index < 0 || index >= len(images) {
		return nil, fmt.Errorf("%w: index %d out of range [0,%d)", ErrNoPhoto, index, len(images))
	}
	return images[index], nil
}

// Refs returns the live handles of the captured set
func (s *Service) Refs() []string {
	images := s.seq.Images()
	refs := make([]string, len(images))
	for i, img := range images {
		refs[i] = img.Handle
	}
	return refs
}

// Captured returns the persisted captured set
func (s *Service) Captured(ctx context.Context) ([]string, error) {
	return s.store.Get(ctx, s.session, store.KeyCaptured)
}

// Select records which captured photos go into the composite, in slot
// order. Refs may be live handles or persisted references.
func (s *Service) Select(ctx context.Context, refs []string) error {
	resolved, err := s.ResolveRefs(ctx, refs)
	if err != nil {
		return err
	}
	if err := s.store.Put(ctx, s.session, store.KeySelected, resolved); err != nil {
		return fmt.Errorf("save selection: %w", err)
	}
	s.log.Info().Int("count", len(resolved)).Msg("Selection saved")
	return nil
}

// ResolveRefs maps refs to the data URLs of photos this session captured.
// Anything else, a repeat, or more refs than slots is ErrInvalidSelection.
func (s *Service) ResolveRefs(ctx context.Context, refs []string) ([]string, error) {
	if s.slots > 0 && len(refs) > s.slots {
		return nil, fmt.Errorf("%w: %d photos chosen, at most %d fit", ErrInvalidSelection, len(refs), s.slots)
	}

	persisted, err := s.Captured(ctx)
	if err != nil {
		return nil, fmt.Errorf("load captured photos: %w", err)
	}
	known := make(map[string]string, len(persisted))
	for _, ref := range persisted {
		known[ref] = ref
	}
	for _, img := range s.seq.Images() {
		url, err := img.DataURL()
		if err != nil {
			return nil, apperr.Wrap(apperr.KindCaptureFailed, "encode photo", err)
		}
		known[img.Handle] = url
		known[url] = url
	}

	seen := make(map[string]bool, len(refs))
	resolved := make([]string, 0, len(refs))
	for _, ref := range refs {
		url, ok := known[ref]
		if !ok {
			return nil, fmt.Errorf("%w: %s is not a captured photo", ErrInvalidSelection, abbreviate(ref))
		}
		if seen[url] {
			return nil, fmt.Errorf("%w: %s chosen twice", ErrInvalidSelection, abbreviate(ref))
		}
		seen[url] = true
		resolved = append(resolved, url)
	}
	return resolved, nil
}

// Selection returns the persisted selection in slot order
func (s *Service) Selection(ctx context.Context) ([]string, error) {
	return s.store.Get(ctx, s.session, store.KeySelected)
}

func (s *Service) onComplete(images []*photo.StillImage) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := s.persist(ctx, images); err != nil {
		s.log.Error().Err(err).Msg("Failed to persist captured photos")
	}
}

func (s *Service) persist(ctx context.Context, images []*photo.StillImage) error {
	refs := make([]string, 0, len(images))
	for _, img := range images {
		url, err := img.DataURL()
		if err != nil {
			return apperr.Wrap(apperr.KindCaptureFailed, "encode photo", err)
		}
		refs = append(refs, url)
	}
	if err := s.store.Put(ctx, s.session, store.KeyCaptured, refs); err != nil {
		return fmt.Errorf("save captured photos: %w", err)
	}
	s.log.Debug().Int("count", len(refs)).Msg("Captured photos persisted")
	return nil
}

func abbreviate(ref string) string {
	if len(ref) > 40 {
		return ref[:40] + "..."
	}
	return ref
}
