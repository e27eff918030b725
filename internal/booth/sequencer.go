// Package booth runs the countdown, flash and grab cycle that turns a live
// video source into an ordered set of stills.
package booth

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bryanchriswhite/photobooth/internal/apperr"
	"github.com/bryanchriswhite/photobooth/internal/logger"
	"github.com/bryanchriswhite/photobooth/internal/photo"
	"github.com/rs/zerolog"
)

// State is a sequencer state
type State string

const (
	StateIdle      State = "idle"
	StateCountdown State = "countdown"
	StateFlashing  State = "flashing"
	StateCapturing State = "capturing"
	StateFinished  State = "finished"
)

// ErrNoPhoto is returned for a photo index outside the captured set
var ErrNoPhoto = errors.New("no such photo")

// Camera is what the sequencer needs from the live source
type Camera interface {
	IsReady() bool
	Grab() (*photo.StillImage, error)
}

// Snapshot is a point-in-time view of a session
type Snapshot struct {
	State     State  `json:"state"`
	Countdown int    `json:"countdown"`
	Flash     bool   `json:"flash"`
	Running   bool   `json:"running"`
	Count     int    `json:"count"`
	Target    int    `json:"target"`
	Error     string `json:"error,omitempty"`
	ErrorKind string `json:"error_kind,omitempty"`
}

// Options configures a Sequencer
type Options struct {
	Target         int
	CountdownStart int
	FlashDuration  time.Duration
	// Releaser receives the handle of every image the sequencer drops
	Releaser photo.Releaser
	// OnComplete receives the ordered set when the Nth grab lands. It runs
	// outside the sequencer lock.
	OnComplete func([]*photo.StillImage)
	// AfterFunc schedules the flash clear; defaults to time.AfterFunc
	AfterFunc func(d time.Duration, f func()) (stop func() bool)
}

// Sequencer is the capture state machine. It never advances on its own:
// each Tick is one second of countdown, delivered by Run or by the caller.
type Sequencer struct {
	mu     sync.Mutex
	camera Camera
	opts   Options
	log    zerolog.Logger

	state     State
	countdown int
	flash     bool
	running   bool
	images    []*photo.StillImage
	lastErr   error

	// gen is bumped by every start, cancel and clear; work begun under an
	// older generation must not mutate the session.
	gen       uint64
	flashSeq  uint64
	stopFlash func() bool

	listeners map[int]func(Snapshot)
	nextID    int
	kick      chan struct{}
}

// NewSequencer creates an idle sequencer
func NewSequencer(camera Camera, opts Options) *Sequencer {
	if opts.Target < 1 {
		opts.Target = 1
	}
	if opts.CountdownStart < 1 {
		opts.CountdownStart = 1
	}
	if opts.AfterFunc == nil {
		opts.AfterFunc = func(d time.Duration, f func()) func() bool {
			return time.AfterFunc(d, f).Stop
		}
	}
	return &Sequencer{
		camera:    camera,
		opts:      opts,
		log:       *logger.WithComponent("sequencer"),
		state:     StateIdle,
		listeners: make(map[int]func(Snapshot)),
		kick:      make(chan struct{}, 1),
	}
}

// Subscribe registers fn for every state change and returns an unsubscribe
// func. fn is called with the sequencer locked and must not call back into it.
func (s *Sequencer) Subscribe(fn func(Snapshot)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

// Start begins a run of countdown/flash/grab cycles. A run already in flight
// makes Start a no-op. A partial set left by a cancel or failure is resumed;
// a complete set is released and replaced.
func (s *Sequencer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		s.log.Debug().Msg("Start ignored, sequence already running")
		return nil
	}
	if s.camera == nil || !s.camera.IsReady() {
		s.lastErr = apperr.New(apperr.KindSourceNotReady, "camera is not ready yet")
		s.notifyLocked()
		return s.lastErr
	}

	if len(s.images) >= s.opts.Target {
		s.releaseAllLocked()
	}

	s.gen++
	s.running = true
	s.lastErr = nil
	s.state = StateCountdown
	s.countdown = s.opts.CountdownStart

	s.log.Info().
		Int("target", s.opts.Target).
		Int("have", len(s.images)).
		Uint64("generation", s.gen).
		Msg("Capture sequence started")
	s.notifyLocked()

	select {
	case s.kick <- struct{}{}:
	default:
	}
	return nil
}

// Tick advances the machine by one countdown second. When the countdown
// runs out the flash is raised and the frame is grabbed before Tick
// returns; the grab runs with the lock released.
func (s *Sequencer) Tick() {
	s.mu.Lock()
	if !s.running || s.state != StateCountdown {
		s.mu.Unlock()
		return
	}

	if s.countdown > 1 {
		s.countdown--
		s.log.Debug().Int("countdown", s.countdown).Msg("Countdown tick")
		s.notifyLocked()
		s.mu.Unlock()
		return
	}

	gen := s.gen
	s.countdown = 0
	s.state = StateFlashing
	s.flash = true
	s.scheduleFlashClearLocked()
	s.notifyLocked()

	s.state = StateCapturing
	s.notifyLocked()
	camera := s.camera
	s.mu.Unlock()

	img, err := camera.Grab()

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		if img != nil {
			s.log.Debug().Str("handle", img.Handle).Msg("Discarding grab from canceled sequence")
			s.release(img)
		}
		return
	}
	if err != nil {
		s.failLocked(err)
		s.mu.Unlock()
		return
	}

	s.images = append(s.images, img)
	s.log.Debug().
		Int("count", len(s.images)).
		Int("target", s.opts.Target).
		Str("handle", img.Handle).
		Msg("Shot captured")

	if len(s.images) < s.opts.Target {
		s.state = StateCountdown
		s.countdown = s.opts.CountdownStart
		s.notifyLocked()
		s.mu.Unlock()
		return
	}

	s.running = false
	s.state = StateFinished
	s.notifyLocked()
	result := s.copyImagesLocked()
	onComplete := s.opts.OnComplete
	s.mu.Unlock()

	s.log.Info().Int("count", len(result)).Msg("Capture sequence finished")
	if onComplete != nil {
		onComplete(result)
	}

	s.mu.Lock()
	if gen == s.gen && s.state == StateFinished {
		s.state = StateIdle
		s.notifyLocked()
	}
	s.mu.Unlock()
}

// Cancel stops a run in flight. Images captured so far are kept; a grab
// still in progress is discarded when it lands.
func (s *Sequencer) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.gen++
	s.running = false
	s.state = StateIdle
	s.countdown = 0
	s.clearFlashLocked()
	s.log.Info().Int("kept", len(s.images)).Msg("Capture sequence canceled")
	s.notifyLocked()
}

// Clear drops every captured image and releases its handle. Only valid
// while no run is in flight.
func (s *Sequencer) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return apperr.New(apperr.KindSequenceBusy, "cannot clear while capturing")
	}
	s.gen++
	s.clearFlashLocked()
	s.releaseAllLocked()
	s.state = StateIdle
	s.lastErr = nil
	s.notifyLocked()
	return nil
}

// Remove drops one captured image and releases its handle
func (s *Sequencer) Remove(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return apperr.New(apperr.KindSequenceBusy, "cannot delete while capturing")
	}
	if index < 0 || index >= len(s.images) {
		return fmt.Errorf("%w: index %d out of range [0,%d)", ErrNoPhoto, index, len(s.images))
	}
	img := s.images[index]
	s.images = append(s.images[:index:index], s.images[index+1:]...)
	s.release(img)
	if s.state == StateFinished {
		s.state = StateIdle
	}
	s.notifyLocked()
	return nil
}

// Images returns the captured set in shot order
func (s *Sequencer) Images() []*photo.StillImage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyImagesLocked()
}

// Snapshot returns the current state
func (s *Sequencer) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Running reports whether a run is in flight
func (s *Sequencer) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Target returns the number of shots per run
func (s *Sequencer) Target() int {
	return s.opts.Target
}

func (s *Sequencer) snapshotLocked() Snapshot {
	snap := Snapshot{
		State:     s.state,
		Countdown: s.countdown,
		Flash:     s.flash,
		Running:   s.running,
		Count:     len(s.images),
		Target:    s.opts.Target,
	}
	if s.lastErr != nil {
		snap.Error = s.lastErr.Error()
		snap.ErrorKind = string(apperr.KindOf(s.lastErr))
	}
	return snap
}

func (s *Sequencer) notifyLocked() {
	if len(s.listeners) == 0 {
		return
	}
	snap := s.snapshotLocked()
	for _, fn := range s.listeners {
		fn(snap)
	}
}

func (s *Sequencer) failLocked(err error) {
	if !errors.Is(err, apperr.ErrSourceNotReady) && !errors.Is(err, apperr.ErrCaptureFailed) {
		err = apperr.Wrap(apperr.KindCaptureFailed, "grab failed", err)
	}
	s.gen++
	s.lastErr = err
	s.running = false
	s.state = StateIdle
	s.countdown = 0
	s.clearFlashLocked()
	s.log.Warn().Err(err).Int("kept", len(s.images)).Msg("Capture failed, sequence stopped")
	s.notifyLocked()
}

// scheduleFlashClearLocked drops the flash cue after FlashDuration no matter
// how long the grab takes
func (s *Sequencer) scheduleFlashClearLocked() {
	if s.stopFlash != nil {
		s.stopFlash()
	}
	s.flashSeq++
	seq := s.flashSeq
	s.stopFlash = s.opts.AfterFunc(s.opts.FlashDuration, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.flashSeq != seq || !s.flash {
			return
		}
		s.flash = false
		s.stopFlash = nil
		s.notifyLocked()
	})
}

func (s *Sequencer) clearFlashLocked() {
	if s.stopFlash != nil {
		s.stopFlash()
		s.stopFlash = nil
	}
	s.flashSeq++
	s.flash = false
}

func (s *Sequencer) releaseAllLocked() {
	for _, img := range s.images {
		s.release(img)
	}
	s.log.Debug().Int("released", len(s.images)).Msg("Released captured set")
	s.images = nil
}

func (s *Sequencer) release(img *photo.StillImage) {
	if s.opts.Releaser != nil && img.Handle != "" {
		s.opts.Releaser.Release(img.Handle)
	}
}

func (s *Sequencer) copyImagesLocked() []*photo.StillImage {
	out := make([]*photo.StillImage, len(s.images))
	copy(out, s.images)
	return out
}
