package booth

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/bryanchriswhite/photobooth/internal/apperr"
	"github.com/bryanchriswhite/photobooth/internal/photo"
)

type fakeCamera struct {
	mu    sync.Mutex
	ready bool
	shots int
	err   error
	// gate, when set, blocks Grab until a value is received
	gate    chan struct{}
	entered chan struct{}
}

func (c *fakeCamera) IsReady() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready
}

func (c *fakeCamera) Grab() (*photo.StillImage, error) {
	if c.entered != nil {
		c.entered <- struct{}{}
	}
	if c.gate != nil {
		<-c.gate
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	c.shots++
	img := photo.New(image.NewRGBA(image.Rect(0, 0, 4, 3)))
	img.Handle = fmt.Sprintf("blob:shot-%d", c.shots)
	return img, nil
}

type countingReleaser struct {
	mu       sync.Mutex
	released []string
}

func (r *countingReleaser) Release(handle string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.released = append(r.released, handle)
}

func (r *countingReleaser) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.released)
}

// manualTimers captures AfterFunc callbacks so tests fire them by hand
type manualTimers struct {
	mu      sync.Mutex
	pending []func()
}

func (m *manualTimers) AfterFunc(_ time.Duration, f func()) func() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := len(m.pending)
	m.pending = append(m.pending, f)
	return func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		stopped := m.pending[idx] != nil
		m.pending[idx] = nil
		return stopped
	}
}

func (m *manualTimers) fire() {
	m.mu.Lock()
	fns := m.pending
	m.pending = nil
	m.mu.Unlock()
	for _, f := range fns {
		if f != nil {
			f()
		}
	}
}

func newTestSequencer(cam Camera, target int, rel photo.Releaser, timers *manualTimers) *Sequencer {
	return NewSequencer(cam, Options{
		Target:         target,
		CountdownStart: 3,
		FlashDuration:  150 * time.Millisecond,
		Releaser:       rel,
		AfterFunc:      timers.AfterFunc,
	})
}

// runToCompletion ticks until the run ends, guarding against a stuck machine
func runToCompletion(t *testing.T, s *Sequencer) {
	t.Helper()
	for i := 0; i < 1000 && s.Running(); i++ {
		s.Tick()
	}
	if s.Running() {
		t.Fatal("sequence did not finish")
	}
}

func TestSequenceCompletesInOrder(t *testing.T) {
	for _, n := range []int{4, 8} {
		t.Run(fmt.Sprintf("N=%d", n), func(t *testing.T) {
			cam := &fakeCamera{ready: true}
			timers := &manualTimers{}
			s := newTestSequencer(cam, n, nil, timers)

			var completed []*photo.StillImage
			calls := 0
			s.opts.OnComplete = func(images []*photo.StillImage) {
				calls++
				completed = images
			}

			if err := s.Start(); err != nil {
				t.Fatalf("Start: %v", err)
			}
			runToCompletion(t, s)

			if calls != 1 {
				t.Fatalf("OnComplete called %d times, want 1", calls)
			}
			if len(completed) != n {
				t.Fatalf("completed %d images, want %d", len(completed), n)
			}
			for i, img := range completed {
				if want := fmt.Sprintf("blob:shot-%d", i+1); img.Handle != want {
					t.Errorf("image %d = %s, want %s", i, img.Handle, want)
				}
			}
			if got := s.Snapshot(); got.State != StateIdle || got.Count != n || got.Running {
				t.Fatalf("final snapshot = %+v", got)
			}
		})
	}
}

func TestCountdownTransitions(t *testing.T) {
	cam := &fakeCamera{ready: true}
	timers := &manualTimers{}
	s := newTestSequencer(cam, 2, nil, timers)

	var states []Snapshot
	s.Subscribe(func(snap Snapshot) { states = append(states, snap) })

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if snap := s.Snapshot(); snap.State != StateCountdown || snap.Countdown != 3 {
		t.Fatalf("after start = %+v, want countdown 3", snap)
	}

	s.Tick()
	s.Tick()
	if snap := s.Snapshot(); snap.Countdown != 1 {
		t.Fatalf("after 2 ticks countdown = %d, want 1", snap.Countdown)
	}
	if cam.shots != 0 {
		t.Fatal("grab happened before countdown ended")
	}

	s.Tick()
	if cam.shots != 1 {
		t.Fatalf("shots = %d, want 1", cam.shots)
	}
	snap := s.Snapshot()
	if snap.State != StateCountdown || snap.Countdown != 3 || snap.Count != 1 {
		t.Fatalf("after first shot = %+v, want next countdown", snap)
	}
	if !snap.Flash {
		t.Fatal("flash should still be up until its timer fires")
	}

	timers.fire()
	if s.Snapshot().Flash {
		t.Fatal("flash not cleared by timer")
	}

	var sawFlashing, sawCapturing bool
	for _, st := range states {
		switch st.State {
		case StateFlashing:
			sawFlashing = st.Flash
		case StateCapturing:
			sawCapturing = true
		}
	}
	if !sawFlashing || !sawCapturing {
		t.Fatalf("missing flashing/capturing transitions in %+v", states)
	}
}

func TestStartNotReady(t *testing.T) {
	cam := &fakeCamera{ready: false}
	s := newTestSequencer(cam, 4, nil, &manualTimers{})

	err := s.Start()
	if !errors.Is(err, apperr.ErrSourceNotReady) {
		t.Fatalf("err = %v, want SourceNotReady", err)
	}
	snap := s.Snapshot()
	if snap.State != StateIdle || snap.Running {
		t.Fatalf("state changed on failed start: %+v", snap)
	}
	if snap.ErrorKind != string(apperr.KindSourceNotReady) {
		t.Fatalf("snapshot error kind = %q", snap.ErrorKind)
	}
}

func TestSecondStartIsNoop(t *testing.T) {
	cam := &fakeCamera{ready: true}
	s := newTestSequencer(cam, 4, nil, &manualTimers{})

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	s.Tick()
	if err := s.Start(); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if snap := s.Snapshot(); snap.Countdown != 2 {
		t.Fatalf("second start reset countdown: %+v", snap)
	}
}

func TestCancelStopsFurtherMutation(t *testing.T) {
	cam := &fakeCamera{ready: true}
	timers := &manualTimers{}
	s := newTestSequencer(cam, 4, nil, timers)
	completed := false
	s.opts.OnComplete = func([]*photo.StillImage) { completed = true }

	s.Start()
	for i := 0; i < 3; i++ {
		s.Tick()
	}
	if s.Snapshot().Count != 1 {
		t.Fatalf("expected one shot before cancel")
	}

	s.Cancel()
	for i := 0; i < 20; i++ {
		s.Tick()
	}
	timers.fire()

	snap := s.Snapshot()
	if snap.Count != 1 || snap.Running || snap.State != StateIdle || snap.Flash {
		t.Fatalf("mutation after cancel: %+v", snap)
	}
	if completed {
		t.Fatal("OnComplete called for canceled sequence")
	}
}

func TestCancelDuringGrabDiscardsLateImage(t *testing.T) {
	cam := &fakeCamera{ready: true, gate: make(chan struct{}), entered: make(chan struct{})}
	rel := &countingReleaser{}
	s := newTestSequencer(cam, 4, rel, &manualTimers{})

	s.Start()
	s.Tick()
	s.Tick()

	done := make(chan struct{})
	go func() {
		s.Tick()
		close(done)
	}()

	<-cam.entered
	if snap := s.Snapshot(); snap.State != StateCapturing {
		t.Fatalf("state during grab = %s, want capturing", snap.State)
	}
	// Ticks during a grab must not block or double-grab
	s.Tick()
	s.Cancel()
	cam.gate <- struct{}{}
	<-done

	if got := len(s.Images()); got != 0 {
		t.Fatalf("late grab appended: %d images", got)
	}
	if rel.count() != 1 {
		t.Fatalf("late grab released %d handles, want 1", rel.count())
	}
	if s.Snapshot().State != StateIdle {
		t.Fatalf("state = %s, want idle", s.Snapshot().State)
	}
}

func TestCaptureFailureStopsRun(t *testing.T) {
	cam := &fakeCamera{ready: true}
	s := newTestSequencer(cam, 4, nil, &manualTimers{})

	s.Start()
	for i := 0; i < 6; i++ {
		s.Tick()
	}
	if s.Snapshot().Count != 2 {
		t.Fatalf("count = %d, want 2", s.Snapshot().Count)
	}

	cam.mu.Lock()
	cam.err = errors.New("usb unplugged")
	cam.mu.Unlock()
	for i := 0; i < 3; i++ {
		s.Tick()
	}

	snap := s.Snapshot()
	if snap.Running || snap.Count != 2 {
		t.Fatalf("after failure = %+v", snap)
	}
	if snap.ErrorKind != string(apperr.KindCaptureFailed) {
		t.Fatalf("error kind = %q, want capture_failed", snap.ErrorKind)
	}
	if snap.Flash {
		t.Fatal("flash left on after failure")
	}
}

func TestStartResumesPartialRun(t *testing.T) {
	cam := &fakeCamera{ready: true}
	s := newTestSequencer(cam, 4, nil, &manualTimers{})

	s.Start()
	for i := 0; i < 6; i++ {
		s.Tick()
	}
	s.Cancel()

	if err := s.Start(); err != nil {
		t.Fatalf("restart: %v", err)
	}
	runToCompletion(t, s)

	images := s.Images()
	if len(images) != 4 {
		t.Fatalf("len = %d, want 4", len(images))
	}
	if images[0].Handle != "blob:shot-1" || images[3].Handle != "blob:shot-4" {
		t.Fatalf("order broken: %s..%s", images[0].Handle, images[3].Handle)
	}
}

func TestStartAfterFinishReplacesSet(t *testing.T) {
	cam := &fakeCamera{ready: true}
	rel := &countingReleaser{}
	s := newTestSequencer(cam, 2, rel, &manualTimers{})

	s.Start()
	runToCompletion(t, s)
	s.Start()

	if rel.count() != 2 {
		t.Fatalf("released %d, want 2", rel.count())
	}
	if len(s.Images()) != 0 {
		t.Fatal("previous set not cleared")
	}
	runToCompletion(t, s)
	if got := s.Images()[0].Handle; got != "blob:shot-3" {
		t.Fatalf("first image = %s, want blob:shot-3", got)
	}
}

func TestClearReleasesEveryHandle(t *testing.T) {
	cam := &fakeCamera{ready: true}
	rel := &countingReleaser{}
	s := newTestSequencer(cam, 4, rel, &manualTimers{})

	s.Start()
	runToCompletion(t, s)
	prior := len(s.Images())

	if err := s.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if len(s.Images()) != 0 {
		t.Fatal("images not cleared")
	}
	if rel.count() != prior {
		t.Fatalf("released %d handles, want %d", rel.count(), prior)
	}
}

func TestClearWhileRunningIsBusy(t *testing.T) {
	cam := &fakeCamera{ready: true}
	s := newTestSequencer(cam, 4, nil, &manualTimers{})
	s.Start()

	if err := s.Clear(); !errors.Is(err, apperr.ErrSequenceBusy) {
		t.Fatalf("err = %v, want SequenceBusy", err)
	}
	if err := s.Remove(0); !errors.Is(err, apperr.ErrSequenceBusy) {
		t.Fatalf("remove err = %v, want SequenceBusy", err)
	}
}

func TestRemove(t *testing.T) {
	cam := &fakeCamera{ready: true}
	rel := &countingReleaser{}
	s := newTestSequencer(cam, 3, rel, &manualTimers{})
	s.Start()
	runToCompletion(t, s)

	if err := s.Remove(1); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	images := s.Images()
	if len(images) != 2 || images[0].Handle != "blob:shot-1" || images[1].Handle != "blob:shot-3" {
		t.Fatalf("images after remove = %v", handles(images))
	}
	if rel.count() != 1 || rel.released[0] != "blob:shot-2" {
		t.Fatalf("released = %v", rel.released)
	}
	if err := s.Remove(5); err == nil {
		t.Fatal("expected out of range error")
	}

	// a short set resumes to fill the gap
	s.Start()
	runToCompletion(t, s)
	if got := handles(s.Images()); len(got) != 3 || got[2] != "blob:shot-4" {
		t.Fatalf("after refill = %v", got)
	}
}

func TestRunDrivesFromClock(t *testing.T) {
	cam := &fakeCamera{ready: true}
	s := NewSequencer(cam, Options{Target: 2, CountdownStart: 2, FlashDuration: time.Millisecond})
	done := make(chan []*photo.StillImage, 1)
	s.opts.OnComplete = func(images []*photo.StillImage) { done <- images }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx, 5*time.Millisecond)

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	select {
	case images := <-done:
		if len(images) != 2 {
			t.Fatalf("len = %d, want 2", len(images))
		}
	case <-time.After(5 * time.Second):
		t.Fatal("driver never finished the run")
	}
}

func TestRunCancelsOnContextDone(t *testing.T) {
	cam := &fakeCamera{ready: true}
	s := NewSequencer(cam, Options{Target: 4, CountdownStart: 3})

	ctx, cancel := context.WithCancel(context.Background())
	finished := make(chan struct{})
	go func() {
		s.Run(ctx, time.Hour)
		close(finished)
	}()

	s.Start()
	cancel()
	<-finished
	if s.Running() {
		t.Fatal("run still in flight after driver stopped")
	}
}

func handles(images []*photo.StillImage) []string {
	out := make([]string, len(images))
	for i, img := range images {
		out[i] = img.Handle
	}
	return out
}
