package booth

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/bryanchriswhite/photobooth/internal/capture"
	"github.com/bryanchriswhite/photobooth/internal/config"
	"github.com/bryanchriswhite/photobooth/internal/photo"
	"github.com/bryanchriswhite/photobooth/internal/store"
)

func newTestService(t *testing.T, shots int) (*Service, *capture.StaticSource, *photo.Registry, store.PhotoStore) {
	t.Helper()
	src := capture.NewTestPattern(28, 8)
	reg := photo.NewRegistry()
	st := store.NewMemory()
	svc := NewService(src, reg, st, ServiceConfig{
		Session: "test",
		Slots:   2,
		Capture: config.CaptureConfig{ShotCount: shots, CountdownStart: 1, FlashMillis: 1},
	})
	if err := svc.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { svc.Close() })
	return svc, src, reg, st
}

func capture3(t *testing.T, svc *Service) {
	t.Helper()
	if err := svc.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	runToCompletion(t, svc.Sequencer())
}

func TestServicePersistsFinishedSet(t *testing.T) {
	svc, src, reg, st := newTestService(t, 3)
	capture3(t, svc)

	if src.FramesServed() != 3 {
		t.Fatalf("frames served = %d, want 3", src.FramesServed())
	}
	if reg.Len() != 3 {
		t.Fatalf("live handles = %d, want 3", reg.Len())
	}

	refs, err := st.Get(context.Background(), "test", store.KeyCaptured)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(refs) != 3 {
		t.Fatalf("persisted %d refs, want 3", len(refs))
	}
	for _, ref := range refs {
		if !strings.HasPrefix(ref, photo.DataURLPrefix) {
			t.Fatalf("persisted ref %q is not a data url", ref[:20])
		}
	}

	for _, handle := range svc.Refs() {
		if !photo.IsHandle(handle) {
			t.Fatalf("live ref %q is not a handle", handle)
		}
	}
}

func TestServiceSelect(t *testing.T) {
	svc, _, _, _ := newTestService(t, 3)
	capture3(t, svc)
	ctx := context.Background()
	handles := svc.Refs()

	if err := svc.Select(ctx, handles); !errors.Is(err, ErrInvalidSelection) {
		t.Fatalf("oversized selection err = %v", err)
	}
	if err := svc.Select(ctx, []string{handles[0], handles[0]}); !errors.Is(err, ErrInvalidSelection) {
		t.Fatalf("duplicate selection err = %v", err)
	}
	if err := svc.Select(ctx, []string{"https://example.com/cat.png"}); !errors.Is(err, ErrInvalidSelection) {
		t.Fatalf("foreign selection err = %v", err)
	}

	if err := svc.Select(ctx, []string{handles[2], handles[0]}); err != nil {
		t.Fatalf("Select: %v", err)
	}
	selected, err := svc.Selection(ctx)
	if err != nil {
		t.Fatalf("Selection: %v", err)
	}
	want2, _ := svc.Photos()[2].DataURL()
	want0, _ := svc.Photos()[0].DataURL()
	if len(selected) != 2 || selected[0] != want2 || selected[1] != want0 {
		t.Fatal("selection not persisted in slot order")
	}

	// persisted references stay selectable
	if err := svc.Select(ctx, selected[:1]); err != nil {
		t.Fatalf("Select persisted ref: %v", err)
	}
}

func TestServiceResolveRefs(t *testing.T) {
	svc, _, _, st := newTestService(t, 2)
	capture3(t, svc)
	ctx := context.Background()
	handles := svc.Refs()

	tests := []struct {
		name string
		refs []string
	}{
		{"local path", []string{"/etc/passwd"}},
		{"file url", []string{"file:///tmp/shot.png"}},
		{"remote url", []string{"http://169.254.169.254/latest"}},
		{"foreign data url", []string{photo.DataURLPrefix + "AAAA"}},
		{"mixed", []string{handles[0], "/tmp/shot.png"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.ResolveRefs(ctx, tt.refs); !errors.Is(err, ErrInvalidSelection) {
				t.Fatalf("err = %v, want ErrInvalidSelection", err)
			}
		})
	}

	resolved, err := svc.ResolveRefs(ctx, []string{handles[1]})
	if err != nil {
		t.Fatalf("ResolveRefs: %v", err)
	}
	want, _ := svc.Photos()[1].DataURL()
	if len(resolved) != 1 || resolved[0] != want {
		t.Fatal("handle not resolved to its data url")
	}

	// resolving never saves a selection
	if selected, _ := st.Get(ctx, "test", store.KeySelected); len(selected) != 0 {
		t.Fatalf("selection = %d refs, want none", len(selected))
	}
}

func TestServiceClearReleasesAndForgets(t *testing.T) {
	svc, _, reg, st := newTestService(t, 3)
	capture3(t, svc)
	ctx := context.Background()
	if err := svc.Select(ctx, svc.Refs()[:1]); err != nil {
		t.Fatalf("Select: %v", err)
	}

	if err := svc.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if reg.Len() != 0 {
		t.Fatalf("live handles = %d after clear", reg.Len())
	}
	for _, key := range []string{store.KeyCaptured, store.KeySelected} {
		refs, _ := st.Get(ctx, "test", key)
		if len(refs) != 0 {
			t.Fatalf("%s not cleared: %d refs", key, len(refs))
		}
	}
}

func TestServiceRemove(t *testing.T) {
	svc, _, reg, st := newTestService(t, 3)
	capture3(t, svc)
	ctx := context.Background()

	if err := svc.Remove(ctx, 0); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if reg.Len() != 2 {
		t.Fatalf("live handles = %d, want 2", reg.Len())
	}
	refs, _ := st.Get(ctx, "test", store.KeyCaptured)
	if len(refs) != 2 {
		t.Fatalf("persisted %d refs, want 2", len(refs))
	}
	if _, err := svc.Photo(2); err == nil {
		t.Fatal("expected out of range error")
	}
}

func TestServiceRetake(t *testing.T) {
	svc, src, _, _ := newTestService(t, 3)
	svc.Start()

	if err := svc.Retake(); err != nil {
		t.Fatalf("Retake: %v", err)
	}
	if svc.Sequencer().Running() {
		t.Fatal("retake must cancel the run")
	}
	if !src.IsReady() {
		t.Fatal("source not re-acquired")
	}

	svc.Close()
	if src.IsReady() {
		t.Fatal("source not released on close")
	}
}
