package photo

import (
	"fmt"
	"strings"
	"sync"

	"github.com/bryanchriswhite/photobooth/internal/logger"
	"github.com/google/uuid"
)

// HandleScheme prefixes registry handles.
const HandleScheme = "blob:"

// Releaser drops a temporary handle.
type Releaser interface {
	Release(handle string)
}

// Registry maps temporary handles to in-memory stills. Handles must be
// released explicitly once the owning list drops the image.
type Registry struct {
	mu     sync.RWMutex
	images map[string]*StillImage
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{images: make(map[string]*StillImage)}
}

// Register assigns a fresh handle to img and returns the registered copy.
func (r *Registry) Register(img *StillImage) *StillImage {
	handle := HandleScheme + uuid.NewString()
	registered := *img
	registered.Handle = handle

	r.mu.Lock()
	r.images[handle] = &registered
	count := len(r.images)
	r.mu.Unlock()

	logger.WithComponent("photo").Debug().
		Str("handle", handle).
		Int("live_handles", count).
		Msg("Registered still")
	return &registered
}

// Resolve looks up a handle.
func (r *Registry) Resolve(handle string) (*StillImage, error) {
	r.mu.RLock()
	img, ok := r.images[handle]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown handle %q", handle)
	}
	return img, nil
}

// Release drops a handle. Releasing an unknown handle is a no-op.
func (r *Registry) Release(handle string) {
	r.mu.Lock()
	_, ok := r.images[handle]
	delete(r.images, handle)
	count := len(r.images)
	r.mu.Unlock()

	if ok {
		logger.WithComponent("photo").Debug().
			Str("handle", handle).
			Int("live_handles", count).
			Msg("Released still")
	}
}

// Len returns the number of live handles.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.images)
}

// IsHandle reports whether ref looks like a registry handle.
func IsHandle(ref string) bool {
	return strings.HasPrefix(ref, HandleScheme)
}
