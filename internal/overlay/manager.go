package overlay

import (
	"fmt"
	"image"
	"sync"

	"github.com/bryanchriswhite/photobooth/internal/logger"
)

// Manager holds overlay widgets and renders them in insertion order, so a
// widget added later is drawn on top of earlier ones
type Manager struct {
	mu      sync.RWMutex
	widgets []Widget
	enabled bool
}

// NewManager creates a new overlay manager
func NewManager() *Manager {
	return &Manager{enabled: true}
}

// AddWidget appends a widget to the top of the stack
func (m *Manager) AddWidget(widget Widget) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.indexLocked(widget.ID()) >= 0 {
		return fmt.Errorf("widget with ID %s already exists", widget.ID())
	}

	m.widgets = append(m.widgets, widget)
	logger.WithComponent("overlay").Debug().
		Str("id", widget.ID()).
		Str("type", widget.Type()).
		Msg("Added widget")
	return nil
}

// RemoveWidget removes a widget from the overlay
func (m *Manager) RemoveWidget(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.indexLocked(id)
	if i < 0 {
		return fmt.Errorf("widget with ID %s not found", id)
	}
	m.widgets = append(m.widgets[:i], m.widgets[i+1:]...)
	logger.WithComponent("overlay").Debug().Str("id", id).Msg("Removed widget")
	return nil
}

// Widget retrieves a widget by ID
func (m *Manager) Widget(id string) (Widget, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if i := m.indexLocked(id); i >= 0 {
		return m.widgets[i], true
	}
	return nil, false
}

// Widgets returns all widgets, bottom first
func (m *Manager) Widgets() []Widget {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Widget, len(m.widgets))
	copy(out, m.widgets)
	return out
}

// SetEnabled enables or disables the entire overlay
func (m *Manager) SetEnabled(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = enabled
}

// IsEnabled returns whether the overlay is enabled
func (m *Manager) IsEnabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.enabled
}

// Render draws every enabled widget onto img. A failing widget is logged and
// skipped.
func (m *Manager) Render(img *image.RGBA) {
	if !m.IsEnabled() {
		return
	}

	for _, widget := range m.Widgets() {
		if !widget.IsEnabled() {
			continue
		}
		if err := widget.Render(img); err != nil {
			logger.WithComponent("overlay").Warn().
				Err(err).
				Str("id", widget.ID()).
				Msg("Failed to render widget")
		}
	}
}

// Clear removes all widgets
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.widgets = nil
}

func (m *Manager) indexLocked(id string) int {
	for i, w := range m.widgets {
		if w.ID() == id {
			return i
		}
	}
	return -1
}
