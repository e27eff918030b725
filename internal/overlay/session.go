package overlay

import (
	"fmt"
	"image/color"

	"github.com/bryanchriswhite/photobooth/internal/booth"
)

// Widget IDs used by the session overlay
const (
	StatusWidgetID    = "status"
	CountdownWidgetID = "countdown"
	FlashWidgetID     = "flash"
)

// SessionOverlay mirrors a capture session onto the live preview: a shot
// counter in the corner, the countdown digit, and the flash wash on top.
type SessionOverlay struct {
	*Manager
	status    *TextWidget
	countdown *CountdownWidget
	flash     *FlashWidget
}

// NewSessionOverlay builds the three session widgets
func NewSessionOverlay() *SessionOverlay {
	o := &SessionOverlay{
		Manager:   NewManager(),
		status:    NewTextWidget(StatusWidgetID, "", 16, 16, 28),
		countdown: NewCountdownWidget(CountdownWidgetID),
		flash:     NewFlashWidget(FlashWidgetID),
	}
	o.status.SetBackground(&color.RGBA{0, 0, 0, 160})
	// Fixed IDs on a fresh manager cannot collide.
	_ = o.AddWidget(o.status)
	_ = o.AddWidget(o.countdown)
	_ = o.AddWidget(o.flash)
	return o
}

// Apply updates the widgets from a session snapshot
func (o *SessionOverlay) Apply(snap booth.Snapshot) {
	switch {
	case snap.Running:
		o.status.SetText(fmt.Sprintf("%d / %d", min(snap.Count+1, snap.Target), snap.Target))
	case snap.Count > 0:
		o.status.SetText(fmt.Sprintf("%d / %d", snap.Count, snap.Target))
	default:
		o.status.SetText("")
	}

	if snap.State == booth.StateCountdown {
		o.countdown.SetValue(snap.Countdown)
	} else {
		o.countdown.SetValue(0)
	}
	o.flash.SetActive(snap.Flash)
}
