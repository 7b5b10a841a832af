// Package media describes the host capabilities a screenshot capturer needs:
// active window geometry, display-capture streams, and source selection.
package media

import (
	"context"
	"errors"
	"image"
)

var (
	// ErrPermissionDenied is returned by hosts when the user or the platform
	// refuses a display-capture request.
	ErrPermissionDenied = errors.New("display capture permission denied")
	// ErrTrackEnded is returned when reading from a stopped track.
	ErrTrackEnded = errors.New("track ended")
)

// Offset is the origin of the display a window lives on.
type Offset struct {
	X float64
	Y float64
}

// Window is the geometry of a top level window in logical coordinates.
type Window struct {
	ID               uint64
	ScreenX          float64
	ScreenY          float64
	InnerWidth       float64
	InnerHeight      float64
	DevicePixelRatio float64

	// DisplayOffset is nil when the host cannot tell where the window's
	// display starts.
	DisplayOffset *Offset
}

// Constraints select what a display-capture stream carries.
type Constraints struct {
	Audio bool
	Video bool
}

// Selection biases the next display-media request.
type Selection struct {
	ActiveWindow bool
	WindowID     uint64
}

// Display is one monitor as reported by a host.
type Display struct {
	Index   int
	Name    string
	Bounds  image.Rectangle
	Primary bool
}

// WindowService reports the active window. ok is false when there is none.
type WindowService interface {
	ActiveWindow(ctx context.Context) (win Window, ok bool, err error)
}

// MediaDevices opens display-capture streams.
type MediaDevices interface {
	GetDisplayMedia(ctx context.Context, c Constraints) (*Stream, error)
}

// SelectionHinter is implemented by hosts that can bias source selection.
type SelectionHinter interface {
	SetDisplayMediaSelection(ctx context.Context, sel Selection) error
}

// DisplayLister is implemented by hosts that can enumerate displays.
type DisplayLister interface {
	Displays(ctx context.Context) ([]Display, error)
}

// Host is the minimum a capturer needs.
type Host interface {
	WindowService
	MediaDevices
}
