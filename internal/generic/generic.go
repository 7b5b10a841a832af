// Package generic is a portable display-capture host on top of
// kbinani/screenshot. It has no notion of windows, so the display selected
// for capture stands in for the active window.
package generic

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/kbinani/screenshot"
	"go.uber.org/zap"

	"github.com/suutaku/winshot/pkg/media"
)

type Host struct {
	log *zap.Logger

	numDisplays   func() int
	displayBounds func(int) image.Rectangle
	captureRect   func(image.Rectangle) (*image.RGBA, error)

	mu       sync.Mutex
	selected int
}

func New(log *zap.Logger) *Host {
	if log == nil {
		log = zap.NewNop()
	}
	return &Host{
		log:           log,
		numDisplays:   screenshot.NumActiveDisplays,
		displayBounds: screenshot.GetDisplayBounds,
		captureRect:   screenshot.CaptureRect,
		selected:      -1,
	}
}

func (h *Host) Close() error { return nil }

func (h *Host) Displays(context.Context) ([]media.Display, error) {
	n := h.numDisplays()
	if n <= 0 {
		return nil, errors.New("no active displays")
	}
	out := make([]media.Display, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, media.Display{
			Index:   i,
			Name:    fmt.Sprintf("display-%d", i),
			Bounds:  h.displayBounds(i),
			Primary: i == 0,
		})
	}
	return out, nil
}

// current returns the selected display, or the primary one. With take set
// the selection is cleared so it applies to a single stream.
func (h *Host) current(ctx context.Context, take bool) (media.Display, bool, error) {
	displays, err := h.Displays(ctx)
	if err != nil {
		return media.Display{}, false, err
	}
	h.mu.Lock()
	idx := h.selected
	if take {
		h.selected = -1
	}
	h.mu.Unlock()
	if idx >= 0 && idx < len(displays) {
		return displays[idx], true, nil
	}
	d, ok := media.Primary(displays)
	return d, ok, nil
}

// ActiveWindow reports the current display as a window with a pixel ratio
// of 1; its ID is the display index.
func (h *Host) ActiveWindow(ctx context.Context) (media.Window, bool, error) {
	d, ok, err := h.current(ctx, false)
	if err != nil || !ok {
		return media.Window{}, false, err
	}
	return media.Window{
		ID:               uint64(d.Index),
		ScreenX:          float64(d.Bounds.Min.X),
		ScreenY:          float64(d.Bounds.Min.Y),
		InnerWidth:       float64(d.Bounds.Dx()),
		InnerHeight:      float64(d.Bounds.Dy()),
		DevicePixelRatio: 1,
		DisplayOffset:    &media.Offset{X: float64(d.Bounds.Min.X), Y: float64(d.Bounds.Min.Y)},
	}, true, nil
}

// SetDisplayMediaSelection treats the window ID as a display index.
func (h *Host) SetDisplayMediaSelection(_ context.Context, sel media.Selection) error {
	n := h.numDisplays()
	if sel.WindowID >= uint64(n) {
		return fmt.Errorf("display %d out of range (%d displays)", sel.WindowID, n)
	}
	h.mu.Lock()
	h.selected = int(sel.WindowID)
	h.mu.Unlock()
	return nil
}

func (h *Host) GetDisplayMedia(ctx context.Context, c media.Constraints) (*media.Stream, error) {
	if !c.Video || c.Audio {
		return nil, errors.New("generic: only video-only capture is supported")
	}
	d, ok, err := h.current(ctx, true)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.New("generic: no display to capture")
	}
	h.log.Debug("open display stream", zap.Int("display", d.Index), zap.Stringer("bounds", d.Bounds))

	rect := d.Bounds
	track := media.NewFuncTrack(func(context.Context) (*image.RGBA, error) {
		img, err := h.captureRect(rect)
		if err != nil {
			return nil, fmt.Errorf("capture display %d: %w", d.Index, err)
		}
		return img, nil
	}, nil)
	return media.NewStream(track), nil
}
