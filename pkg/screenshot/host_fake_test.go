package screenshot

import (
	"context"
	"image"
	"image/color"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/suutaku/winshot/pkg/media"
)

type fakeTrack struct {
	id    string
	frame *image.RGBA
	err   error
	block bool
	stops atomic.Int32
}

func newFakeTrack(frame *image.RGBA) *fakeTrack {
	return &fakeTrack{id: uuid.NewString(), frame: frame}
}

func (t *fakeTrack) ID() string   { return t.id }
func (t *fakeTrack) Kind() string { return media.KindVideo }

func (t *fakeTrack) State() media.TrackState {
	if t.stops.Load() > 0 {
		return media.TrackEnded
	}
	return media.TrackLive
}

func (t *fakeTrack) ReadFrame(ctx context.Context) (*image.RGBA, error) {
	if t.State() == media.TrackEnded {
		return nil, media.ErrTrackEnded
	}
	if t.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if t.err != nil {
		return nil, t.err
	}
	return t.frame, nil
}

func (t *fakeTrack) Stop() { t.stops.Add(1) }

// fakeHost records every request a capturer makes.
type fakeHost struct {
	mu sync.Mutex

	win      media.Window
	hasWin   bool
	winErr   error
	mediaErr error
	hintErr  error
	panicMsg string

	newTrack func() *fakeTrack

	requests    int
	constraints []media.Constraints
	hints       []media.Selection
	streams     []*media.Stream
	tracks      []*fakeTrack
}

func solidFrame(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 200, A: 255})
		}
	}
	return img
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		hasWin: true,
		win: media.Window{
			ID:               42,
			ScreenX:          10,
			ScreenY:          20,
			InnerWidth:       40,
			InnerHeight:      30,
			DevicePixelRatio: 1,
		},
		newTrack: func() *fakeTrack { return newFakeTrack(solidFrame(160, 120)) },
	}
}

func (h *fakeHost) ActiveWindow(context.Context) (media.Window, bool, error) {
	return h.win, h.hasWin, h.winErr
}

func (h *fakeHost) GetDisplayMedia(_ context.Context, c media.Constraints) (*media.Stream, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.requests++
	h.constraints = append(h.constraints, c)
	if h.panicMsg != "" {
		panic(h.panicMsg)
	}
	if h.mediaErr != nil {
		return nil, h.mediaErr
	}
	track := h.newTrack()
	stream := media.NewStream(track)
	h.tracks = append(h.tracks, track)
	h.streams = append(h.streams, stream)
	return stream, nil
}

func (h *fakeHost) SetDisplayMediaSelection(_ context.Context, sel media.Selection) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hints = append(h.hints, sel)
	return h.hintErr
}
