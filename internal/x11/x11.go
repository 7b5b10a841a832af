//go:build linux || freebsd

// Package x11 is a display-capture host for X servers. Frames are grabbed
// from the root window, through MIT-SHM when the server supports it.
package x11

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/gen2brain/shm"
	"github.com/jezek/xgb"
	mshm "github.com/jezek/xgb/shm"
	"github.com/jezek/xgb/xinerama"
	"github.com/jezek/xgb/xproto"
	"go.uber.org/zap"

	"github.com/suutaku/winshot/internal/utils"
	"github.com/suutaku/winshot/pkg/media"
)

const activeWindowAtom = "_NET_ACTIVE_WINDOW"

type Host struct {
	c        *xgb.Conn
	useShm   bool
	screen   *xproto.ScreenInfo
	displays []media.Display
	log      *zap.Logger

	mu       sync.Mutex
	selected *media.Display
}

// New connects to the X server named by $DISPLAY.
func New(log *zap.Logger) (*Host, error) {
	if log == nil {
		log = zap.NewNop()
	}
	c, err := xgb.NewConn()
	if err != nil {
		return nil, fmt.Errorf("connect to X server: %w", err)
	}

	screen := xproto.Setup(c).DefaultScreen(c)
	root := image.Rect(0, 0, int(screen.WidthInPixels), int(screen.HeightInPixels))

	var displays []media.Display
	if err := xinerama.Init(c); err != nil {
		log.Debug("xinerama unavailable", zap.Error(err))
	} else if reply, err := xinerama.QueryScreens(c).Reply(); err != nil {
		log.Debug("xinerama query failed", zap.Error(err))
	} else {
		displays = xineramaDisplays(reply.ScreenInfo)
	}
	if len(displays) == 0 {
		displays = []media.Display{{Index: 0, Name: "root", Bounds: root, Primary: true}}
	}

	useShm := true
	if err := mshm.Init(c); err != nil {
		log.Debug("MIT-SHM unavailable, falling back to GetImage", zap.Error(err))
		useShm = false
	}

	return &Host{
		c:        c,
		useShm:   useShm,
		screen:   screen,
		displays: displays,
		log:      log,
	}, nil
}

func xineramaDisplays(infos []xinerama.ScreenInfo) []media.Display {
	out := make([]media.Display, 0, len(infos))
	for i, s := range infos {
		x, y := int(s.XOrg), int(s.YOrg)
		out = append(out, media.Display{
			Index:   i,
			Name:    fmt.Sprintf("xinerama-%d", i),
			Bounds:  image.Rect(x, y, x+int(s.Width), y+int(s.Height)),
			Primary: i == 0,
		})
	}
	return out
}

func (h *Host) Close() error {
	if h.c != nil {
		h.log.Debug("close X connection")
		h.c.Close()
		h.c = nil
	}
	return nil
}

func (h *Host) Displays(context.Context) ([]media.Display, error) {
	out := make([]media.Display, len(h.displays))
	copy(out, h.displays)
	return out, nil
}

func (h *Host) ActiveWindow(ctx context.Context) (media.Window, bool, error) {
	id, ok, err := h.activeWindowID()
	if err != nil || !ok {
		return media.Window{}, false, err
	}
	return h.window(id)
}

func (h *Host) activeWindowID() (xproto.Window, bool, error) {
	atom, err := xproto.InternAtom(h.c, true, uint16(len(activeWindowAtom)), activeWindowAtom).Reply()
	if err != nil {
		return 0, false, fmt.Errorf("intern %s: %w", activeWindowAtom, err)
	}
	if atom.Atom == xproto.AtomNone {
		// no EWMH window manager
		return 0, false, nil
	}
	prop, err := xproto.GetProperty(h.c, false, h.screen.Root, atom.Atom, xproto.AtomWindow, 0, 1).Reply()
	if err != nil {
		return 0, false, fmt.Errorf("read %s: %w", activeWindowAtom, err)
	}
	id, ok := decodeWindowProperty(prop.Format, prop.Value)
	return id, ok, nil
}

func decodeWindowProperty(format byte, value []byte) (xproto.Window, bool) {
	if format != 32 || len(value) < 4 {
		return 0, false
	}
	id := xproto.Window(xgb.Get32(value))
	return id, id != 0
}

func (h *Host) window(id xproto.Window) (media.Window, bool, error) {
	geom, err := xproto.GetGeometry(h.c, xproto.Drawable(id)).Reply()
	if err != nil {
		var badWindow xproto.WindowError
		if errors.As(err, &badWindow) {
			return media.Window{}, false, nil
		}
		return media.Window{}, false, fmt.Errorf("window %d geometry: %w", id, err)
	}
	pos, err := xproto.TranslateCoordinates(h.c, id, h.screen.Root, 0, 0).Reply()
	if err != nil {
		return media.Window{}, false, fmt.Errorf("window %d position: %w", id, err)
	}

	x, y := int(pos.DstX), int(pos.DstY)
	display := windowDisplay(h.displays, image.Rect(x, y, x+int(geom.Width), y+int(geom.Height)))
	return media.Window{
		ID:          uint64(id),
		ScreenX:     float64(x),
		ScreenY:     float64(y),
		InnerWidth:  float64(geom.Width),
		InnerHeight: float64(geom.Height),
		// X11 geometry is already in device pixels
		DevicePixelRatio: 1,
		DisplayOffset: &media.Offset{
			X: float64(display.Bounds.Min.X),
			Y: float64(display.Bounds.Min.Y),
		},
	}, true, nil
}

// SetDisplayMediaSelection makes the next stream capture the display that
// holds the requested window.
func (h *Host) SetDisplayMediaSelection(ctx context.Context, sel media.Selection) error {
	var (
		win media.Window
		ok  bool
		err error
	)
	switch {
	case sel.WindowID != 0:
		win, ok, err = h.window(xproto.Window(sel.WindowID))
	case sel.ActiveWindow:
		win, ok, err = h.ActiveWindow(ctx)
	default:
		return nil
	}
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("window %d not found", sel.WindowID)
	}
	d := windowDisplay(h.displays, windowRect(win))

	h.mu.Lock()
	h.selected = &d
	h.mu.Unlock()
	return nil
}

func (h *Host) GetDisplayMedia(ctx context.Context, c media.Constraints) (*media.Stream, error) {
	if !c.Video {
		return nil, errors.New("x11: only video capture is supported")
	}
	if c.Audio {
		return nil, errors.New("x11: audio capture is not supported")
	}

	display := h.streamDisplay(ctx)
	h.log.Debug("open display stream", zap.Int("display", display.Index), zap.Stringer("bounds", display.Bounds))
	rect := display.Bounds
	track := media.NewFuncTrack(func(context.Context) (*image.RGBA, error) {
		return h.grab(rect)
	}, nil)
	return media.NewStream(track), nil
}

// streamDisplay takes the pending selection, or else picks the display of
// the active window, or else the primary display.
func (h *Host) streamDisplay(ctx context.Context) media.Display {
	h.mu.Lock()
	selected := h.selected
	h.selected = nil
	h.mu.Unlock()
	if selected != nil {
		return *selected
	}

	win, ok, err := h.ActiveWindow(ctx)
	if err != nil {
		h.log.Debug("active window lookup failed, using primary display", zap.Error(err))
	}
	if err == nil && ok {
		return windowDisplay(h.displays, windowRect(win))
	}
	d, _ := media.Primary(h.displays)
	return d
}

// windowDisplay returns the display holding the centre of r, falling back
// to the first display.
func windowDisplay(displays []media.Display, r image.Rectangle) media.Display {
	d, _ := media.DisplayAt(displays, image.Pt(r.Min.X+r.Dx()/2, r.Min.Y+r.Dy()/2))
	return d
}

func windowRect(win media.Window) image.Rectangle {
	x, y := int(win.ScreenX), int(win.ScreenY)
	return image.Rect(x, y, x+int(win.InnerWidth), y+int(win.InnerHeight))
}

// grab copies rect, in root window coordinates, off the screen.
func (h *Host) grab(rect image.Rectangle) (*image.RGBA, error) {
	whole := image.Rect(0, 0, int(h.screen.WidthInPixels), int(h.screen.HeightInPixels))
	intersect := whole.Intersect(rect)
	if intersect.Empty() {
		return nil, fmt.Errorf("select invalid range %v", rect)
	}

	img, err := utils.CreateImage(image.Rect(0, 0, intersect.Dx(), intersect.Dy()))
	if err != nil {
		return nil, err
	}

	var data []byte
	if h.useShm {
		shmSize := intersect.Dx() * intersect.Dy() * 4
		shmId, err := shm.Get(shm.IPC_PRIVATE, shmSize, shm.IPC_CREAT|0777)
		if err != nil {
			return nil, fmt.Errorf("shmget: %w", err)
		}

		seg, err := mshm.NewSegId(h.c)
		if err != nil {
			shm.Rm(shmId)
			return nil, fmt.Errorf("new shm segment: %w", err)
		}

		data, err = shm.At(shmId, 0, 0)
		if err != nil {
			shm.Rm(shmId)
			return nil, fmt.Errorf("shmat: %w", err)
		}

		mshm.Attach(h.c, seg, uint32(shmId), false)

		defer mshm.Detach(h.c, seg)
		defer shm.Rm(shmId)
		defer shm.Dt(data)

		_, err = mshm.GetImage(h.c, xproto.Drawable(h.screen.Root),
			int16(intersect.Min.X), int16(intersect.Min.Y),
			uint16(intersect.Dx()), uint16(intersect.Dy()), 0xffffffff,
			byte(xproto.ImageFormatZPixmap), seg, 0).Reply()
		if err != nil {
			return nil, fmt.Errorf("shm get image: %w", err)
		}
	} else {
		xImg, err := xproto.GetImage(h.c, xproto.ImageFormatZPixmap, xproto.Drawable(h.screen.Root),
			int16(intersect.Min.X), int16(intersect.Min.Y),
			uint16(intersect.Dx()), uint16(intersect.Dy()), 0xffffffff).Reply()
		if err != nil {
			return nil, fmt.Errorf("get image: %w", err)
		}
		data = xImg.Data
	}

	if err := utils.BGRAToRGBA(img, data, intersect.Dx()*4); err != nil {
		return nil, err
	}
	return img, nil
}
