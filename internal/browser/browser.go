// Package browser is a display-capture host over the Chrome DevTools
// protocol. The focused page's browser window is the active window and page
// screenshots feed the stream.
package browser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"github.com/suutaku/winshot/pkg/media"
)

// Options select the browser to drive. With no DebuggerURL a local Chrome is
// launched.
type Options struct {
	DebuggerURL string
	Bin         string
	Headless    bool
}

type Host struct {
	log      *zap.Logger
	browser  *rod.Browser
	launcher *launcher.Launcher

	mu       sync.Mutex
	selected *rod.Page
}

func New(ctx context.Context, opts Options, log *zap.Logger) (*Host, error) {
	if log == nil {
		log = zap.NewNop()
	}
	h := &Host{log: log}

	controlURL := opts.DebuggerURL
	if controlURL == "" {
		l := launcher.New().Headless(opts.Headless)
		if opts.Bin != "" {
			l = l.Bin(opts.Bin)
		}
		url, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("launch chrome: %w", err)
		}
		h.launcher = l
		controlURL = url
	}

	b := rod.New().ControlURL(controlURL).Context(ctx)
	if err := b.Connect(); err != nil {
		h.cleanup()
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}
	h.browser = b
	log.Debug("connected to browser", zap.String("url", controlURL), zap.Bool("launched", h.launcher != nil))
	return h, nil
}

// Close shuts down a browser this host launched. A browser reached through
// DebuggerURL is left running.
func (h *Host) Close() error {
	if h.launcher == nil {
		return nil
	}
	var err error
	if h.browser != nil {
		err = h.browser.Close()
	}
	h.cleanup()
	return err
}

func (h *Host) cleanup() {
	if h.launcher != nil {
		h.launcher.Kill()
		h.launcher.Cleanup()
	}
}

// OpenPage opens url in a new tab and waits for it to load.
func (h *Host) OpenPage(ctx context.Context, url string) error {
	p, err := h.browser.Context(ctx).Page(proto.TargetCreateTarget{URL: url})
	if err != nil {
		return fmt.Errorf("open %s: %w", url, err)
	}
	if err := p.WaitLoad(); err != nil {
		return fmt.Errorf("load %s: %w", url, err)
	}
	return nil
}

// pageGeometry is what the page reports about its own window.
type pageGeometry struct {
	X         float64  `json:"x"`
	Y         float64  `json:"y"`
	Width     float64  `json:"w"`
	Height    float64  `json:"h"`
	DPR       float64  `json:"dpr"`
	AvailLeft *float64 `json:"availLeft"`
	AvailTop  *float64 `json:"availTop"`
}

const geometryJS = `() => ({
	x: window.screenX,
	y: window.screenY,
	w: window.innerWidth,
	h: window.innerHeight,
	dpr: window.devicePixelRatio,
	availLeft: typeof window.screen.availLeft === "number" ? window.screen.availLeft : null,
	availTop: typeof window.screen.availTop === "number" ? window.screen.availTop : null,
})`

func (g pageGeometry) window(id uint64) media.Window {
	win := media.Window{
		ID:               id,
		ScreenX:          g.X,
		ScreenY:          g.Y,
		InnerWidth:       g.Width,
		InnerHeight:      g.Height,
		DevicePixelRatio: g.DPR,
	}
	if g.AvailLeft != nil || g.AvailTop != nil {
		off := media.Offset{}
		if g.AvailLeft != nil {
			off.X = *g.AvailLeft
		}
		if g.AvailTop != nil {
			off.Y = *g.AvailTop
		}
		win.DisplayOffset = &off
	}
	return win
}

// focusedPage returns the page that has focus, else the first visible one.
func (h *Host) focusedPage(ctx context.Context) (*rod.Page, error) {
	pages, err := h.browser.Context(ctx).Pages()
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	var visible *rod.Page
	for _, p := range pages {
		res, err := p.Context(ctx).Eval(`() => ({focused: document.hasFocus(), visible: document.visibilityState === "visible"})`)
		if err != nil {
			h.log.Debug("skip page", zap.String("target", string(p.TargetID)), zap.Error(err))
			continue
		}
		if res.Value.Get("focused").Bool() {
			return p, nil
		}
		if visible == nil && res.Value.Get("visible").Bool() {
			visible = p
		}
	}
	return visible, nil
}

func (h *Host) windowID(p *rod.Page) (uint64, error) {
	res, err := proto.BrowserGetWindowForTarget{TargetID: p.TargetID}.Call(h.browser)
	if err != nil {
		return 0, fmt.Errorf("window for target %s: %w", p.TargetID, err)
	}
	return uint64(res.WindowID), nil
}

func (h *Host) ActiveWindow(ctx context.Context) (media.Window, bool, error) {
	p, err := h.focusedPage(ctx)
	if err != nil || p == nil {
		return media.Window{}, false, err
	}
	id, err := h.windowID(p)
	if err != nil {
		return media.Window{}, false, err
	}
	res, err := p.Context(ctx).Eval(geometryJS)
	if err != nil {
		return media.Window{}, false, fmt.Errorf("read page geometry: %w", err)
	}
	var g pageGeometry
	if err := res.Value.Unmarshal(&g); err != nil {
		return media.Window{}, false, fmt.Errorf("decode page geometry: %w", err)
	}
	return g.window(id), true, nil
}

// SetDisplayMediaSelection makes the next stream capture a page of the given
// browser window, or the focused page.
func (h *Host) SetDisplayMediaSelection(ctx context.Context, sel media.Selection) error {
	var target *rod.Page
	if sel.WindowID != 0 {
		pages, err := h.browser.Context(ctx).Pages()
		if err != nil {
			return fmt.Errorf("list pages: %w", err)
		}
		for _, p := range pages {
			if id, err := h.windowID(p); err == nil && id == sel.WindowID {
				target = p
				break
			}
		}
	}
	if target == nil && sel.ActiveWindow {
		p, err := h.focusedPage(ctx)
		if err != nil {
			return err
		}
		target = p
	}
	if target == nil {
		return fmt.Errorf("browser window %d not found", sel.WindowID)
	}
	h.mu.Lock()
	h.selected = target
	h.mu.Unlock()
	return nil
}

func (h *Host) GetDisplayMedia(ctx context.Context, c media.Constraints) (*media.Stream, error) {
	if !c.Video || c.Audio {
		return nil, errors.New("browser: only video-only capture is supported")
	}
	h.mu.Lock()
	page := h.selected
	h.selected = nil
	h.mu.Unlock()

	if page == nil {
		p, err := h.focusedPage(ctx)
		if err != nil {
			return nil, err
		}
		if p == nil {
			return nil, errors.New("browser: no page to capture")
		}
		page = p
	}
	h.log.Debug("open page stream", zap.String("target", string(page.TargetID)))

	track := media.NewFuncTrack(func(ctx context.Context) (*image.RGBA, error) {
		data, err := page.Context(ctx).Screenshot(false, nil)
		if err != nil {
			return nil, fmt.Errorf("page screenshot: %w", err)
		}
		return decodePNG(data)
	}, nil)
	return media.NewStream(track), nil
}

func decodePNG(data []byte) (*image.RGBA, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode page screenshot: %w", err)
	}
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba, nil
	}
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Rect, img, b.Min, draw.Src)
	return rgba, nil
}
