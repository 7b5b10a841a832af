//go:build windows

// Package win is a display-capture host built on GDI.
package win

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"sync"
	"syscall"
	"unsafe"

	winapi "github.com/lxn/win"
	"go.uber.org/zap"

	"github.com/suutaku/winshot/internal/utils"
	"github.com/suutaku/winshot/pkg/media"
)

var (
	libUser32, _               = syscall.LoadLibrary("user32.dll")
	funcGetDesktopWindow, _    = syscall.GetProcAddress(syscall.Handle(libUser32), "GetDesktopWindow")
	funcEnumDisplayMonitors, _ = syscall.GetProcAddress(syscall.Handle(libUser32), "EnumDisplayMonitors")
	funcGetMonitorInfo, _      = syscall.GetProcAddress(syscall.Handle(libUser32), "GetMonitorInfoW")
	funcEnumDisplaySettings, _ = syscall.GetProcAddress(syscall.Handle(libUser32), "EnumDisplaySettingsW")
	funcGetDpiForWindow, _     = syscall.GetProcAddress(syscall.Handle(libUser32), "GetDpiForWindow")
	funcIsWindow, _            = syscall.GetProcAddress(syscall.Handle(libUser32), "IsWindow")
)

const (
	baseDPI            = 96
	monitorInfoPrimary = 0x1
)

type Host struct {
	log *zap.Logger

	mu     sync.Mutex
	hwnd   winapi.HWND
	hdc    winapi.HDC
	memDev winapi.HDC

	selMu    sync.Mutex
	selected *media.Display
}

func New(log *zap.Logger) (*Host, error) {
	if log == nil {
		log = zap.NewNop()
	}
	hwnd := getDesktopWindow()
	hdc := winapi.GetDC(hwnd)
	if hdc == 0 {
		return nil, errors.New("GetDC failed")
	}
	memDev := winapi.CreateCompatibleDC(hdc)
	if memDev == 0 {
		winapi.ReleaseDC(hwnd, hdc)
		return nil, errors.New("create compatible dc failed")
	}
	return &Host{log: log, hwnd: hwnd, hdc: hdc, memDev: memDev}, nil
}

func (h *Host) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.memDev != 0 {
		winapi.ReleaseDC(h.hwnd, h.hdc)
		winapi.DeleteDC(h.memDev)
		h.memDev = 0
	}
	return nil
}

func (h *Host) Displays(context.Context) ([]media.Display, error) {
	var monitors []winapi.HMONITOR
	enumDisplayMonitors(winapi.HDC(0), nil, syscall.NewCallback(collectMonitorCallback), uintptr(unsafe.Pointer(&monitors)))
	if len(monitors) == 0 {
		return nil, errors.New("no monitors found")
	}
	displays := make([]media.Display, 0, len(monitors))
	for i, m := range monitors {
		info, ok := monitorInfo(m)
		if !ok {
			continue
		}
		bounds := rectToImage(info.RcMonitor)
		if size := getMonitorRealSize(m); size != nil {
			bounds = rectToImage(*size)
		}
		displays = append(displays, media.Display{
			Index:   i,
			Name:    syscall.UTF16ToString(info.DeviceName[:]),
			Bounds:  bounds,
			Primary: info.DwFlags&monitorInfoPrimary != 0,
		})
	}
	return displays, nil
}

func (h *Host) ActiveWindow(context.Context) (media.Window, bool, error) {
	hwnd := winapi.GetForegroundWindow()
	if hwnd == 0 {
		return media.Window{}, false, nil
	}
	return windowGeometry(hwnd)
}

func windowGeometry(hwnd winapi.HWND) (media.Window, bool, error) {
	if !isWindow(hwnd) {
		return media.Window{}, false, nil
	}
	var client winapi.RECT
	if !winapi.GetClientRect(hwnd, &client) {
		return media.Window{}, false, fmt.Errorf("GetClientRect failed for window %#x", hwnd)
	}
	origin := winapi.POINT{}
	if !winapi.ClientToScreen(hwnd, &origin) {
		return media.Window{}, false, fmt.Errorf("ClientToScreen failed for window %#x", hwnd)
	}

	dpr := windowScale(hwnd)
	win := media.Window{
		ID:               uint64(hwnd),
		ScreenX:          float64(origin.X) / dpr,
		ScreenY:          float64(origin.Y) / dpr,
		InnerWidth:       float64(client.Right-client.Left) / dpr,
		InnerHeight:      float64(client.Bottom-client.Top) / dpr,
		DevicePixelRatio: dpr,
	}
	if info, ok := monitorInfo(winapi.MonitorFromWindow(hwnd, winapi.MONITOR_DEFAULTTONEAREST)); ok {
		win.DisplayOffset = &media.Offset{
			X: float64(info.RcMonitor.Left) / dpr,
			Y: float64(info.RcMonitor.Top) / dpr,
		}
	}
	return win, true, nil
}

// windowScale is the window's DPI over 96, preferring GetDpiForWindow
// (Windows 10 1607+) over the desktop DC's LOGPIXELSX.
func windowScale(hwnd winapi.HWND) float64 {
	if funcGetDpiForWindow != 0 {
		if dpi, _, _ := syscall.Syscall(funcGetDpiForWindow, 1, uintptr(hwnd), 0, 0); dpi != 0 {
			return scaleFromDPI(int(dpi))
		}
	}
	hdc := winapi.GetDC(0)
	if hdc == 0 {
		return 1
	}
	defer winapi.ReleaseDC(0, hdc)
	return scaleFromDPI(int(winapi.GetDeviceCaps(hdc, winapi.LOGPIXELSX)))
}

func scaleFromDPI(dpi int) float64 {
	if dpi <= 0 {
		return 1
	}
	return math.Round(float64(dpi)/baseDPI*100) / 100
}

// SetDisplayMediaSelection makes the next stream capture the monitor holding
// the requested (or foreground) window.
func (h *Host) SetDisplayMediaSelection(ctx context.Context, sel media.Selection) error {
	hwnd := winapi.HWND(sel.WindowID)
	if hwnd == 0 && sel.ActiveWindow {
		hwnd = winapi.GetForegroundWindow()
	}
	if hwnd == 0 || !isWindow(hwnd) {
		return fmt.Errorf("window %#x not found", sel.WindowID)
	}
	d, err := h.windowDisplay(ctx, hwnd)
	if err != nil {
		return err
	}

	h.selMu.Lock()
	h.selected = &d
	h.selMu.Unlock()
	return nil
}

// windowDisplay returns the display of the monitor nearest hwnd, the same
// monitor windowGeometry reports as the display offset.
func (h *Host) windowDisplay(ctx context.Context, hwnd winapi.HWND) (media.Display, error) {
	info, ok := monitorInfo(winapi.MonitorFromWindow(hwnd, winapi.MONITOR_DEFAULTTONEAREST))
	if !ok {
		return media.Display{}, errors.New("GetMonitorInfo failed")
	}
	displays, err := h.Displays(ctx)
	if err != nil {
		return media.Display{}, err
	}
	d, _ := media.DisplayAt(displays, image.Pt(int(info.RcMonitor.Left), int(info.RcMonitor.Top)))
	return d, nil
}

func (h *Host) GetDisplayMedia(ctx context.Context, c media.Constraints) (*media.Stream, error) {
	if !c.Video || c.Audio {
		return nil, errors.New("win: only video-only capture is supported")
	}
	h.selMu.Lock()
	selected := h.selected
	h.selected = nil
	h.selMu.Unlock()

	var display media.Display
	if selected != nil {
		display = *selected
	} else if hwnd := winapi.GetForegroundWindow(); hwnd != 0 && isWindow(hwnd) {
		d, err := h.windowDisplay(ctx, hwnd)
		if err != nil {
			return nil, err
		}
		display = d
	} else {
		displays, err := h.Displays(ctx)
		if err != nil {
			return nil, err
		}
		display, _ = media.Primary(displays)
	}

	h.log.Debug("open display stream", zap.Int("display", display.Index), zap.Stringer("bounds", display.Bounds))
	rect := display.Bounds
	track := media.NewFuncTrack(func(context.Context) (*image.RGBA, error) {
		return h.grab(rect)
	}, nil)
	return media.NewStream(track), nil
}

// grab copies rect, in virtual screen coordinates, off the desktop DC.
func (h *Host) grab(rect image.Rectangle) (*image.RGBA, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.memDev == 0 {
		return nil, errors.New("host closed")
	}

	w, hgt := rect.Dx(), rect.Dy()
	img, err := utils.CreateImage(image.Rect(0, 0, w, hgt))
	if err != nil {
		return nil, err
	}
	bitmap := winapi.CreateCompatibleBitmap(h.hdc, int32(w), int32(hgt))
	if bitmap == 0 {
		return nil, errors.New("CreateCompatibleBitmap failed")
	}
	defer winapi.DeleteObject(winapi.HGDIOBJ(bitmap))

	var header winapi.BITMAPINFOHEADER
	header.BiSize = uint32(unsafe.Sizeof(header))
	header.BiPlanes = 1
	header.BiBitCount = 32
	header.BiWidth = int32(w)
	header.BiHeight = int32(-hgt)
	header.BiCompression = winapi.BI_RGB
	header.BiSizeImage = 0

	// GetDIBits balks at using Go memory on some systems. The MSDN example uses
	// GlobalAlloc, so we'll do that too. See:
	// https://docs.microsoft.com/en-gb/windows/desktop/gdi/capturing-an-image
	stride := int(((int64(w)*int64(header.BiBitCount) + 31) / 32) * 4)
	bitmapDataSize := uintptr(stride * hgt)
	hmem := winapi.GlobalAlloc(winapi.GMEM_MOVEABLE, bitmapDataSize)
	defer winapi.GlobalFree(hmem)
	memptr := winapi.GlobalLock(hmem)
	defer winapi.GlobalUnlock(hmem)

	old := winapi.SelectObject(h.memDev, winapi.HGDIOBJ(bitmap))
	if old == 0 {
		return nil, errors.New("SelectObject failed")
	}
	defer winapi.SelectObject(h.memDev, old)

	if !winapi.BitBlt(h.memDev, 0, 0, int32(w), int32(hgt), h.hdc, int32(rect.Min.X), int32(rect.Min.Y), winapi.SRCCOPY) {
		return nil, errors.New("BitBlt failed")
	}

	if winapi.GetDIBits(h.hdc, bitmap, 0, uint32(hgt), (*uint8)(memptr), (*winapi.BITMAPINFO)(unsafe.Pointer(&header)), winapi.DIB_RGB_COLORS) == 0 {
		return nil, errors.New("GetDIBits failed")
	}

	if err := utils.BGRAToRGBA(img, unsafe.Slice((*byte)(memptr), int(bitmapDataSize)), stride); err != nil {
		return nil, err
	}
	return img, nil
}

func rectToImage(r winapi.RECT) image.Rectangle {
	return image.Rect(int(r.Left), int(r.Top), int(r.Right), int(r.Bottom))
}

func getDesktopWindow() winapi.HWND {
	ret, _, _ := syscall.Syscall(funcGetDesktopWindow, 0, 0, 0, 0)
	return winapi.HWND(ret)
}

func isWindow(hwnd winapi.HWND) bool {
	ret, _, _ := syscall.Syscall(funcIsWindow, 1, uintptr(hwnd), 0, 0)
	return ret != 0
}

func enumDisplayMonitors(hdc winapi.HDC, lprcClip *winapi.RECT, lpfnEnum uintptr, dwData uintptr) bool {
	ret, _, _ := syscall.Syscall6(funcEnumDisplayMonitors, 4,
		uintptr(hdc),
		uintptr(unsafe.Pointer(lprcClip)),
		lpfnEnum,
		dwData,
		0,
		0)
	return int(ret) != 0
}

func collectMonitorCallback(hMonitor winapi.HMONITOR, hdcMonitor winapi.HDC, lprcMonitor *winapi.RECT, dwData uintptr) uintptr {
	monitors := (*[]winapi.HMONITOR)(unsafe.Pointer(dwData))
	*monitors = append(*monitors, hMonitor)
	return uintptr(1)
}

type _MONITORINFOEX struct {
	winapi.MONITORINFO
	DeviceName [winapi.CCHDEVICENAME]uint16
}

func monitorInfo(hMonitor winapi.HMONITOR) (_MONITORINFOEX, bool) {
	info := _MONITORINFOEX{}
	if hMonitor == 0 {
		return info, false
	}
	info.CbSize = uint32(unsafe.Sizeof(info))
	ret, _, _ := syscall.Syscall(funcGetMonitorInfo, 2, uintptr(hMonitor), uintptr(unsafe.Pointer(&info)), 0)
	return info, ret != 0
}

const _ENUM_CURRENT_SETTINGS = 0xFFFFFFFF

type _DEVMODE struct {
	_            [68]byte
	DmSize       uint16
	_            [6]byte
	DmPosition   winapi.POINT
	_            [86]byte
	DmPelsWidth  uint32
	DmPelsHeight uint32
	_            [40]byte
}

// getMonitorRealSize reads the monitor's current display settings, which
// carry its real resolution rather than the DPI scaled one. It returns nil
// when either call fails so callers can keep the EnumDisplayMonitors bounds.
func getMonitorRealSize(hMonitor winapi.HMONITOR) *winapi.RECT {
	info, ok := monitorInfo(hMonitor)
	if !ok {
		return nil
	}

	devMode := _DEVMODE{}
	devMode.DmSize = uint16(unsafe.Sizeof(devMode))

	if ret, _, _ := syscall.Syscall(funcEnumDisplaySettings, 3, uintptr(unsafe.Pointer(&info.DeviceName[0])), _ENUM_CURRENT_SETTINGS, uintptr(unsafe.Pointer(&devMode))); ret == 0 {
		return nil
	}

	return &winapi.RECT{
		Left:   devMode.DmPosition.X,
		Right:  devMode.DmPosition.X + int32(devMode.DmPelsWidth),
		Top:    devMode.DmPosition.Y,
		Bottom: devMode.DmPosition.Y + int32(devMode.DmPelsHeight),
	}
}
