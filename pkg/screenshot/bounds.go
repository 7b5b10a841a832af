package screenshot

import (
	"image"
	"math"

	"github.com/suutaku/winshot/pkg/media"
)

// BoundingBox is a window's on-screen region in physical pixels, relative to
// the origin of the display it sits on.
type BoundingBox struct {
	X      int
	Y      int
	Width  int
	Height int
}

func (b BoundingBox) Left() int   { return b.X }
func (b BoundingBox) Top() int    { return b.Y }
func (b BoundingBox) Right() int  { return b.X + b.Width }
func (b BoundingBox) Bottom() int { return b.Y + b.Height }

func (b BoundingBox) Rect() image.Rectangle {
	return image.Rect(b.Left(), b.Top(), b.Right(), b.Bottom())
}

// ActiveWindowBounds converts a window's logical geometry to physical pixels.
// A missing display offset counts as zero and a non-positive pixel ratio as 1.
//
// Mixed pixel ratios across monitors are not accounted for: the window's own
// ratio is applied to its display-relative origin.
func ActiveWindowBounds(win media.Window) BoundingBox {
	var offX, offY float64
	if win.DisplayOffset != nil {
		offX, offY = win.DisplayOffset.X, win.DisplayOffset.Y
	}
	dpr := win.DevicePixelRatio
	if dpr <= 0 {
		dpr = 1
	}
	return BoundingBox{
		X:      int(math.Round((win.ScreenX - offX) * dpr)),
		Y:      int(math.Round((win.ScreenY - offY) * dpr)),
		Width:  int(math.Round(win.InnerWidth * dpr)),
		Height: int(math.Round(win.InnerHeight * dpr)),
	}
}
