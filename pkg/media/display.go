package media

import "image"

// DisplayAt returns the display containing p, or the first display when p is
// off every screen.
func DisplayAt(displays []Display, p image.Point) (Display, bool) {
	if len(displays) == 0 {
		return Display{}, false
	}
	for _, d := range displays {
		if p.In(d.Bounds) {
			return d, true
		}
	}
	return displays[0], true
}

// Primary returns the primary display, or the first one.
func Primary(displays []Display) (Display, bool) {
	for _, d := range displays {
		if d.Primary {
			return d, true
		}
	}
	if len(displays) == 0 {
		return Display{}, false
	}
	return displays[0], true
}
