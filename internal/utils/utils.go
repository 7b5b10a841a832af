package utils

import (
	"errors"
	"fmt"
	"image"
)

// MaxImageBytes caps a single bitmap at roughly 500MB (e.g. 11000x11000 RGBA).
const MaxImageBytes int64 = 500 * 1024 * 1024

var ErrInvalidSize = errors.New("invalid image size")

// CreateImage allocates an RGBA bitmap for rect, refusing empty or oversized
// requests.
func CreateImage(rect image.Rectangle) (*image.RGBA, error) {
	return CreateImageLimit(rect, MaxImageBytes)
}

// CreateImageLimit is CreateImage with a caller supplied cap. A limit <= 0
// disables the cap.
func CreateImageLimit(rect image.Rectangle, limit int64) (*image.RGBA, error) {
	if rect.Dx() <= 0 || rect.Dy() <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidSize, rect.Dx(), rect.Dy())
	}
	if size := int64(rect.Dx()) * int64(rect.Dy()) * 4; limit > 0 && size > limit {
		return nil, fmt.Errorf("%w: %dx%d needs %d bytes, limit %d", ErrInvalidSize, rect.Dx(), rect.Dy(), size, limit)
	}
	return image.NewRGBA(rect), nil
}

// BGRAToRGBA copies 32bpp BGRX rows from src into dst, forcing alpha to 255.
// srcStride is the byte length of one source row.
func BGRAToRGBA(dst *image.RGBA, src []byte, srcStride int) error {
	w, h := dst.Rect.Dx(), dst.Rect.Dy()
	if srcStride < w*4 || len(src) < srcStride*(h-1)+w*4 {
		return fmt.Errorf("short pixel buffer: %d bytes for %dx%d", len(src), w, h)
	}
	for y := 0; y < h; y++ {
		s := src[y*srcStride:]
		d := dst.Pix[y*dst.Stride:]
		for x := 0; x < w; x++ {
			i := x * 4
			d[i], d[i+1], d[i+2], d[i+3] = s[i+2], s[i+1], s[i], 255
		}
	}
	return nil
}
