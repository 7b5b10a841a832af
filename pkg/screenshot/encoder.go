package screenshot

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
)

// DefaultQuality is the JPEG quality used unless configured otherwise.
const DefaultQuality = 95

// Encoder compresses a rendered bitmap.
type Encoder interface {
	Encode(ctx context.Context, img image.Image) ([]byte, error)
}

// JPEGEncoder encodes baseline JPEG at Quality (1-100).
type JPEGEncoder struct {
	Quality int
}

func (e JPEGEncoder) Encode(ctx context.Context, img image.Image) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	q := e.Quality
	if q < 1 || q > 100 {
		q = DefaultQuality
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: q}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncoderFunc adapts a function to Encoder.
type EncoderFunc func(ctx context.Context, img image.Image) ([]byte, error)

func (f EncoderFunc) Encode(ctx context.Context, img image.Image) ([]byte, error) {
	return f(ctx, img)
}
