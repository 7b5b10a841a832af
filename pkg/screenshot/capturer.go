// Package screenshot captures the active window as a JPEG through a
// display-capture stream supplied by a media.Host.
package screenshot

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/suutaku/winshot/internal/utils"
	"github.com/suutaku/winshot/pkg/media"
)

const (
	DefaultReadyTimeout   = 5 * time.Second
	DefaultFrameInterval  = 33 * time.Millisecond
	DefaultBufferedFrames = 2
)

// Screenshot is one encoded capture.
type Screenshot struct {
	Data       []byte
	Width      int
	Height     int
	Bounds     BoundingBox
	SessionID  string
	CapturedAt time.Time
}

// Capturer takes best-effort screenshots of the active window. Each call owns
// its stream, sink and bitmap; concurrent calls are independent.
type Capturer struct {
	host           media.Host
	log            *zap.Logger
	encoder        Encoder
	readyTimeout   time.Duration
	frameInterval  time.Duration
	bufferedFrames int
	maxBitmapBytes int64
	crop           bool
	sinks          *sinkTree
	now            func() time.Time
}

type Option func(*Capturer)

func WithLogger(l *zap.Logger) Option {
	return func(c *Capturer) {
		if l != nil {
			c.log = l
		}
	}
}

func WithEncoder(e Encoder) Option {
	return func(c *Capturer) {
		if e != nil {
			c.encoder = e
		}
	}
}

// WithQuality switches to a JPEG encoder with the given quality.
func WithQuality(q int) Option {
	return func(c *Capturer) { c.encoder = JPEGEncoder{Quality: q} }
}

func WithReadyTimeout(d time.Duration) Option {
	return func(c *Capturer) { c.readyTimeout = d }
}

func WithFrameInterval(d time.Duration) Option {
	return func(c *Capturer) { c.frameInterval = d }
}

func WithBufferedFrames(n int) Option {
	return func(c *Capturer) { c.bufferedFrames = n }
}

func WithMaxBitmapBytes(n int64) Option {
	return func(c *Capturer) { c.maxBitmapBytes = n }
}

// WithCrop crops the frame to the active window's bounding box. Off by
// default, in which case the output has the frame's native size.
func WithCrop(crop bool) Option {
	return func(c *Capturer) { c.crop = crop }
}

func New(host media.Host, opts ...Option) *Capturer {
	c := &Capturer{
		host:           host,
		log:            zap.NewNop(),
		encoder:        JPEGEncoder{Quality: DefaultQuality},
		readyTimeout:   DefaultReadyTimeout,
		frameInterval:  DefaultFrameInterval,
		bufferedFrames: DefaultBufferedFrames,
		maxBitmapBytes: utils.MaxImageBytes,
		sinks:          newSinkTree(),
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type captureRequest struct {
	windowID *uint64
}

type CaptureOption func(*captureRequest)

// WithTargetWindow hints the host to prefer the given window when it picks a
// capture source.
func WithTargetWindow(id uint64) CaptureOption {
	return func(r *captureRequest) { r.windowID = &id }
}

// Capture returns the screenshot and true, or false when no screenshot could
// be taken. Failures are logged, never returned.
func (c *Capturer) Capture(ctx context.Context, opts ...CaptureOption) (Screenshot, bool) {
	shot, err := c.Generate(ctx, opts...)
	if err != nil {
		if errors.Is(err, ErrNoActiveWindow) {
			c.log.Debug("screenshot not available", zap.Error(err))
		} else {
			c.log.Error("error taking screenshot", zap.Error(err))
		}
		return Screenshot{}, false
	}
	return shot, true
}

// Generate is Capture with the failure reason. Resources are released before
// it returns, whatever the outcome, and host panics are turned into errors.
func (c *Capturer) Generate(ctx context.Context, opts ...CaptureOption) (shot Screenshot, err error) {
	var req captureRequest
	for _, opt := range opts {
		opt(&req)
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("capture panicked: %v", r)
		}
	}()

	win, ok, err := c.host.ActiveWindow(ctx)
	if err != nil {
		return shot, fmt.Errorf("query active window: %w", err)
	}
	if !ok {
		return shot, ErrNoActiveWindow
	}
	bounds := ActiveWindowBounds(win)

	sess := &session{id: uuid.NewString(), log: c.log}
	defer sess.release()
	log := c.log.With(zap.String("session", sess.id))

	sess.sink = newVideoSink(sess.id, c.sinks, c.frameInterval, c.bufferedFrames, log)

	if req.windowID != nil {
		if hinter, ok := c.host.(media.SelectionHinter); ok {
			sel := media.Selection{ActiveWindow: true, WindowID: *req.windowID}
			if err := hinter.SetDisplayMediaSelection(ctx, sel); err != nil {
				log.Warn("display media selection hint failed", zap.Uint64("window", *req.windowID), zap.Error(err))
			}
		}
	}

	stream, err := c.host.GetDisplayMedia(ctx, media.Constraints{Audio: false, Video: true})
	if err != nil {
		return shot, fmt.Errorf("get display media: %w", err)
	}
	if stream == nil {
		return shot, fmt.Errorf("get display media: %w", ErrNoVideoTrack)
	}
	sess.stream = stream

	tracks := stream.VideoTracks()
	if len(tracks) == 0 {
		return shot, ErrNoVideoTrack
	}
	sess.sink.play(tracks[0])

	readyCtx, cancel := context.WithTimeout(ctx, c.readyTimeout)
	err = sess.sink.waitReady(readyCtx)
	cancel()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return shot, fmt.Errorf("%w within %s", ErrNotReady, c.readyTimeout)
		}
		return shot, fmt.Errorf("%w: %w", ErrNotReady, err)
	}

	frame := sess.sink.currentFrame()
	canvas, err := c.render(frame, bounds)
	if err != nil {
		return shot, err
	}

	data, err := c.encoder.Encode(ctx, canvas)
	if err != nil {
		return shot, fmt.Errorf("%w: %w", ErrEncodingFailed, err)
	}
	if len(data) == 0 {
		return shot, ErrEncodingFailed
	}

	log.Debug("screenshot taken",
		zap.Int("width", canvas.Rect.Dx()), zap.Int("height", canvas.Rect.Dy()), zap.Int("bytes", len(data)))
	return Screenshot{
		Data:       data,
		Width:      canvas.Rect.Dx(),
		Height:     canvas.Rect.Dy(),
		Bounds:     bounds,
		SessionID:  sess.id,
		CapturedAt: c.now(),
	}, nil
}

// render copies frame into a fresh bitmap sized to the frame, or to the
// window's region of it when cropping is on.
func (c *Capturer) render(frame *image.RGBA, bounds BoundingBox) (*image.RGBA, error) {
	if frame == nil {
		return nil, fmt.Errorf("%w: no frame", ErrRenderingUnavailable)
	}
	src := image.Rect(0, 0, frame.Rect.Dx(), frame.Rect.Dy())
	if c.crop {
		if r := bounds.Rect().Intersect(src); !r.Empty() {
			src = r
		}
	}
	canvas, err := utils.CreateImageLimit(image.Rect(0, 0, src.Dx(), src.Dy()), c.maxBitmapBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRenderingUnavailable, err)
	}
	draw.Draw(canvas, canvas.Rect, frame, frame.Rect.Min.Add(src.Min), draw.Src)
	return canvas, nil
}

// session is the set of resources owned by one capture.
type session struct {
	id     string
	log    *zap.Logger
	sink   *videoSink
	stream *media.Stream
}

func (s *session) release() {
	if s.sink != nil {
		s.sink.remove()
	}
	if s.stream != nil {
		for _, t := range s.stream.Tracks() {
			t.Stop()
		}
	}
	s.log.Debug("capture session released", zap.String("session", s.id))
}
