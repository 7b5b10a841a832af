package screenshot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/suutaku/winshot/pkg/media"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestCapturer(t *testing.T, host media.Host, opts ...Option) *Capturer {
	t.Helper()
	base := []Option{
		WithLogger(zaptest.NewLogger(t)),
		WithFrameInterval(time.Millisecond),
		WithReadyTimeout(2 * time.Second),
	}
	return New(host, append(base, opts...)...)
}

func assertReleased(t *testing.T, c *Capturer, host *fakeHost) {
	t.Helper()
	assert.Zero(t, c.sinks.len(), "video sink left attached")
	for _, tr := range host.tracks {
		assert.Equal(t, int32(1), tr.stops.Load(), "track %s stop count", tr.id)
	}
}

func TestActiveWindowBounds(t *testing.T) {
	got := ActiveWindowBounds(media.Window{
		ScreenX:          10,
		ScreenY:          20,
		InnerWidth:       800,
		InnerHeight:      600,
		DevicePixelRatio: 2,
		DisplayOffset:    &media.Offset{},
	})
	want := BoundingBox{X: 20, Y: 40, Width: 1600, Height: 1200}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("bounds mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 20, got.Left())
	assert.Equal(t, 40, got.Top())
	assert.Equal(t, 1620, got.Right())
	assert.Equal(t, 1240, got.Bottom())
	assert.Equal(t, image.Rect(20, 40, 1620, 1240), got.Rect())
}

func TestActiveWindowBounds_OffsetAndRounding(t *testing.T) {
	got := ActiveWindowBounds(media.Window{
		ScreenX:          1930,
		ScreenY:          15,
		InnerWidth:       100.3,
		InnerHeight:      50.5,
		DevicePixelRatio: 1.5,
		DisplayOffset:    &media.Offset{X: 1920, Y: 0},
	})
	assert.Equal(t, BoundingBox{X: 15, Y: 23, Width: 150, Height: 76}, got)

	// no offset and no ratio
	got = ActiveWindowBounds(media.Window{ScreenX: 5, ScreenY: 6, InnerWidth: 7, InnerHeight: 8})
	assert.Equal(t, BoundingBox{X: 5, Y: 6, Width: 7, Height: 8}, got)
}

func TestCapture_NoActiveWindow(t *testing.T) {
	host := newFakeHost()
	host.hasWin = false
	c := newTestCapturer(t, host)

	shot, ok := c.Capture(context.Background())
	assert.False(t, ok)
	assert.Empty(t, shot.Data)
	assert.Zero(t, host.requests, "stream must not be requested")
	assert.Zero(t, c.sinks.len())

	_, err := c.Generate(context.Background())
	assert.ErrorIs(t, err, ErrNoActiveWindow)
}

func TestCapture_WindowQueryError(t *testing.T) {
	host := newFakeHost()
	host.winErr = errors.New("compositor gone")
	c := newTestCapturer(t, host)

	_, ok := c.Capture(context.Background())
	assert.False(t, ok)
	assert.Zero(t, host.requests)
}

func TestCapture_Success(t *testing.T) {
	host := newFakeHost()
	c := newTestCapturer(t, host)

	shot, ok := c.Capture(context.Background())
	require.True(t, ok)
	require.NotEmpty(t, shot.Data)
	assert.NotEmpty(t, shot.SessionID)
	assert.False(t, shot.CapturedAt.IsZero())

	cfg, err := jpeg.DecodeConfig(bytes.NewReader(shot.Data))
	require.NoError(t, err)
	// native frame size, not the window bounds
	assert.Equal(t, 160, cfg.Width)
	assert.Equal(t, 120, cfg.Height)
	assert.Equal(t, 160, shot.Width)
	assert.Equal(t, BoundingBox{X: 10, Y: 20, Width: 40, Height: 30}, shot.Bounds)

	require.Len(t, host.constraints, 1)
	assert.Equal(t, media.Constraints{Audio: false, Video: true}, host.constraints[0])
	assert.Empty(t, host.hints, "no hint without a target window")
	assertReleased(t, c, host)
	for _, tr := range host.streams[0].Tracks() {
		assert.Equal(t, media.TrackEnded, tr.State())
	}
}

func TestCapture_Crop(t *testing.T) {
	host := newFakeHost()
	c := newTestCapturer(t, host, WithCrop(true))

	shot, ok := c.Capture(context.Background())
	require.True(t, ok)
	assert.Equal(t, 40, shot.Width)
	assert.Equal(t, 30, shot.Height)

	img, err := jpeg.Decode(bytes.NewReader(shot.Data))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 40, 30), img.Bounds())
	assertReleased(t, c, host)
}

func TestCapture_CropOutsideFrameFallsBack(t *testing.T) {
	host := newFakeHost()
	host.win.ScreenX = 5000
	c := newTestCapturer(t, host, WithCrop(true))

	shot, ok := c.Capture(context.Background())
	require.True(t, ok)
	assert.Equal(t, 160, shot.Width)
	assert.Equal(t, 120, shot.Height)
}

func TestCapture_TargetWindowHint(t *testing.T) {
	host := newFakeHost()
	host.hintErr = errors.New("selection not supported")
	c := newTestCapturer(t, host)

	_, ok := c.Capture(context.Background(), WithTargetWindow(7))
	require.True(t, ok, "a failed hint must not fail the capture")
	require.Len(t, host.hints, 1)
	assert.Equal(t, media.Selection{ActiveWindow: true, WindowID: 7}, host.hints[0])
}

func TestCapture_PermissionDenied(t *testing.T) {
	host := newFakeHost()
	host.mediaErr = fmt.Errorf("user cancelled the picker: %w", ErrPermissionDenied)
	core, logs := observer.New(zapcore.ErrorLevel)
	c := newTestCapturer(t, host, WithLogger(zap.New(core)))

	_, ok := c.Capture(context.Background())
	assert.False(t, ok)
	assert.Equal(t, 1, logs.Len())
	assert.Zero(t, c.sinks.len())

	_, err := c.Generate(context.Background())
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestCapture_EncodingFailure(t *testing.T) {
	host := newFakeHost()
	empty := EncoderFunc(func(context.Context, image.Image) ([]byte, error) { return nil, nil })
	c := newTestCapturer(t, host, WithEncoder(empty))

	_, ok := c.Capture(context.Background())
	assert.False(t, ok)

	_, err := c.Generate(context.Background())
	assert.ErrorIs(t, err, ErrEncodingFailed)
	assertReleased(t, c, host)
}

func TestCapture_EncoderError(t *testing.T) {
	host := newFakeHost()
	broken := EncoderFunc(func(context.Context, image.Image) ([]byte, error) {
		return nil, errors.New("out of memory")
	})
	c := newTestCapturer(t, host, WithEncoder(broken))

	_, err := c.Generate(context.Background())
	assert.ErrorIs(t, err, ErrEncodingFailed)
	assertReleased(t, c, host)
}

func TestCapture_RenderingUnavailable(t *testing.T) {
	host := newFakeHost()
	c := newTestCapturer(t, host, WithMaxBitmapBytes(16))

	_, err := c.Generate(context.Background())
	assert.ErrorIs(t, err, ErrRenderingUnavailable)
	assertReleased(t, c, host)
}

func TestCapture_NotReady(t *testing.T) {
	host := newFakeHost()
	host.newTrack = func() *fakeTrack {
		tr := newFakeTrack(nil)
		tr.block = true
		return tr
	}
	c := newTestCapturer(t, host, WithReadyTimeout(50*time.Millisecond))

	_, err := c.Generate(context.Background())
	assert.ErrorIs(t, err, ErrNotReady)
	assertReleased(t, c, host)
}

func TestCapture_TrackError(t *testing.T) {
	host := newFakeHost()
	host.newTrack = func() *fakeTrack {
		tr := newFakeTrack(nil)
		tr.err = errors.New("display disconnected")
		return tr
	}
	c := newTestCapturer(t, host)

	_, err := c.Generate(context.Background())
	assert.ErrorIs(t, err, ErrNotReady)
	assert.ErrorContains(t, err, "display disconnected")
	assertReleased(t, c, host)
}

func TestCapture_NoVideoTrack(t *testing.T) {
	host := newFakeHost()
	host.newTrack = func() *fakeTrack {
		tr := newFakeTrack(solidFrame(2, 2))
		tr.stops.Store(1)
		return tr
	}
	c := newTestCapturer(t, host)

	_, err := c.Generate(context.Background())
	assert.ErrorIs(t, err, ErrNoVideoTrack)
	assert.Zero(t, c.sinks.len())
}

func TestCapture_HostPanicIsContained(t *testing.T) {
	host := newFakeHost()
	host.panicMsg = "native crash"
	c := newTestCapturer(t, host)

	var ok bool
	assert.NotPanics(t, func() { _, ok = c.Capture(context.Background()) })
	assert.False(t, ok)
	assert.Zero(t, c.sinks.len())
}

// grabHost serves a single FuncTrack backed by grab.
type grabHost struct {
	win   media.Window
	track *media.FuncTrack
}

func (h *grabHost) ActiveWindow(context.Context) (media.Window, bool, error) {
	return h.win, true, nil
}

func (h *grabHost) GetDisplayMedia(context.Context, media.Constraints) (*media.Stream, error) {
	return media.NewStream(h.track), nil
}

func TestCapture_TrackPanicIsContained(t *testing.T) {
	host := &grabHost{
		win: newFakeHost().win,
		track: media.NewFuncTrack(func(context.Context) (*image.RGBA, error) {
			panic("native grab crashed")
		}, nil),
	}
	c := newTestCapturer(t, host)

	var ok bool
	assert.NotPanics(t, func() { _, ok = c.Capture(context.Background()) })
	assert.False(t, ok)
	assert.Zero(t, c.sinks.len())
	assert.Equal(t, media.TrackEnded, host.track.State())
}

func TestGenerate_TrackPanicIsNotReady(t *testing.T) {
	host := &grabHost{
		win: newFakeHost().win,
		track: media.NewFuncTrack(func(context.Context) (*image.RGBA, error) {
			panic("native grab crashed")
		}, nil),
	}
	c := newTestCapturer(t, host)

	_, err := c.Generate(context.Background())
	require.ErrorIs(t, err, ErrNotReady)
	assert.Contains(t, err.Error(), "panicked")
	assert.Contains(t, err.Error(), "native grab crashed")
	assert.Zero(t, c.sinks.len())
	assert.Equal(t, media.TrackEnded, host.track.State())
}

func TestCapture_CancelledContext(t *testing.T) {
	host := newFakeHost()
	host.newTrack = func() *fakeTrack {
		tr := newFakeTrack(nil)
		tr.block = true
		return tr
	}
	c := newTestCapturer(t, host)
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	_, err := c.Generate(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assertReleased(t, c, host)
}

func TestCapture_SequentialCallsUseDistinctStreams(t *testing.T) {
	host := newFakeHost()
	c := newTestCapturer(t, host)

	_, ok := c.Capture(context.Background())
	require.True(t, ok)
	_, ok = c.Capture(context.Background())
	require.True(t, ok)

	require.Len(t, host.streams, 2)
	assert.NotSame(t, host.streams[0], host.streams[1])
	assert.NotEqual(t, host.streams[0].ID(), host.streams[1].ID())
	assertReleased(t, c, host)
}

func TestCapture_ConcurrentCalls(t *testing.T) {
	host := newFakeHost()
	c := newTestCapturer(t, host)

	var wg sync.WaitGroup
	results := make([]bool, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = c.Capture(context.Background())
		}(i)
	}
	wg.Wait()

	for i, ok := range results {
		assert.True(t, ok, "call %d", i)
	}
	assert.Len(t, host.streams, 4)
	assertReleased(t, c, host)
}

func TestJPEGEncoder_QualityFallback(t *testing.T) {
	img := solidFrame(8, 8)
	data, err := JPEGEncoder{Quality: 0}.Encode(context.Background(), img)
	require.NoError(t, err)
	assert.NotEmpty(t, data)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = JPEGEncoder{}.Encode(ctx, img)
	assert.ErrorIs(t, err, context.Canceled)
}
