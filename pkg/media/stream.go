package media

import (
	"context"
	"image"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// TrackState mirrors the lifecycle of a media track.
type TrackState int32

const (
	TrackLive TrackState = iota
	TrackEnded
)

func (s TrackState) String() string {
	if s == TrackEnded {
		return "ended"
	}
	return "live"
}

// KindVideo is the only track kind hosts produce.
const KindVideo = "video"

// Track is one source of frames inside a stream.
type Track interface {
	ID() string
	Kind() string
	// ReadFrame blocks until the next frame is available.
	ReadFrame(ctx context.Context) (*image.RGBA, error)
	// Stop releases the source. Calling it more than once is a no-op.
	Stop()
	State() TrackState
}

// Stream groups the tracks returned by one display-media request.
type Stream struct {
	id     string
	tracks []Track
}

func NewStream(tracks ...Track) *Stream {
	return &Stream{id: uuid.NewString(), tracks: tracks}
}

func (s *Stream) ID() string { return s.id }

func (s *Stream) Tracks() []Track {
	out := make([]Track, len(s.tracks))
	copy(out, s.tracks)
	return out
}

// VideoTracks returns the live video tracks in stream order.
func (s *Stream) VideoTracks() []Track {
	var out []Track
	for _, t := range s.tracks {
		if t.Kind() == KindVideo && t.State() == TrackLive {
			out = append(out, t)
		}
	}
	return out
}

// GrabFunc produces one frame.
type GrabFunc func(ctx context.Context) (*image.RGBA, error)

// FuncTrack adapts a grab function and a release function into a Track.
type FuncTrack struct {
	id      string
	grab    GrabFunc
	release func()

	mu    sync.Mutex
	once  sync.Once
	state atomic.Int32
}

// NewFuncTrack returns a live video track. release may be nil.
func NewFuncTrack(grab GrabFunc, release func()) *FuncTrack {
	return &FuncTrack{id: uuid.NewString(), grab: grab, release: release}
}

func (t *FuncTrack) ID() string   { return t.id }
func (t *FuncTrack) Kind() string { return KindVideo }

func (t *FuncTrack) State() TrackState { return TrackState(t.state.Load()) }

func (t *FuncTrack) ReadFrame(ctx context.Context) (*image.RGBA, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.State() == TrackEnded {
		return nil, ErrTrackEnded
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return t.grab(ctx)
}

func (t *FuncTrack) Stop() {
	t.once.Do(func() {
		t.state.Store(int32(TrackEnded))
		// wait for an in-flight grab before releasing the source
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.release != nil {
			t.release()
		}
	})
}
