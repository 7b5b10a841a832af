package screenshot

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/suutaku/winshot/pkg/media"
)

// sinkTree holds the video sinks attached during in-flight captures.
type sinkTree struct {
	mu    sync.Mutex
	nodes map[string]*videoSink
}

func newSinkTree() *sinkTree {
	return &sinkTree{nodes: make(map[string]*videoSink)}
}

func (t *sinkTree) append(s *videoSink) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nodes[s.id] = s
}

func (t *sinkTree) remove(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.nodes, id)
}

func (t *sinkTree) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.nodes)
}

// videoSink plays a track into memory. It raises two readiness signals:
// loadedMetadata once the first frame arrives and canPlayThrough once
// buffered frames have been received.
type videoSink struct {
	id       string
	tree     *sinkTree
	track    media.Track
	interval time.Duration
	buffered int
	log      *zap.Logger

	loadedMetadata chan struct{}
	canPlayThrough chan struct{}
	failed         chan struct{}
	stopped        chan struct{}
	cancel         context.CancelFunc
	removeOnce     sync.Once
	failOnce       sync.Once

	mu     sync.Mutex
	frame  *image.RGBA
	frames int
	err    error
}

func newVideoSink(id string, tree *sinkTree, interval time.Duration, buffered int, log *zap.Logger) *videoSink {
	if buffered < 1 {
		buffered = 1
	}
	s := &videoSink{
		id:             id,
		tree:           tree,
		interval:       interval,
		buffered:       buffered,
		log:            log,
		loadedMetadata: make(chan struct{}),
		canPlayThrough: make(chan struct{}),
		failed:         make(chan struct{}),
		stopped:        make(chan struct{}),
	}
	tree.append(s)
	return s
}

// play attaches track and starts pulling frames until the sink is removed.
func (s *videoSink) play(track media.Track) {
	ctx, cancel := context.WithCancel(context.Background())
	s.track = track
	s.cancel = cancel
	go s.pump(ctx)
}

func (s *videoSink) pump(ctx context.Context) {
	defer close(s.stopped)
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("video track panicked", zap.String("sink", s.id), zap.Any("panic", r))
			s.fail(fmt.Errorf("track %s panicked: %v", s.track.ID(), r))
		}
	}()
	for {
		frame, err := s.track.ReadFrame(ctx)
		if ctx.Err() != nil {
			return
		}
		if err == nil && frame == nil {
			err = fmt.Errorf("track %s produced an empty frame", s.track.ID())
		}
		if err != nil {
			s.fail(err)
			return
		}

		s.mu.Lock()
		s.frame = frame
		s.frames++
		n := s.frames
		s.mu.Unlock()

		if n == 1 {
			s.log.Debug("video metadata loaded", zap.String("sink", s.id),
				zap.Int("width", frame.Rect.Dx()), zap.Int("height", frame.Rect.Dy()))
			close(s.loadedMetadata)
		}
		if n == s.buffered {
			close(s.canPlayThrough)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.interval):
		}
	}
}

// fail records err and raises the failed signal once.
func (s *videoSink) fail(err error) {
	s.failOnce.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.failed)
	})
}

// waitReady blocks until both readiness signals have fired.
func (s *videoSink) waitReady(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, signal := range []chan struct{}{s.loadedMetadata, s.canPlayThrough} {
		signal := signal
		g.Go(func() error {
			select {
			case <-signal:
				return nil
			case <-s.failed:
				s.mu.Lock()
				defer s.mu.Unlock()
				return s.err
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	}
	return g.Wait()
}

func (s *videoSink) currentFrame() *image.RGBA {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frame
}

// remove stops playback and detaches the sink from its tree.
func (s *videoSink) remove() {
	s.removeOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
			<-s.stopped
		}
		s.tree.remove(s.id)
	})
}
