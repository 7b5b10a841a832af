package screenshot

import (
	"context"
	"image"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// countingTrack counts frames handed out.
type countingTrack struct {
	*fakeTrack
	reads atomic.Int32
}

func (t *countingTrack) ReadFrame(ctx context.Context) (*image.RGBA, error) {
	t.reads.Add(1)
	return t.fakeTrack.ReadFrame(ctx)
}

func TestVideoSink_WaitsForBothSignals(t *testing.T) {
	tree := newSinkTree()
	sink := newVideoSink("s1", tree, time.Millisecond, 3, zaptest.NewLogger(t))
	require.Equal(t, 1, tree.len())

	track := &countingTrack{fakeTrack: newFakeTrack(solidFrame(4, 4))}
	sink.play(track)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, sink.waitReady(ctx))
	assert.GreaterOrEqual(t, track.reads.Load(), int32(3))
	assert.NotNil(t, sink.currentFrame())

	sink.remove()
	sink.remove()
	assert.Zero(t, tree.len())
}

func TestVideoSink_RemoveWithoutPlay(t *testing.T) {
	tree := newSinkTree()
	sink := newVideoSink("s2", tree, time.Millisecond, 0, zaptest.NewLogger(t))
	assert.Equal(t, 1, sink.buffered)

	sink.remove()
	assert.Zero(t, tree.len())
}

func TestVideoSink_EmptyFrameFails(t *testing.T) {
	tree := newSinkTree()
	sink := newVideoSink("s3", tree, time.Millisecond, 2, zaptest.NewLogger(t))
	sink.play(newFakeTrack(nil))

	err := sink.waitReady(context.Background())
	assert.ErrorContains(t, err, "empty frame")
	sink.remove()
}
