package media

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/Broadcast/internal/core"
	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRemoteTrack struct {
	id, stream string
	kind       webrtc.RTPCodecType
	packets    chan *rtp.Packet
}

func newFakeRemoteTrack(id string, kind webrtc.RTPCodecType) *fakeRemoteTrack {
	return &fakeRemoteTrack{id: id, stream: "s1", kind: kind, packets: make(chan *rtp.Packet, 16)}
}

func (f *fakeRemoteTrack) ID() string                { return f.id }
func (f *fakeRemoteTrack) StreamID() string          { return f.stream }
func (f *fakeRemoteTrack) Kind() webrtc.RTPCodecType { return f.kind }
func (f *fakeRemoteTrack) ReadRTP() (*rtp.Packet, interceptor.Attributes, error) {
	p, ok := <-f.packets
	if !ok {
		return nil, nil, io.EOF
	}
	return p, nil, nil
}

type memSink struct {
	mu      sync.Mutex
	packets []*rtp.Packet
	closed  chan struct{}
}

func newMemSink() *memSink { return &memSink{closed: make(chan struct{})} }

func (m *memSink) WriteRTP(p *rtp.Packet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.packets = append(m.packets, p)
	return nil
}

func (m *memSink) Close() error {
	close(m.closed)
	return nil
}

func (m *memSink) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.packets)
}

func TestRemoteStreamForward(t *testing.T) {
	rs := NewRemoteStream("s1")
	video := newFakeRemoteTrack("v", webrtc.RTPCodecTypeVideo)
	require.True(t, rs.AddTrack(video))
	require.False(t, rs.AddTrack(video))

	sinks := map[string]*memSink{}
	var mu sync.Mutex
	open := func(tr core.RemoteTrack) (RTPSink, error) {
		mu.Lock()
		defer mu.Unlock()
		s := newMemSink()
		sinks[tr.ID()] = s
		return s, nil
	}

	require.NoError(t, rs.Forward(context.Background(), open))
	audio := newFakeRemoteTrack("a", webrtc.RTPCodecTypeAudio)
	require.True(t, rs.AddTrack(audio))
	require.NoError(t, rs.Forward(context.Background(), open))

	mu.Lock()
	assert.Len(t, sinks, 2)
	vs, as := sinks["v"], sinks["a"]
	mu.Unlock()

	for i := 0; i < 3; i++ {
		video.packets <- &rtp.Packet{Header: rtp.Header{SequenceNumber: uint16(i)}}
	}
	audio.packets <- &rtp.Packet{}
	close(video.packets)
	close(audio.packets)

	for _, s := range []*memSink{vs, as} {
		select {
		case <-s.closed:
		case <-time.After(2 * time.Second):
			t.Fatal("sink not closed")
		}
	}
	assert.Equal(t, 3, vs.count())
	assert.Equal(t, 1, as.count())
}

func TestForwardStopsOnContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sink := newMemSink()
	err := Forward(ctx, newFakeRemoteTrack("v", webrtc.RTPCodecTypeVideo), sink)
	assert.ErrorIs(t, err, context.Canceled)
	<-sink.closed
}

func TestFileSink(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	sink, err := NewFileSink(dir, newFakeRemoteTrack("audio-1", webrtc.RTPCodecTypeAudio))
	require.NoError(t, err)
	require.NoError(t, sink.Close())

	_, err = os.Stat(filepath.Join(dir, "s1-audio-1.ogg"))
	assert.NoError(t, err)

	sink, err = NewFileSink(dir, newFakeRemoteTrack("video-1", webrtc.RTPCodecTypeVideo))
	require.NoError(t, err)
	require.NoError(t, sink.Close())
	_, err = os.Stat(filepath.Join(dir, "s1-video-1.ivf"))
	assert.NoError(t, err)
}
