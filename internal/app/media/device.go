package media

import (
	"context"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"
)

// Source produces paced samples for one track.
type Source interface {
	Kind() webrtc.RTPCodecType
	Codec() webrtc.RTPCodecCapability
	// NextSample blocks until the next sample is due or ctx is done.
	NextSample(ctx context.Context) (pionmedia.Sample, error)
	Close() error
}

// Device opens capture sources matching c as closely as it can.
type Device interface {
	Open(ctx context.Context, c Constraints) ([]Source, error)
}

const opusFrame = 20 * time.Millisecond

var (
	vp8Codec  = webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000}
	opusCodec = webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2}
	// opus TOC for a 20ms CELT frame followed by an empty payload: silence.
	opusSilence = []byte{0xf8, 0xff, 0xfe}
)

// SyntheticDevice produces placeholder VP8 and Opus frames. It can be told
// to fail on open or to revoke a running source.
type SyntheticDevice struct {
	NoVideo bool
	NoAudio bool
	OpenErr error

	mu      sync.Mutex
	sources map[webrtc.RTPCodecType]*syntheticSource
}

func NewSyntheticDevice() *SyntheticDevice {
	return &SyntheticDevice{sources: make(map[webrtc.RTPCodecType]*syntheticSource)}
}

func (d *SyntheticDevice) Open(_ context.Context, c Constraints) ([]Source, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.OpenErr != nil {
		return nil, d.OpenErr
	}
	if d.sources == nil {
		d.sources = make(map[webrtc.RTPCodecType]*syntheticSource)
	}

	var out []Source
	if !d.NoVideo {
		fps := c.Video.FrameRate.Fit(60)
		if fps <= 0 {
			fps = 30
		}
		src := newSyntheticSource(webrtc.RTPCodecTypeVideo, vp8Codec, time.Second/time.Duration(fps),
			vp8KeyFrame(c.Video.Width.Fit(1920), c.Video.Height.Fit(1080)))
		d.sources[webrtc.RTPCodecTypeVideo] = src
		out = append(out, src)
	}
	if !d.NoAudio {
		src := newSyntheticSource(webrtc.RTPCodecTypeAudio, opusCodec, opusFrame, opusSilence)
		d.sources[webrtc.RTPCodecTypeAudio] = src
		out = append(out, src)
	}
	if len(out) == 0 {
		return nil, ErrDeviceNotFound
	}
	return out, nil
}

// Revoke makes the last opened source of kind fail, as when hardware access
// is withdrawn. Unknown kinds are ignored.
func (d *SyntheticDevice) Revoke(kind webrtc.RTPCodecType) {
	d.mu.Lock()
	src := d.sources[kind]
	d.mu.Unlock()
	if src != nil {
		src.revoke()
	}
}

type syntheticSource struct {
	kind     webrtc.RTPCodecType
	codec    webrtc.RTPCodecCapability
	interval time.Duration
	payload  []byte

	ticker     *time.Ticker
	revoked    chan struct{}
	closed     chan struct{}
	revokeOnce sync.Once
	closeOnce  sync.Once
}

func newSyntheticSource(kind webrtc.RTPCodecType, codec webrtc.RTPCodecCapability, interval time.Duration, payload []byte) *syntheticSource {
	return &syntheticSource{
		kind:     kind,
		codec:    codec,
		interval: interval,
		payload:  payload,
		ticker:   time.NewTicker(interval),
		revoked:  make(chan struct{}),
		closed:   make(chan struct{}),
	}
}

func (s *syntheticSource) Kind() webrtc.RTPCodecType        { return s.kind }
func (s *syntheticSource) Codec() webrtc.RTPCodecCapability { return s.codec }

func (s *syntheticSource) NextSample(ctx context.Context) (pionmedia.Sample, error) {
	select {
	case <-ctx.Done():
		return pionmedia.Sample{}, ctx.Err()
	case <-s.revoked:
		return pionmedia.Sample{}, ErrTrackRevoked
	case <-s.closed:
		return pionmedia.Sample{}, ErrSourceClosed
	case <-s.ticker.C:
		data := make([]byte, len(s.payload))
		copy(data, s.payload)
		return pionmedia.Sample{Data: data, Duration: s.interval}, nil
	}
}

func (s *syntheticSource) revoke() {
	s.revokeOnce.Do(func() { close(s.revoked) })
}

func (s *syntheticSource) Close() error {
	s.closeOnce.Do(func() {
		s.ticker.Stop()
		close(s.closed)
	})
	return nil
}

// vp8KeyFrame builds an uncompressed-header-only VP8 key frame for w x h.
func vp8KeyFrame(w, h int) []byte {
	return []byte{
		0x10, 0x02, 0x00, // frame tag: key frame, shown, first partition size 16
		0x9d, 0x01, 0x2a, // start code
		byte(w), byte(w>>8) & 0x3f,
		byte(h), byte(h>>8) & 0x3f,
	}
}
