package media

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

type TrackState int32

const (
	TrackLive TrackState = iota
	TrackMuted
	TrackEnded
)

func (s TrackState) String() string {
	switch s {
	case TrackLive:
		return "live"
	case TrackMuted:
		return "muted"
	default:
		return "ended"
	}
}

// Track is one captured local track. Its pump moves samples from the source
// into a pion sample track that any number of connections may share.
type Track struct {
	local *webrtc.TrackLocalStaticSample
	src   Source
	state atomic.Int32 // Zero by default (TrackLive)

	mu      sync.Mutex
	onEnded func(*Track)

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

func newTrack(src Source, streamID string) (*Track, error) {
	local, err := webrtc.NewTrackLocalStaticSample(src.Codec(), src.Kind().String()+"-"+uuid.NewString(), streamID)
	if err != nil {
		return nil, err
	}
	return &Track{local: local, src: src, done: make(chan struct{})}, nil
}

func (t *Track) ID() string { return t.local.ID() }
func (t *Track) Kind() webrtc.RTPCodecType { return t.src.Kind() }
func (t *Track) Local() webrtc.TrackLocal { return t.local }
func (t *Track) State() TrackState { return TrackState(t.state.Load()) }
func (t *Track) Codec() webrtc.RTPCodecCapability { return t.local.Codec() }

// SetMuted pauses sample delivery without ending the track.
func (t *Track) SetMuted(muted bool) {
	next, prev := TrackLive, TrackMuted
	if muted {
		next, prev = TrackMuted, TrackLive
	}
	t.state.CompareAndSwap(int32(prev), int32(next))
}

// OnEnded sets the callback fired when the source ends on its own.
// A nil fn detaches it. Stop never fires it.
func (t *Track) OnEnded(fn func(*Track)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onEnded = fn
}

func (t *Track) start() {
	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	go t.pump(ctx)
}

func (t *Track) pump(ctx context.Context) {
	ended := t.run(ctx)
	close(t.done)
	if !ended {
		return
	}
	t.mu.Lock()
	fn := t.onEnded
	t.mu.Unlock()
	if fn != nil {
		fn(t)
	}
}

// run moves samples until ctx is cancelled or the source fails. Reports
// whether the source ended the track on its own.
func (t *Track) run(ctx context.Context) bool {
	logger := log.With().Str("module", "media").Str("track", t.ID()).Str("kind", t.Kind().String()).Logger()
	for {
		sample, err := t.src.NextSample(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return false
			}
			logger.Warn().Err(err).Msg("source ended")
			if !t.markEnded() {
				return false
			}
			t.closeSource()
			return true
		}
		if t.State() != TrackLive {
			continue
		}
		if err := t.local.WriteSample(sample); err != nil {
			logger.Debug().Err(err).Msg("write sample")
		}
	}
}

// markEnded moves the track to TrackEnded. Reports whether this call did it.
func (t *Track) markEnded() bool {
	for {
		cur := t.state.Load()
		if TrackState(cur) == TrackEnded {
			return false
		}
		if t.state.CompareAndSwap(cur, int32(TrackEnded)) {
			return true
		}
	}
}

// Stop ends the track and waits for its pump. Safe to call twice.
func (t *Track) Stop() {
	t.markEnded()
	if t.cancel != nil {
		t.cancel()
		<-t.done
	}
	t.closeSource()
}

func (t *Track) closeSource() {
	t.closeOnce.Do(func() {
		if err := t.src.Close(); err != nil {
			log.Debug().Err(err).Str("module", "media").Str("track", t.ID()).Msg("close source")
		}
	})
}
