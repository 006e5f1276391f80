package media

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// Stream groups the tracks of one capture. It is shared by reference with
// every outgoing connection and stopped once.
type Stream struct {
	id     string
	tracks []*Track

	stopOnce sync.Once
}

func (s *Stream) ID() string { return s.id }

func (s *Stream) Tracks() []*Track {
	out := make([]*Track, len(s.tracks))
	copy(out, s.tracks)
	return out
}

func (s *Stream) tracksOf(kind webrtc.RTPCodecType) []*Track {
	var out []*Track
	for _, t := range s.tracks {
		if t.Kind() == kind {
			out = append(out, t)
		}
	}
	return out
}

func (s *Stream) VideoTracks() []*Track { return s.tracksOf(webrtc.RTPCodecTypeVideo) }
func (s *Stream) AudioTracks() []*Track { return s.tracksOf(webrtc.RTPCodecTypeAudio) }

// Stop detaches every ended callback, then stops every track.
func (s *Stream) Stop() {
	s.stopOnce.Do(func() {
		log.Info().Str("module", "media").Str("stream", s.id).Int("tracks", len(s.tracks)).Msg("stopping tracks")
		for _, t := range s.tracks {
			t.OnEnded(nil)
		}
		for _, t := range s.tracks {
			t.Stop()
		}
	})
}

// Release stops s. A nil stream is ignored.
func Release(s *Stream) {
	if s != nil {
		s.Stop()
	}
}

// Capture opens dev with c and starts one track per source. Failures are
// always *CaptureError and leave nothing running.
func Capture(ctx context.Context, dev Device, c Constraints) (*Stream, error) {
	if dev == nil {
		return nil, classify(ErrNoDevice)
	}
	sources, err := dev.Open(ctx, c)
	if err != nil {
		ce := classify(err)
		log.Error().Err(err).Str("module", "media").Str("kind", ce.Kind.String()).Msg("error accessing media devices")
		return nil, ce
	}
	if len(sources) == 0 {
		return nil, classify(ErrDeviceNotFound)
	}

	s := &Stream{id: uuid.NewString()}
	for _, src := range sources {
		t, err := newTrack(src, s.id)
		if err != nil {
			for _, src := range sources {
				_ = src.Close()
			}
			return nil, classify(err)
		}
		s.tracks = append(s.tracks, t)
	}
	for _, t := range s.tracks {
		t.start()
	}

	log.Info().
		Str("module", "media").
		Str("stream", s.id).
		Int("video_tracks", len(s.VideoTracks())).
		Int("audio_tracks", len(s.AudioTracks())).
		Msg("media access granted")
	return s, nil
}
