package media

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/dkeye/Broadcast/internal/core"
	"github.com/pion/rtp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// RTPSink consumes forwarded packets. ivfwriter and oggwriter satisfy it.
type RTPSink interface {
	WriteRTP(*rtp.Packet) error
	Close() error
}

// SinkOpener returns the sink for a newly forwarded track.
type SinkOpener func(track core.RemoteTrack) (RTPSink, error)

// RemoteStream groups remote tracks sharing one stream id.
type RemoteStream struct {
	id string

	mu        sync.RWMutex
	tracks    map[string]core.RemoteTrack
	forwarded map[string]struct{}
}

func NewRemoteStream(id string) *RemoteStream {
	return &RemoteStream{
		id:        id,
		tracks:    make(map[string]core.RemoteTrack),
		forwarded: make(map[string]struct{}),
	}
}

func (s *RemoteStream) ID() string { return s.id }

// AddTrack records t. Reports false when a track with the same id is known.
func (s *RemoteStream) AddTrack(t core.RemoteTrack) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tracks[t.ID()]; ok {
		return false
	}
	s.tracks[t.ID()] = t
	return true
}

func (s *RemoteStream) Tracks() []core.RemoteTrack {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.RemoteTrack, 0, len(s.tracks))
	for _, t := range s.tracks {
		out = append(out, t)
	}
	return out
}

// Forward starts a forwarding loop for every track not yet forwarded.
// Call it again after new tracks arrive; already running loops are kept.
func (s *RemoteStream) Forward(ctx context.Context, open SinkOpener) error {
	var errs []error
	for _, t := range s.Tracks() {
		s.mu.Lock()
		_, done := s.forwarded[t.ID()]
		if !done {
			s.forwarded[t.ID()] = struct{}{}
		}
		s.mu.Unlock()
		if done {
			continue
		}

		sink, err := open(t)
		if err != nil {
			s.mu.Lock()
			delete(s.forwarded, t.ID())
			s.mu.Unlock()
			errs = append(errs, err)
			continue
		}
		go func() {
			_ = Forward(ctx, t, sink)
		}()
	}
	return errors.Join(errs...)
}

// Forward reads RTP from track into sink until ctx is done or the track
// ends, then closes sink.
func Forward(ctx context.Context, track core.RemoteTrack, sink RTPSink) error {
	logger := log.With().
		Str("module", "media.forward").
		Str("track", track.ID()).
		Str("stream", track.StreamID()).
		Logger()
	logger.Info().Str("kind", track.Kind().String()).Msg("starting forward loop")

	defer func() {
		if err := sink.Close(); err != nil {
			logger.Debug().Err(err).Msg("sink close")
		}
	}()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("forward ctx done")
			return ctx.Err()
		default:
		}
		pkt, _, err := track.ReadRTP()
		if err != nil {
			return readEnd(err, &logger)
		}
		if err := sink.WriteRTP(pkt); err != nil {
			logger.Error().Err(err).Msg("forward write RTP error, stopping")
			return err
		}
	}
}

func readEnd(err error, logger *zerolog.Logger) error {
	if errors.Is(err, io.EOF) {
		logger.Info().Msg("remote track ended")
		return nil
	}
	logger.Error().Err(err).Msg("forward read RTP error, stopping")
	return err
}
