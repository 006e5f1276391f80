package media

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dkeye/Broadcast/internal/core"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media/ivfwriter"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
)

// NewFileSink writes video as IVF and audio as Ogg/Opus under dir, named
// after the track's stream and track ids.
func NewFileSink(dir string, track core.RemoteTrack) (RTPSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("sink dir: %w", err)
	}
	base := filepath.Join(dir, track.StreamID()+"-"+track.ID())
	switch track.Kind() {
	case webrtc.RTPCodecTypeVideo:
		w, err := ivfwriter.New(base + ".ivf")
		if err != nil {
			return nil, err
		}
		return w, nil
	case webrtc.RTPCodecTypeAudio:
		w, err := oggwriter.New(base+".ogg", 48000, 2)
		if err != nil {
			return nil, err
		}
		return w, nil
	default:
		return nil, fmt.Errorf("%w: track kind %s", ErrUnsupportedFormat, track.Kind())
	}
}
