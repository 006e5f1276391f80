package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/ivfreader"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"
	"github.com/rs/zerolog/log"
)

// FileDevice plays an IVF (VP8) file as video and an Ogg/Opus file as audio.
type FileDevice struct {
	VideoPath string
	AudioPath string
	// AllowedDir, when set, confines both paths.
	AllowedDir string
	Loop       bool
}

// claims tracks files held by running captures across the process.
var claims = struct {
	mu    sync.Mutex
	paths map[string]struct{}
}{paths: make(map[string]struct{})}

func claim(path string) error {
	claims.mu.Lock()
	defer claims.mu.Unlock()
	if _, ok := claims.paths[path]; ok {
		return fmt.Errorf("%w: %s", ErrDeviceBusy, path)
	}
	claims.paths[path] = struct{}{}
	return nil
}

func unclaim(path string) {
	claims.mu.Lock()
	defer claims.mu.Unlock()
	delete(claims.paths, path)
}

func (d *FileDevice) Open(_ context.Context, c Constraints) ([]Source, error) {
	if d.VideoPath == "" && d.AudioPath == "" {
		return nil, ErrDeviceNotFound
	}

	var out []Source
	closeAll := func() {
		for _, s := range out {
			_ = s.Close()
		}
	}

	if d.VideoPath != "" {
		src, err := d.openVideo(d.VideoPath, c.Video)
		if err != nil {
			return nil, err
		}
		out = append(out, src)
	}
	if d.AudioPath != "" {
		src, err := d.openAudio(d.AudioPath)
		if err != nil {
			closeAll()
			return nil, err
		}
		out = append(out, src)
	}
	return out, nil
}

func (d *FileDevice) resolve(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	if d.AllowedDir == "" {
		return abs, nil
	}
	root, err := filepath.Abs(d.AllowedDir)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s outside %s", ErrSecurityBlocked, path, root)
	}
	return abs, nil
}

// openFile resolves, claims and opens path.
func (d *FileDevice) openFile(path string) (*os.File, string, error) {
	abs, err := d.resolve(path)
	if err != nil {
		return nil, "", err
	}
	if err := claim(abs); err != nil {
		return nil, "", err
	}
	f, err := os.Open(abs)
	if err != nil {
		unclaim(abs)
		return nil, "", err
	}
	return f, abs, nil
}

func (d *FileDevice) openVideo(path string, vc VideoConstraints) (Source, error) {
	f, abs, err := d.openFile(path)
	if err != nil {
		return nil, err
	}
	reader, header, err := ivfreader.NewWith(f)
	if err != nil {
		_ = f.Close()
		unclaim(abs)
		return nil, fmt.Errorf("%w: %s: %v", ErrUnsupportedFormat, path, err)
	}
	fail := func(err error) (Source, error) {
		_ = f.Close()
		unclaim(abs)
		return nil, err
	}
	if header.FourCC != "VP80" {
		return fail(fmt.Errorf("%w: fourcc %q", ErrUnsupportedFormat, header.FourCC))
	}
	if !vc.Width.Allows(int(header.Width)) || !vc.Height.Allows(int(header.Height)) {
		return fail(fmt.Errorf("%w: %dx%d", ErrOverconstrained, header.Width, header.Height))
	}

	frame := time.Second / 30
	if header.TimebaseDenominator > 0 {
		frame = time.Duration(float64(time.Second) * float64(header.TimebaseNumerator) / float64(header.TimebaseDenominator))
	}

	log.Info().Str("module", "media").Str("file", abs).Uint16("width", header.Width).Uint16("height", header.Height).Msg("video file opened")

	return &fileSource{
		kind:  webrtc.RTPCodecTypeVideo,
		codec: vp8Codec,
		file:  f,
		path:  abs,
		loop:  d.Loop,
		next: func() ([]byte, time.Duration, error) {
			payload, _, err := reader.ParseNextFrame()
			return payload, frame, err
		},
		rewind: func() error {
			r, _, err := ivfreader.NewWith(f)
			if err != nil {
				return err
			}
			reader = r
			return nil
		},
	}, nil
}

func (d *FileDevice) openAudio(path string) (Source, error) {
	f, abs, err := d.openFile(path)
	if err != nil {
		return nil, err
	}
	reader, _, err := oggreader.NewWith(f)
	if err != nil {
		_ = f.Close()
		unclaim(abs)
		return nil, fmt.Errorf("%w: %s: %v", ErrUnsupportedFormat, path, err)
	}

	log.Info().Str("module", "media").Str("file", abs).Msg("audio file opened")

	var lastGranule uint64
	return &fileSource{
		kind:  webrtc.RTPCodecTypeAudio,
		codec: opusCodec,
		file:  f,
		path:  abs,
		loop:  d.Loop,
		next: func() ([]byte, time.Duration, error) {
			for {
				payload, page, err := reader.ParseNextPage()
				if err != nil {
					return nil, 0, err
				}
				if strings.HasPrefix(string(payload), "OpusTags") {
					continue
				}
				samples := page.GranulePosition - lastGranule
				if page.GranulePosition < lastGranule {
					samples = 0
				}
				lastGranule = page.GranulePosition
				return payload, time.Duration(float64(samples) / 48000 * float64(time.Second)), nil
			}
		},
		rewind: func() error {
			r, _, err := oggreader.NewWith(f)
			if err != nil {
				return err
			}
			reader = r
			lastGranule = 0
			return nil
		},
	}, nil
}

// fileSource paces samples by the duration of the previous one.
type fileSource struct {
	kind   webrtc.RTPCodecType
	codec  webrtc.RTPCodecCapability
	file   *os.File
	path   string
	loop   bool
	next   func() ([]byte, time.Duration, error)
	rewind func() error

	due       time.Time
	closeOnce sync.Once
}

func (s *fileSource) Kind() webrtc.RTPCodecType        { return s.kind }
func (s *fileSource) Codec() webrtc.RTPCodecCapability { return s.codec }

func (s *fileSource) NextSample(ctx context.Context) (pionmedia.Sample, error) {
	if wait := time.Until(s.due); wait > 0 {
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return pionmedia.Sample{}, ctx.Err()
		case <-timer.C:
		}
	} else if err := ctx.Err(); err != nil {
		return pionmedia.Sample{}, err
	}

	payload, dur, err := s.next()
	if errors.Is(err, io.EOF) && s.loop {
		if _, err := s.file.Seek(0, io.SeekStart); err != nil {
			return pionmedia.Sample{}, err
		}
		if err := s.rewind(); err != nil {
			return pionmedia.Sample{}, err
		}
		payload, dur, err = s.next()
	}
	if err != nil {
		return pionmedia.Sample{}, err
	}

	now := time.Now()
	if s.due.Before(now) {
		s.due = now
	}
	s.due = s.due.Add(dur)
	return pionmedia.Sample{Data: payload, Duration: dur}, nil
}

func (s *fileSource) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.file.Close()
		unclaim(s.path)
	})
	return err
}
