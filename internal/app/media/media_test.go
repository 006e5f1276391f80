package media

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCaptureSynthetic(t *testing.T) {
	s, err := Capture(context.Background(), NewSyntheticDevice(), DefaultConstraints())
	require.NoError(t, err)
	require.Len(t, s.VideoTracks(), 1)
	require.Len(t, s.AudioTracks(), 1)

	video := s.VideoTracks()[0]
	assert.Equal(t, webrtc.MimeTypeVP8, video.Codec().MimeType)
	assert.Equal(t, s.ID(), video.Local().StreamID())
	assert.Equal(t, TrackLive, video.State())

	video.SetMuted(true)
	assert.Equal(t, TrackMuted, video.State())
	video.SetMuted(false)
	assert.Equal(t, TrackLive, video.State())

	s.Stop()
	s.Stop()
	Release(s)
	Release(nil)
	for _, tr := range s.Tracks() {
		assert.Equal(t, TrackEnded, tr.State())
	}
}

func TestCaptureErrorKinds(t *testing.T) {
	cases := []struct {
		err  error
		kind ErrorKind
		msg  string
	}{
		{ErrPermissionDenied, KindPermissionDenied, "Permission denied."},
		{fmt.Errorf("open: %w", fs.ErrPermission), KindPermissionDenied, "Permission denied."},
		{ErrDeviceNotFound, KindDeviceNotFound, "No suitable camera found."},
		{ErrOverconstrained, KindDeviceNotFound, "No suitable camera found."},
		{&fs.PathError{Op: "open", Path: "x", Err: fs.ErrNotExist}, KindDeviceNotFound, "No suitable camera found."},
		{ErrDeviceBusy, KindDeviceBusy, "already in use"},
		{ErrSecurityBlocked, KindSecurityBlocked, "blocked by browser security settings"},
		{errors.New("driver exploded"), KindUnknown, "(driver exploded)"},
	}
	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			dev := NewSyntheticDevice()
			dev.OpenErr = tc.err

			s, err := Capture(context.Background(), dev, DefaultConstraints())
			assert.Nil(t, s)

			var ce *CaptureError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tc.kind, ce.Kind)
			assert.Contains(t, ce.Message(), tc.msg)
			assert.ErrorIs(t, err, tc.err)
		})
	}
}

func TestCaptureWithoutDevice(t *testing.T) {
	_, err := Capture(context.Background(), nil, DefaultConstraints())
	var ce *CaptureError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, KindUnsupported, ce.Kind)
	assert.Contains(t, ce.Message(), "Please check permissions and try again.")
}

func TestRevokeFiresEnded(t *testing.T) {
	dev := NewSyntheticDevice()
	s, err := Capture(context.Background(), dev, DefaultConstraints())
	require.NoError(t, err)
	defer s.Stop()

	ended := make(chan *Track, 2)
	for _, tr := range s.Tracks() {
		tr.OnEnded(func(tr *Track) { ended <- tr })
	}

	dev.Revoke(webrtc.RTPCodecTypeVideo)

	select {
	case tr := <-ended:
		assert.Equal(t, webrtc.RTPCodecTypeVideo, tr.Kind())
		assert.Equal(t, TrackEnded, tr.State())
	case <-time.After(2 * time.Second):
		t.Fatal("ended not fired")
	}
	assert.Equal(t, TrackLive, s.AudioTracks()[0].State())
}

func TestStopDetachesEnded(t *testing.T) {
	dev := NewSyntheticDevice()
	s, err := Capture(context.Background(), dev, DefaultConstraints())
	require.NoError(t, err)

	ended := make(chan struct{}, 2)
	for _, tr := range s.Tracks() {
		tr.OnEnded(func(*Track) { ended <- struct{}{} })
	}
	s.Stop()
	dev.Revoke(webrtc.RTPCodecTypeVideo)
	dev.Revoke(webrtc.RTPCodecTypeAudio)

	select {
	case <-ended:
		t.Fatal("ended fired after stop")
	case <-time.After(100 * time.Millisecond):
	}
}

// writeIVF writes a VP8 IVF file with frames of 10ms each.
func writeIVF(t *testing.T, path string, w, h uint16, frames int) {
	t.Helper()
	buf := make([]byte, 32)
	copy(buf[0:4], "DKIF")
	binary.LittleEndian.PutUint16(buf[6:8], 32)
	copy(buf[8:12], "VP80")
	binary.LittleEndian.PutUint16(buf[12:14], w)
	binary.LittleEndian.PutUint16(buf[14:16], h)
	binary.LittleEndian.PutUint32(buf[16:20], 100)
	binary.LittleEndian.PutUint32(buf[20:24], 1)
	binary.LittleEndian.PutUint32(buf[24:28], uint32(frames))

	payload := vp8KeyFrame(int(w), int(h))
	for i := 0; i < frames; i++ {
		fh := make([]byte, 12)
		binary.LittleEndian.PutUint32(fh[0:4], uint32(len(payload)))
		binary.LittleEndian.PutUint64(fh[4:12], uint64(i))
		buf = append(buf, fh...)
		buf = append(buf, payload...)
	}
	require.NoError(t, os.WriteFile(path, buf, 0o644))
}

func TestFileDeviceErrors(t *testing.T) {
	dir := t.TempDir()
	ok := filepath.Join(dir, "ok.ivf")
	big := filepath.Join(dir, "big.ivf")
	writeIVF(t, ok, 640, 480, 3)
	writeIVF(t, big, 4096, 2160, 1)

	kindOf := func(dev *FileDevice) ErrorKind {
		_, err := Capture(context.Background(), dev, DefaultConstraints())
		var ce *CaptureError
		require.ErrorAs(t, err, &ce)
		return ce.Kind
	}

	assert.Equal(t, KindDeviceNotFound, kindOf(&FileDevice{}))
	assert.Equal(t, KindDeviceNotFound, kindOf(&FileDevice{VideoPath: filepath.Join(dir, "missing.ivf")}))
	assert.Equal(t, KindDeviceNotFound, kindOf(&FileDevice{VideoPath: big}))
	assert.Equal(t, KindSecurityBlocked, kindOf(&FileDevice{VideoPath: ok, AllowedDir: filepath.Join(dir, "sub")}))

	held, err := Capture(context.Background(), &FileDevice{VideoPath: ok, Loop: true}, DefaultConstraints())
	require.NoError(t, err)
	assert.Equal(t, KindDeviceBusy, kindOf(&FileDevice{VideoPath: ok}))
	held.Stop()

	again, err := Capture(context.Background(), &FileDevice{VideoPath: ok}, DefaultConstraints())
	require.NoError(t, err)
	again.Stop()
}

func TestFileDeviceEndOfFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "short.ivf")
	writeIVF(t, path, 320, 240, 10)

	s, err := Capture(context.Background(), &FileDevice{VideoPath: path}, DefaultConstraints())
	require.NoError(t, err)
	defer s.Stop()

	ended := make(chan struct{})
	s.VideoTracks()[0].OnEnded(func(*Track) { close(ended) })

	select {
	case <-ended:
	case <-time.After(2 * time.Second):
		t.Fatal("track did not end at EOF")
	}
}

func TestRangeFit(t *testing.T) {
	r := Range{Ideal: 1280, Max: 1920}
	assert.Equal(t, 1280, r.Fit(0))
	assert.Equal(t, 640, r.Fit(640))
	assert.Equal(t, 1920, Range{Ideal: 4000, Max: 1920}.Fit(0))
	assert.True(t, r.Allows(1920))
	assert.False(t, r.Allows(1921))
	assert.True(t, Range{Ideal: 2}.Allows(8))
}
