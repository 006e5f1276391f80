package media

import (
	"errors"
	"io/fs"
)

var (
	ErrNoDevice          = errors.New("media devices API not supported")
	ErrPermissionDenied  = errors.New("permission denied")
	ErrDeviceNotFound    = errors.New("requested device not found")
	ErrOverconstrained   = errors.New("constraints cannot be satisfied")
	ErrDeviceBusy        = errors.New("device is already in use")
	ErrSecurityBlocked   = errors.New("access blocked by security settings")
	ErrUnsupportedFormat = errors.New("unsupported media format")
	ErrTrackRevoked      = errors.New("track revoked")
	ErrSourceClosed      = errors.New("source closed")
)

type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindPermissionDenied
	KindDeviceNotFound
	KindDeviceBusy
	KindSecurityBlocked
	KindUnsupported
)

func (k ErrorKind) String() string {
	switch k {
	case KindPermissionDenied:
		return "permission_denied"
	case KindDeviceNotFound:
		return "device_not_found"
	case KindDeviceBusy:
		return "device_busy"
	case KindSecurityBlocked:
		return "security_blocked"
	case KindUnsupported:
		return "unsupported"
	default:
		return "unknown"
	}
}

// CaptureError is returned by Capture. Message() is meant for end users.
type CaptureError struct {
	Kind ErrorKind
	Err  error
}

func (e *CaptureError) Error() string {
	return "media capture: " + e.Kind.String() + ": " + e.Err.Error()
}

func (e *CaptureError) Unwrap() error { return e.Err }

func (e *CaptureError) Message() string {
	const prefix = "Could not access camera/microphone. "
	switch e.Kind {
	case KindPermissionDenied:
		return prefix + "Permission denied. Please allow camera and microphone access."
	case KindDeviceNotFound:
		return prefix + "No suitable camera found. Please check your device."
	case KindDeviceBusy:
		return prefix + "Camera/microphone is already in use by another application."
	case KindSecurityBlocked:
		return prefix + "Camera/microphone access is blocked by browser security settings."
	default:
		return prefix + "Please check permissions and try again. (" + e.Err.Error() + ")"
	}
}

func classify(err error) *CaptureError {
	var ce *CaptureError
	if errors.As(err, &ce) {
		return ce
	}
	kind := KindUnknown
	switch {
	case errors.Is(err, ErrPermissionDenied), errors.Is(err, fs.ErrPermission):
		kind = KindPermissionDenied
	case errors.Is(err, ErrDeviceNotFound), errors.Is(err, ErrOverconstrained), errors.Is(err, fs.ErrNotExist):
		kind = KindDeviceNotFound
	case errors.Is(err, ErrDeviceBusy):
		kind = KindDeviceBusy
	case errors.Is(err, ErrSecurityBlocked):
		kind = KindSecurityBlocked
	case errors.Is(err, ErrNoDevice), errors.Is(err, ErrUnsupportedFormat):
		kind = KindUnsupported
	}
	return &CaptureError{Kind: kind, Err: err}
}
