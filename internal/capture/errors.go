package capture

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

var (
	// ErrNotVideo rejects a selected file whose content is not video.
	ErrNotVideo = errors.New("please choose a video file")
	// ErrInvalidState is returned for a transition the current state does not allow.
	ErrInvalidState = errors.New("invalid capture state")
)

type ErrorKind string

const (
	KindPermissionDenied ErrorKind = "permission_denied"
	KindDeviceNotFound   ErrorKind = "device_not_found"
	KindUnknown          ErrorKind = "unknown"
)

// CaptureError is a classified failure to open or drive the camera and microphone.
type CaptureError struct {
	Kind ErrorKind
	Err  error
}

func (e *CaptureError) Error() string {
	return e.Message()
}

func (e *CaptureError) Unwrap() error { return e.Err }

// Message is the text shown to the user.
func (e *CaptureError) Message() string {
	switch e.Kind {
	case KindPermissionDenied:
		return "cannot access the camera or microphone; make sure access has been granted"
	case KindDeviceNotFound:
		return "no usable camera or microphone found; check that the devices are connected"
	default:
		if e.Err != nil {
			return fmt.Sprintf("unknown error starting the camera or microphone: %v", e.Err)
		}
		return "unknown error starting the camera or microphone"
	}
}

// classify maps a device error, plus any diagnostic output from the capture
// process, to a CaptureError.
func classify(err error, diag string) *CaptureError {
	var ce *CaptureError
	if errors.As(err, &ce) {
		return ce
	}
	d := strings.ToLower(diag)
	switch {
	case errors.Is(err, os.ErrPermission), strings.Contains(d, "permission denied"), strings.Contains(d, "operation not permitted"):
		return &CaptureError{Kind: KindPermissionDenied, Err: err}
	case errors.Is(err, exec.ErrNotFound), errors.Is(err, os.ErrNotExist),
		strings.Contains(d, "no such file or directory"), strings.Contains(d, "no such device"),
		strings.Contains(d, "cannot open video device"), strings.Contains(d, "cannot open audio device"):
		return &CaptureError{Kind: KindDeviceNotFound, Err: err}
	default:
		return &CaptureError{Kind: KindUnknown, Err: err}
	}
}
