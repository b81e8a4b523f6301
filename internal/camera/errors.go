package camera

import "errors"

var (
	// ErrUnavailable is returned when no camera backend can be opened.
	ErrUnavailable = errors.New("camera: unavailable")

	// ErrCaptureFailed is returned when the backend produced no image.
	ErrCaptureFailed = errors.New("camera: capture failed")

	// ErrClosed is returned by operations on a shut-down camera.
	ErrClosed = errors.New("camera: closed")
)
