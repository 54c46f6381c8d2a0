// Package capture acquires a live camera feed, freezes a still frame and
// encodes it for reading extraction.
//
// Hardware access goes through a Source so that negotiation and session
// handling can run against fakes in tests.
package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
)

// Orientation is the requested facing of the camera.
type Orientation string

const (
	// OrientationUser is the self-facing (front) camera. Its preview is mirrored.
	OrientationUser Orientation = "user"
	// OrientationEnvironment is the world-facing (back) camera.
	OrientationEnvironment Orientation = "environment"
)

// ParseOrientation converts a request value into an Orientation.
func ParseOrientation(s string) (Orientation, error) {
	switch Orientation(s) {
	case OrientationUser, OrientationEnvironment:
		return Orientation(s), nil
	case "":
		return OrientationEnvironment, nil
	default:
		return "", fmt.Errorf("unknown orientation %q", s)
	}
}

// Constraints describe one acquisition request. Zero Width/Height means any
// resolution; empty Facing means any camera.
type Constraints struct {
	Facing Orientation
	Width  int
	Height int
}

// Stream is a live video source returned by a Source.
type Stream interface {
	// ReadFrame returns the current frame.
	ReadFrame() (image.Image, error)
}

// Source is the host camera capability.
type Source interface {
	// Acquire opens a stream matching c. It may return a non-nil Stream
	// together with an error when acquisition partially succeeded; the
	// caller releases it.
	Acquire(ctx context.Context, c Constraints) (Stream, error)
	// Release stops the stream and frees the device.
	Release(s Stream) error
}

// Errors a Source reports for acquisition failures.
var (
	ErrPermissionDenied = errors.New("camera permission denied")
	ErrNoDevice         = errors.New("no camera device")
	ErrDeviceBusy       = errors.New("camera device busy")
	ErrOverconstrained  = errors.New("camera constraints not satisfiable")
	ErrInsecureContext  = errors.New("camera access requires a secure context")
)

// HostError is a named failure forwarded from a host media API, for example a
// browser getUserMedia rejection relayed by a bridge.
type HostError struct {
	Name    string
	Message string
}

func (e *HostError) Error() string {
	if e.Message == "" {
		return e.Name
	}
	return e.Name + ": " + e.Message
}

// NoSource is a Source for hosts without a camera. Every acquisition fails
// with ErrNoDevice so sessions report the no-device cause.
type NoSource struct{}

func (NoSource) Acquire(ctx context.Context, c Constraints) (Stream, error) {
	return nil, ErrNoDevice
}

func (NoSource) Release(s Stream) error {
	return nil
}
