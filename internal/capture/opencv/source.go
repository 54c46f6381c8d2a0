// Package opencv provides a capture.Source backed by local video devices.
package opencv

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"

	"gocv.io/x/gocv"

	"github.com/zombor/scalecheck/internal/capture"
)

// minResolutionRatio is how close the negotiated resolution must get to the
// requested one before the tier counts as satisfied.
const minResolutionRatio = 0.9

// Source opens cameras by device index, one index per facing.
type Source struct {
	devices map[capture.Orientation]int

	mu   sync.Mutex
	open map[*stream]struct{}
}

// NewSource creates a Source. userDevice and envDevice are video device
// indexes; a negative index means no such camera.
func NewSource(userDevice, envDevice int) *Source {
	devices := make(map[capture.Orientation]int)
	if userDevice >= 0 {
		devices[capture.OrientationUser] = userDevice
	}
	if envDevice >= 0 {
		devices[capture.OrientationEnvironment] = envDevice
	}
	return &Source{devices: devices, open: make(map[*stream]struct{})}
}

type stream struct {
	vc  *gocv.VideoCapture
	mat gocv.Mat
}

func (s *stream) ReadFrame() (image.Image, error) {
	if ok := s.vc.Read(&s.mat); !ok || s.mat.Empty() {
		return nil, errors.New("reading frame from camera")
	}
	img, err := s.mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("converting frame: %w", err)
	}
	return img, nil
}

func (s *Source) device(facing capture.Orientation) (int, bool) {
	if facing == "" {
		if id, ok := s.devices[capture.OrientationEnvironment]; ok {
			return id, true
		}
		if id, ok := s.devices[capture.OrientationUser]; ok {
			return id, true
		}
		return 0, false
	}
	id, ok := s.devices[facing]
	return id, ok
}

// Acquire opens the device for c.Facing and applies the requested resolution.
func (s *Source) Acquire(ctx context.Context, c capture.Constraints) (capture.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	id, ok := s.device(c.Facing)
	if !ok {
		return nil, fmt.Errorf("no %q camera configured: %w", c.Facing, capture.ErrNoDevice)
	}

	vc, err := gocv.OpenVideoCapture(id)
	if err != nil {
		return nil, fmt.Errorf("opening device %d: %v: %w", id, err, capture.ErrNoDevice)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("device %d did not open: %w", id, capture.ErrDeviceBusy)
	}

	st := &stream{vc: vc, mat: gocv.NewMat()}
	if c.Width > 0 && c.Height > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(c.Width))
		vc.Set(gocv.VideoCaptureFrameHeight, float64(c.Height))
		w := vc.Get(gocv.VideoCaptureFrameWidth)
		h := vc.Get(gocv.VideoCaptureFrameHeight)
		if w < float64(c.Width)*minResolutionRatio || h < float64(c.Height)*minResolutionRatio {
			// Hand the opened stream back so the negotiator releases it.
			s.track(st)
			return st, fmt.Errorf("device %d delivers %.0fx%.0f, wanted %dx%d: %w",
				id, w, h, c.Width, c.Height, capture.ErrOverconstrained)
		}
	}

	s.track(st)
	slog.Debug("Opened camera device", "device", id, "facing", c.Facing)
	return st, nil
}

// Release closes a stream returned by Acquire.
func (s *Source) Release(cs capture.Stream) error {
	st, ok := cs.(*stream)
	if !ok {
		return fmt.Errorf("unknown stream type %T", cs)
	}

	s.mu.Lock()
	if _, held := s.open[st]; !held {
		s.mu.Unlock()
		return nil
	}
	delete(s.open, st)
	s.mu.Unlock()

	st.mat.Close()
	return st.vc.Close()
}

// Open reports how many streams are currently held.
func (s *Source) Open() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.open)
}

func (s *Source) track(st *stream) {
	s.mu.Lock()
	s.open[st] = struct{}{}
	s.mu.Unlock()
}
