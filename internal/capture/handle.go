package capture

import (
	"errors"
	"image"
	"sync"
)

// ErrSessionClosed is returned by operations on a released Handle.
var ErrSessionClosed = errors.New("capture session closed")

// Handle is the live reference to an acquired stream. It is owned by exactly
// one Session and becomes invalid once released.
type Handle struct {
	mu          sync.Mutex
	source      Source
	stream      Stream
	constraints Constraints
	tier        string
}

func newHandle(source Source, stream Stream, c Constraints, tier string) *Handle {
	return &Handle{source: source, stream: stream, constraints: c, tier: tier}
}

// Tier names the negotiation tier the stream was acquired with.
func (h *Handle) Tier() string {
	return h.tier
}

// Constraints returns the constraints the stream was acquired with.
func (h *Handle) Constraints() Constraints {
	return h.constraints
}

// ReadFrame returns the current frame of the stream.
func (h *Handle) ReadFrame() (image.Image, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stream == nil {
		return nil, ErrSessionClosed
	}
	return h.stream.ReadFrame()
}

// Released reports whether the underlying stream has been given back.
func (h *Handle) Released() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stream == nil
}

// release gives the stream back to the source. Safe to call more than once.
func (h *Handle) release() error {
	h.mu.Lock()
	s := h.stream
	h.stream = nil
	h.mu.Unlock()
	if s == nil {
		return nil
	}
	return h.source.Release(s)
}
