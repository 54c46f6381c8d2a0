package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// State is the lifecycle position of a Session.
type State int

const (
	StateIdle State = iota
	StateNegotiating
	StateLive
	StateFrozen
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateNegotiating:
		return "negotiating"
	case StateLive:
		return "live"
	case StateFrozen:
		return "frozen"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText renders the state name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// SessionStateError reports an operation that is not valid in the current state.
type SessionStateError struct {
	Op    string
	State State
}

func (e *SessionStateError) Error() string {
	return fmt.Sprintf("capture: %s not allowed while %s", e.Op, e.State)
}

// Option configures a Session.
type Option func(*Session)

// WithStrictStateChecks makes invalid operations panic instead of returning a
// *SessionStateError. Meant for development builds.
func WithStrictStateChecks() Option {
	return func(s *Session) { s.strict = true }
}

// WithEncoder overrides the default frame encoder.
func WithEncoder(e *Encoder) Option {
	return func(s *Session) { s.encoder = e }
}

// testHookBeforeClaim runs after Start leaves the lock and before it claims
// the registry slot.
var testHookBeforeClaim = func() {}

type negotiation struct {
	done chan struct{}
	err  error
}

// Session owns one negotiated stream from start to teardown.
type Session struct {
	negotiator  *Negotiator
	registry    *Registry
	encoder     *Encoder
	orientation Orientation
	strict      bool

	mu       sync.Mutex
	state    State
	handle   *Handle
	tier     string
	image    *CapturedImage
	failure  error
	gen      uint64
	inflight *negotiation
	cancel   context.CancelFunc
}

// NewSession creates an idle session for the given orientation.
func NewSession(negotiator *Negotiator, registry *Registry, orientation Orientation, opts ...Option) *Session {
	s := &Session{
		negotiator:  negotiator,
		registry:    registry,
		encoder:     NewEncoder(DefaultJPEGQuality),
		orientation: orientation,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Orientation returns the camera facing this session requests.
func (s *Session) Orientation() Orientation {
	return s.orientation
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Image returns the frozen still, or nil.
func (s *Session) Image() *CapturedImage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.image
}

// Start negotiates a stream and goes live. Calling Start while a negotiation
// is in flight waits for that negotiation instead of starting another.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case StateNegotiating:
		call := s.inflight
		s.mu.Unlock()
		select {
		case <-call.done:
			return call.err
		case <-ctx.Done():
			return ctx.Err()
		}
	case StateIdle, StateError:
	default:
		st := s.state
		s.mu.Unlock()
		return s.misuse("start", st)
	}

	s.gen++
	gen := s.gen
	call := &negotiation{done: make(chan struct{})}
	nctx, cancel := context.WithCancel(ctx)
	s.inflight = call
	s.cancel = cancel
	s.state = StateNegotiating
	s.failure = nil
	s.image = nil
	s.mu.Unlock()

	defer cancel()
	defer close(call.done)

	testHookBeforeClaim()
	s.registry.claim(s)
	handle, err := s.negotiator.Negotiate(nctx, s.orientation)

	s.mu.Lock()
	if s.gen != gen {
		// Stopped while negotiating. The slot is ours unless a later Start
		// on this session has taken over.
		if s.state != StateNegotiating && s.state != StateLive {
			s.registry.release(s)
		}
		s.mu.Unlock()
		if handle != nil {
			if rerr := handle.release(); rerr != nil {
				slog.Warn("Failed to release camera after stop", "error", rerr)
			}
		}
		call.err = ErrSessionClosed
		return call.err
	}
	s.inflight = nil
	s.cancel = nil
	if err != nil {
		s.state = StateError
		s.failure = err
		s.mu.Unlock()
		s.registry.release(s)
		call.err = err
		return err
	}
	s.state = StateLive
	s.handle = handle
	s.tier = handle.Tier()
	s.mu.Unlock()
	return nil
}

// Capture freezes the current frame for item. The camera is released as part
// of the transition whether or not encoding succeeds.
func (s *Session) Capture(item string) (*CapturedImage, error) {
	s.mu.Lock()
	if s.state != StateLive {
		st := s.state
		s.mu.Unlock()
		return nil, s.misuse("capture", st)
	}

	handle := s.handle
	frame, err := handle.ReadFrame()
	var img *CapturedImage
	if err == nil {
		img, err = s.encoder.Encode(frame, s.orientation, item)
	}

	s.handle = nil
	if rerr := handle.release(); rerr != nil {
		slog.Warn("Failed to release camera after capture", "error", rerr)
	}
	if err != nil {
		s.state = StateError
		s.failure = fmt.Errorf("capturing frame: %w", err)
		err = s.failure
	} else {
		s.state = StateFrozen
		s.image = img
	}
	s.mu.Unlock()

	s.registry.release(s)
	return img, err
}

// Retake discards the still (or the failure) and starts again.
func (s *Session) Retake(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateFrozen && s.state != StateError {
		st := s.state
		s.mu.Unlock()
		return s.misuse("retake", st)
	}
	s.image = nil
	s.failure = nil
	s.state = StateIdle
	s.mu.Unlock()
	return s.Start(ctx)
}

// Stop releases the camera if held and returns to idle. It is valid in every
// state and the camera is free when it returns.
func (s *Session) Stop() {
	s.mu.Lock()
	s.gen++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	handle := s.handle
	s.handle = nil
	s.inflight = nil
	s.image = nil
	s.failure = nil
	s.tier = ""
	s.state = StateIdle
	if handle != nil {
		if err := handle.release(); err != nil {
			slog.Warn("Failed to release camera on stop", "error", err)
		}
	}
	s.mu.Unlock()

	s.registry.release(s)
}

// Status is a point-in-time view of a Session.
type Status struct {
	State       State          `json:"state"`
	Orientation Orientation    `json:"orientation"`
	Tier        string         `json:"tier,omitempty"`
	Cause       Cause          `json:"cause,omitempty"`
	Message     string         `json:"message,omitempty"`
	Image       *CapturedImage `json:"image,omitempty"`
}

// Snapshot returns the current status.
func (s *Session) Snapshot() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		State:       s.state,
		Orientation: s.orientation,
		Tier:        s.tier,
		Image:       s.image,
	}
	if s.failure != nil {
		var negErr *NegotiationError
		if errors.As(s.failure, &negErr) {
			st.Cause = negErr.Cause
		} else {
			st.Cause = CauseUnknown
		}
		st.Message = st.Cause.Message()
	}
	return st
}

func (s *Session) misuse(op string, st State) error {
	err := &SessionStateError{Op: op, State: st}
	if s.strict {
		panic(err)
	}
	slog.Warn("Invalid capture session operation", "op", op, "state", st)
	return err
}
