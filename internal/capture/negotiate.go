package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Cause classifies why negotiation failed.
type Cause string

const (
	CausePermissionDenied       Cause = "permission-denied"
	CauseNoDevice               Cause = "no-device"
	CauseDeviceBusy             Cause = "device-busy"
	CauseUnsupportedConstraints Cause = "unsupported-constraints"
	CauseInsecureContext        Cause = "insecure-context"
	CauseUnknown                Cause = "unknown"
)

// Message returns text the operator can act on.
func (c Cause) Message() string {
	switch c {
	case CausePermissionDenied:
		return "Camera access was denied. Grant camera permission in the device settings and try again."
	case CauseNoDevice:
		return "No camera was found on this device."
	case CauseDeviceBusy:
		return "The camera is busy or failed to start. Close any other application using the camera and try again."
	case CauseUnsupportedConstraints:
		return "The camera does not support the requested configuration."
	case CauseInsecureContext:
		return "Camera access is not supported here. Open the portal over a secure connection."
	default:
		return "Unable to start the camera."
	}
}

// NegotiationError is returned when every tier failed.
type NegotiationError struct {
	Cause Cause
	Err   error
}

func (e *NegotiationError) Error() string {
	return fmt.Sprintf("camera negotiation failed (%s): %v", e.Cause, e.Err)
}

func (e *NegotiationError) Unwrap() error {
	return e.Err
}

// Tier is one set of constraints tried during negotiation.
type Tier struct {
	Name   string
	Width  int
	Height int
	// AnyFacing drops the orientation requirement.
	AnyFacing bool
}

// DefaultTiers are tried in order: 1080p, 720p, then any source.
var DefaultTiers = []Tier{
	{Name: "high", Width: 1920, Height: 1080},
	{Name: "medium", Width: 1280, Height: 720},
	{Name: "any", AnyFacing: true},
}

// DefaultTierTimeout bounds a single acquisition attempt.
const DefaultTierTimeout = 5 * time.Second

// Negotiator acquires a stream by trying progressively weaker constraints.
type Negotiator struct {
	source      Source
	tiers       []Tier
	tierTimeout time.Duration
}

// NewNegotiator creates a Negotiator over source using DefaultTiers.
// A non-positive tierTimeout uses DefaultTierTimeout.
func NewNegotiator(source Source, tierTimeout time.Duration) *Negotiator {
	if tierTimeout <= 0 {
		tierTimeout = DefaultTierTimeout
	}
	return &Negotiator{source: source, tiers: DefaultTiers, tierTimeout: tierTimeout}
}

// Negotiate returns a handle from the first tier that yields a usable stream.
// No tier is retried, and nothing acquired by a losing attempt stays held.
func (n *Negotiator) Negotiate(ctx context.Context, orientation Orientation) (*Handle, error) {
	var lastErr error
	for _, tier := range n.tiers {
		c := Constraints{Facing: orientation, Width: tier.Width, Height: tier.Height}
		if tier.AnyFacing {
			c.Facing = ""
		}

		stream, err := n.attempt(ctx, c)
		if err == nil {
			slog.Debug("Camera negotiated", "tier", tier.Name, "orientation", orientation)
			return newHandle(n.source, stream, c, tier.Name), nil
		}

		slog.Warn("Camera tier failed", "tier", tier.Name, "orientation", orientation, "error", err)
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return nil, &NegotiationError{Cause: Classify(lastErr), Err: lastErr}
}

// attempt runs one tier. A stream is only returned with a nil error.
func (n *Negotiator) attempt(ctx context.Context, c Constraints) (Stream, error) {
	tctx, cancel := context.WithTimeout(ctx, n.tierTimeout)
	defer cancel()

	stream, err := n.source.Acquire(tctx, c)
	if err == nil && stream == nil {
		err = ErrNoDevice
	}
	if err == nil && tctx.Err() != nil {
		// Acquired after the deadline; the tier already lost.
		err = tctx.Err()
	}
	if err != nil {
		if stream != nil {
			if rerr := n.source.Release(stream); rerr != nil {
				slog.Warn("Failed to release losing camera stream", "error", rerr)
			}
		}
		return nil, err
	}
	return stream, nil
}

// Classify maps an acquisition failure to a Cause.
func Classify(err error) Cause {
	if err == nil {
		return CauseUnknown
	}

	switch {
	case errors.Is(err, ErrPermissionDenied):
		return CausePermissionDenied
	case errors.Is(err, ErrNoDevice):
		return CauseNoDevice
	case errors.Is(err, ErrDeviceBusy), errors.Is(err, context.DeadlineExceeded):
		return CauseDeviceBusy
	case errors.Is(err, ErrOverconstrained):
		return CauseUnsupportedConstraints
	case errors.Is(err, ErrInsecureContext):
		return CauseInsecureContext
	}

	var hostErr *HostError
	if errors.As(err, &hostErr) {
		switch hostErr.Name {
		case "NotAllowedError", "PermissionDeniedError":
			return CausePermissionDenied
		case "NotFoundError", "DevicesNotFoundError":
			return CauseNoDevice
		case "NotReadableError", "TrackStartError":
			return CauseDeviceBusy
		case "OverconstrainedError":
			return CauseUnsupportedConstraints
		case "NotSupportedError", "SecurityError":
			return CauseInsecureContext
		}
		if strings.Contains(hostErr.Message, "Could not start video source") {
			return CauseDeviceBusy
		}
	}
	return CauseUnknown
}
