// Package reconcile compares manually entered scale readings with readings
// extracted from photos of the scale.
package reconcile

import (
	"encoding/json"
	"fmt"
	"math"
)

// Status is the agreement between a manual and an extracted reading.
type Status string

const (
	// StatusNone means no photo has been read for the item.
	StatusNone Status = "none"
	// StatusPending means extraction is in flight, or there is no manual
	// value to compare against yet.
	StatusPending    Status = "pending"
	StatusMatched    Status = "matched"
	StatusMismatched Status = "mismatched"
	StatusUnreadable Status = "unreadable"
)

type extractState int

const (
	notRequested extractState = iota
	inFlight
	numeric
	unreadable
)

var extractStateNames = map[extractState]string{
	notRequested: "unset",
	inFlight:     "in-flight",
	numeric:      "numeric",
	unreadable:   "unreadable",
}

// Extracted is the outcome of reading an item's photo.
type Extracted struct {
	state extractState
	value float64
}

// NotRequested is the zero Extracted: no photo has been submitted.
func NotRequested() Extracted { return Extracted{} }

// InFlight marks an extraction that has started but not finished.
func InFlight() Extracted { return Extracted{state: inFlight} }

// Reading is a successfully extracted number.
func Reading(v float64) Extracted { return Extracted{state: numeric, value: v} }

// Unreadable marks a photo the reader could not make sense of.
func Unreadable() Extracted { return Extracted{state: unreadable} }

// Value returns the extracted number, if there is one.
func (e Extracted) Value() (float64, bool) {
	return e.value, e.state == numeric
}

// InFlight reports whether an extraction is running.
func (e Extracted) InFlight() bool {
	return e.state == inFlight
}

func (e Extracted) String() string {
	if e.state == numeric {
		return fmt.Sprintf("%g", e.value)
	}
	return extractStateNames[e.state]
}

type extractedJSON struct {
	State string   `json:"state"`
	Value *float64 `json:"value,omitempty"`
}

func (e Extracted) MarshalJSON() ([]byte, error) {
	out := extractedJSON{State: extractStateNames[e.state]}
	if v, ok := e.Value(); ok {
		out.Value = &v
	}
	return json.Marshal(out)
}

func (e *Extracted) UnmarshalJSON(data []byte) error {
	var in extractedJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	for state, name := range extractStateNames {
		if name != in.State {
			continue
		}
		*e = Extracted{state: state}
		if state == numeric {
			if in.Value == nil {
				return fmt.Errorf("numeric reading without value")
			}
			e.value = *in.Value
		}
		return nil
	}
	return fmt.Errorf("unknown extraction state %q", in.State)
}

// Tolerance is how far a manual value may be from the extracted one and still
// match. The effective limit is the larger of Absolute and Relative times the
// extracted magnitude.
type Tolerance struct {
	Absolute float64
	Relative float64
}

// DefaultTolerance is 0.05 in the item's unit.
var DefaultTolerance = Tolerance{Absolute: 0.05}

// float64 noise allowance so that e.g. 1.20 vs 1.25 sits on the boundary.
const boundarySlack = 1e-9

// Allows reports whether manual and extracted agree.
func (t Tolerance) Allows(manual, extracted float64) bool {
	limit := math.Max(t.Absolute, t.Relative*math.Abs(extracted))
	return math.Abs(manual-extracted) <= limit+boundarySlack
}

// Classify derives the status of an item from its two readings. It has no
// side effects and depends only on its arguments.
func Classify(manual *float64, extracted Extracted, tol Tolerance) Status {
	switch extracted.state {
	case notRequested:
		return StatusNone
	case inFlight:
		return StatusPending
	case unreadable:
		return StatusUnreadable
	}
	if manual == nil {
		return StatusPending
	}
	if tol.Allows(*manual, extracted.value) {
		return StatusMatched
	}
	return StatusMismatched
}
