package reconcile

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/zombor/scalecheck/internal/capture"
)

var (
	ErrItemNotFound  = errors.New("item not found")
	ErrDuplicateItem = errors.New("item already added")
)

// Entry is a snapshot of one measured item.
type Entry struct {
	Key       string                 `json:"key"`
	Manual    *float64               `json:"manual"`
	Extracted Extracted              `json:"extracted"`
	Status    Status                 `json:"status"`
	Image     *capture.CapturedImage `json:"image,omitempty"`

	// Revision changes when the item is added again or gets a new photo.
	Revision uint64 `json:"-"`
}

type item struct {
	manual    *float64
	extracted Extracted
	image     *capture.CapturedImage
	token     uint64
}

// Registry holds the measured items of a report in insertion order.
type Registry struct {
	tolerance Tolerance

	mu    sync.Mutex
	order []string
	items map[string]*item

	// nextToken survives Remove and Reset.
	nextToken uint64
}

// NewRegistry creates an empty Registry classifying with tol.
func NewRegistry(tol Tolerance) *Registry {
	return &Registry{tolerance: tol, items: make(map[string]*item)}
}

// Tolerance returns the tolerance used for classification.
func (r *Registry) Tolerance() Tolerance {
	return r.tolerance
}

// Add registers key with no readings.
func (r *Registry) Add(key string) (Entry, error) {
	if key == "" {
		return Entry{}, errors.New("item key is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[key]; ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrDuplicateItem, key)
	}
	r.nextToken++
	it := &item{token: r.nextToken}
	r.items[key] = it
	r.order = append(r.order, key)
	return r.entry(key, it), nil
}

// Remove drops key together with its readings and photo.
func (r *Registry) Remove(key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[key]; !ok {
		return fmt.Errorf("%w: %s", ErrItemNotFound, key)
	}
	delete(r.items, key)
	r.order = slices.DeleteFunc(r.order, func(k string) bool { return k == key })
	return nil
}

// RemoveIf drops key only while it is still at revision, so an item re-added
// or re-photographed since that snapshot is kept.
func (r *Registry) RemoveIf(key string, revision uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	it, ok := r.items[key]
	if !ok || it.token != revision {
		return false
	}
	delete(r.items, key)
	r.order = slices.DeleteFunc(r.order, func(k string) bool { return k == key })
	return true
}

// Reset removes every item.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.order = nil
	r.items = make(map[string]*item)
}

// Keys returns the item keys in insertion order.
func (r *Registry) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.order)
}

// Entry returns the snapshot for key.
func (r *Registry) Entry(key string) (Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	it, ok := r.items[key]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrItemNotFound, key)
	}
	return r.entry(key, it), nil
}

// Entries returns snapshots of every item in insertion order.
func (r *Registry) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	entries := make([]Entry, 0, len(r.order))
	for _, key := range r.order {
		entries = append(entries, r.entry(key, r.items[key]))
	}
	return entries
}

// SetManual records the operator's value for key; nil clears it. The returned
// entry is classified against the current extracted value.
func (r *Registry) SetManual(key string, value *float64) (Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	it, ok := r.items[key]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrItemNotFound, key)
	}
	if value != nil {
		v := *value
		it.manual = &v
	} else {
		it.manual = nil
	}
	return r.entry(key, it), nil
}

// AttachImage replaces the photo for key and marks its extraction in flight.
// The returned token identifies this extraction to CompleteExtraction.
func (r *Registry) AttachImage(key string, img *capture.CapturedImage) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	it, ok := r.items[key]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrItemNotFound, key)
	}
	it.image = img
	it.extracted = InFlight()
	r.nextToken++
	it.token = r.nextToken
	return it.token, nil
}

// CompleteExtraction stores the outcome of the extraction identified by
// token. Outcomes for a replaced photo or a removed item are dropped and
// reported as not applied.
func (r *Registry) CompleteExtraction(key string, token uint64, extracted Extracted) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	it, ok := r.items[key]
	if !ok || it.token != token {
		return Entry{}, false
	}
	it.extracted = extracted
	return r.entry(key, it), true
}

// Image returns the photo attached to key, or nil if there is none.
func (r *Registry) Image(key string) (*capture.CapturedImage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	it, ok := r.items[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrItemNotFound, key)
	}
	return it.image, nil
}

func (r *Registry) entry(key string, it *item) Entry {
	e := Entry{
		Key:       key,
		Extracted: it.extracted,
		Status:    Classify(it.manual, it.extracted, r.tolerance),
		Image:     it.image,
		Revision:  it.token,
	}
	if it.manual != nil {
		v := *it.manual
		e.Manual = &v
	}
	return e
}
