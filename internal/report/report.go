// Package report runs the shift report workflow: the camera station, the
// measured items, and submission of finished reports.
package report

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/zombor/scalecheck/internal/reconcile"
)

// Type is the kind of shift report.
type Type string

const (
	TypeShiftStart Type = "REPORT_START"
	TypeShiftEnd   Type = "REPORT_END"
)

// ParseType validates a report type.
func ParseType(s string) (Type, error) {
	switch t := Type(strings.ToUpper(strings.TrimSpace(s))); t {
	case TypeShiftStart, TypeShiftEnd:
		return t, nil
	}
	return "", fmt.Errorf("%w: unknown report type %q", ErrInvalidInput, s)
}

// Report is a submitted shift report
type Report struct {
	ID     string `json:"id"`
	Type   Type   `json:"type"`
	Staff  string `json:"staff"`
	Branch string `json:"branch"`
	Shift  string `json:"shift"`
	Items  []Item `json:"items"`
	// Message and Discrepancy are the ledger's reply; empty when no ledger
	// is configured.
	Message     string    `json:"message,omitempty"`
	Discrepancy string    `json:"discrepancy,omitempty"`
	Delivered   bool      `json:"delivered"`
	CreatedAt   time.Time `json:"created_at"`
}

// Item is one measured item of a report
type Item struct {
	Key         string              `json:"key"`
	Manual      *float64            `json:"manual"`
	Extracted   reconcile.Extracted `json:"extracted"`
	Status      reconcile.Status    `json:"status"`
	Filename    string              `json:"filename,omitempty"` // photo in storage
	ContentType string              `json:"content_type,omitempty"`
}

// Item returns the item named key.
func (r *Report) Item(key string) (*Item, bool) {
	for i := range r.Items {
		if r.Items[i].Key == key {
			return &r.Items[i], true
		}
	}
	return nil, false
}

// branchInitials takes the first letter of every word in branch, keeping
// ASCII capitals only ("Vincom Bà Triệu" becomes "VBT").
func branchInitials(branch string) string {
	var b strings.Builder
	for _, word := range strings.Fields(branch) {
		r := unicode.ToUpper([]rune(word)[0])
		if r >= 'A' && r <= 'Z' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// reportID formats RPT-<branch initials>-<shift>-<yyyymmdd>-<suffix>.
func reportID(branch, shift string, at time.Time, suffix string) string {
	return fmt.Sprintf("RPT-%s-%s-%s-%s", branchInitials(branch), shift, at.Format("20060102"), suffix)
}
