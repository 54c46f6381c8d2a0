package ledger

import (
	"context"
	"fmt"
)

// User identifies who filed a report.
type User struct {
	Name   string `json:"name"`
	Branch string `json:"branch"`
	Shift  string `json:"shift"`
}

// Verification is the photo check for one item.
type Verification struct {
	Extracted *float64 `json:"extracted"`
	Status    string   `json:"status"`
}

// ReportData is the body of a shift report.
type ReportData struct {
	ReportID  string              `json:"reportId"`
	Inventory map[string]*float64 `json:"inventory"`
	// Images holds data URLs keyed by item.
	Images       map[string]string       `json:"images"`
	Verification map[string]Verification `json:"verification"`
}

// Report is the SUBMIT_REPORT payload.
type Report struct {
	Type       string     `json:"type"`
	User       User       `json:"user"`
	ReportData ReportData `json:"reportData"`
}

// Ack is the ledger's answer to an accepted report.
type Ack struct {
	Message     string `json:"message"`
	Discrepancy string `json:"discrepancy,omitempty"`
}

// SubmitReport files report with the ledger.
func (c *Client) SubmitReport(ctx context.Context, report Report) (*Ack, error) {
	resp, err := c.Call(ctx, ActionSubmitReport, report)
	if err != nil {
		return nil, fmt.Errorf("submitting report: %w", err)
	}
	if !resp.Success {
		return nil, &RejectedError{Action: ActionSubmitReport, Message: resp.Message}
	}
	return &Ack{Message: resp.Message, Discrepancy: resp.Discrepancy}, nil
}
