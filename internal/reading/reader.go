package reading

import "context"

// Result is what a Reader made of a photographed scale display.
type Result struct {
	// Value is the displayed number. Only meaningful when Readable is set.
	Value    float64 `json:"value"`
	Readable bool    `json:"readable"`
	// Raw is the model's reply before parsing.
	Raw string `json:"raw"`
}

// Unreadable is the result for a display that could not be read.
func Unreadable(raw string) Result {
	return Result{Raw: raw}
}

// Reader defines the interface for reading a number off a scale photo
type Reader interface {
	// ReadScale returns the number shown on the scale display in imageData.
	// A display that cannot be read is a Result with Readable unset, not an
	// error; errors are reserved for transport and service failures.
	ReadScale(ctx context.Context, imageData []byte, contentType string) (Result, error)
	// Close closes the reader and releases resources
	Close() error
}
