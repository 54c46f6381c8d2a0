package reading

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif" // Register GIF decoder
	"image/jpeg"
	_ "image/png" // Register PNG decoder
	"strings"

	"github.com/gen2brain/heic"
)

// uploadJPEGQuality matches the capture encoder so uploads read as well as stills.
const uploadJPEGQuality = 95

// Photo is an uploaded image normalised to JPEG.
type Photo struct {
	Data   []byte
	Width  int
	Height int
}

// NormalizePhoto converts an uploaded photo (JPEG, PNG, GIF, HEIC or HEIF) to
// JPEG. JPEG input is passed through untouched.
func NormalizePhoto(imageData []byte, contentType string) (*Photo, error) {
	mimeType := strings.ToLower(strings.TrimSpace(contentType))

	var img image.Image
	var format string
	var err error

	// Check for HEIC/HEIF format (common on iPhones) - Go's standard image package doesn't support it
	if isHEICFormat(imageData) || isHEICMimeType(mimeType) {
		img, err = heic.Decode(bytes.NewReader(imageData))
		if err != nil {
			return nil, fmt.Errorf("decoding HEIC/HEIF image: %w", err)
		}
		format = "heic"
	} else {
		img, format, err = image.Decode(bytes.NewReader(imageData))
		if err != nil {
			if strings.Contains(err.Error(), "unknown format") || strings.Contains(err.Error(), "unsupported") {
				return nil, fmt.Errorf("unsupported image format. Supported formats: JPEG, PNG, GIF, HEIC, HEIF. Error: %w", err)
			}
			return nil, fmt.Errorf("decoding image: %w", err)
		}
	}

	b := img.Bounds()
	photo := &Photo{Width: b.Dx(), Height: b.Dy()}
	if format == "jpeg" {
		photo.Data = imageData
		return photo, nil
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: uploadJPEGQuality}); err != nil {
		return nil, fmt.Errorf("encoding JPEG: %w", err)
	}
	photo.Data = buf.Bytes()
	return photo, nil
}

// isHEICFormat checks if the image data is in HEIC/HEIF format
// HEIC files typically start with specific magic bytes
func isHEICFormat(data []byte) bool {
	if len(data) < 12 {
		return false
	}
	// ftyp box at offset 4 with a HEIC-related brand
	if string(data[4:8]) == "ftyp" {
		brand := string(data[8:12])
		if brand == "heic" || brand == "heix" || brand == "heif" || brand == "mif1" || brand == "msf1" {
			return true
		}
	}
	return false
}

// isHEICMimeType checks if the MIME type indicates HEIC/HEIF format
func isHEICMimeType(mimeType string) bool {
	return strings.Contains(mimeType, "heic") || strings.Contains(mimeType, "heif")
}

// imageFormat returns the short format name genai expects for a MIME type
func imageFormat(contentType string) string {
	mimeType := strings.ToLower(strings.TrimSpace(contentType))
	switch mimeType {
	case "", "image/jpeg", "image/jpg":
		return "jpeg"
	default:
		return strings.TrimPrefix(mimeType, "image/")
	}
}
