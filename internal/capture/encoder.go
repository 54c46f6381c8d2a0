package capture

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"time"

	"github.com/google/uuid"
)

// DefaultJPEGQuality keeps scale digits legible after compression.
const DefaultJPEGQuality = 95

// CapturedImage is an encoded still frame. It is never modified after
// creation; a retake produces a new one.
type CapturedImage struct {
	ID          string    `json:"id"`
	Item        string    `json:"item"`
	ContentType string    `json:"content_type"`
	Mirrored    bool      `json:"mirrored"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	CapturedAt  time.Time `json:"captured_at"`
	data        []byte
}

// NewCapturedImage wraps already encoded image bytes, for example an uploaded
// photo. The data is copied.
func NewCapturedImage(item string, data []byte, contentType string, width, height int, mirrored bool) *CapturedImage {
	return &CapturedImage{
		ID:          uuid.NewString(),
		Item:        item,
		ContentType: contentType,
		Mirrored:    mirrored,
		Width:       width,
		Height:      height,
		CapturedAt:  time.Now(),
		data:        bytes.Clone(data),
	}
}

// Data returns a copy of the encoded bytes.
func (c *CapturedImage) Data() []byte {
	return bytes.Clone(c.data)
}

// Size is the length of the encoded bytes.
func (c *CapturedImage) Size() int {
	return len(c.data)
}

// Encoder rasterizes frames to JPEG.
type Encoder struct {
	Quality int
}

// NewEncoder returns an Encoder; quality outside 1..100 uses DefaultJPEGQuality.
func NewEncoder(quality int) *Encoder {
	if quality < 1 || quality > 100 {
		quality = DefaultJPEGQuality
	}
	return &Encoder{Quality: quality}
}

// Encode turns frame into a CapturedImage for item. Frames from the
// user-facing camera are flipped horizontally so the still matches the
// mirrored preview the operator saw.
func (e *Encoder) Encode(frame image.Image, orientation Orientation, item string) (*CapturedImage, error) {
	if frame == nil {
		return nil, errors.New("no frame to encode")
	}
	b := frame.Bounds()
	if b.Empty() {
		return nil, errors.New("empty frame")
	}

	mirrored := orientation == OrientationUser
	src := frame
	if mirrored {
		src = MirrorHorizontal(frame)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, src, &jpeg.Options{Quality: e.Quality}); err != nil {
		return nil, fmt.Errorf("encoding jpeg: %w", err)
	}

	img := NewCapturedImage(item, nil, "image/jpeg", b.Dx(), b.Dy(), mirrored)
	img.data = buf.Bytes()
	return img, nil
}

// MirrorHorizontal returns a copy of img flipped left to right. The result
// bounds start at the origin.
func MirrorHorizontal(img image.Image) *image.RGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	src := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(src, src.Bounds(), img, b.Min, draw.Src)

	out := image.NewRGBA(src.Bounds())
	for y := 0; y < h; y++ {
		row := src.Pix[y*src.Stride : y*src.Stride+w*4]
		dst := out.Pix[y*out.Stride : y*out.Stride+w*4]
		for x := 0; x < w; x++ {
			copy(dst[(w-1-x)*4:(w-x)*4], row[x*4:x*4+4])
		}
	}
	return out
}
