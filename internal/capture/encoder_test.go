package capture

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var (
	red  = color.RGBA{R: 230, G: 10, B: 10, A: 255}
	blue = color.RGBA{R: 10, G: 10, B: 230, A: 255}
)

// splitFrame is red on the left half and blue on the right half.
func splitFrame(w, h int) *image.RGBA {
	img := solidFrame(w, h, red)
	for y := 0; y < h; y++ {
		for x := w / 2; x < w; x++ {
			img.SetRGBA(x, y, blue)
		}
	}
	return img
}

func isBlueish(c color.Color) bool {
	r, _, b, _ := c.RGBA()
	return b > r*2
}

func isReddish(c color.Color) bool {
	r, _, b, _ := c.RGBA()
	return r > b*2
}

var _ = Describe("Encoder", func() {
	var (
		encoder     *Encoder
		frame       image.Image
		orientation Orientation
		img         *CapturedImage
		err         error
	)

	BeforeEach(func() {
		encoder = NewEncoder(0)
		frame = splitFrame(64, 32)
	})

	JustBeforeEach(func() {
		img, err = encoder.Encode(frame, orientation, "Kem Xoài")
	})

	When("the frame comes from the user-facing camera", func() {
		BeforeEach(func() {
			orientation = OrientationUser
		})

		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("should record the mirroring", func() {
			Expect(img.Mirrored).To(BeTrue())
		})

		It("should match the mirrored preview after decoding", func() {
			decoded, derr := jpeg.Decode(bytes.NewReader(img.Data()))
			Expect(derr).NotTo(HaveOccurred())
			Expect(isBlueish(decoded.At(4, 16))).To(BeTrue())
			Expect(isReddish(decoded.At(59, 16))).To(BeTrue())
		})
	})

	When("the frame comes from the environment-facing camera", func() {
		BeforeEach(func() {
			orientation = OrientationEnvironment
		})

		It("should keep the native view", func() {
			Expect(img.Mirrored).To(BeFalse())
			decoded, derr := jpeg.Decode(bytes.NewReader(img.Data()))
			Expect(derr).NotTo(HaveOccurred())
			Expect(isReddish(decoded.At(4, 16))).To(BeTrue())
			Expect(isBlueish(decoded.At(59, 16))).To(BeTrue())
		})

		It("should report the frame size", func() {
			Expect(img.Width).To(Equal(64))
			Expect(img.Height).To(Equal(32))
		})
	})

	It("is deterministic for the same frame and orientation", func() {
		a, err := encoder.Encode(frame, OrientationUser, "Kem Xoài")
		Expect(err).NotTo(HaveOccurred())
		b, err := encoder.Encode(frame, OrientationUser, "Kem Xoài")
		Expect(err).NotTo(HaveOccurred())
		Expect(a.Data()).To(Equal(b.Data()))
	})

	When("the frame is empty", func() {
		BeforeEach(func() {
			frame = image.NewRGBA(image.Rect(0, 0, 0, 0))
		})

		It("returns an error", func() {
			Expect(err).To(HaveOccurred())
		})
	})

	It("hands out copies of the encoded bytes", func() {
		img, err := encoder.Encode(frame, OrientationEnvironment, "Kem Xoài")
		Expect(err).NotTo(HaveOccurred())
		data := img.Data()
		data[0] = 0
		Expect(img.Data()[0]).To(Equal(byte(0xFF)))
	})
})

var _ = Describe("MirrorHorizontal", func() {
	It("should flip pixels left to right", func() {
		src := image.NewRGBA(image.Rect(10, 5, 13, 6))
		src.SetRGBA(10, 5, red)
		src.SetRGBA(12, 5, blue)

		out := MirrorHorizontal(src)
		Expect(out.Bounds()).To(Equal(image.Rect(0, 0, 3, 1)))
		Expect(out.RGBAAt(0, 0)).To(Equal(blue))
		Expect(out.RGBAAt(2, 0)).To(Equal(red))
	})

	It("should restore the original when applied twice", func() {
		src := splitFrame(6, 2)
		Expect(MirrorHorizontal(MirrorHorizontal(src)).Pix).To(Equal(src.Pix))
	})
})
