package reading

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func testImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 20, 10))
	for y := 0; y < 10; y++ {
		for x := 0; x < 20; x++ {
			img.Set(x, y, color.RGBA{R: 40, G: 200, B: 40, A: 255})
		}
	}
	return img
}

var _ = Describe("NormalizePhoto", func() {
	var (
		data        []byte
		contentType string
		photo       *Photo
		err         error
	)

	JustBeforeEach(func() {
		photo, err = NormalizePhoto(data, contentType)
	})

	When("the upload is a PNG", func() {
		BeforeEach(func() {
			var buf bytes.Buffer
			Expect(png.Encode(&buf, testImage())).To(Succeed())
			data = buf.Bytes()
			contentType = "image/png"
		})

		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("should convert it to JPEG", func() {
			_, format, derr := image.Decode(bytes.NewReader(photo.Data))
			Expect(derr).NotTo(HaveOccurred())
			Expect(format).To(Equal("jpeg"))
		})

		It("should report the dimensions", func() {
			Expect(photo.Width).To(Equal(20))
			Expect(photo.Height).To(Equal(10))
		})
	})

	When("the upload is already a JPEG", func() {
		BeforeEach(func() {
			var buf bytes.Buffer
			Expect(jpeg.Encode(&buf, testImage(), nil)).To(Succeed())
			data = buf.Bytes()
			contentType = ""
		})

		It("should pass the bytes through", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(photo.Data).To(Equal(data))
		})
	})

	When("the upload is not an image", func() {
		BeforeEach(func() {
			data = []byte("definitely not an image")
			contentType = "application/octet-stream"
		})

		It("returns an error", func() {
			Expect(err).To(MatchError(ContainSubstring("unsupported image format")))
		})
	})
})

var _ = DescribeTable("isHEICFormat",
	func(data []byte, expected bool) {
		Expect(isHEICFormat(data)).To(Equal(expected))
	},
	Entry("heic brand", []byte("\x00\x00\x00\x18ftypheic\x00\x00"), true),
	Entry("mif1 brand", []byte("\x00\x00\x00\x18ftypmif1\x00\x00"), true),
	Entry("mp4 brand", []byte("\x00\x00\x00\x18ftypisom\x00\x00"), false),
	Entry("too short", []byte("ftyp"), false),
)
