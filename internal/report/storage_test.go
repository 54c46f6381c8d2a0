package report_test

import (
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/scalecheck/internal/report"
)

var _ = Describe("LocalStorage", func() {
	var (
		tmpDir  string
		storage report.Storage
	)

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		var err error
		storage, err = report.NewLocalStorage(filepath.Join(tmpDir, "photos"))
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("Save", func() {
		var (
			name  string
			saved string
			err   error
		)

		BeforeEach(func() {
			name = "RPT-A_00_Kem_Da.jpg"
		})

		JustBeforeEach(func() {
			saved, err = storage.Save(name, []byte("jpeg bytes"))
		})

		When("the name is a plain file name", func() {
			It("should return the name", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(saved).To(Equal(name))
			})

			It("should write the file", func() {
				Expect(filepath.Join(tmpDir, "photos", name)).To(BeAnExistingFile())
			})
		})

		When("the name escapes the directory", func() {
			BeforeEach(func() {
				name = "../outside.jpg"
			})

			It("returns the error", func() {
				Expect(err).To(MatchError(ContainSubstring("invalid storage name")))
				Expect(filepath.Join(tmpDir, "outside.jpg")).NotTo(BeAnExistingFile())
			})
		})
	})

	Describe("Get", func() {
		It("should return saved data", func() {
			_, err := storage.Save("a.jpg", []byte("jpeg bytes"))
			Expect(err).NotTo(HaveOccurred())

			data, err := storage.Get("a.jpg")
			Expect(err).NotTo(HaveOccurred())
			Expect(data).To(Equal([]byte("jpeg bytes")))
		})

		It("returns the error for missing files", func() {
			_, err := storage.Get("missing.jpg")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Delete", func() {
		It("should remove the file", func() {
			_, err := storage.Save("a.jpg", []byte("jpeg bytes"))
			Expect(err).NotTo(HaveOccurred())

			Expect(storage.Delete("a.jpg")).To(Succeed())
			Expect(filepath.Join(tmpDir, "photos", "a.jpg")).NotTo(BeAnExistingFile())
		})

		It("returns the error for missing files", func() {
			Expect(storage.Delete("missing.jpg")).NotTo(Succeed())
		})
	})
})
