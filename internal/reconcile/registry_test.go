package reconcile_test

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/scalecheck/internal/capture"
	"github.com/zombor/scalecheck/internal/reconcile"
)

func photo(item string) *capture.CapturedImage {
	return capture.NewCapturedImage(item, []byte(item+"-photo"), "image/jpeg", 4, 4, false)
}

var _ = Describe("Registry", func() {
	var registry *reconcile.Registry

	BeforeEach(func() {
		registry = reconcile.NewRegistry(reconcile.DefaultTolerance)
	})

	Describe("Add", func() {
		It("should create an entry with status none", func() {
			entry, err := registry.Add("Kem Dừa")
			Expect(err).NotTo(HaveOccurred())
			Expect(entry.Status).To(Equal(reconcile.StatusNone))
			Expect(entry.Manual).To(BeNil())
		})

		It("should keep insertion order", func() {
			for _, key := range []string{"Kem Xoài", "Kem Bơ", "Kem Dừa"} {
				_, err := registry.Add(key)
				Expect(err).NotTo(HaveOccurred())
			}
			Expect(registry.Keys()).To(Equal([]string{"Kem Xoài", "Kem Bơ", "Kem Dừa"}))
		})

		It("rejects duplicates", func() {
			_, err := registry.Add("Kem Dừa")
			Expect(err).NotTo(HaveOccurred())
			_, err = registry.Add("Kem Dừa")
			Expect(errors.Is(err, reconcile.ErrDuplicateItem)).To(BeTrue())
		})

		It("rejects an empty key", func() {
			_, err := registry.Add("")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Remove", func() {
		BeforeEach(func() {
			_, _ = registry.Add("Kem Xoài")
			_, _ = registry.Add("Kem Dừa")
			_, err := registry.AttachImage("Kem Dừa", photo("Kem Dừa"))
			Expect(err).NotTo(HaveOccurred())
		})

		It("should drop the entry and its photo together", func() {
			Expect(registry.Remove("Kem Dừa")).To(Succeed())
			Expect(registry.Keys()).To(Equal([]string{"Kem Xoài"}))
			_, err := registry.Image("Kem Dừa")
			Expect(errors.Is(err, reconcile.ErrItemNotFound)).To(BeTrue())
		})

		It("should start fresh when the item is added back", func() {
			Expect(registry.Remove("Kem Dừa")).To(Succeed())
			entry, err := registry.Add("Kem Dừa")
			Expect(err).NotTo(HaveOccurred())
			Expect(entry.Status).To(Equal(reconcile.StatusNone))
			Expect(entry.Image).To(BeNil())
		})

		It("returns ErrItemNotFound for unknown keys", func() {
			Expect(errors.Is(registry.Remove("Kem Bơ"), reconcile.ErrItemNotFound)).To(BeTrue())
		})
	})

	Describe("SetManual", func() {
		var token uint64

		BeforeEach(func() {
			_, _ = registry.Add("Kem Dừa")
			var err error
			token, err = registry.AttachImage("Kem Dừa", photo("Kem Dừa"))
			Expect(err).NotTo(HaveOccurred())
			_, applied := registry.CompleteExtraction("Kem Dừa", token, reconcile.Reading(1.24))
			Expect(applied).To(BeTrue())
		})

		It("should classify against the existing reading on every edit", func() {
			entry, err := registry.SetManual("Kem Dừa", ptr(1.20))
			Expect(err).NotTo(HaveOccurred())
			Expect(entry.Status).To(Equal(reconcile.StatusMatched))

			entry, err = registry.SetManual("Kem Dừa", ptr(1.10))
			Expect(err).NotTo(HaveOccurred())
			Expect(entry.Status).To(Equal(reconcile.StatusMismatched))

			entry, err = registry.SetManual("Kem Dừa", ptr(1.23))
			Expect(err).NotTo(HaveOccurred())
			Expect(entry.Status).To(Equal(reconcile.StatusMatched))
		})

		It("should go back to pending when the value is cleared", func() {
			entry, err := registry.SetManual("Kem Dừa", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(entry.Status).To(Equal(reconcile.StatusPending))
		})

		It("should not share the caller's pointer", func() {
			v := 1.20
			_, err := registry.SetManual("Kem Dừa", &v)
			Expect(err).NotTo(HaveOccurred())
			v = 9
			entry, _ := registry.Entry("Kem Dừa")
			Expect(*entry.Manual).To(Equal(1.20))
		})

		It("returns ErrItemNotFound for unknown keys", func() {
			_, err := registry.SetManual("Kem Bơ", ptr(1))
			Expect(errors.Is(err, reconcile.ErrItemNotFound)).To(BeTrue())
		})
	})

	Describe("CompleteExtraction", func() {
		BeforeEach(func() {
			_, _ = registry.Add("Kem Dừa")
			_, _ = registry.SetManual("Kem Dừa", ptr(1.20))
		})

		It("should show pending while the extraction runs", func() {
			_, err := registry.AttachImage("Kem Dừa", photo("Kem Dừa"))
			Expect(err).NotTo(HaveOccurred())
			entry, _ := registry.Entry("Kem Dừa")
			Expect(entry.Status).To(Equal(reconcile.StatusPending))
		})

		It("should drop results for a replaced photo", func() {
			first, _ := registry.AttachImage("Kem Dừa", photo("Kem Dừa"))
			second, _ := registry.AttachImage("Kem Dừa", photo("Kem Dừa"))

			_, applied := registry.CompleteExtraction("Kem Dừa", first, reconcile.Reading(5))
			Expect(applied).To(BeFalse())

			entry, applied := registry.CompleteExtraction("Kem Dừa", second, reconcile.Reading(1.21))
			Expect(applied).To(BeTrue())
			Expect(entry.Status).To(Equal(reconcile.StatusMatched))
		})

		It("should drop results for a removed item", func() {
			token, _ := registry.AttachImage("Kem Dừa", photo("Kem Dừa"))
			Expect(registry.Remove("Kem Dừa")).To(Succeed())
			_, applied := registry.CompleteExtraction("Kem Dừa", token, reconcile.Reading(1.2))
			Expect(applied).To(BeFalse())
		})

		It("should drop results for the previous photo of a re-added item", func() {
			stale, _ := registry.AttachImage("Kem Dừa", photo("Kem Dừa"))
			Expect(registry.Remove("Kem Dừa")).To(Succeed())
			_, _ = registry.Add("Kem Dừa")
			current, _ := registry.AttachImage("Kem Dừa", photo("Kem Dừa"))
			Expect(current).NotTo(Equal(stale))

			_, applied := registry.CompleteExtraction("Kem Dừa", stale, reconcile.Reading(9.99))
			Expect(applied).To(BeFalse())
			entry, _ := registry.Entry("Kem Dừa")
			Expect(entry.Status).To(Equal(reconcile.StatusPending))

			_, applied = registry.CompleteExtraction("Kem Dừa", current, reconcile.Reading(1.22))
			Expect(applied).To(BeTrue())
		})

		It("should drop results issued before a reset", func() {
			stale, _ := registry.AttachImage("Kem Dừa", photo("Kem Dừa"))
			registry.Reset()
			_, _ = registry.Add("Kem Dừa")
			_, _ = registry.AttachImage("Kem Dừa", photo("Kem Dừa"))

			_, applied := registry.CompleteExtraction("Kem Dừa", stale, reconcile.Reading(9.99))
			Expect(applied).To(BeFalse())
		})

		It("should mark unreadable photos regardless of the manual value", func() {
			token, _ := registry.AttachImage("Kem Dừa", photo("Kem Dừa"))
			entry, _ := registry.CompleteExtraction("Kem Dừa", token, reconcile.Unreadable())
			Expect(entry.Status).To(Equal(reconcile.StatusUnreadable))
		})
	})

	Describe("RemoveIf", func() {
		var revision uint64

		BeforeEach(func() {
			entry, _ := registry.Add("Kem Dừa")
			revision = entry.Revision
		})

		It("should remove an unchanged item", func() {
			Expect(registry.RemoveIf("Kem Dừa", revision)).To(BeTrue())
			Expect(registry.Keys()).To(BeEmpty())
		})

		It("should keep an item photographed since the snapshot", func() {
			_, _ = registry.AttachImage("Kem Dừa", photo("Kem Dừa"))
			Expect(registry.RemoveIf("Kem Dừa", revision)).To(BeFalse())
			Expect(registry.Keys()).To(Equal([]string{"Kem Dừa"}))
		})

		It("should keep an item added back since the snapshot", func() {
			Expect(registry.Remove("Kem Dừa")).To(Succeed())
			_, _ = registry.Add("Kem Dừa")
			Expect(registry.RemoveIf("Kem Dừa", revision)).To(BeFalse())
			Expect(registry.Keys()).To(Equal([]string{"Kem Dừa"}))
		})

		It("should report unknown items as not removed", func() {
			Expect(registry.RemoveIf("Kem Bơ", revision)).To(BeFalse())
		})
	})

	Describe("Reset", func() {
		It("should remove every item", func() {
			_, _ = registry.Add("Kem Dừa")
			registry.Reset()
			Expect(registry.Entries()).To(BeEmpty())
		})
	})
})
