package report_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/zombor/scalecheck/internal/capture"
	"github.com/zombor/scalecheck/internal/ledger"
	"github.com/zombor/scalecheck/internal/reconcile"
	"github.com/zombor/scalecheck/internal/report"
)

var _ = Describe("Shift report flow", func() {
	var (
		ctx          context.Context
		cancel       context.CancelFunc
		tempDir      string
		db           *report.BoltDB
		store        *report.LocalStorage
		service      *report.Service
		appServer    *ghttp.Server
		ledgerServer *ghttp.Server

		mu       sync.Mutex
		received []ledger.Request
	)

	BeforeEach(func() {
		ctx, cancel = context.WithCancel(context.Background())
		tempDir = GinkgoT().TempDir()

		var err error
		db, err = report.NewBoltDB(filepath.Join(tempDir, "scalecheck.db"))
		Expect(err).NotTo(HaveOccurred())
		store, err = report.NewLocalStorage(filepath.Join(tempDir, "photos"))
		Expect(err).NotTo(HaveOccurred())

		received = nil
		ledgerServer = ghttp.NewServer()
		ledgerServer.AppendHandlers(ghttp.CombineHandlers(
			ghttp.VerifyRequest("POST", "/"),
			ghttp.VerifyContentType("application/json"),
			func(w http.ResponseWriter, r *http.Request) {
				var req struct {
					Action  string        `json:"action"`
					Payload ledger.Report `json:"payload"`
				}
				Expect(json.NewDecoder(r.Body).Decode(&req)).To(Succeed())
				mu.Lock()
				received = append(received, ledger.Request{Action: req.Action, Payload: req.Payload})
				mu.Unlock()
			},
			ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{
				"success":     true,
				"message":     "Report saved",
				"discrepancy": "",
			}),
		))

		client, err := ledger.NewClient(ledgerServer.URL())
		Expect(err).NotTo(HaveOccurred())

		service = report.NewServiceWithDeps(ctx, report.Config{
			DB:         db,
			Storage:    store,
			Reader:     newMockReader(1.24),
			Ledger:     client,
			Negotiator: capture.NewNegotiator(&fakeSource{}, time.Second),
			Tolerance:  reconcile.DefaultTolerance,
		}, &fixedIDGenerator{id: "007"}, &fixedTimeSource{t: time.Date(2026, 10, 16, 22, 30, 0, 0, time.UTC)})

		server := report.NewServer(service, report.BasicAuth{})
		appServer = ghttp.NewServer()
		for _, method := range []string{"GET", "POST", "PUT", "DELETE"} {
			appServer.RouteToHandler(method, regexp.MustCompile(`^/`), server.ServeHTTP)
		}
	})

	AfterEach(func() {
		appServer.Close()
		ledgerServer.Close()
		cancel()
		service.Shutdown()
		Expect(db.Close()).To(Succeed())
	})

	call := func(method, path, body string) *http.Response {
		var reader io.Reader
		if body != "" {
			reader = strings.NewReader(body)
		}
		req, err := http.NewRequest(method, appServer.URL()+path, reader)
		Expect(err).NotTo(HaveOccurred())
		if body != "" {
			req.Header.Set("Content-Type", "application/json")
		}
		resp, err := http.DefaultClient.Do(req)
		Expect(err).NotTo(HaveOccurred())
		return resp
	}

	expectStatus := func(resp *http.Response, code int) {
		defer resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(code))
	}

	itemStatus := func(key string) reconcile.Status {
		resp := call("GET", "/api/items", "")
		defer resp.Body.Close()
		var entries []reconcile.Entry
		Expect(json.NewDecoder(resp.Body).Decode(&entries)).To(Succeed())
		for _, e := range entries {
			if e.Key == key {
				return e.Status
			}
		}
		return ""
	}

	It("should photograph, verify, file and delete a shift report", func() {
		// --- Step 1: capture a scale photo for the item ---
		expectStatus(call("POST", "/api/items", `{"key":"Kem Dừa"}`), http.StatusCreated)
		expectStatus(call("POST", "/api/camera/start", `{"orientation":"environment"}`), http.StatusOK)
		expectStatus(call("POST", "/api/camera/capture", `{"item":"Kem Dừa"}`), http.StatusOK)
		expectStatus(call("PUT", "/api/items/"+url.PathEscape("Kem Dừa")+"/manual", `{"value":1.2}`), http.StatusOK)

		Eventually(func() reconcile.Status {
			return itemStatus("Kem Dừa")
		}).Should(Equal(reconcile.StatusMatched))

		expectStatus(call("POST", "/api/camera/stop", ""), http.StatusNoContent)

		// --- Step 2: file the report ---
		resp := call("POST", "/api/reports", `{"type":"REPORT_END","staff":"Lan","branch":"Vincom Bà Triệu","shift":"2"}`)
		Expect(resp.StatusCode).To(Equal(http.StatusCreated))
		var filed report.Report
		Expect(json.NewDecoder(resp.Body).Decode(&filed)).To(Succeed())
		resp.Body.Close()

		Expect(filed.ID).To(Equal("RPT-VBT-2-20261016-007"))
		Expect(filed.Delivered).To(BeTrue())
		Expect(filed.Message).To(Equal("Report saved"))

		// The ledger saw the photo and the verification result
		mu.Lock()
		Expect(received).To(HaveLen(1))
		sent := received[0]
		mu.Unlock()
		Expect(sent.Action).To(Equal(ledger.ActionSubmitReport))
		payload := sent.Payload.(ledger.Report)
		Expect(payload.Type).To(Equal("REPORT_END"))
		Expect(payload.ReportData.ReportID).To(Equal(filed.ID))
		Expect(*payload.ReportData.Inventory["Kem Dừa"]).To(Equal(1.2))
		Expect(payload.ReportData.Images["Kem Dừa"]).To(HavePrefix("data:image/jpeg;base64,"))
		Expect(payload.ReportData.Verification["Kem Dừa"].Status).To(Equal("matched"))

		// The photo is on disk and the report is in the database
		item, ok := filed.Item("Kem Dừa")
		Expect(ok).To(BeTrue())
		Expect(filepath.Join(tempDir, "photos", item.Filename)).To(BeAnExistingFile())
		saved, err := db.GetReport(filed.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(saved.Items).To(HaveLen(1))

		// The working list starts over
		resp = call("GET", "/api/items", "")
		var entries []reconcile.Entry
		Expect(json.NewDecoder(resp.Body).Decode(&entries)).To(Succeed())
		resp.Body.Close()
		Expect(entries).To(BeEmpty())

		// --- Step 3: fetch the stored photo ---
		resp = call("GET", "/api/reports/"+filed.ID+"/images/"+url.PathEscape("Kem Dừa"), "")
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(resp.Header.Get("Content-Type")).To(Equal("image/jpeg"))
		resp.Body.Close()

		// --- Step 4: delete the report ---
		expectStatus(call("DELETE", "/api/reports/"+filed.ID, ""), http.StatusNoContent)
		Expect(filepath.Join(tempDir, "photos", item.Filename)).NotTo(BeAnExistingFile())
		_, err = db.GetReport(filed.ID)
		Expect(err).To(MatchError(report.ErrReportNotFound))
	})
})
