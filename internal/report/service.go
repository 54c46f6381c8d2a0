package report

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/zombor/scalecheck/internal/capture"
	"github.com/zombor/scalecheck/internal/ledger"
	"github.com/zombor/scalecheck/internal/reading"
	"github.com/zombor/scalecheck/internal/reconcile"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrCameraClosed = errors.New("camera is not open")
	ErrNoImage      = errors.New("item has no photo")
	ErrVerifying    = errors.New("photo verification still running")
	ErrLedger       = errors.New("ledger unavailable")
)

// maxIDAttempts bounds the search for an unused report ID.
const maxIDAttempts = 10

// IDGenerator generates the random suffix of report IDs
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// defaultIDGenerator generates a three digit suffix
type defaultIDGenerator struct{}

func (g *defaultIDGenerator) Generate() string {
	return fmt.Sprintf("%03d", rand.IntN(1000))
}

// defaultTimeSource provides the current time
type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Ledger receives submitted reports
type Ledger interface {
	SubmitReport(ctx context.Context, report ledger.Report) (*ledger.Ack, error)
}

// Config wires a Service.
type Config struct {
	DB      DB
	Storage Storage
	Reader  reading.Reader
	// Ledger is optional. Without one reports are only kept locally.
	Ledger         Ledger
	Negotiator     *capture.Negotiator
	SessionOptions []capture.Option
	Tolerance      reconcile.Tolerance
}

// Submission is what staff fill in when filing a report.
type Submission struct {
	Type   string `json:"type"`
	Staff  string `json:"staff"`
	Branch string `json:"branch"`
	Shift  string `json:"shift"`
}

// Service handles the camera station, the measured items and reports
type Service struct {
	db          DB
	storage     Storage
	ledger      Ledger
	negotiator  *capture.Negotiator
	sessionOpts []capture.Option
	cameras     *capture.Registry
	items       *reconcile.Registry
	verifier    *reconcile.Verifier
	idGenerator IDGenerator
	timeSource  TimeSource

	mu       sync.Mutex
	sessions map[capture.Orientation]*capture.Session
	current  *capture.Session

	submitMu sync.Mutex
}

// NewService creates a new Service with default ID generator and time
// source. Background photo reads stop when ctx is cancelled.
func NewService(ctx context.Context, cfg Config) *Service {
	return NewServiceWithDeps(ctx, cfg, &defaultIDGenerator{}, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(ctx context.Context, cfg Config, idGen IDGenerator, timeSrc TimeSource) *Service {
	items := reconcile.NewRegistry(cfg.Tolerance)
	return &Service{
		db:          cfg.DB,
		storage:     cfg.Storage,
		ledger:      cfg.Ledger,
		negotiator:  cfg.Negotiator,
		sessionOpts: cfg.SessionOptions,
		cameras:     capture.NewRegistry(),
		items:       items,
		verifier:    reconcile.NewVerifier(ctx, items, cfg.Reader),
		idGenerator: idGen,
		timeSource:  timeSrc,
		sessions:    make(map[capture.Orientation]*capture.Session),
	}
}

// Shutdown releases the camera and waits for running photo reads. Cancel the
// service context first to abandon them.
func (s *Service) Shutdown() {
	s.StopCamera()
	s.cameras.StopAll()
	s.verifier.Wait()
}

// OpenCamera brings the camera facing orientation live. A frozen still is
// discarded; a camera that is already live is left as is.
func (s *Service) OpenCamera(ctx context.Context, orientation capture.Orientation) (capture.Status, error) {
	s.mu.Lock()
	prev := s.current
	sess, ok := s.sessions[orientation]
	if !ok {
		sess = capture.NewSession(s.negotiator, s.cameras, orientation, s.sessionOpts...)
		s.sessions[orientation] = sess
	}
	s.current = sess
	s.mu.Unlock()

	if prev != nil && prev != sess {
		prev.Stop()
	}

	var err error
	switch sess.State() {
	case capture.StateLive:
	case capture.StateFrozen:
		err = sess.Retake(ctx)
	default:
		err = sess.Start(ctx)
	}
	if err != nil {
		slog.Warn("Failed to open camera", "orientation", orientation, "error", err)
	}
	return sess.Snapshot(), err
}

// Capture freezes the live frame as item's photo and starts reading it.
func (s *Service) Capture(item string) (reconcile.Entry, error) {
	sess := s.currentSession()
	if sess == nil {
		return reconcile.Entry{}, ErrCameraClosed
	}
	if _, err := s.items.Entry(item); err != nil {
		return reconcile.Entry{}, err
	}

	img, err := sess.Capture(item)
	if err != nil {
		return reconcile.Entry{}, err
	}
	slog.Info("Captured scale photo", "item", item, "image_id", img.ID, "size", img.Size(), "mirrored", img.Mirrored)
	return s.verifier.Submit(img)
}

// Retake discards the frozen still and brings the camera live again.
func (s *Service) Retake(ctx context.Context) (capture.Status, error) {
	sess := s.currentSession()
	if sess == nil {
		return capture.Status{State: capture.StateIdle}, ErrCameraClosed
	}
	err := sess.Retake(ctx)
	return sess.Snapshot(), err
}

// StopCamera leaves the capture surface. The camera is free when it returns.
func (s *Service) StopCamera() {
	s.mu.Lock()
	sess := s.current
	s.current = nil
	s.mu.Unlock()

	if sess != nil {
		sess.Stop()
	}
}

// CameraStatus reports the camera station.
func (s *Service) CameraStatus() capture.Status {
	sess := s.currentSession()
	if sess == nil {
		return capture.Status{State: capture.StateIdle}
	}
	return sess.Snapshot()
}

func (s *Service) currentSession() *capture.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// ListItems returns the measured items in the order they were added
func (s *Service) ListItems() []reconcile.Entry {
	return s.items.Entries()
}

// AddItem starts measuring key
func (s *Service) AddItem(key string) (reconcile.Entry, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return reconcile.Entry{}, fmt.Errorf("%w: item key is required", ErrInvalidInput)
	}
	return s.items.Add(key)
}

// RemoveItem drops key and its photo
func (s *Service) RemoveItem(key string) error {
	return s.items.Remove(key)
}

// SetManual records the value staff read off the scale; nil clears it
func (s *Service) SetManual(key string, value *float64) (reconcile.Entry, error) {
	return s.items.SetManual(key, value)
}

// AttachPhoto uses an uploaded photo for key instead of a camera still.
func (s *Service) AttachPhoto(key string, data []byte, contentType string) (reconcile.Entry, error) {
	if _, err := s.items.Entry(key); err != nil {
		return reconcile.Entry{}, err
	}

	photo, err := reading.NormalizePhoto(data, contentType)
	if err != nil {
		slog.Error("Failed to normalize photo",
			"item", key,
			"content_type", contentType,
			"file_size", len(data),
			"error", err,
		)
		return reconcile.Entry{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	img := capture.NewCapturedImage(key, photo.Data, "image/jpeg", photo.Width, photo.Height, false)
	return s.verifier.Submit(img)
}

// ItemImage returns the photo attached to key
func (s *Service) ItemImage(key string) ([]byte, string, error) {
	img, err := s.items.Image(key)
	if err != nil {
		return nil, "", err
	}
	if img == nil {
		return nil, "", fmt.Errorf("%w: %s", ErrNoImage, key)
	}
	return img.Data(), img.ContentType, nil
}

// Reverify reads the stored photos of keys again, every item when none are
// given, and returns all items afterwards.
func (s *Service) Reverify(ctx context.Context, keys ...string) ([]reconcile.Entry, error) {
	if err := s.verifier.Reverify(ctx, keys...); err != nil {
		return nil, err
	}
	return s.items.Entries(), nil
}

// sanitizeFilename cleans up an item key for use in a file name
func sanitizeFilename(name string) string {
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)

	// Keep only alphanumeric, spaces, hyphens, and underscores
	reg := regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	base = reg.ReplaceAllString(base, "")

	reg = regexp.MustCompile(`\s+`)
	base = reg.ReplaceAllString(base, "_")

	base = strings.Trim(base, "_")

	maxLen := 50
	if len(base) > maxLen {
		base = base[:maxLen]
	}

	if base == "" {
		base = "item"
	}

	return base + ext
}

func dataURL(contentType string, data []byte) string {
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

func (sub Submission) validate() (Type, int, error) {
	t, err := ParseType(sub.Type)
	if err != nil {
		return "", 0, err
	}
	required := []struct{ field, value string }{
		{"staff", sub.Staff},
		{"branch", sub.Branch},
		{"shift", sub.Shift},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return "", 0, fmt.Errorf("%w: %s is required", ErrInvalidInput, r.field)
		}
	}
	shift, err := strconv.Atoi(strings.TrimSpace(sub.Shift))
	if err != nil || shift < 1 {
		return "", 0, fmt.Errorf("%w: shift must be a positive number, got %q", ErrInvalidInput, sub.Shift)
	}
	return t, shift, nil
}

// newReportID picks an ID no stored report uses. Callers hold submitMu.
func (s *Service) newReportID(branch, shift string, at time.Time) (string, error) {
	for range maxIDAttempts {
		id := reportID(branch, shift, at, s.idGenerator.Generate())
		_, err := s.db.GetReport(id)
		if errors.Is(err, ErrReportNotFound) {
			return id, nil
		}
		if err != nil {
			return "", fmt.Errorf("checking report ID: %w", err)
		}
		slog.Warn("Report ID already taken", "report_id", id)
	}
	return "", fmt.Errorf("%w: no free report ID after %d attempts", ErrReportExists, maxIDAttempts)
}

// SubmitReport files the measured items as a report. Photos go to storage,
// the report goes to the ledger when one is configured and is then saved.
// The reported items are cleared once the report is saved.
func (s *Service) SubmitReport(ctx context.Context, sub Submission) (*Report, error) {
	reportType, shiftNo, err := sub.validate()
	if err != nil {
		return nil, err
	}

	s.submitMu.Lock()
	defer s.submitMu.Unlock()

	entries := s.items.Entries()
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: no items measured", ErrInvalidInput)
	}
	for _, e := range entries {
		if e.Extracted.InFlight() {
			return nil, fmt.Errorf("%w: %s", ErrVerifying, e.Key)
		}
	}

	now := s.timeSource.Now()
	shift := strconv.Itoa(shiftNo)
	branch := strings.TrimSpace(sub.Branch)
	id, err := s.newReportID(branch, shift, now)
	if err != nil {
		return nil, err
	}
	report := &Report{
		ID:        id,
		Type:      reportType,
		Staff:     strings.TrimSpace(sub.Staff),
		Branch:    branch,
		Shift:     shift,
		Items:     make([]Item, 0, len(entries)),
		CreatedAt: now,
	}
	data := ledger.ReportData{
		ReportID:     report.ID,
		Inventory:    make(map[string]*float64, len(entries)),
		Images:       make(map[string]string),
		Verification: make(map[string]ledger.Verification, len(entries)),
	}

	var saved []string
	cleanup := func() {
		for _, name := range saved {
			if err := s.storage.Delete(name); err != nil {
				slog.Warn("Failed to delete file", "filename", name, "error", err)
			}
		}
	}

	for i, e := range entries {
		item := Item{Key: e.Key, Manual: e.Manual, Extracted: e.Extracted, Status: e.Status}
		if e.Image != nil {
			name := fmt.Sprintf("%s_%02d_%s.jpg", report.ID, i, sanitizeFilename(e.Key))
			imgData := e.Image.Data()
			if _, err := s.storage.Save(name, imgData); err != nil {
				cleanup()
				return nil, fmt.Errorf("saving photo for %s: %w", e.Key, err)
			}
			saved = append(saved, name)
			item.Filename = name
			item.ContentType = e.Image.ContentType
			data.Images[e.Key] = dataURL(e.Image.ContentType, imgData)
		}
		report.Items = append(report.Items, item)

		data.Inventory[e.Key] = e.Manual
		v := ledger.Verification{Status: string(e.Status)}
		if x, ok := e.Extracted.Value(); ok {
			v.Extracted = &x
		}
		data.Verification[e.Key] = v
	}

	if s.ledger != nil {
		ack, err := s.ledger.SubmitReport(ctx, ledger.Report{
			Type:       string(reportType),
			User:       ledger.User{Name: report.Staff, Branch: report.Branch, Shift: report.Shift},
			ReportData: data,
		})
		if err != nil {
			slog.Error("Failed to submit report to ledger", "report_id", report.ID, "error", err)
			cleanup()
			return nil, fmt.Errorf("%w: %w", ErrLedger, err)
		}
		report.Delivered = true
		report.Message = ack.Message
		report.Discrepancy = ack.Discrepancy
	}

	if err := s.db.SaveReport(report); err != nil {
		cleanup()
		return nil, fmt.Errorf("saving report to database: %w", err)
	}

	// Items added or re-photographed while the report was in flight stay.
	for _, e := range entries {
		s.items.RemoveIf(e.Key, e.Revision)
	}
	slog.Info("Report submitted", "report_id", report.ID, "items", len(report.Items), "delivered", report.Delivered)
	return report, nil
}

// GetReport retrieves a report by ID
func (s *Service) GetReport(id string) (*Report, error) {
	report, err := s.db.GetReport(id)
	if err != nil {
		return nil, fmt.Errorf("getting report: %w", err)
	}
	return report, nil
}

// ListReports returns all reports
func (s *Service) ListReports() ([]*Report, error) {
	reports, err := s.db.ListReports()
	if err != nil {
		return nil, fmt.Errorf("listing reports: %w", err)
	}
	return reports, nil
}

// DeleteReport removes a report and its photos
func (s *Service) DeleteReport(id string) error {
	report, err := s.db.GetReport(id)
	if err != nil {
		return fmt.Errorf("getting report for deletion: %w", err)
	}

	for _, item := range report.Items {
		if item.Filename == "" {
			continue
		}
		if err := s.storage.Delete(item.Filename); err != nil {
			// Log error but continue with database deletion
			slog.Warn("Failed to delete file", "filename", item.Filename, "error", err)
		}
	}

	if err := s.db.DeleteReport(id); err != nil {
		return fmt.Errorf("deleting report from database: %w", err)
	}
	return nil
}

// GetReportImage retrieves the stored photo of item in a report
func (s *Service) GetReportImage(id, key string) ([]byte, string, error) {
	report, err := s.db.GetReport(id)
	if err != nil {
		return nil, "", fmt.Errorf("getting report: %w", err)
	}

	item, ok := report.Item(key)
	if !ok {
		return nil, "", fmt.Errorf("%w: %s", reconcile.ErrItemNotFound, key)
	}
	if item.Filename == "" {
		return nil, "", fmt.Errorf("%w: %s", ErrNoImage, key)
	}

	data, err := s.storage.Get(item.Filename)
	if err != nil {
		return nil, "", fmt.Errorf("getting report photo: %w", err)
	}
	return data, item.ContentType, nil
}
