package report

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/zombor/scalecheck/internal/capture"
	"github.com/zombor/scalecheck/internal/reconcile"
)

// maxPhotoSize is large enough for full resolution phone photos
const maxPhotoSize = int64(50 << 20)

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// errorResponse is the JSON body of every error reply
type errorResponse struct {
	Error string        `json:"error"`
	Cause capture.Cause `json:"cause,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// writeError maps service errors to status codes
func writeError(w http.ResponseWriter, err error) {
	var (
		negErr   *capture.NegotiationError
		stateErr *capture.SessionStateError
	)
	switch {
	case errors.As(err, &negErr):
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: negErr.Cause.Message(), Cause: negErr.Cause})
	case errors.As(err, &stateErr),
		errors.Is(err, capture.ErrSessionClosed),
		errors.Is(err, ErrCameraClosed),
		errors.Is(err, ErrVerifying),
		errors.Is(err, ErrReportExists),
		errors.Is(err, reconcile.ErrDuplicateItem):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, reconcile.ErrItemNotFound),
		errors.Is(err, ErrReportNotFound),
		errors.Is(err, ErrNoImage):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, ErrLedger):
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
	default:
		slog.Error("Request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Internal server error"})
	}
}

func badRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: message})
}

// handleCameraStatus reports the camera station
func (s *Server) handleCameraStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.CameraStatus())
}

// handleCameraStart opens the camera
func (s *Server) handleCameraStart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Orientation string `json:"orientation"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			badRequest(w, "Invalid request body")
			return
		}
	}

	orientation, err := capture.ParseOrientation(req.Orientation)
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	status, err := s.service.OpenCamera(r.Context(), orientation)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// handleCameraCapture freezes the live frame for an item
func (s *Server) handleCameraCapture(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Item string `json:"item"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Item == "" {
		badRequest(w, "Item is required")
		return
	}

	entry, err := s.service.Capture(req.Item)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// handleCameraRetake discards the still and goes live again
func (s *Server) handleCameraRetake(w http.ResponseWriter, r *http.Request) {
	status, err := s.service.Retake(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// handleCameraStop releases the camera
func (s *Server) handleCameraStop(w http.ResponseWriter, r *http.Request) {
	s.service.StopCamera()
	w.WriteHeader(http.StatusNoContent)
}

// handleListItems returns the measured items
func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.ListItems())
}

// handleAddItem starts measuring an item
func (s *Server) handleAddItem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Key string `json:"key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "Invalid request body")
		return
	}

	entry, err := s.service.AddItem(req.Key)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

// handleRemoveItem drops an item and its photo
func (s *Server) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	if err := s.service.RemoveItem(r.PathValue("key")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSetManual records or clears the manual value
func (s *Server) handleSetManual(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Value *float64 `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "Value must be a number or null")
		return
	}

	entry, err := s.service.SetManual(r.PathValue("key"), req.Value)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// detectContentType falls back to the file extension when the part has no
// Content-Type
func detectContentType(header string, filename string) string {
	contentType := strings.ToLower(strings.TrimSpace(header))
	if contentType != "" {
		return contentType
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	default:
		return "application/octet-stream"
	}
}

// handleUploadPhoto attaches an uploaded photo to an item
func (s *Server) handleUploadPhoto(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxPhotoSize)
	if err := r.ParseMultipartForm(maxPhotoSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			badRequest(w, "File is too large. Maximum size is 50MB.")
			return
		}
		badRequest(w, "Error parsing form")
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		badRequest(w, "No file was selected. Please choose a photo to upload.")
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Error reading file. Please try again."})
		return
	}

	contentType := detectContentType(header.Header.Get("Content-Type"), header.Filename)
	entry, err := s.service.AttachPhoto(r.PathValue("key"), data, contentType)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// handleItemImage returns the photo attached to an item
func (s *Server) handleItemImage(w http.ResponseWriter, r *http.Request) {
	data, contentType, err := s.service.ItemImage(r.PathValue("key"))
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

// handleReverify reads stored photos again
func (s *Server) handleReverify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Keys []string `json:"keys"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			badRequest(w, "Invalid request body")
			return
		}
	}

	entries, err := s.service.Reverify(r.Context(), req.Keys...)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// handleSubmitReport files the measured items
func (s *Server) handleSubmitReport(w http.ResponseWriter, r *http.Request) {
	var sub Submission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		badRequest(w, "Invalid request body")
		return
	}

	report, err := s.service.SubmitReport(r.Context(), sub)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, report)
}

// handleListReports returns all reports
func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	reports, err := s.service.ListReports()
	if err != nil {
		writeError(w, err)
		return
	}
	if reports == nil {
		reports = []*Report{}
	}
	writeJSON(w, http.StatusOK, reports)
}

// handleGetReport returns a single report
func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	report, err := s.service.GetReport(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// handleDeleteReport deletes a report and its photos
func (s *Server) handleDeleteReport(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteReport(r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleReportImage returns a stored report photo
func (s *Server) handleReportImage(w http.ResponseWriter, r *http.Request) {
	data, contentType, err := s.service.GetReportImage(r.PathValue("id"), r.PathValue("item"))
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}
