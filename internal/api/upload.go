package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/pdfbot/pdfbot/internal/ingest"
)

// maxUploadSize limits PDF uploads to 50MB.
const maxUploadSize = 50 << 20

// uploadHandler exposes the ingest service over HTTP.
type uploadHandler struct {
	service *ingest.Service
	logger  *slog.Logger
}

// uploadResponse is the success body for POST /api/upload/pdf.
type uploadResponse struct {
	Message  string `json:"message"`
	FileID   string `json:"file_id"`
	Filename string `json:"filename"`
	Status   string `json:"status"`
}

// uploadPDF handles POST /api/upload/pdf.
func (h *uploadHandler) uploadPDF(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)

	file, header, err := r.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeDetail(w, http.StatusRequestEntityTooLarge, "uploaded file too large")
			return
		}
		writeDetail(w, http.StatusBadRequest, "multipart field 'file' is required")
		return
	}
	defer func() {
		if err := file.Close(); err != nil {
			h.logger.Debug("closing upload part failed", "error", err)
		}
	}()

	rec, err := h.service.Upload(r.Context(), header.Filename, file)
	if err != nil {
		if errors.Is(err, ingest.ErrNotPDF) {
			writeDetail(w, http.StatusBadRequest, "Only PDF files are allowed")
			return
		}
		h.logger.Error("upload failed", "filename", header.Filename, "error", err)
		writeDetail(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to upload PDF: %v", err))
		return
	}

	writeJSON(w, http.StatusOK, uploadResponse{
		Message:  "PDF uploaded and queued for processing",
		FileID:   rec.FileID,
		Filename: rec.Filename,
		// Indexing is asynchronous; "processing" tells the client to poll.
		Status: "processing",
	})
}

// statusResponse is the body for GET /api/upload/status/{file_id}.
type statusResponse struct {
	FileID  string `json:"file_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// uploadStatus handles GET /api/upload/status/{file_id}.
func (h *uploadHandler) uploadStatus(w http.ResponseWriter, r *http.Request) {
	fileID := r.PathValue("file_id")

	rec, err := h.service.Status(r.Context(), fileID)
	if err != nil {
		if errors.Is(err, ingest.ErrNotFound) {
			writeDetail(w, http.StatusNotFound,
				fmt.Sprintf("File with ID %s not found", fileID))
			return
		}
		h.logger.Error("upload status lookup failed", "file_id", fileID, "error", err)
		writeDetail(w, http.StatusInternalServerError, "Failed to get upload status")
		return
	}

	writeJSON(w, http.StatusOK, statusResponse{
		FileID:  rec.FileID,
		Status:  string(rec.Status),
		Message: rec.Message,
	})
}

// uploadEntry is one element of the list response.
type uploadEntry struct {
	FileID   string `json:"file_id"`
	Filename string `json:"filename"`
	Status   string `json:"status"`
	Message  string `json:"message"`
}

// listResponse is the body for GET /api/upload/list.
type listResponse struct {
	Uploads []uploadEntry `json:"uploads"`
	Total   int           `json:"total"`
}

// uploadList handles GET /api/upload/list.
func (h *uploadHandler) uploadList(w http.ResponseWriter, r *http.Request) {
	recs, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error("listing uploads failed", "error", err)
		writeDetail(w, http.StatusInternalServerError, "Failed to list uploads")
		return
	}

	uploads := make([]uploadEntry, 0, len(recs))
	for _, rec := range recs {
		uploads = append(uploads, uploadEntry{
			FileID:   rec.FileID,
			Filename: rec.Filename,
			Status:   string(rec.Status),
			Message:  rec.Message,
		})
	}

	writeJSON(w, http.StatusOK, listResponse{Uploads: uploads, Total: len(uploads)})
}
