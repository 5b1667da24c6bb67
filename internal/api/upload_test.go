package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/pdfbot/pdfbot/internal/ingest"
)

// fakeRecordStore is an in-memory ingest.RecordStore.
type fakeRecordStore struct {
	mu      sync.Mutex
	records map[string]ingest.Record
}

func newFakeRecordStore() *fakeRecordStore {
	return &fakeRecordStore{records: make(map[string]ingest.Record)}
}

func (s *fakeRecordStore) Create(_ context.Context, rec ingest.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.FileID] = rec
	return nil
}

func (s *fakeRecordStore) Get(_ context.Context, fileID string) (ingest.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[fileID]
	if !ok {
		return ingest.Record{}, ingest.ErrNotFound
	}
	return rec, nil
}

func (s *fakeRecordStore) List(_ context.Context) ([]ingest.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ingest.Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	return out, nil
}

// noopPipeline accepts every job without touching the record.
type noopPipeline struct{}

func (noopPipeline) Index(context.Context, string, string) error { return nil }

func newTestUploadHandler(t *testing.T) (*uploadHandler, *fakeRecordStore) {
	t.Helper()
	store := newFakeRecordStore()
	svc, err := ingest.NewService(ingest.Config{
		Dir:      t.TempDir(),
		Workers:  1,
		Store:    store,
		Pipeline: noopPipeline{},
		Logger:   slog.New(slog.DiscardHandler),
	})
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	t.Cleanup(svc.Close)
	return &uploadHandler{service: svc, logger: slog.New(slog.DiscardHandler)}, store
}

// multipartBody builds a multipart body with one file part.
func multipartBody(t *testing.T, field, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	buf := new(bytes.Buffer)
	mw := multipart.NewWriter(buf)
	part, err := mw.CreateFormFile(field, filename)
	if err != nil {
		t.Fatalf("CreateFormFile failed: %v", err)
	}
	if _, err := io.WriteString(part, content); err != nil {
		t.Fatalf("writing part failed: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("closing multipart writer failed: %v", err)
	}
	return buf, mw.FormDataContentType()
}

func postUpload(t *testing.T, h *uploadHandler, filename, content string) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartBody(t, "file", filename, content)
	r := httptest.NewRequest(http.MethodPost, "/api/upload/pdf", body)
	r.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	h.uploadPDF(w, r)
	return w
}

func TestUploadPDF_Success(t *testing.T) {
	t.Parallel()

	h, _ := newTestUploadHandler(t)
	w := postUpload(t, h, "thesis.pdf", "%PDF-1.7 fake")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200\nbody: %s", w.Code, w.Body.String())
	}

	var resp uploadResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response is not JSON: %v", err)
	}
	if _, err := uuid.Parse(resp.FileID); err != nil {
		t.Errorf("file_id %q is not a UUID: %v", resp.FileID, err)
	}
	if resp.Filename != "thesis.pdf" {
		t.Errorf("filename = %q, want thesis.pdf", resp.Filename)
	}
	if resp.Status != "processing" {
		t.Errorf("status = %q, want processing", resp.Status)
	}
	if resp.Message == "" {
		t.Error("message is empty")
	}
}

func TestUploadPDF_RejectsNonPDF(t *testing.T) {
	t.Parallel()

	h, store := newTestUploadHandler(t)
	w := postUpload(t, h, "notes.txt", "plain text")

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	var resp detailResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("error body is not JSON: %v", err)
	}
	if resp.Detail != "Only PDF files are allowed" {
		t.Errorf("detail = %q", resp.Detail)
	}
	if len(store.records) != 0 {
		t.Error("rejected upload must not create a record")
	}
}

func TestUploadPDF_MissingFilePart(t *testing.T) {
	t.Parallel()

	h, _ := newTestUploadHandler(t)
	body, contentType := multipartBody(t, "document", "a.pdf", "x")
	r := httptest.NewRequest(http.MethodPost, "/api/upload/pdf", body)
	r.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	h.uploadPDF(w, r)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestUploadStatus(t *testing.T) {
	t.Parallel()

	h, _ := newTestUploadHandler(t)
	up := postUpload(t, h, "doc.pdf", "x")
	var created uploadResponse
	if err := json.Unmarshal(up.Body.Bytes(), &created); err != nil {
		t.Fatalf("upload response is not JSON: %v", err)
	}

	r := httptest.NewRequest(http.MethodGet, "/api/upload/status/"+created.FileID, nil)
	r.SetPathValue("file_id", created.FileID)
	w := httptest.NewRecorder()
	h.uploadStatus(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200\nbody: %s", w.Code, w.Body.String())
	}
	var resp statusResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response is not JSON: %v", err)
	}
	if resp.FileID != created.FileID {
		t.Errorf("file_id = %q, want %q", resp.FileID, created.FileID)
	}
	if resp.Status == "" {
		t.Error("status is empty")
	}
}

func TestUploadStatus_NotFound(t *testing.T) {
	t.Parallel()

	h, _ := newTestUploadHandler(t)
	r := httptest.NewRequest(http.MethodGet, "/api/upload/status/ghost-id", nil)
	r.SetPathValue("file_id", "ghost-id")
	w := httptest.NewRecorder()
	h.uploadStatus(w, r)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	var resp detailResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("error body is not JSON: %v", err)
	}
	if resp.Detail != "File with ID ghost-id not found" {
		t.Errorf("detail = %q", resp.Detail)
	}
}

func TestUploadList(t *testing.T) {
	t.Parallel()

	h, _ := newTestUploadHandler(t)
	for _, name := range []string{"a.pdf", "b.pdf"} {
		if w := postUpload(t, h, name, "x"); w.Code != http.StatusOK {
			t.Fatalf("upload %q failed: %d", name, w.Code)
		}
	}

	r := httptest.NewRequest(http.MethodGet, "/api/upload/list", nil)
	w := httptest.NewRecorder()
	h.uploadList(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp listResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response is not JSON: %v", err)
	}
	if resp.Total != 2 || len(resp.Uploads) != 2 {
		t.Errorf("total = %d, uploads = %d, want 2/2", resp.Total, len(resp.Uploads))
	}
	for _, u := range resp.Uploads {
		if u.FileID == "" || u.Filename == "" || u.Status == "" {
			t.Errorf("incomplete entry: %+v", u)
		}
	}
}
