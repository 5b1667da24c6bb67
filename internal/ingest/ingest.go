// Package ingest accepts uploaded PDF files and hands them to the indexing
// pipeline without blocking the request path.
//
// The service validates and persists the upload synchronously, then submits
// an indexing job to a fixed-size worker pool. Status transitions (queued,
// processing, completed, failed) belong to the pipeline; the service and the
// HTTP handlers only read them through the record store.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotPDF indicates the uploaded filename does not end in .pdf.
	ErrNotPDF = errors.New("only PDF files are allowed")

	// ErrNotFound indicates no upload record exists for the given file ID.
	ErrNotFound = errors.New("upload not found")

	// ErrClosed indicates the service no longer accepts uploads.
	ErrClosed = errors.New("ingest service is closed")
)

// Status is the lifecycle state of an uploaded document.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Record describes one uploaded document.
type Record struct {
	FileID    string
	Filename  string
	Path      string
	Status    Status
	Message   string
	CreatedAt time.Time
}

// RecordStore persists upload records.
// Get returns ErrNotFound when no record matches fileID.
type RecordStore interface {
	Create(ctx context.Context, rec Record) error
	Get(ctx context.Context, fileID string) (Record, error)
	List(ctx context.Context) ([]Record, error)
}

// Pipeline chunks, embeds, and stores an uploaded document. It owns the
// record's status transitions from queued through completed or failed.
type Pipeline interface {
	Index(ctx context.Context, fileID, path string) error
}

// Config configures the ingest service.
type Config struct {
	Dir      string // directory for uploaded files, created if absent
	Workers  int    // worker pool size, minimum 1
	Store    RecordStore
	Pipeline Pipeline
	Logger   *slog.Logger
}

type job struct {
	fileID string
	path   string
}

// Service stores uploads and schedules indexing.
type Service struct {
	dir      string
	store    RecordStore
	pipeline Pipeline
	logger   *slog.Logger

	jobs   chan job
	wg     sync.WaitGroup
	bgCtx  context.Context
	cancel context.CancelFunc

	// closeMu serializes enqueue against Close so Upload never sends on a
	// closed channel.
	closeMu   sync.Mutex
	closed    bool
	closeOnce sync.Once
}

// NewService creates the upload directory and starts the worker pool.
// Callers must Close the service to drain queued jobs.
func NewService(cfg Config) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("record store is required")
	}
	if cfg.Pipeline == nil {
		return nil, errors.New("pipeline is required")
	}
	if cfg.Dir == "" {
		return nil, errors.New("upload directory is required")
	}

	if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating upload directory: %w", err)
	}

	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	bgCtx, cancel := context.WithCancel(context.Background())
	s := &Service{
		dir:      cfg.Dir,
		store:    cfg.Store,
		pipeline: cfg.Pipeline,
		logger:   logger,
		// Buffer absorbs bursts so Upload rarely blocks on a busy pool.
		jobs:   make(chan job, workers*4),
		bgCtx:  bgCtx,
		cancel: cancel,
	}

	s.wg.Add(workers)
	for range workers {
		go s.worker()
	}

	return s, nil
}

// worker drains the job queue until it is closed.
func (s *Service) worker() {
	defer s.wg.Done()
	for j := range s.jobs {
		if err := s.pipeline.Index(s.bgCtx, j.fileID, j.path); err != nil {
			// The pipeline already recorded the failure on the upload
			// record; this log is for operators.
			s.logger.Error("indexing upload failed",
				"file_id", j.fileID,
				"path", j.path,
				"error", err,
			)
			continue
		}
		s.logger.Info("upload indexed", "file_id", j.fileID)
	}
}

// Upload validates the filename, persists the bytes, records the upload, and
// queues it for indexing. Validation happens before anything is written; any
// failure after the write deletes the file so no orphan remains.
func (s *Service) Upload(ctx context.Context, filename string, src io.Reader) (Record, error) {
	if !strings.HasSuffix(strings.ToLower(filename), ".pdf") {
		return Record{}, ErrNotPDF
	}

	// UUID prefix isolates concurrent uploads with colliding names.
	fileID := uuid.NewString()
	path := filepath.Join(s.dir, fileID+"_"+filepath.Base(filename))

	if err := s.writeFile(path, src); err != nil {
		return Record{}, err
	}

	rec := Record{
		FileID:    fileID,
		Filename:  filename,
		Path:      path,
		Status:    StatusQueued,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.store.Create(ctx, rec); err != nil {
		s.removeFile(path)
		return Record{}, fmt.Errorf("recording upload: %w", err)
	}

	if err := s.enqueue(ctx, job{fileID: fileID, path: path}); err != nil {
		s.removeFile(path)
		return Record{}, err
	}

	return rec, nil
}

// enqueue submits a job to the worker pool. Holding closeMu across the send
// is safe: workers drain the queue without taking the lock.
func (s *Service) enqueue(ctx context.Context, j job) error {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	if s.closed {
		return ErrClosed
	}

	select {
	case s.jobs <- j:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("queueing upload: %w", ctx.Err())
	}
}

// Status returns the record for fileID. Absence is ErrNotFound.
func (s *Service) Status(ctx context.Context, fileID string) (Record, error) {
	rec, err := s.store.Get(ctx, fileID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("looking up upload %s: %w", fileID, err)
	}
	return rec, nil
}

// List returns all upload records.
func (s *Service) List(ctx context.Context) ([]Record, error) {
	recs, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing uploads: %w", err)
	}
	return recs, nil
}

// Close stops accepting uploads, waits for queued jobs to finish, then
// cancels the pipeline context. Safe to call more than once.
func (s *Service) Close() {
	s.closeOnce.Do(func() {
		s.closeMu.Lock()
		s.closed = true
		close(s.jobs)
		s.closeMu.Unlock()

		s.wg.Wait()
		s.cancel()
	})
}

func (s *Service) writeFile(path string, src io.Reader) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return fmt.Errorf("creating upload file: %w", err)
	}

	if _, err := io.Copy(f, src); err != nil {
		_ = f.Close()
		s.removeFile(path)
		return fmt.Errorf("writing upload file: %w", err)
	}
	if err := f.Close(); err != nil {
		s.removeFile(path)
		return fmt.Errorf("closing upload file: %w", err)
	}
	return nil
}

func (s *Service) removeFile(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("removing upload file failed", "path", path, "error", err)
	}
}
