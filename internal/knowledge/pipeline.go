package knowledge

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pdfbot/pdfbot/internal/ingest"
)

// StatusWriter records an upload's lifecycle transitions.
// *RecordStore implements it.
type StatusWriter interface {
	SetStatus(ctx context.Context, fileID string, status ingest.Status, message string) error
}

// DocumentAdder stores embeddable chunks. *DocumentStore implements it.
type DocumentAdder interface {
	Add(ctx context.Context, doc Document) error
}

// Pipeline indexes uploaded files: extract, chunk, embed, store.
// It implements ingest.Pipeline and owns the upload's status transitions;
// nothing else writes them.
type Pipeline struct {
	records   StatusWriter
	docs      DocumentAdder
	extractor TextExtractor
	logger    *slog.Logger
}

// NewPipeline creates a Pipeline.
func NewPipeline(records StatusWriter, docs DocumentAdder, extractor TextExtractor, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{records: records, docs: docs, extractor: extractor, logger: logger}
}

// Index processes one upload to completion or failure.
// The returned error mirrors what was written to the upload record; callers
// only log it.
func (p *Pipeline) Index(ctx context.Context, fileID, path string) error {
	if err := p.records.SetStatus(ctx, fileID, ingest.StatusProcessing, "Extracting text"); err != nil {
		return fmt.Errorf("marking upload %s processing: %w", fileID, err)
	}

	chunks, err := p.extractor.Extract(ctx, path)
	if err != nil {
		p.fail(ctx, fileID, fmt.Sprintf("Text extraction failed: %v", err))
		return fmt.Errorf("extracting %s: %w", fileID, err)
	}

	now := time.Now().UTC()
	for i, chunk := range chunks {
		doc := Document{
			ID:      fmt.Sprintf("%s_%04d", fileID, i),
			Content: chunk,
			Metadata: map[string]string{
				"file_id": fileID,
				"chunk":   fmt.Sprintf("%d", i),
				"type":    "pdf",
			},
			CreatedAt: now,
		}
		if err := p.docs.Add(ctx, doc); err != nil {
			p.fail(ctx, fileID, fmt.Sprintf("Embedding failed on chunk %d: %v", i, err))
			return fmt.Errorf("storing chunk %d of %s: %w", i, fileID, err)
		}
	}

	msg := fmt.Sprintf("Indexed %d chunks", len(chunks))
	if err := p.records.SetStatus(ctx, fileID, ingest.StatusCompleted, msg); err != nil {
		return fmt.Errorf("marking upload %s completed: %w", fileID, err)
	}
	p.logger.Info("upload indexed", "file_id", fileID, "chunks", len(chunks))
	return nil
}

// fail best-effort records the failure; the original error is what callers see.
func (p *Pipeline) fail(ctx context.Context, fileID, message string) {
	if err := p.records.SetStatus(ctx, fileID, ingest.StatusFailed, message); err != nil {
		p.logger.Error("recording upload failure failed", "file_id", fileID, "error", err)
	}
}
