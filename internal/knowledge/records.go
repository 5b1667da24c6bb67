package knowledge

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/pdfbot/pdfbot/internal/ingest"
)

// Querier is the subset of pgx operations the stores need.
// *pgxpool.Pool satisfies it; tests can substitute a single connection or a
// transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// RecordStore persists upload records in the uploads table.
// It implements ingest.RecordStore and adds the status writes the indexing
// pipeline needs.
type RecordStore struct {
	q Querier
}

// NewRecordStore creates a RecordStore over q.
func NewRecordStore(q Querier) *RecordStore {
	return &RecordStore{q: q}
}

// Create inserts a new upload record.
func (s *RecordStore) Create(ctx context.Context, rec ingest.Record) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO uploads (file_id, filename, path, status, message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.FileID, rec.Filename, rec.Path, string(rec.Status), rec.Message, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting upload %s: %w", rec.FileID, err)
	}
	return nil
}

// Get returns the record for fileID, or ingest.ErrNotFound.
func (s *RecordStore) Get(ctx context.Context, fileID string) (ingest.Record, error) {
	var rec ingest.Record
	var status string
	err := s.q.QueryRow(ctx, `
		SELECT file_id, filename, path, status, message, created_at
		FROM uploads WHERE file_id = $1`,
		fileID,
	).Scan(&rec.FileID, &rec.Filename, &rec.Path, &status, &rec.Message, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ingest.Record{}, ingest.ErrNotFound
		}
		return ingest.Record{}, fmt.Errorf("selecting upload %s: %w", fileID, err)
	}
	rec.Status = ingest.Status(status)
	return rec, nil
}

// List returns all upload records, newest first.
func (s *RecordStore) List(ctx context.Context) ([]ingest.Record, error) {
	rows, err := s.q.Query(ctx, `
		SELECT file_id, filename, path, status, message, created_at
		FROM uploads ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("selecting uploads: %w", err)
	}
	defer rows.Close()

	var recs []ingest.Record
	for rows.Next() {
		var rec ingest.Record
		var status string
		if err := rows.Scan(&rec.FileID, &rec.Filename, &rec.Path, &status, &rec.Message, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning upload row: %w", err)
		}
		rec.Status = ingest.Status(status)
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating upload rows: %w", err)
	}
	return recs, nil
}

// SetStatus moves an upload to a new lifecycle state with an operator-facing
// message. Only the indexing pipeline calls this.
func (s *RecordStore) SetStatus(ctx context.Context, fileID string, status ingest.Status, message string) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE uploads SET status = $2, message = $3 WHERE file_id = $1`,
		fileID, string(status), message,
	)
	if err != nil {
		return fmt.Errorf("updating upload %s status: %w", fileID, err)
	}
	if tag.RowsAffected() == 0 {
		return ingest.ErrNotFound
	}
	return nil
}
