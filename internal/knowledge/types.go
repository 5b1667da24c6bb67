// Package knowledge is the PostgreSQL-backed document memory of the chatbot:
// upload records in a plain table, document chunks with pgvector embeddings,
// and the indexing pipeline that moves an upload from queued to completed.
package knowledge

import "time"

// Document is one indexed chunk of an uploaded file.
type Document struct {
	ID        string            // unique chunk identifier, derived from the upload's file ID
	Content   string            // chunk text
	Metadata  map[string]string // filename, file_id, type
	CreatedAt time.Time
}

// Result is a search hit with its cosine similarity score.
type Result struct {
	Document   Document
	Similarity float32
}
