package knowledge

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

// maxChunkSize keeps each chunk safely under the embedder's token limit.
const maxChunkSize = 4 * 1024

// TextExtractor turns a stored file into embeddable text chunks.
type TextExtractor interface {
	Extract(ctx context.Context, path string) ([]string, error)
}

// PDFExtractor extracts plain text from PDF files and splits it into
// word-boundary chunks.
type PDFExtractor struct {
	// ChunkSize overrides the default chunk size. Zero means maxChunkSize.
	ChunkSize int
}

// Extract implements TextExtractor.
func (e *PDFExtractor) Extract(ctx context.Context, path string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening PDF %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	plain, err := reader.GetPlainText()
	if err != nil {
		return nil, fmt.Errorf("extracting text from %s: %w", path, err)
	}
	text, err := io.ReadAll(plain)
	if err != nil {
		return nil, fmt.Errorf("reading extracted text from %s: %w", path, err)
	}

	size := e.ChunkSize
	if size <= 0 {
		size = maxChunkSize
	}
	chunks := chunkText(string(text), size)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("PDF %s contains no extractable text", path)
	}
	return chunks, nil
}

// chunkText splits text into chunks of at most size bytes, breaking on word
// boundaries. A single word longer than size becomes its own chunk rather
// than being split mid-word.
func chunkText(text string, size int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	var chunks []string
	var b strings.Builder
	for _, word := range words {
		if b.Len() > 0 && b.Len()+1+len(word) > size {
			chunks = append(chunks, b.String())
			b.Reset()
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(word)
	}
	if b.Len() > 0 {
		chunks = append(chunks, b.String())
	}
	return chunks
}
