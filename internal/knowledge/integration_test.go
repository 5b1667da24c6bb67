package knowledge_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"

	"github.com/pdfbot/pdfbot/internal/ingest"
	"github.com/pdfbot/pdfbot/internal/knowledge"
	"github.com/pdfbot/pdfbot/internal/testutil"
)

// hashEmbedder is a deterministic ai.Embedder for tests. Similar strings do
// not get similar vectors; tests only rely on determinism and dimension.
type hashEmbedder struct{}

func (hashEmbedder) Name() string { return "test/hash-embedder" }

func (hashEmbedder) Register(_ api.Registry) {}

func (hashEmbedder) Embed(_ context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error) {
	resp := &ai.EmbedResponse{}
	for _, doc := range req.Input {
		var text string
		for _, part := range doc.Content {
			text += part.Text
		}
		vec := make([]float32, 768)
		for i, r := range text {
			vec[(i*31+int(r))%len(vec)] += 1
		}
		resp.Embeddings = append(resp.Embeddings, &ai.Embedding{Embedding: vec})
	}
	return resp, nil
}

func TestRecordStore_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	tdb := testutil.SetupTestDB(t)
	store := knowledge.NewRecordStore(tdb.Pool)
	ctx := context.Background()

	rec := ingest.Record{
		FileID:    "11111111-1111-1111-1111-111111111111",
		Filename:  "thesis.pdf",
		Path:      "/uploads/11111111_thesis.pdf",
		Status:    ingest.StatusQueued,
		CreatedAt: time.Now().UTC(),
	}
	if err := store.Create(ctx, rec); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := store.Get(ctx, rec.FileID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Filename != rec.Filename || got.Status != ingest.StatusQueued {
		t.Errorf("Get = %+v", got)
	}

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ingest.ErrNotFound) {
		t.Errorf("Get(missing) = %v, want ErrNotFound", err)
	}

	if err := store.SetStatus(ctx, rec.FileID, ingest.StatusCompleted, "Indexed 3 chunks"); err != nil {
		t.Fatalf("SetStatus failed: %v", err)
	}
	got, err = store.Get(ctx, rec.FileID)
	if err != nil {
		t.Fatalf("Get after SetStatus failed: %v", err)
	}
	if got.Status != ingest.StatusCompleted || got.Message != "Indexed 3 chunks" {
		t.Errorf("after SetStatus = %+v", got)
	}

	if err := store.SetStatus(ctx, "missing", ingest.StatusFailed, ""); !errors.Is(err, ingest.ErrNotFound) {
		t.Errorf("SetStatus(missing) = %v, want ErrNotFound", err)
	}

	recs, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(recs) != 1 {
		t.Errorf("List returned %d records, want 1", len(recs))
	}
}

func TestDocumentStore_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	tdb := testutil.SetupTestDB(t)
	store := knowledge.NewDocumentStore(tdb.Pool, hashEmbedder{}, slog.New(slog.DiscardHandler))
	ctx := context.Background()

	docs := []knowledge.Document{
		{ID: "f1_0000", Content: "neural networks learn representations", Metadata: map[string]string{"file_id": "f1"}},
		{ID: "f1_0001", Content: "gradient descent minimizes loss", Metadata: map[string]string{"file_id": "f1"}},
		{ID: "f2_0000", Content: "cooking pasta requires salted water", Metadata: map[string]string{"file_id": "f2"}},
	}
	for _, doc := range docs {
		if err := store.Add(ctx, doc); err != nil {
			t.Fatalf("Add(%s) failed: %v", doc.ID, err)
		}
	}

	count, err := store.Count(ctx)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 3 {
		t.Errorf("Count = %d, want 3", count)
	}

	// Upsert: re-adding the same ID must not create a new row.
	if err := store.Add(ctx, docs[0]); err != nil {
		t.Fatalf("re-Add failed: %v", err)
	}
	count, err = store.Count(ctx)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 3 {
		t.Errorf("Count after upsert = %d, want 3", count)
	}

	// An identical query embeds identically, so its source chunk ranks first.
	results, err := store.Search(ctx, "neural networks learn representations", 2)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Search returned %d results, want 2", len(results))
	}
	if results[0].Document.ID != "f1_0000" {
		t.Errorf("top result = %s, want f1_0000", results[0].Document.ID)
	}
	if results[0].Similarity < results[1].Similarity {
		t.Error("results not ordered by similarity")
	}
	if results[0].Document.Metadata["file_id"] != "f1" {
		t.Errorf("metadata lost: %v", results[0].Document.Metadata)
	}

	if err := store.DeleteByFileID(ctx, "f1"); err != nil {
		t.Fatalf("DeleteByFileID failed: %v", err)
	}
	count, err = store.Count(ctx)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Count after delete = %d, want 1", count)
	}
}
