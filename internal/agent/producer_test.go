package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/firebase/genkit/go/ai"

	"github.com/pdfbot/pdfbot/internal/knowledge"
	"github.com/pdfbot/pdfbot/internal/log"
	"github.com/pdfbot/pdfbot/internal/session"
)

type fakeRetriever struct {
	results []knowledge.Result
	err     error

	query string
	topK  int
}

func (f *fakeRetriever) Search(_ context.Context, query string, topK int) ([]knowledge.Result, error) {
	f.query = query
	f.topK = topK
	return f.results, f.err
}

type fakeHistory struct {
	msgs    []session.Message
	histErr error
	appErr  error

	historyKey   string
	historyLimit int
	appendKey    string
	appended     []session.Message
}

func (f *fakeHistory) History(_ context.Context, sessionKey string, limit int) ([]session.Message, error) {
	f.historyKey = sessionKey
	f.historyLimit = limit
	return f.msgs, f.histErr
}

func (f *fakeHistory) Append(_ context.Context, sessionKey string, msgs ...session.Message) error {
	f.appendKey = sessionKey
	f.appended = append(f.appended, msgs...)
	return f.appErr
}

func docText(t *testing.T, doc *ai.Document) string {
	t.Helper()
	if len(doc.Content) == 0 {
		t.Fatal("document has no content parts")
	}
	return doc.Content[0].Text
}

func TestRetrieve_GroundsTurnInSearchHits(t *testing.T) {
	t.Parallel()

	ret := &fakeRetriever{results: []knowledge.Result{
		{
			Document: knowledge.Document{
				ID:       "f1_0000",
				Content:  "neural networks learn representations",
				Metadata: map[string]string{"file_id": "f1"},
			},
			Similarity: 0.91,
		},
		{
			Document: knowledge.Document{
				ID:       "f1_0001",
				Content:  "gradient descent minimizes loss",
				Metadata: map[string]string{"file_id": "f1"},
			},
			Similarity: 0.72,
		},
	}}
	p := NewProducer(ProducerConfig{Retriever: ret, Logger: log.NewNop()})

	docs := p.retrieve(context.Background(), "how do networks learn?")

	if ret.query != "how do networks learn?" {
		t.Errorf("search query = %q", ret.query)
	}
	if ret.topK != retrievalTopK {
		t.Errorf("search topK = %d, want %d", ret.topK, retrievalTopK)
	}
	if len(docs) != 2 {
		t.Fatalf("retrieve returned %d docs, want 2", len(docs))
	}
	if got := docText(t, docs[0]); got != "neural networks learn representations" {
		t.Errorf("doc[0] text = %q", got)
	}
	if docs[0].Metadata["file_id"] != "f1" {
		t.Errorf("doc[0] metadata = %v, want file_id f1", docs[0].Metadata)
	}
	if docs[1].Metadata["id"] != "f1_0001" {
		t.Errorf("doc[1] metadata = %v, want id f1_0001", docs[1].Metadata)
	}
}

func TestRetrieve_SearchFailureDegradesToUngrounded(t *testing.T) {
	t.Parallel()

	ret := &fakeRetriever{err: errors.New("connection refused")}
	p := NewProducer(ProducerConfig{Retriever: ret, Logger: log.NewNop()})

	if docs := p.retrieve(context.Background(), "anything"); docs != nil {
		t.Errorf("retrieve after search failure = %v, want nil", docs)
	}
}

func TestRetrieve_NilRetriever(t *testing.T) {
	t.Parallel()

	p := NewProducer(ProducerConfig{Logger: log.NewNop()})
	if docs := p.retrieve(context.Background(), "anything"); docs != nil {
		t.Errorf("retrieve without retriever = %v, want nil", docs)
	}
}

func TestRecall_ReplaysStoredTurns(t *testing.T) {
	t.Parallel()

	hist := &fakeHistory{msgs: []session.Message{
		{Role: session.RoleUser, Content: "what is in the report?"},
		{Role: session.RoleModel, Content: "It covers Q3 revenue."},
	}}
	p := NewProducer(ProducerConfig{History: hist, Logger: log.NewNop()})

	msgs := p.recall(context.Background(), "key-1")

	if hist.historyKey != "key-1" {
		t.Errorf("history loaded for key %q, want key-1", hist.historyKey)
	}
	if hist.historyLimit != historyLimit {
		t.Errorf("history limit = %d, want %d", hist.historyLimit, historyLimit)
	}
	if len(msgs) != 2 {
		t.Fatalf("recall returned %d messages, want 2", len(msgs))
	}
	if msgs[0].Role != ai.RoleUser || msgs[1].Role != ai.RoleModel {
		t.Errorf("roles = %s, %s", msgs[0].Role, msgs[1].Role)
	}
	if msgs[1].Content[0].Text != "It covers Q3 revenue." {
		t.Errorf("model message text = %q", msgs[1].Content[0].Text)
	}
}

func TestRecall_LoadFailureDegradesToStateless(t *testing.T) {
	t.Parallel()

	hist := &fakeHistory{histErr: errors.New("connection refused")}
	p := NewProducer(ProducerConfig{History: hist, Logger: log.NewNop()})

	if msgs := p.recall(context.Background(), "key-1"); msgs != nil {
		t.Errorf("recall after load failure = %v, want nil", msgs)
	}
}

func TestToModelMessages_DropsUnknownRoles(t *testing.T) {
	t.Parallel()

	msgs := toModelMessages([]session.Message{
		{Role: session.RoleUser, Content: "hi"},
		{Role: "system", Content: "ignored"},
		{Role: session.RoleModel, Content: "hello"},
	})
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].Role != ai.RoleUser || msgs[1].Role != ai.RoleModel {
		t.Errorf("roles = %s, %s", msgs[0].Role, msgs[1].Role)
	}
}

func TestRemember_PersistsBothTurnHalves(t *testing.T) {
	t.Parallel()

	hist := &fakeHistory{}
	p := NewProducer(ProducerConfig{History: hist, Logger: log.NewNop()})

	p.remember(context.Background(), "key-1", "what is in the report?", "It covers Q3 revenue.")

	if hist.appendKey != "key-1" {
		t.Errorf("appended under key %q, want key-1", hist.appendKey)
	}
	if len(hist.appended) != 2 {
		t.Fatalf("appended %d messages, want 2", len(hist.appended))
	}
	if hist.appended[0].Role != session.RoleUser || hist.appended[0].Content != "what is in the report?" {
		t.Errorf("user half = %+v", hist.appended[0])
	}
	if hist.appended[1].Role != session.RoleModel || hist.appended[1].Content != "It covers Q3 revenue." {
		t.Errorf("model half = %+v", hist.appended[1])
	}
}

func TestRemember_AppendFailureDoesNotPanic(t *testing.T) {
	t.Parallel()

	hist := &fakeHistory{appErr: errors.New("connection refused")}
	p := NewProducer(ProducerConfig{History: hist, Logger: log.NewNop()})

	p.remember(context.Background(), "key-1", "q", "a")
}
