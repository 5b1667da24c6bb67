// Package agent defines the boundary to the model runtime that produces
// response text for a conversational turn.
//
// The runtime is an external collaborator: given a prompt and a session key it
// produces a lazy, finite sequence of text fragments, terminated normally or
// by failure. This package pins down the one capability the rest of the
// service depends on (FragmentSource), normalizes the polymorphic fragment
// values the runtime may emit, and grounds each turn in the uploaded-document
// index and the session's prior turns.
package agent

import (
	"context"
	"iter"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/pdfbot/pdfbot/internal/knowledge"
	"github.com/pdfbot/pdfbot/internal/log"
	"github.com/pdfbot/pdfbot/internal/session"
)

// FragmentSource produces the ordered fragment sequence for a single turn.
//
// Implementations must be ready to iterate when Fragments returns: any
// asynchronous handshake the underlying runtime needs happens inside the
// adapter, never in the caller. The yielded values are polymorphic; callers
// extract text with Text. A non-nil error terminates the sequence; no further
// values follow it.
type FragmentSource interface {
	Fragments(ctx context.Context, sessionKey, message string) iter.Seq2[any, error]
}

// Retriever searches the uploaded-document index. *knowledge.DocumentStore
// implements it.
type Retriever interface {
	Search(ctx context.Context, query string, topK int) ([]knowledge.Result, error)
}

// HistoryStore persists conversation turns keyed by session. *session.Store
// implements it.
type HistoryStore interface {
	History(ctx context.Context, sessionKey string, limit int) ([]session.Message, error)
	Append(ctx context.Context, sessionKey string, msgs ...session.Message) error
}

const (
	// retrievalTopK bounds how many document chunks ground one turn.
	retrievalTopK = 4
	// historyLimit bounds how many prior messages are replayed per turn.
	historyLimit = 20
)

// Producer adapts a Genkit model to FragmentSource.
//
// Each call to Fragments runs exactly one generation, grounded in the top
// document chunks matching the message and in the session's stored history.
// Chunks are handed over as they arrive from the model; cancelling ctx or
// abandoning the iterator stops the generation promptly.
type Producer struct {
	g         *genkit.Genkit
	modelName string
	retriever Retriever
	history   HistoryStore
	logger    log.Logger
}

// ProducerConfig configures a Producer. Retriever and History are optional:
// a nil Retriever produces ungrounded answers, a nil History makes every
// turn stateless.
type ProducerConfig struct {
	Genkit    *genkit.Genkit
	ModelName string // provider-qualified, e.g. "googleai/gemini-2.5-flash"
	Retriever Retriever
	History   HistoryStore
	Logger    log.Logger
}

// NewProducer creates a Producer.
func NewProducer(cfg ProducerConfig) *Producer {
	return &Producer{
		g:         cfg.Genkit,
		modelName: cfg.ModelName,
		retriever: cfg.Retriever,
		history:   cfg.History,
		logger:    cfg.Logger,
	}
}

// Fragments runs one streaming generation and yields its chunks in order.
//
// Before generating, the message is used to search the document index and the
// session key to load prior turns; both feed the request. Retrieval or recall
// failures degrade the turn (ungrounded, or stateless) rather than failing
// it. On normal completion the user message and the full reply are appended
// to the session history.
func (p *Producer) Fragments(ctx context.Context, sessionKey, message string) iter.Seq2[any, error] {
	return func(yield func(any, error) bool) {
		genCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		docs := p.retrieve(genCtx, message)
		prior := p.recall(genCtx, sessionKey)

		opts := []ai.GenerateOption{
			ai.WithModelName(p.modelName),
			ai.WithMessages(prior...),
			ai.WithPrompt(message),
		}
		if len(docs) > 0 {
			opts = append(opts, ai.WithDocs(docs...))
		}

		chunks := make(chan *ai.ModelResponseChunk)
		done := make(chan error, 1)

		// Goroutine exits after the single done send. The streaming callback
		// blocks on the unbuffered chunks channel, so every chunk is consumed
		// (or the generation cancelled) before done fires.
		go func() {
			streaming := ai.WithStreaming(func(_ context.Context, chunk *ai.ModelResponseChunk) error {
				select {
				case chunks <- chunk:
					return nil
				case <-genCtx.Done():
					return genCtx.Err()
				}
			})
			_, err := genkit.Generate(genCtx, p.g, append(opts, streaming)...)
			done <- err
		}()

		p.logger.Debug("generation started",
			"session_key", sessionKey,
			"model", p.modelName,
			"context_docs", len(docs),
			"history_messages", len(prior),
		)

		var reply strings.Builder
		for {
			select {
			case chunk := <-chunks:
				reply.WriteString(Text(chunk))
				if !yield(chunk, nil) {
					return // consumer stopped; deferred cancel unblocks the callback
				}
			case err := <-done:
				if err != nil {
					yield(nil, err)
					return
				}
				p.remember(ctx, sessionKey, message, reply.String())
				return
			}
		}
	}
}

// retrieve searches the document index for chunks grounding the message.
// A search failure is logged and the turn proceeds without document context.
func (p *Producer) retrieve(ctx context.Context, query string) []*ai.Document {
	if p.retriever == nil {
		return nil
	}

	results, err := p.retriever.Search(ctx, query, retrievalTopK)
	if err != nil {
		p.logger.Warn("knowledge search failed, answering without document context", "error", err)
		return nil
	}

	docs := make([]*ai.Document, 0, len(results))
	for _, res := range results {
		docs = append(docs, ai.DocumentFromText(res.Document.Content, map[string]any{
			"id":         res.Document.ID,
			"file_id":    res.Document.Metadata["file_id"],
			"similarity": res.Similarity,
		}))
	}
	return docs
}

// recall loads the session's prior turns. A load failure is logged and the
// turn proceeds stateless.
func (p *Producer) recall(ctx context.Context, sessionKey string) []*ai.Message {
	if p.history == nil {
		return nil
	}

	msgs, err := p.history.History(ctx, sessionKey, historyLimit)
	if err != nil {
		p.logger.Warn("loading session history failed, answering without it",
			"session_key", sessionKey,
			"error", err,
		)
		return nil
	}
	return toModelMessages(msgs)
}

// toModelMessages converts stored turns to generation request messages.
// Unknown roles are dropped rather than guessed at.
func toModelMessages(msgs []session.Message) []*ai.Message {
	out := make([]*ai.Message, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case session.RoleUser:
			out = append(out, ai.NewUserTextMessage(m.Content))
		case session.RoleModel:
			out = append(out, ai.NewModelTextMessage(m.Content))
		}
	}
	return out
}

// remember appends the completed turn to the session history. Failures are
// logged; the reply already reached the client.
func (p *Producer) remember(ctx context.Context, sessionKey, message, reply string) {
	if p.history == nil {
		return
	}

	err := p.history.Append(ctx, sessionKey,
		session.Message{Role: session.RoleUser, Content: message},
		session.Message{Role: session.RoleModel, Content: reply},
	)
	if err != nil {
		p.logger.Warn("persisting conversation turn failed",
			"session_key", sessionKey,
			"error", err,
		)
	}
}
