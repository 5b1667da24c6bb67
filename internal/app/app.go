// Package app provides application initialization and dependency injection.
//
// App is the container that wires configuration, tracing, the database pool,
// Genkit, the knowledge stores, and the upload ingest service together. Setup
// builds everything in dependency order; Close tears it down in reverse.
package app

import (
	"context"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pdfbot/pdfbot/internal/agent"
	"github.com/pdfbot/pdfbot/internal/config"
	"github.com/pdfbot/pdfbot/internal/ingest"
	"github.com/pdfbot/pdfbot/internal/knowledge"
	"github.com/pdfbot/pdfbot/internal/log"
	"github.com/pdfbot/pdfbot/internal/session"
)

// App is the core application container.
type App struct {
	Config *config.Config
	Logger log.Logger

	Genkit   *genkit.Genkit
	Embedder ai.Embedder
	Pool     *pgxpool.Pool

	Records   *knowledge.RecordStore
	Documents *knowledge.DocumentStore
	History   *session.Store
	Ingest    *ingest.Service
	Source    *agent.Producer

	otelShutdown func(context.Context) error
}

const shutdownFlushTimeout = 5 * time.Second

// Close releases all resources in reverse initialization order: the ingest
// workers drain first since they use the pool and embedder, then the pool
// closes, then pending trace spans flush.
func (a *App) Close() error {
	if a.Logger != nil {
		a.Logger.Info("shutting down application")
	}

	if a.Ingest != nil {
		a.Ingest.Close()
	}

	if a.Pool != nil {
		a.Pool.Close()
	}

	if a.otelShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownFlushTimeout)
		defer cancel()
		if err := a.otelShutdown(ctx); err != nil {
			return err
		}
	}

	return nil
}
