package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pdfbot/pdfbot/db"
	"github.com/pdfbot/pdfbot/internal/agent"
	"github.com/pdfbot/pdfbot/internal/config"
	"github.com/pdfbot/pdfbot/internal/ingest"
	"github.com/pdfbot/pdfbot/internal/knowledge"
	"github.com/pdfbot/pdfbot/internal/log"
	"github.com/pdfbot/pdfbot/internal/observability"
	"github.com/pdfbot/pdfbot/internal/session"
)

// Setup creates and initializes the application.
// Returns an App with embedded cleanup. Call Close() to release.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (_ *App, retErr error) {
	a := &App{Config: cfg, Logger: logger}

	// On error, clean up everything already initialized.
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	// Tracing goes first so genkit.Init spans are captured.
	a.otelShutdown = observability.Setup(ctx, observability.Config{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: cfg.ServiceName,
		Environment: cfg.Environment,
	}, logger)

	pool, err := provideDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Pool = pool

	g, err := provideGenkit(ctx)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	embedder := googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	if embedder == nil {
		return nil, fmt.Errorf("embedder %q not found", cfg.EmbedderModel)
	}
	a.Embedder = embedder

	a.Records = knowledge.NewRecordStore(pool)
	a.Documents = knowledge.NewDocumentStore(pool, embedder, logger.With("component", "documents"))
	a.History = session.NewStore(pool, logger.With("component", "session"))

	pipeline := knowledge.NewPipeline(a.Records, a.Documents, &knowledge.PDFExtractor{},
		logger.With("component", "pipeline"))

	svc, err := ingest.NewService(ingest.Config{
		Dir:      cfg.UploadDir,
		Workers:  cfg.IngestWorkers,
		Store:    a.Records,
		Pipeline: pipeline,
		Logger:   logger.With("component", "ingest"),
	})
	if err != nil {
		return nil, fmt.Errorf("creating ingest service: %w", err)
	}
	a.Ingest = svc

	a.Source = agent.NewProducer(agent.ProducerConfig{
		Genkit:    g,
		ModelName: cfg.FullModelName(),
		Retriever: a.Documents,
		History:   a.History,
		Logger:    logger.With("component", "agent"),
	})

	return a, nil
}

// provideGenkit initializes Genkit with the Google AI plugin. The plugin
// reads GEMINI_API_KEY from the environment; config validation has already
// confirmed it is set.
func provideGenkit(ctx context.Context) (*genkit.Genkit, error) {
	g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
	if g == nil {
		return nil, errors.New("initializing genkit with googleai provider")
	}
	return g, nil
}

// provideDBPool runs migrations and creates a PostgreSQL connection pool.
func provideDBPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, nil
}
