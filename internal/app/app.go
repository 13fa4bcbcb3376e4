package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/pulpit-ai/pulpit/internal/chat"
	"github.com/pulpit-ai/pulpit/internal/config"
	"github.com/pulpit-ai/pulpit/internal/core"
	db "github.com/pulpit-ai/pulpit/internal/core/database"
	"github.com/pulpit-ai/pulpit/internal/core/extract"
	"github.com/pulpit-ai/pulpit/internal/core/llm"
	objectclient "github.com/pulpit-ai/pulpit/internal/core/object-client"
	"github.com/pulpit-ai/pulpit/internal/sermon"
)

// App owns the long-lived clients and the HTTP server built on top of them.
type App struct {
	DBClient     core.DbClient
	ObjectClient core.ObjectClient
	Pipeline     *sermon.Pipeline
	ChatRouter   *chat.Router
	Server       *Server
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	dbClient, err := db.NewDatabaseClient(appCtx, cfg)
	if err != nil {
		return nil, err
	}
	log.Println("Database initialized and ready.")

	objClient, err := objectclient.NewS3Client(appCtx, cfg)
	if err != nil {
		return nil, err
	}
	log.Println("Object client initialized and ready.")

	embedder, err := llm.NewGeminiEmbedder(appCtx, cfg.AIAPIKey, cfg.EmbedModel)
	if err != nil {
		return nil, fmt.Errorf("couldn't initialize the embedder, %w", err)
	}

	genLLM, err := llm.NewGeminiLLM(appCtx, cfg.AIAPIKey, cfg.GenModel)
	if err != nil {
		return nil, fmt.Errorf("couldn't initialize the generator, %w", err)
	}

	// A cheaper model carries the short yes/no style calls: content
	// validation, context classification, function routing.
	classifierLLM, err := llm.NewGeminiLLM(appCtx, cfg.AIAPIKey, cfg.ClassifierModel)
	if err != nil {
		return nil, fmt.Errorf("couldn't initialize the classifier model, %w", err)
	}

	pipeline := sermon.NewPipeline(
		dbClient,
		objClient,
		embedder,
		extract.NewPDFExtractor(),
		sermon.NewClassifier(genLLM),
		sermon.NewValidator(classifierLLM),
		sermon.PipelineConfig{Bucket: cfg.BucketName},
	)

	chatRouter := chat.NewRouter(dbClient, embedder, classifierLLM, genLLM)

	server := NewServer(cfg, dbClient, objClient, pipeline, chatRouter)

	return &App{
		DBClient:     dbClient,
		ObjectClient: objClient,
		Pipeline:     pipeline,
		ChatRouter:   chatRouter,
		Server:       server,
	}, nil
}

func (a *App) Close() {
	if a.DBClient != nil {
		_ = a.DBClient.Close()
	}
}
