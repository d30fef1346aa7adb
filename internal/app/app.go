package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/markdave123-py/Paperbase/internal/config"
	db "github.com/markdave123-py/Paperbase/internal/core/database"
	"github.com/markdave123-py/Paperbase/internal/core/extractor"
	"github.com/markdave123-py/Paperbase/internal/core/llm"
	objectclient "github.com/markdave123-py/Paperbase/internal/core/object-client"
	"github.com/markdave123-py/Paperbase/internal/services"
)

type App struct {
	DBClient     *db.DatabaseClient
	ObjectClient *objectclient.S3Client
	Documents    *services.DocumentService
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

	geminiEmbedder, err := llm.NewGeminiEmbedder(appCtx, cfg.AIAPIKey, cfg.EmbedModel)
	if err != nil {
		return nil, fmt.Errorf("couldn't initialize the embedder, %w", err)
	}

	llmProvider, err := llm.NewGeminiLLM(appCtx, cfg.AIAPIKey, cfg.GenModel)
	if err != nil {
		return nil, fmt.Errorf("couldn't initialize the llm provider, %w", err)
	}

	docExtractor := extractor.NewDocconvExtractor(false, extractor.ExtractConfig{
		TargetTokens:  cfg.TargetTokens,
		OverlapTokens: cfg.OverlapTokens,
	})

	docService := services.NewDocumentService(
		dbClient, objClient, docExtractor, geminiEmbedder, llmProvider,
		cfg.BucketName, time.Duration(cfg.SummarizeTimeout)*time.Second,
	)
	convService := services.NewConversationService(dbClient, geminiEmbedder, llmProvider)

	server := NewServer(cfg, docService, convService)

	return &App{
		DBClient:     dbClient.(*db.DatabaseClient),
		ObjectClient: objClient.(*objectclient.S3Client),
		Documents:    docService,
		Server:       server,
	}, nil
}

func (a *App) Close() {
	// Let dispatched derivation tasks reach their terminal flag updates.
	if a.Documents != nil {
		a.Documents.Wait()
	}
	if a.DBClient != nil {
		_ = a.DBClient.Close()
	}
}
