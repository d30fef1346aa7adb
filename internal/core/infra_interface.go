package core

import (
	"context"
	"errors"

	"github.com/markdave123-py/Paperbase/internal/models"
)

// ErrDuplicateHash is returned by CreateDocument when the unique index on
// content_hash rejects the insert. The caller resolves it as a dedup hit:
// two simultaneous first-time uploads of the same bytes can both miss the
// lookup, and the index is the final arbiter.
var ErrDuplicateHash = errors.New("document with this content hash already exists")

// DbClient defines all persistence operations the services need.
// It abstracts Postgres/pgvector so higher layers never depend on a specific DB.
// Lookups return (nil, nil) when the row does not exist.
type DbClient interface {
	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocumentByID(ctx context.Context, id string) (*models.Document, error)
	GetDocumentByHash(ctx context.Context, hash string) (*models.Document, error)
	ListDocuments(ctx context.Context) ([]models.Document, error)
	DeleteDocument(ctx context.Context, id string) error

	// Single-field updates used by the background tasks and the summarize
	// gate. Each is one atomic UPDATE scoped to one row.
	SetWordCount(ctx context.Context, id string, n int) error
	SetLoading(ctx context.Context, id string, loading bool) error

	// TrySetSummarizing flips summarizing to true only if it is currently
	// false, reporting whether this caller won the flag.
	TrySetSummarizing(ctx context.Context, id string) (bool, error)
	ClearSummarizing(ctx context.Context, id string) error
	// SetSummary stores the summary and clears summarizing in one update.
	SetSummary(ctx context.Context, id string, summary string) error

	InsertDocumentChunks(ctx context.Context, chunks []models.DocumentChunk) error
	DeleteChunksByDocument(ctx context.Context, documentID string) error
	SearchDocumentChunks(ctx context.Context, documentID string, queryVec []float32, limit int) ([]models.DocumentChunk, error)

	CreateConversation(ctx context.Context, conv *models.Conversation) error
	GetConversationByID(ctx context.Context, id string) (*models.Conversation, error)
	ListConversations(ctx context.Context) ([]models.Conversation, error)
	ListConversationsByDocument(ctx context.Context, documentID string) ([]models.Conversation, error)
	DeleteConversation(ctx context.Context, id string) error

	Close() error
}

// ObjectClient defines interactions with S3 or any object storage.
// It's abstract so you can replace AWS with MinIO, GCP, etc. easily.
type ObjectClient interface {
	UploadFile(ctx context.Context, bucket, key string, data []byte, contentType string) (url string, err error)
	GetFile(ctx context.Context, bucket, key string) ([]byte, error)
	FileExists(ctx context.Context, bucket, key string) (bool, error)
	// DeleteFile tolerates an already-missing key.
	DeleteFile(ctx context.Context, bucket, key string) error
}

// TextChunk is one fragment of extracted document text, positioned and
// token-counted so it can be embedded and indexed.
type TextChunk struct {
	Pos      int
	Text     string
	TokenCnt int
}

// DocumentExtractor turns raw document bytes into derived text artifacts.
// The contentType hint helps it choose the right parsing strategy.
type DocumentExtractor interface {
	WordCount(ctx context.Context, data []byte, contentType string) (int, error)
	Extract(ctx context.Context, data []byte, contentType string) ([]TextChunk, error)
}

type EmbeddingProvider interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

type LLMProvider interface {
	Generate(ctx context.Context, systemPrompt string, userPrompt string) (string, error)
}

// Summarizer produces a natural-language summary of a document from its raw
// bytes. It is a remote call; callers bound it with a context timeout.
type Summarizer interface {
	Summarize(ctx context.Context, data []byte, contentType string) (string, error)
}
