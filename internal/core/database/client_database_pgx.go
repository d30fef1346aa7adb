package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/markdave123-py/Paperbase/internal/config"
	"github.com/markdave123-py/Paperbase/internal/core"
	"github.com/markdave123-py/Paperbase/internal/models"
)

type DatabaseClient struct {
	db *sql.DB
}

func NewDatabaseClient(ctx context.Context, cfg *config.Config) (core.DbClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database client configuration is nil")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// Sensible pool settings for an API service; adjust as needed.
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := EnsureBootstrapped(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	return &DatabaseClient{db: db}, nil
}

func (c *DatabaseClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// isUniqueViolation reports whether err is a Postgres unique-constraint error.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// Implementing the db interface for Document

func (c *DatabaseClient) CreateDocument(ctx context.Context, doc *models.Document) error {
	if doc == nil {
		return errors.New("nil document")
	}
	const q = `
		INSERT INTO documents
			(id, file_name, content_hash, content_type, word_count, loading, summarizing, created_at, updated_at)
		VALUES
			($1, $2, $3, $4, $5, $6, false, now(), now())
	`
	_, err := c.db.ExecContext(ctx, q,
		doc.ID, doc.FileName, doc.ContentHash, doc.ContentType, doc.WordCount, doc.Loading)
	if isUniqueViolation(err) {
		return fmt.Errorf("insert document %s: %w", doc.ID, core.ErrDuplicateHash)
	}
	return err
}

func (c *DatabaseClient) GetDocumentByID(ctx context.Context, id string) (*models.Document, error) {
	const q = `
		SELECT id, file_name, content_hash, content_type, word_count, loading, summary, summarizing, created_at, updated_at
		FROM documents
		WHERE id = $1
	`
	return c.scanDocument(c.db.QueryRowContext(ctx, q, id))
}

func (c *DatabaseClient) GetDocumentByHash(ctx context.Context, hash string) (*models.Document, error) {
	const q = `
		SELECT id, file_name, content_hash, content_type, word_count, loading, summary, summarizing, created_at, updated_at
		FROM documents
		WHERE content_hash = $1
	`
	return c.scanDocument(c.db.QueryRowContext(ctx, q, hash))
}

func (c *DatabaseClient) scanDocument(row *sql.Row) (*models.Document, error) {
	var d models.Document
	err := row.Scan(
		&d.ID, &d.FileName, &d.ContentHash, &d.ContentType, &d.WordCount,
		&d.Loading, &d.Summary, &d.Summarizing, &d.CreatedAt, &d.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (c *DatabaseClient) ListDocuments(ctx context.Context) ([]models.Document, error) {
	const q = `
		SELECT id, file_name, content_hash, content_type, word_count, loading, summary, summarizing, created_at, updated_at
		FROM documents
		ORDER BY created_at DESC
	`
	rows, err := c.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Document
	for rows.Next() {
		var d models.Document
		if err := rows.Scan(
			&d.ID, &d.FileName, &d.ContentHash, &d.ContentType, &d.WordCount,
			&d.Loading, &d.Summary, &d.Summarizing, &d.CreatedAt, &d.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) DeleteDocument(ctx context.Context, id string) error {
	const q = `DELETE FROM documents WHERE id = $1`
	_, err := c.db.ExecContext(ctx, q, id)
	return err
}

func (c *DatabaseClient) SetWordCount(ctx context.Context, id string, n int) error {
	const q = `
		UPDATE documents
		SET word_count = $2, updated_at = now()
		WHERE id = $1
	`
	_, err := c.db.ExecContext(ctx, q, id, n)
	return err
}

func (c *DatabaseClient) SetLoading(ctx context.Context, id string, loading bool) error {
	const q = `
		UPDATE documents
		SET loading = $2, updated_at = now()
		WHERE id = $1
	`
	_, err := c.db.ExecContext(ctx, q, id, loading)
	return err
}

// TrySetSummarizing acquires the per-document summarize flag. The WHERE
// clause makes the check-and-set a single atomic statement; RowsAffected
// tells us whether this caller won.
func (c *DatabaseClient) TrySetSummarizing(ctx context.Context, id string) (bool, error) {
	const q = `
		UPDATE documents
		SET summarizing = true, updated_at = now()
		WHERE id = $1 AND summarizing = false
	`
	res, err := c.db.ExecContext(ctx, q, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (c *DatabaseClient) ClearSummarizing(ctx context.Context, id string) error {
	const q = `
		UPDATE documents
		SET summarizing = false, updated_at = now()
		WHERE id = $1
	`
	_, err := c.db.ExecContext(ctx, q, id)
	return err
}

func (c *DatabaseClient) SetSummary(ctx context.Context, id string, summary string) error {
	const q = `
		UPDATE documents
		SET summary = $2, summarizing = false, updated_at = now()
		WHERE id = $1
	`
	_, err := c.db.ExecContext(ctx, q, id, summary)
	return err
}

// Implementing the db interface for Document Chunks

// InsertDocumentChunks inserts chunks in a single transaction.
func (c *DatabaseClient) InsertDocumentChunks(ctx context.Context, chunks []models.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}

	const q = `
		INSERT INTO document_chunks
			(id, document_id, position, text, embedding, token_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
	`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for i := range chunks {
		ch := &chunks[i]
		vec := pgvector.NewVector(ch.Embedding)
		if _, err := stmt.ExecContext(ctx,
			ch.ID, ch.DocumentID, ch.Position, ch.Text, vec, ch.TokenCount,
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (c *DatabaseClient) DeleteChunksByDocument(ctx context.Context, documentID string) error {
	const q = `DELETE FROM document_chunks WHERE document_id = $1`
	_, err := c.db.ExecContext(ctx, q, documentID)
	return err
}

// SearchDocumentChunks finds top-k similar chunks within a document for a query embedding.
func (c *DatabaseClient) SearchDocumentChunks(ctx context.Context, documentID string, queryVec []float32, limit int) ([]models.DocumentChunk, error) {
	const q = `
		SELECT id, document_id, position, text, embedding, token_count, created_at
		FROM document_chunks
		WHERE document_id = $1
		ORDER BY embedding <-> $2
		LIMIT $3
	`
	vec := pgvector.NewVector(queryVec)
	rows, err := c.db.QueryContext(ctx, q, documentID, vec, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.DocumentChunk
	for rows.Next() {
		var (
			ch  models.DocumentChunk
			emb pgvector.Vector
		)
		if err := rows.Scan(&ch.ID, &ch.DocumentID, &ch.Position, &ch.Text, &emb, &ch.TokenCount, &ch.CreatedAt); err != nil {
			return nil, err
		}
		ch.Embedding = emb.Slice()
		out = append(out, ch)
	}
	return out, rows.Err()
}

// Implementing the db interface for Conversations

func (c *DatabaseClient) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	if conv == nil {
		return errors.New("nil conversation")
	}
	const q = `
		INSERT INTO conversations (id, document_id, label, created_at)
		VALUES ($1, $2, $3, now())
	`
	_, err := c.db.ExecContext(ctx, q, conv.ID, conv.DocumentID, conv.Label)
	return err
}

func (c *DatabaseClient) GetConversationByID(ctx context.Context, id string) (*models.Conversation, error) {
	const q = `
		SELECT id, document_id, label, created_at
		FROM conversations
		WHERE id = $1
	`
	var conv models.Conversation
	err := c.db.QueryRowContext(ctx, q, id).Scan(&conv.ID, &conv.DocumentID, &conv.Label, &conv.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

func (c *DatabaseClient) ListConversations(ctx context.Context) ([]models.Conversation, error) {
	const q = `
		SELECT id, document_id, label, created_at
		FROM conversations
		ORDER BY created_at DESC
	`
	return c.queryConversations(ctx, q)
}

func (c *DatabaseClient) ListConversationsByDocument(ctx context.Context, documentID string) ([]models.Conversation, error) {
	const q = `
		SELECT id, document_id, label, created_at
		FROM conversations
		WHERE document_id = $1
		ORDER BY created_at DESC
	`
	return c.queryConversations(ctx, q, documentID)
}

func (c *DatabaseClient) queryConversations(ctx context.Context, q string, args ...any) ([]models.Conversation, error) {
	rows, err := c.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Conversation
	for rows.Next() {
		var conv models.Conversation
		if err := rows.Scan(&conv.ID, &conv.DocumentID, &conv.Label, &conv.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, conv)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) DeleteConversation(ctx context.Context, id string) error {
	const q = `DELETE FROM conversations WHERE id = $1`
	_, err := c.db.ExecContext(ctx, q, id)
	return err
}
