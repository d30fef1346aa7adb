package models

import (
	"time"
)

// WordCountPending is the sentinel stored at creation time, before the
// background count task has run. A failed count is stored as 0.
const WordCountPending = -1

// Document represents one logical uploaded document. Two uploads with the
// same bytes resolve to the same Document via ContentHash.
type Document struct {
	ID          string    `db:"id" json:"id"`
	FileName    string    `db:"file_name" json:"filename"`
	ContentHash string    `db:"content_hash" json:"-"` // never exposed over the API
	ContentType string    `db:"content_type" json:"content_type"`
	WordCount   int       `db:"word_count" json:"word_count"`
	Loading     bool      `db:"loading" json:"loading"`
	Summary     *string   `db:"summary" json:"summary,omitempty"`
	Summarizing bool      `db:"summarizing" json:"summarizing"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// DocumentChunk represents one text chunk from a document, tagged with the
// owning document's ID and stored with its pgvector embedding.
type DocumentChunk struct {
	ID         string    `db:"id" json:"id"`
	DocumentID string    `db:"document_id" json:"document_id"`
	Text       string    `db:"text" json:"text"`
	Embedding  []float32 `db:"embedding" json:"-"`
	Position   int       `db:"position" json:"position"`
	TokenCount int       `db:"token_count" json:"token_count"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Conversation is a chat session pinned to one document. A document cannot
// be deleted while conversations still reference it.
type Conversation struct {
	ID         string    `db:"id" json:"id"`
	DocumentID string    `db:"document_id" json:"document_id"`
	Label      string    `db:"label" json:"label"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// ConversationRef is the short form returned when a delete is blocked.
type ConversationRef struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Ref returns the short reference form used in delete-conflict responses.
func (c *Conversation) Ref() ConversationRef {
	return ConversationRef{ID: c.ID, Label: c.Label}
}
