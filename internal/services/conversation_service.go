package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/markdave123-py/Paperbase/internal/core"
	"github.com/markdave123-py/Paperbase/internal/models"
)

// topKChunks is how many similar chunks ground an answer.
const topKChunks = 5

const answerSystemPrompt = "You answer questions about a single document. " +
	"Use only the provided context; if the context does not contain the answer, say so."

type AskResult struct {
	ConversationID string `json:"conversation_id"`
	Answer         string `json:"answer"`
}

// ConversationService manages the chat sessions that reference documents and
// answers questions grounded on a document's indexed chunks.
type ConversationService struct {
	db       core.DbClient
	embedder core.EmbeddingProvider
	llm      core.LLMProvider
}

func NewConversationService(db core.DbClient, embedder core.EmbeddingProvider, llm core.LLMProvider) *ConversationService {
	return &ConversationService{db: db, embedder: embedder, llm: llm}
}

// Create starts a conversation pinned to an existing document. While the
// conversation exists, the document cannot be deleted.
func (s *ConversationService) Create(ctx context.Context, documentID, label string) (*models.Conversation, error) {
	if _, err := uuid.Parse(documentID); err != nil {
		return nil, ErrInvalidID
	}
	if strings.TrimSpace(label) == "" {
		return nil, ErrMissingLabel
	}

	doc, err := s.db.GetDocumentByID(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	if doc == nil {
		return nil, ErrDocumentNotFound
	}

	conv := &models.Conversation{
		ID:         uuid.NewString(),
		DocumentID: documentID,
		Label:      strings.TrimSpace(label),
	}
	if err := s.db.CreateConversation(ctx, conv); err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return conv, nil
}

func (s *ConversationService) List(ctx context.Context) ([]models.Conversation, error) {
	return s.db.ListConversations(ctx)
}

func (s *ConversationService) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrInvalidID
	}
	conv, err := s.db.GetConversationByID(ctx, id)
	if err != nil {
		return fmt.Errorf("get conversation: %w", err)
	}
	if conv == nil {
		return ErrConversationNotFound
	}
	return s.db.DeleteConversation(ctx, id)
}

// Ask answers a question inside a conversation: embed the question, fetch the
// most similar chunks of the pinned document, and generate a grounded answer.
func (s *ConversationService) Ask(ctx context.Context, conversationID, question string) (*AskResult, error) {
	if _, err := uuid.Parse(conversationID); err != nil {
		return nil, ErrInvalidID
	}
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrMissingQuestion
	}

	conv, err := s.db.GetConversationByID(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	if conv == nil {
		return nil, ErrConversationNotFound
	}

	vecs, err := s.embedder.EmbedTexts(ctx, []string{question})
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embed question: got %d vectors", len(vecs))
	}

	chunks, err := s.db.SearchDocumentChunks(ctx, conv.DocumentID, vecs[0], topKChunks)
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}

	var b strings.Builder
	b.WriteString("Context:\n")
	for _, ch := range chunks {
		b.WriteString(ch.Text)
		b.WriteString("\n---\n")
	}
	b.WriteString("\nQuestion: ")
	b.WriteString(question)

	answer, err := s.llm.Generate(ctx, answerSystemPrompt, b.String())
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}

	return &AskResult{ConversationID: conversationID, Answer: answer}, nil
}
