package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/Paperbase/internal/models"
)

func newConversationEnv(t *testing.T) (*testEnv, *ConversationService, *models.Document) {
	t.Helper()
	env := newTestEnv()
	doc := env.seedDocument(t, []byte("conversation target"))
	svc := NewConversationService(env.db, env.embedder, &fakeLLM{answer: "because the report says so"})
	return env, svc, doc
}

func TestConversationCreate(t *testing.T) {
	_, svc, doc := newConversationEnv(t)

	conv, err := svc.Create(context.Background(), doc.ID, "  quarterly review  ")
	require.NoError(t, err)
	assert.Equal(t, doc.ID, conv.DocumentID)
	assert.Equal(t, "quarterly review", conv.Label)
	require.NotEmpty(t, conv.ID)
}

func TestConversationCreate_Validation(t *testing.T) {
	_, svc, doc := newConversationEnv(t)

	_, err := svc.Create(context.Background(), "bogus", "label")
	assert.ErrorIs(t, err, ErrInvalidID)

	_, err = svc.Create(context.Background(), doc.ID, "   ")
	assert.ErrorIs(t, err, ErrMissingLabel)

	_, err = svc.Create(context.Background(), uuid.NewString(), "label")
	assert.ErrorIs(t, err, ErrDocumentNotFound)
}

func TestConversationBlocksDocumentDelete(t *testing.T) {
	env, svc, doc := newConversationEnv(t)

	conv, err := svc.Create(context.Background(), doc.ID, "pinned")
	require.NoError(t, err)

	_, err = env.svc.Delete(context.Background(), doc.ID)
	var conflict *DeleteConflictError
	require.ErrorAs(t, err, &conflict)

	// Removing the conversation unblocks the document delete.
	require.NoError(t, svc.Delete(context.Background(), conv.ID))
	_, err = env.svc.Delete(context.Background(), doc.ID)
	require.NoError(t, err)
}

func TestConversationDelete_NotFound(t *testing.T) {
	_, svc, _ := newConversationEnv(t)

	err := svc.Delete(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func TestConversationAsk(t *testing.T) {
	env, svc, doc := newConversationEnv(t)
	require.NoError(t, env.db.InsertDocumentChunks(context.Background(), []models.DocumentChunk{
		{ID: uuid.NewString(), DocumentID: doc.ID, Text: "revenue grew 12%", Position: 0},
	}))

	conv, err := svc.Create(context.Background(), doc.ID, "review")
	require.NoError(t, err)

	result, err := svc.Ask(context.Background(), conv.ID, "why did revenue grow?")
	require.NoError(t, err)
	assert.Equal(t, conv.ID, result.ConversationID)
	assert.Equal(t, "because the report says so", result.Answer)
}

func TestConversationAsk_Validation(t *testing.T) {
	_, svc, doc := newConversationEnv(t)
	conv, err := svc.Create(context.Background(), doc.ID, "review")
	require.NoError(t, err)

	_, err = svc.Ask(context.Background(), conv.ID, "   ")
	assert.ErrorIs(t, err, ErrMissingQuestion)

	_, err = svc.Ask(context.Background(), uuid.NewString(), "anything")
	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func TestConversationAsk_EmbedFailure(t *testing.T) {
	env, svc, doc := newConversationEnv(t)
	conv, err := svc.Create(context.Background(), doc.ID, "review")
	require.NoError(t, err)

	env.embedder.err = errors.New("embedding down")
	_, err = svc.Ask(context.Background(), conv.ID, "anything")
	require.Error(t, err)
}
