package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/markdave123-py/Paperbase/internal/models"
	"github.com/markdave123-py/Paperbase/internal/services"
)

// ConversationAPI is the slice of the conversation service the HTTP layer needs.
type ConversationAPI interface {
	Create(ctx context.Context, documentID, label string) (*models.Conversation, error)
	List(ctx context.Context) ([]models.Conversation, error)
	Delete(ctx context.Context, id string) error
	Ask(ctx context.Context, conversationID, question string) (*services.AskResult, error)
}

type ConversationHandler struct {
	convs ConversationAPI
}

func NewConversationHandler(convs ConversationAPI) *ConversationHandler {
	return &ConversationHandler{convs: convs}
}

type createConversationRequest struct {
	DocumentID string `json:"document_id"`
	Label      string `json:"label"`
}

func (h *ConversationHandler) CreateConversation(w http.ResponseWriter, r *http.Request) {
	var req createConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	conv, err := h.convs.Create(r.Context(), req.DocumentID, req.Label)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, conv)
}

func (h *ConversationHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	convs, err := h.convs.List(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, convs)
}

func (h *ConversationHandler) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.convs.Delete(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"deleted_id": id})
}

type askRequest struct {
	Question string `json:"question"`
}

func (h *ConversationHandler) Ask(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	result, err := h.convs.Ask(r.Context(), chi.URLParam(r, "id"), req.Question)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
