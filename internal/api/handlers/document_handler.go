package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/markdave123-py/Paperbase/internal/models"
	"github.com/markdave123-py/Paperbase/internal/services"
)

// DocumentAPI is the slice of the document service the HTTP layer needs.
type DocumentAPI interface {
	Upload(ctx context.Context, filename, contentType string, data []byte) (*services.UploadResult, error)
	Get(ctx context.Context, id string) (*models.Document, error)
	List(ctx context.Context) ([]models.Document, error)
	Delete(ctx context.Context, id string) (*services.DeleteResult, error)
	Summarize(ctx context.Context, id string) (*services.SummarizeResult, error)
	Download(ctx context.Context, id string) (data []byte, contentType, filename string, err error)
}

type DocumentHandler struct {
	docs DocumentAPI
}

func NewDocumentHandler(docs DocumentAPI) *DocumentHandler {
	return &DocumentHandler{docs: docs}
}

// UploadDocument handles file upload, dedup, and background processing dispatch.
func (h *DocumentHandler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(52 << 20); err != nil {
		http.Error(w, "invalid multipart form", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "no file part in the request", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "failed to read file", http.StatusBadRequest)
		return
	}

	result, err := h.docs.Upload(r.Context(), header.Filename, header.Header.Get("Content-Type"), data)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

func (h *DocumentHandler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := h.docs.List(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

func (h *DocumentHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := h.docs.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// DeleteDocument cascades blob, chunk and record removal, or responds 409
// listing the conversations that still reference the document.
func (h *DocumentHandler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	result, err := h.docs.Delete(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		var conflict *services.DeleteConflictError
		if errors.As(err, &conflict) {
			writeJSON(w, http.StatusConflict, map[string]any{
				"error":                "This document is linked to existing conversation(s) and cannot be deleted.",
				"linked_conversations": conflict.Conversations,
			})
			return
		}
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *DocumentHandler) SummarizeDocument(w http.ResponseWriter, r *http.Request) {
	result, err := h.docs.Summarize(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// DownloadDocument streams the stored raw bytes.
func (h *DocumentHandler) DownloadDocument(w http.ResponseWriter, r *http.Request) {
	data, contentType, filename, err := h.docs.Download(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeServiceError maps the service error taxonomy onto HTTP status codes.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case services.IsValidation(err):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case services.IsNotFound(err):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, services.ErrSummarizeInFlight):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}
