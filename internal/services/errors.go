package services

import (
	"errors"
	"fmt"

	"github.com/markdave123-py/Paperbase/internal/models"
)

// Validation errors: surfaced immediately, no state mutation.
var (
	ErrInvalidID       = errors.New("invalid document id format")
	ErrEmptyFile       = errors.New("uploaded file is empty")
	ErrUnsupportedType = errors.New("only PDF files are allowed")
	ErrMissingLabel    = errors.New("conversation label is required")
	ErrMissingQuestion = errors.New("question is required")
)

// Not-found errors.
var (
	ErrDocumentNotFound     = errors.New("document not found")
	ErrFileNotFound         = errors.New("document file not found on server")
	ErrConversationNotFound = errors.New("conversation not found")
)

// ErrSummarizeInFlight signals that another summarization for the same
// document is still running; the caller should retry later.
var ErrSummarizeInFlight = errors.New("document is already being summarized")

// DeleteConflictError blocks a delete while conversations still reference
// the document. It carries the referencers so the caller can resolve them.
type DeleteConflictError struct {
	Conversations []models.ConversationRef
}

func (e *DeleteConflictError) Error() string {
	return fmt.Sprintf("document is linked to %d existing conversation(s) and cannot be deleted", len(e.Conversations))
}

// IsValidation reports whether err belongs to the validation class.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrEmptyFile) ||
		errors.Is(err, ErrUnsupportedType) ||
		errors.Is(err, ErrMissingLabel) ||
		errors.Is(err, ErrMissingQuestion)
}

// IsNotFound reports whether err belongs to the not-found class.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrDocumentNotFound) ||
		errors.Is(err, ErrFileNotFound) ||
		errors.Is(err, ErrConversationNotFound)
}
