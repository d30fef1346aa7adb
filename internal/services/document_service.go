package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/markdave123-py/Paperbase/internal/core"
	"github.com/markdave123-py/Paperbase/internal/models"
)

const (
	// taskTimeout bounds one background derivation run. The tasks outlive
	// the upload request, so they run on their own context.
	taskTimeout = 5 * time.Minute

	// embedBatchSize is how many chunks are embedded and written per batch.
	embedBatchSize = 16
)

// UploadResult is the response to an upload: the document id plus whether
// the content already existed (dedup hit).
type UploadResult struct {
	ID       string `json:"id"`
	FileName string `json:"filename"`
	Existed  bool   `json:"existed"`
}

type SummarizeResult struct {
	DocumentID string `json:"document_id"`
	Summary    string `json:"summary"`
	Cached     bool   `json:"cached"`
}

type DeleteResult struct {
	DeletedID string `json:"deleted_id"`
}

// DocumentService coordinates the document lifecycle: hashing and dedup on
// upload, the two background derivation tasks (word count, vectorization),
// the single-flight summarization gate, and the guarded cascading delete.
type DocumentService struct {
	db         core.DbClient
	storage    core.ObjectClient
	extractor  core.DocumentExtractor
	embedder   core.EmbeddingProvider
	summarizer core.Summarizer

	bucket           string
	summarizeTimeout time.Duration

	tasks sync.WaitGroup
}

func NewDocumentService(
	db core.DbClient,
	storage core.ObjectClient,
	extractor core.DocumentExtractor,
	embedder core.EmbeddingProvider,
	summarizer core.Summarizer,
	bucket string,
	summarizeTimeout time.Duration,
) *DocumentService {
	if summarizeTimeout <= 0 {
		summarizeTimeout = 60 * time.Second
	}
	return &DocumentService{
		db:               db,
		storage:          storage,
		extractor:        extractor,
		embedder:         embedder,
		summarizer:       summarizer,
		bucket:           bucket,
		summarizeTimeout: summarizeTimeout,
	}
}

// Wait blocks until all dispatched background tasks have finished. Used on
// shutdown so in-flight derivation work can reach its terminal flag update.
func (s *DocumentService) Wait() {
	s.tasks.Wait()
}

// Upload ingests raw bytes: dedup by content hash, create the record, persist
// the blob, then dispatch word-count and vectorization to run in background.
// Identical bytes always resolve to the existing record.
func (s *DocumentService) Upload(ctx context.Context, filename, contentType string, data []byte) (*UploadResult, error) {
	if !strings.EqualFold(filepath.Ext(filename), ".pdf") {
		return nil, ErrUnsupportedType
	}
	if len(data) == 0 {
		return nil, ErrEmptyFile
	}
	if contentType == "" {
		contentType = "application/pdf"
	}

	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])

	existing, err := s.db.GetDocumentByHash(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("dedup lookup: %w", err)
	}
	if existing != nil {
		return &UploadResult{ID: existing.ID, FileName: existing.FileName, Existed: true}, nil
	}

	doc := &models.Document{
		ID:          uuid.NewString(),
		FileName:    filepath.Base(filename),
		ContentHash: hash,
		ContentType: contentType,
		WordCount:   models.WordCountPending,
		Loading:     true,
	}

	if err := s.db.CreateDocument(ctx, doc); err != nil {
		// Two first-time uploads of the same bytes can both miss the lookup
		// above; the unique index on content_hash picks the winner and the
		// loser resolves the insert as a dedup hit.
		if errors.Is(err, core.ErrDuplicateHash) {
			winner, lookupErr := s.db.GetDocumentByHash(ctx, hash)
			if lookupErr != nil || winner == nil {
				return nil, fmt.Errorf("dedup lookup after insert conflict: %w", lookupErr)
			}
			return &UploadResult{ID: winner.ID, FileName: winner.FileName, Existed: true}, nil
		}
		return nil, fmt.Errorf("create document: %w", err)
	}

	key := s.objectKey(doc.ID, doc.FileName)
	if _, err := s.storage.UploadFile(ctx, s.bucket, key, data, contentType); err != nil {
		// Don't leave a record whose blob never made it to storage.
		if delErr := s.db.DeleteDocument(ctx, doc.ID); delErr != nil {
			log.Printf("upload: orphaned record %s after failed blob write: %v", doc.ID, delErr)
		}
		return nil, fmt.Errorf("store file: %w", err)
	}

	s.tasks.Add(2)
	go func() {
		defer s.tasks.Done()
		s.runWordCount(doc.ID, key, contentType)
	}()
	go func() {
		defer s.tasks.Done()
		s.runVectorize(doc.ID, key, contentType)
	}()

	return &UploadResult{ID: doc.ID, FileName: doc.FileName, Existed: false}, nil
}

// runWordCount computes and stores the document's word count. The upload
// request has already returned, so both the blob and the record are
// re-checked; absence means the document was deleted and the task no-ops.
// Extraction failure degrades to a stored count of 0.
func (s *DocumentService) runWordCount(docID, key, contentType string) {
	ctx, cancel := context.WithTimeout(context.Background(), taskTimeout)
	defer cancel()

	if !s.stillIngestable(ctx, "word count", docID, key) {
		return
	}

	wc := 0
	data, err := s.storage.GetFile(ctx, s.bucket, key)
	if err != nil {
		log.Printf("word count: read file for %s: %v", docID, err)
	} else if n, err := s.extractor.WordCount(ctx, data, contentType); err != nil {
		log.Printf("word count failed for %s: %v", docID, err)
	} else {
		wc = n
	}

	if err := s.db.SetWordCount(ctx, docID, wc); err != nil {
		log.Printf("word count: update %s: %v", docID, err)
	}
}

// runVectorize extracts the document text, embeds the chunks and writes them
// to the chunk index. On success, failure or panic the record's loading flag
// is cleared at the end, so readers never see a document stuck in loading.
func (s *DocumentService) runVectorize(docID, key, contentType string) {
	ctx, cancel := context.WithTimeout(context.Background(), taskTimeout)
	defer cancel()

	if !s.stillIngestable(ctx, "vectorize", docID, key) {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			log.Printf("vectorize panicked for %s: %v", docID, r)
		}
		// Fresh context: the task context may already be cancelled or
		// expired, and the terminal flag update must still go through.
		clearCtx, clearCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer clearCancel()
		if err := s.db.SetLoading(clearCtx, docID, false); err != nil {
			log.Printf("vectorize: clear loading for %s: %v", docID, err)
		}
	}()

	data, err := s.storage.GetFile(ctx, s.bucket, key)
	if err != nil {
		log.Printf("vectorize: read file for %s: %v", docID, err)
		return
	}

	chunks, err := s.extractor.Extract(ctx, data, contentType)
	if err != nil {
		log.Printf("vectorization failed for %s: %v", docID, err)
		return
	}

	if err := s.embedAndPersist(ctx, docID, chunks); err != nil {
		log.Printf("vectorization failed for %s: %v", docID, err)
	}
}

// stillIngestable re-checks the run-time preconditions shared by both
// background tasks. A missing blob or record is a silent abort, not an
// error: the document was deleted before the task ran.
func (s *DocumentService) stillIngestable(ctx context.Context, task, docID, key string) bool {
	ok, err := s.storage.FileExists(ctx, s.bucket, key)
	if err != nil {
		log.Printf("%s: file check for %s: %v", task, docID, err)
		return false
	}
	if !ok {
		log.Printf("%s aborted: file %s no longer exists", task, key)
		return false
	}

	doc, err := s.db.GetDocumentByID(ctx, docID)
	if err != nil {
		log.Printf("%s: record check for %s: %v", task, docID, err)
		return false
	}
	if doc == nil {
		log.Printf("%s aborted: document record %s already deleted", task, docID)
		return false
	}
	return true
}

// embedAndPersist embeds chunk texts in batches and writes them to the chunk
// index tagged with the owning document id.
func (s *DocumentService) embedAndPersist(ctx context.Context, docID string, chunks []core.TextChunk) error {
	for start := 0; start < len(chunks); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i := range batch {
			texts[i] = batch[i].Text
		}

		vecs, err := s.embedder.EmbedTexts(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed: %w", err)
		}
		if len(vecs) != len(batch) {
			return fmt.Errorf("embed size mismatch: got %d want %d", len(vecs), len(batch))
		}

		rows := make([]models.DocumentChunk, len(batch))
		for i := range batch {
			rows[i] = models.DocumentChunk{
				ID:         uuid.NewString(),
				DocumentID: docID,
				Text:       batch[i].Text,
				Embedding:  vecs[i],
				Position:   batch[i].Pos,
				TokenCount: batch[i].TokenCnt,
			}
		}
		if err := s.db.InsertDocumentChunks(ctx, rows); err != nil {
			return fmt.Errorf("insert chunks: %w", err)
		}
	}
	return nil
}

// Summarize returns the document summary, producing it on demand. A stored
// summary is served from cache and never recomputed. At most one remote
// summarization runs per document at a time; the summarizing flag in the
// record is the lock.
func (s *DocumentService) Summarize(ctx context.Context, id string) (*SummarizeResult, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrInvalidID
	}

	doc, err := s.db.GetDocumentByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	if doc == nil {
		return nil, ErrDocumentNotFound
	}

	if doc.Summary != nil && *doc.Summary != "" {
		return &SummarizeResult{DocumentID: id, Summary: *doc.Summary, Cached: true}, nil
	}

	acquired, err := s.db.TrySetSummarizing(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("acquire summarize flag: %w", err)
	}
	if !acquired {
		return nil, ErrSummarizeInFlight
	}

	key := s.objectKey(doc.ID, doc.FileName)
	ok, err := s.storage.FileExists(ctx, s.bucket, key)
	if err != nil {
		s.clearSummarizing(id)
		return nil, fmt.Errorf("file check: %w", err)
	}
	if !ok {
		s.clearSummarizing(id)
		return nil, ErrFileNotFound
	}

	data, err := s.storage.GetFile(ctx, s.bucket, key)
	if err != nil {
		s.clearSummarizing(id)
		return nil, fmt.Errorf("read file: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.summarizeTimeout)
	defer cancel()

	summary, err := s.summarizer.Summarize(callCtx, data, doc.ContentType)
	if err != nil {
		// Clear the flag so a later request can retry; no summary is stored.
		s.clearSummarizing(id)
		return nil, fmt.Errorf("summarize document: %w", err)
	}

	if err := s.db.SetSummary(ctx, id, summary); err != nil {
		s.clearSummarizing(id)
		return nil, fmt.Errorf("store summary: %w", err)
	}

	return &SummarizeResult{DocumentID: id, Summary: summary, Cached: false}, nil
}

// clearSummarizing releases the single-flight flag on a fresh context, so it
// works even when the request context is already cancelled.
func (s *DocumentService) clearSummarizing(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.db.ClearSummarizing(ctx, id); err != nil {
		log.Printf("summarize: clear flag for %s: %v", id, err)
	}
}

// Delete removes the document, its blob and its indexed chunks, unless any
// conversation still references it. Cleanup order is blob, chunks, record:
// a crash mid-delete leaves an orphaned record that can simply be deleted
// again, never a dangling reference.
func (s *DocumentService) Delete(ctx context.Context, id string) (*DeleteResult, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrInvalidID
	}

	doc, err := s.db.GetDocumentByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	if doc == nil {
		return nil, ErrDocumentNotFound
	}

	convs, err := s.db.ListConversationsByDocument(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("reference check: %w", err)
	}
	if len(convs) > 0 {
		refs := make([]models.ConversationRef, len(convs))
		for i := range convs {
			refs[i] = convs[i].Ref()
		}
		return nil, &DeleteConflictError{Conversations: refs}
	}

	key := s.objectKey(doc.ID, doc.FileName)
	if err := s.storage.DeleteFile(ctx, s.bucket, key); err != nil {
		return nil, fmt.Errorf("delete file: %w", err)
	}
	if err := s.db.DeleteChunksByDocument(ctx, id); err != nil {
		return nil, fmt.Errorf("delete chunks: %w", err)
	}
	if err := s.db.DeleteDocument(ctx, id); err != nil {
		return nil, fmt.Errorf("delete record: %w", err)
	}

	return &DeleteResult{DeletedID: id}, nil
}

// Get returns one document record, or ErrDocumentNotFound.
func (s *DocumentService) Get(ctx context.Context, id string) (*models.Document, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrInvalidID
	}
	doc, err := s.db.GetDocumentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, ErrDocumentNotFound
	}
	return doc, nil
}

func (s *DocumentService) List(ctx context.Context) ([]models.Document, error) {
	return s.db.ListDocuments(ctx)
}

// Download returns the stored raw bytes along with the content type and
// display filename.
func (s *DocumentService) Download(ctx context.Context, id string) ([]byte, string, string, error) {
	doc, err := s.Get(ctx, id)
	if err != nil {
		return nil, "", "", err
	}
	key := s.objectKey(doc.ID, doc.FileName)
	ok, err := s.storage.FileExists(ctx, s.bucket, key)
	if err != nil {
		return nil, "", "", fmt.Errorf("file check: %w", err)
	}
	if !ok {
		return nil, "", "", ErrFileNotFound
	}
	data, err := s.storage.GetFile(ctx, s.bucket, key)
	if err != nil {
		return nil, "", "", fmt.Errorf("read file: %w", err)
	}
	return data, doc.ContentType, doc.FileName, nil
}

// objectKey creates a consistent storage key layout, derived from the
// document id so the blob path is deterministic.
func (s *DocumentService) objectKey(docID, filename string) string {
	filename = strings.TrimSpace(filename)
	filename = strings.ReplaceAll(filename, " ", "_")
	return path.Join("documents", docID, filename)
}
