package services

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/markdave123-py/Paperbase/internal/core"
	"github.com/markdave123-py/Paperbase/internal/models"
)

// In-memory implementations of the infra interfaces, with call counters so
// tests can assert how often remote work actually happened.

type fakeDB struct {
	mu      sync.Mutex
	docs    map[string]*models.Document
	chunks  map[string][]models.DocumentChunk
	convs   map[string]*models.Conversation
	creates int

	createErr    error // injected before the unique-hash check
	hashMissOnce bool  // next GetDocumentByHash misses, to force the insert race
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		docs:   make(map[string]*models.Document),
		chunks: make(map[string][]models.DocumentChunk),
		convs:  make(map[string]*models.Conversation),
	}
}

func (f *fakeDB) CreateDocument(_ context.Context, doc *models.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	for _, d := range f.docs {
		if d.ContentHash == doc.ContentHash {
			return fmt.Errorf("insert document %s: %w", doc.ID, core.ErrDuplicateHash)
		}
	}
	cp := *doc
	f.docs[doc.ID] = &cp
	f.creates++
	return nil
}

func (f *fakeDB) GetDocumentByID(_ context.Context, id string) (*models.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.docs[id]
	if !ok {
		return nil, nil
	}
	cp := *d
	return &cp, nil
}

func (f *fakeDB) GetDocumentByHash(_ context.Context, hash string) (*models.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.hashMissOnce {
		f.hashMissOnce = false
		return nil, nil
	}
	for _, d := range f.docs {
		if d.ContentHash == hash {
			cp := *d
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeDB) ListDocuments(_ context.Context) ([]models.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Document, 0, len(f.docs))
	for _, d := range f.docs {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeDB) DeleteDocument(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.docs, id)
	return nil
}

func (f *fakeDB) SetWordCount(_ context.Context, id string, n int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d, ok := f.docs[id]; ok {
		d.WordCount = n
	}
	return nil
}

func (f *fakeDB) SetLoading(_ context.Context, id string, loading bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d, ok := f.docs[id]; ok {
		d.Loading = loading
	}
	return nil
}

func (f *fakeDB) TrySetSummarizing(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.docs[id]
	if !ok || d.Summarizing {
		return false, nil
	}
	d.Summarizing = true
	return true, nil
}

func (f *fakeDB) ClearSummarizing(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d, ok := f.docs[id]; ok {
		d.Summarizing = false
	}
	return nil
}

func (f *fakeDB) SetSummary(_ context.Context, id string, summary string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d, ok := f.docs[id]; ok {
		d.Summary = &summary
		d.Summarizing = false
	}
	return nil
}

func (f *fakeDB) InsertDocumentChunks(_ context.Context, chunks []models.DocumentChunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range chunks {
		f.chunks[ch.DocumentID] = append(f.chunks[ch.DocumentID], ch)
	}
	return nil
}

func (f *fakeDB) DeleteChunksByDocument(_ context.Context, documentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.chunks, documentID)
	return nil
}

func (f *fakeDB) SearchDocumentChunks(_ context.Context, documentID string, _ []float32, limit int) ([]models.DocumentChunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	chunks := f.chunks[documentID]
	if len(chunks) > limit {
		chunks = chunks[:limit]
	}
	return append([]models.DocumentChunk(nil), chunks...), nil
}

func (f *fakeDB) CreateConversation(_ context.Context, conv *models.Conversation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *conv
	f.convs[conv.ID] = &cp
	return nil
}

func (f *fakeDB) GetConversationByID(_ context.Context, id string) (*models.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.convs[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (f *fakeDB) ListConversations(_ context.Context) ([]models.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Conversation, 0, len(f.convs))
	for _, c := range f.convs {
		out = append(out, *c)
	}
	return out, nil
}

func (f *fakeDB) ListConversationsByDocument(_ context.Context, documentID string) ([]models.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Conversation
	for _, c := range f.convs {
		if c.DocumentID == documentID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *fakeDB) DeleteConversation(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.convs, id)
	return nil
}

func (f *fakeDB) Close() error { return nil }

func (f *fakeDB) doc(id string) *models.Document {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d, ok := f.docs[id]; ok {
		cp := *d
		return &cp
	}
	return nil
}

func (f *fakeDB) chunkCount(docID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.chunks[docID])
}

func (f *fakeDB) docCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.docs)
}

type fakeStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	uploads int
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: make(map[string][]byte)}
}

func (f *fakeStorage) UploadFile(_ context.Context, bucket, key string, data []byte, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = append([]byte(nil), data...)
	f.uploads++
	return "https://" + bucket + ".example.com/" + key, nil
}

func (f *fakeStorage) GetFile(_ context.Context, _, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[key]
	if !ok {
		return nil, fmt.Errorf("object %s not found", key)
	}
	return append([]byte(nil), data...), nil
}

func (f *fakeStorage) FileExists(_ context.Context, _, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[key]
	return ok, nil
}

func (f *fakeStorage) DeleteFile(_ context.Context, _, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	return nil
}

func (f *fakeStorage) objectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.objects)
}

func (f *fakeStorage) remove(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
}

type fakeExtractor struct {
	words      int
	wordErr    error
	chunks     []core.TextChunk
	extractErr error
	panics     bool
}

func (f *fakeExtractor) WordCount(_ context.Context, _ []byte, _ string) (int, error) {
	if f.wordErr != nil {
		return 0, f.wordErr
	}
	return f.words, nil
}

func (f *fakeExtractor) Extract(_ context.Context, _ []byte, _ string) ([]core.TextChunk, error) {
	if f.panics {
		panic("extractor exploded")
	}
	if f.extractErr != nil {
		return nil, f.extractErr
	}
	return f.chunks, nil
}

type fakeEmbedder struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(len(texts[i])), 1, 2}
	}
	return out, nil
}

type fakeSummarizer struct {
	mu      sync.Mutex
	calls   int
	result  string
	err     error
	started chan struct{} // closed once a call begins, if set
	release chan struct{} // call blocks until closed, if set
}

func (f *fakeSummarizer) Summarize(_ context.Context, _ []byte, _ string) (string, error) {
	f.mu.Lock()
	f.calls++
	started := f.started
	release := f.release
	f.started = nil
	f.mu.Unlock()

	if started != nil {
		close(started)
	}
	if release != nil {
		<-release
	}
	if f.err != nil {
		return "", f.err
	}
	return f.result, nil
}

func (f *fakeSummarizer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeLLM struct {
	answer string
	err    error
}

func (f *fakeLLM) Generate(_ context.Context, _, _ string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}
