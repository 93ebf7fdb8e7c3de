package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/kirillkom/paperless-pipeline/internal/core/domain"
	"github.com/kirillkom/paperless-pipeline/internal/core/ports"
)

type repoFake struct {
	mu        sync.Mutex
	docs      map[string]domain.Document
	history   map[string][]domain.ProcessingStatus
	createErr error
	writeErr  error
	getErr    error
}

func newRepoFake(docs ...*domain.Document) *repoFake {
	f := &repoFake{
		docs:    make(map[string]domain.Document),
		history: make(map[string][]domain.ProcessingStatus),
	}
	for _, doc := range docs {
		f.docs[doc.ID] = *doc
		f.history[doc.ID] = []domain.ProcessingStatus{doc.Status()}
	}
	return f
}

func (f *repoFake) Create(_ context.Context, doc *domain.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.docs[doc.ID] = *doc
	f.history[doc.ID] = []domain.ProcessingStatus{doc.Status()}
	return nil
}

func (f *repoFake) GetByID(_ context.Context, id string) (*domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	doc, ok := f.docs[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("id=%s", id))
	}
	return &doc, nil
}

func (f *repoFake) Transition(ctx context.Context, next *domain.Document, from domain.ProcessingStatus, afterCommit ports.AfterCommitHook) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	current, ok := f.docs[next.ID]
	if !ok || current.Status() != from {
		return domain.WrapError(domain.ErrStaleTransition, "transition document", errors.New("status changed"))
	}
	f.docs[next.ID] = *next
	f.history[next.ID] = append(f.history[next.ID], next.Status())
	if afterCommit != nil {
		_ = afterCommit(ctx)
	}
	return nil
}

func (f *repoFake) UpdateTitle(_ context.Context, id, title string, updatedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return domain.WrapError(domain.ErrDocumentNotFound, "update title", fmt.Errorf("id=%s", id))
	}
	doc.Title = title
	doc.UpdatedAt = updatedAt
	f.docs[id] = doc
	return nil
}

func (f *repoFake) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.docs[id]; !ok {
		return domain.WrapError(domain.ErrDocumentNotFound, "delete document", fmt.Errorf("id=%s", id))
	}
	delete(f.docs, id)
	return nil
}

func (f *repoFake) ListStale(_ context.Context, statuses []domain.ProcessingStatus, updatedBefore time.Time, limit int) ([]domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Document
	for _, doc := range f.docs {
		for _, status := range statuses {
			if doc.Status() == status && doc.UpdatedAt.Before(updatedBefore) && len(out) < limit {
				out = append(out, doc)
			}
		}
	}
	return out, nil
}

func (f *repoFake) stored(id string) *domain.Document {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc := f.docs[id]
	return &doc
}

type storeFake struct {
	mu        sync.Mutex
	objects   map[domain.ObjectLocator][]byte
	putErr    error
	getErr    error
	deleteErr error
	presign   string
}

func newStoreFake() *storeFake {
	return &storeFake{objects: make(map[domain.ObjectLocator][]byte)}
}

func (f *storeFake) Put(_ context.Context, loc domain.ObjectLocator, body io.Reader, _ int64, _ string) error {
	if f.putErr != nil {
		return f.putErr
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[loc] = raw
	return nil
}

func (f *storeFake) Get(_ context.Context, loc domain.ObjectLocator) (io.ReadCloser, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, ok := f.objects[loc]
	if !ok {
		return nil, domain.WrapError(domain.ErrObjectNotFound, "get object", fmt.Errorf("%s", loc))
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

func (f *storeFake) Delete(_ context.Context, loc domain.ObjectLocator) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, loc)
	return nil
}

func (f *storeFake) PresignGet(_ context.Context, loc domain.ObjectLocator, _ time.Duration) (string, error) {
	if f.presign == "" {
		return "", domain.WrapError(domain.ErrUnsupported, "presign", errors.New("not supported"))
	}
	return f.presign + "/" + loc.Key, nil
}

func (f *storeFake) has(loc domain.ObjectLocator) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[loc]
	return ok
}

type queueFake struct {
	mu    sync.Mutex
	ocr   []domain.OCRRequest
	genai []domain.GenAIRequest
	err   error
}

func (f *queueFake) PublishOCRRequest(_ context.Context, req domain.OCRRequest) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ocr = append(f.ocr, req)
	return nil
}

func (f *queueFake) PublishGenAIRequest(_ context.Context, req domain.GenAIRequest) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.genai = append(f.genai, req)
	return nil
}

type indexFake struct {
	mu       sync.Mutex
	docs     map[string]domain.SearchDocument
	statuses map[string]domain.ProcessingStatus
	deleted  []string
	err      error
	panics   bool
}

func newIndexFake() *indexFake {
	return &indexFake{
		docs:     make(map[string]domain.SearchDocument),
		statuses: make(map[string]domain.ProcessingStatus),
	}
}

func (f *indexFake) Upsert(_ context.Context, doc domain.SearchDocument) error {
	if f.panics {
		panic("index exploded")
	}
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs[doc.ID] = doc
	f.statuses[doc.ID] = doc.ProcessingStatus
	return nil
}

func (f *indexFake) UpdateStatus(_ context.Context, id string, status domain.ProcessingStatus, _ string) error {
	if f.panics {
		panic("index exploded")
	}
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[id] = status
	return nil
}

func (f *indexFake) Delete(_ context.Context, id string) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.docs, id)
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *indexFake) Search(_ context.Context, query string, limit int) ([]domain.SearchHit, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []domain.SearchHit{{DocumentID: query, Score: float64(limit)}}, nil
}

type cacheFake struct {
	mu          sync.Mutex
	entries     map[string]domain.WorkerStatus
	invalidated []string
}

func newCacheFake() *cacheFake {
	return &cacheFake{entries: make(map[string]domain.WorkerStatus)}
}

func (f *cacheFake) Get(_ context.Context, id string) (domain.WorkerStatus, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	status, ok := f.entries[id]
	return status, ok, nil
}

func (f *cacheFake) Set(_ context.Context, status domain.WorkerStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[status.ID] = status
	return nil
}

func (f *cacheFake) Invalidate(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.entries, id)
	f.invalidated = append(f.invalidated, id)
	return nil
}

const (
	testDocID         = "3b0c8f0e-5d6a-4b1e-9c2d-1f0e2a3b4c5d"
	testDocumentsBkt  = "paperless-documents"
	testOCRTextBucket = "paperless-ocr-text"
)

func testDocument(state domain.ProcessingState) *domain.Document {
	created := time.Date(2024, 10, 1, 9, 0, 0, 0, time.UTC)
	return &domain.Document{
		ID:               testDocID,
		Title:            "Invoice",
		OriginalFilename: "invoice.pdf",
		ContentType:      "application/pdf",
		FileSize:         2048,
		File:             domain.ObjectLocator{Bucket: testDocumentsBkt, Key: "2024/10/" + testDocID + "-invoice.pdf"},
		State:            state,
		CreatedAt:        created,
		UpdatedAt:        created,
	}
}

func ocrCompletedDocument(text string) *domain.Document {
	doc, err := testDocument(domain.Pending()).WithOCRText(text, time.Date(2024, 10, 1, 9, 5, 0, 0, time.UTC))
	if err != nil {
		panic(err)
	}
	return doc
}
