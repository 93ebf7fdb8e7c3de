package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/paperless-pipeline/internal/core/domain"
)

// AfterCommitHook runs after a transition is committed. It is best effort: a
// returned error is logged and the transition stands.
type AfterCommitHook func(ctx context.Context) error

// DocumentRepository persists document records.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	// Transition writes next only if the stored status still equals from.
	// It returns domain.ErrStaleTransition otherwise.
	Transition(ctx context.Context, next *domain.Document, from domain.ProcessingStatus, afterCommit AfterCommitHook) error
	UpdateTitle(ctx context.Context, id, title string, updatedAt time.Time) error
	Delete(ctx context.Context, id string) error
	ListStale(ctx context.Context, statuses []domain.ProcessingStatus, updatedBefore time.Time, limit int) ([]domain.Document, error)
}

// ObjectStore stores original files and transient OCR text blobs.
type ObjectStore interface {
	Put(ctx context.Context, loc domain.ObjectLocator, body io.Reader, size int64, contentType string) error
	Get(ctx context.Context, loc domain.ObjectLocator) (io.ReadCloser, error)
	Delete(ctx context.Context, loc domain.ObjectLocator) error
	PresignGet(ctx context.Context, loc domain.ObjectLocator, expiry time.Duration) (string, error)
}

// RequestQueue publishes worker requests.
type RequestQueue interface {
	PublishOCRRequest(ctx context.Context, req domain.OCRRequest) error
	PublishGenAIRequest(ctx context.Context, req domain.GenAIRequest) error
}

// ResponseQueue delivers worker responses. Consume calls block until ctx is
// cancelled.
type ResponseQueue interface {
	ConsumeOCRResponses(ctx context.Context, handler func(context.Context, domain.OCRResponse) error) error
	ConsumeGenAIResponses(ctx context.Context, handler func(context.Context, domain.GenAIResponse) error) error
}

// SearchIndex keeps a searchable projection of documents.
type SearchIndex interface {
	Upsert(ctx context.Context, doc domain.SearchDocument) error
	UpdateStatus(ctx context.Context, id string, status domain.ProcessingStatus, processingError string) error
	Delete(ctx context.Context, id string) error
	Search(ctx context.Context, query string, limit int) ([]domain.SearchHit, error)
}

// StatusCache caches terminal status lookups. Implementations report a miss
// with ok=false and a nil error.
type StatusCache interface {
	Get(ctx context.Context, id string) (status domain.WorkerStatus, ok bool, err error)
	Set(ctx context.Context, status domain.WorkerStatus) error
	Invalidate(ctx context.Context, id string) error
}
