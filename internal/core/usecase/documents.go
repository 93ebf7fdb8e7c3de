package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/paperless-pipeline/internal/core/domain"
	"github.com/kirillkom/paperless-pipeline/internal/core/ports"
)

const (
	DefaultPresignExpiry = time.Hour
	defaultSearchLimit   = 20
	maxSearchLimit       = 100
)

type DocumentService struct {
	repo          ports.DocumentRepository
	store         ports.ObjectStore
	search        *SearchSync
	index         ports.SearchIndex
	cache         ports.StatusCache
	ocrTextBucket string
	presignExpiry time.Duration
	now           func() time.Time

	onStatusLookup func(result string)
}

func NewDocumentService(
	repo ports.DocumentRepository,
	store ports.ObjectStore,
	index ports.SearchIndex,
	cache ports.StatusCache,
	ocrTextBucket string,
	presignExpiry time.Duration,
) *DocumentService {
	if presignExpiry <= 0 {
		presignExpiry = DefaultPresignExpiry
	}
	return &DocumentService{
		repo:          repo,
		store:         store,
		search:        NewSearchSync(index),
		index:         index,
		cache:         cache,
		ocrTextBucket: ocrTextBucket,
		presignExpiry: presignExpiry,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// OnStatusLookup registers fn to receive "hit", "miss", "uncached" or
// "cache_error" for every status lookup that reaches the store or cache.
func (s *DocumentService) OnStatusLookup(fn func(result string)) {
	s.onStatusLookup = fn
}

func (s *DocumentService) reportLookup(result string) {
	if s.onStatusLookup != nil {
		s.onStatusLookup(result)
	}
}

// GetStatus serves from the status cache when possible. Only terminal
// statuses are written back on a miss.
func (s *DocumentService) GetStatus(ctx context.Context, id string) (*domain.WorkerStatus, error) {
	id, err := parseDocumentID(id)
	if err != nil {
		return nil, err
	}

	switch {
	case s.cache == nil:
		s.reportLookup("uncached")
	default:
		cached, ok, err := s.cache.Get(ctx, id)
		switch {
		case err != nil:
			slog.Warn("status_cache_get_failed", "document_id", id, "error", err)
			s.reportLookup("cache_error")
		case ok:
			s.reportLookup("hit")
			return &cached, nil
		default:
			s.reportLookup("miss")
		}
	}

	doc, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	status := doc.ToWorkerStatus()
	// A non-terminal read may already be outdated by the time it would land
	// in the cache, and no later invalidation would clear it.
	if s.cache != nil && doc.Status().Terminal() {
		fireAndLog(ctx, "status_cache.set", id, func(ctx context.Context) error {
			return s.cache.Set(ctx, status)
		})
	}
	return &status, nil
}

func (s *DocumentService) GetByID(ctx context.Context, id string) (*domain.DocumentDetail, error) {
	id, err := parseDocumentID(id)
	if err != nil {
		return nil, err
	}
	doc, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	url, err := s.store.PresignGet(ctx, doc.File, s.presignExpiry)
	if err != nil {
		if !domain.IsKind(err, domain.ErrUnsupported) {
			slog.Warn("presign_download_failed", "document_id", id, "error", err)
		}
		url = ""
	}
	detail := doc.ToDetail(url)
	return &detail, nil
}

func (s *DocumentService) Rename(ctx context.Context, id, title string) (*domain.DocumentSummary, error) {
	id, err := parseDocumentID(id)
	if err != nil {
		return nil, err
	}
	doc, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	next, err := doc.WithTitle(title, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdateTitle(ctx, id, next.Title, next.UpdatedAt); err != nil {
		return nil, err
	}

	s.search.IndexDocument(ctx, next)
	summary := next.ToSummary()
	return &summary, nil
}

// Delete removes the record first; blob, index and cache cleanup are best
// effort once the record is gone.
func (s *DocumentService) Delete(ctx context.Context, id string) error {
	id, err := parseDocumentID(id)
	if err != nil {
		return err
	}
	doc, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	fireAndLog(ctx, "object_store.delete_original", id, func(ctx context.Context) error {
		return s.store.Delete(ctx, doc.File)
	})
	if key, ok := doc.OCR.ObjectKey(); ok {
		fireAndLog(ctx, "object_store.delete_ocr_text", id, func(ctx context.Context) error {
			return s.store.Delete(ctx, domain.ObjectLocator{Bucket: s.ocrTextBucket, Key: key})
		})
	}
	s.search.Remove(ctx, id)
	invalidateStatus(ctx, s.cache, id)
	return nil
}

func (s *DocumentService) Search(ctx context.Context, query string, limit int) ([]domain.SearchHit, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "search documents", errors.New("query is required"))
	}
	if s.index == nil {
		return nil, domain.WrapError(domain.ErrUnsupported, "search documents", errors.New("search index is not configured"))
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}
	return s.index.Search(ctx, query, limit)
}

func parseDocumentID(raw string) (string, error) {
	parsed, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", domain.WrapError(domain.ErrInvalidInput, "parse document id", err)
	}
	return parsed.String(), nil
}
