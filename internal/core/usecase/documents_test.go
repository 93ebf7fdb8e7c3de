package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kirillkom/paperless-pipeline/internal/core/domain"
)

func TestGetStatusUsesCache(t *testing.T) {
	repo := newRepoFake(testDocument(domain.OCRFailed("unsupported format")))
	cache := newCacheFake()
	svc := NewDocumentService(repo, newStoreFake(), nil, cache, testOCRTextBucket, 0)
	var lookups []string
	svc.OnStatusLookup(func(result string) { lookups = append(lookups, result) })

	status, err := svc.GetStatus(context.Background(), testDocID)
	if err != nil {
		t.Fatalf("GetStatus() error = %v", err)
	}
	if status.ProcessingStatus != domain.StatusOCRFailed || status.ProcessingError != "unsupported format" {
		t.Fatalf("unexpected status %+v", status)
	}
	if _, ok := cache.entries[testDocID]; !ok {
		t.Fatalf("expected status cached after miss")
	}

	repo.getErr = errors.New("db down")
	if _, err := svc.GetStatus(context.Background(), testDocID); err != nil {
		t.Fatalf("expected cached status served without the repository, got %v", err)
	}
	if len(lookups) != 2 || lookups[0] != "miss" || lookups[1] != "hit" {
		t.Fatalf("unexpected lookup results %v", lookups)
	}
}

// advancingRepo applies a worker response right after GetByID has read the
// record, so the caller holds a snapshot that is already outdated.
type advancingRepo struct {
	*repoFake
	advance func()
}

func (r *advancingRepo) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	doc, err := r.repoFake.GetByID(ctx, id)
	if r.advance != nil {
		advance := r.advance
		r.advance = nil
		advance()
	}
	return doc, err
}

func TestGetStatusDoesNotCacheInFlightStatus(t *testing.T) {
	f := newOCRFixture(testDocument(domain.Pending()))
	repo := &advancingRepo{repoFake: f.repo}
	repo.advance = func() {
		f.handler.HandleOCRResponse(context.Background(), domain.OCRResponse{
			DocumentID: testDocID,
			Status:     domain.WorkerCompleted,
			OCRText:    "Total: $42",
		})
	}
	svc := NewDocumentService(repo, f.store, nil, f.cache, testOCRTextBucket, 0)

	first, err := svc.GetStatus(context.Background(), testDocID)
	if err != nil {
		t.Fatalf("GetStatus() error = %v", err)
	}
	if first.ProcessingStatus != domain.StatusPending {
		t.Fatalf("expected the snapshot read before the transition, got %s", first.ProcessingStatus)
	}
	if _, ok := f.cache.entries[testDocID]; ok {
		t.Fatalf("non-terminal status must not be cached")
	}

	second, err := svc.GetStatus(context.Background(), testDocID)
	if err != nil {
		t.Fatalf("GetStatus() error = %v", err)
	}
	if second.ProcessingStatus != domain.StatusOCRCompleted {
		t.Fatalf("status regressed: expected OCR_COMPLETED, got %s", second.ProcessingStatus)
	}
}

func TestGetStatusErrors(t *testing.T) {
	svc := NewDocumentService(newRepoFake(), newStoreFake(), nil, nil, testOCRTextBucket, 0)

	if _, err := svc.GetStatus(context.Background(), "nope"); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if _, err := svc.GetStatus(context.Background(), testDocID); !domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestGetByIDIncludesDownloadURL(t *testing.T) {
	store := newStoreFake()
	store.presign = "https://minio.local/paperless-documents"
	svc := NewDocumentService(newRepoFake(ocrCompletedDocument("text")), store, nil, nil, testOCRTextBucket, time.Minute)

	detail, err := svc.GetByID(context.Background(), testDocID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if detail.DownloadURL == "" || detail.OCRProcessedAt == nil {
		t.Fatalf("unexpected detail %+v", detail)
	}

	store.presign = ""
	detail, err = svc.GetByID(context.Background(), testDocID)
	if err != nil {
		t.Fatalf("GetByID() without presign support error = %v", err)
	}
	if detail.DownloadURL != "" {
		t.Fatalf("expected empty download url, got %q", detail.DownloadURL)
	}
}

func TestRenameUpdatesTitleAndIndex(t *testing.T) {
	repo := newRepoFake(testDocument(domain.Pending()))
	index := newIndexFake()
	svc := NewDocumentService(repo, newStoreFake(), index, nil, testOCRTextBucket, 0)

	summary, err := svc.Rename(context.Background(), testDocID, "  Receipt  ")
	if err != nil {
		t.Fatalf("Rename() error = %v", err)
	}
	if summary.Title != "Receipt" || repo.stored(testDocID).Title != "Receipt" {
		t.Fatalf("expected trimmed title persisted")
	}
	if index.docs[testDocID].Title != "Receipt" {
		t.Fatalf("expected index refreshed")
	}
	if _, err := svc.Rename(context.Background(), testDocID, ""); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for blank title, got %v", err)
	}
}

func TestDeleteRemovesEverything(t *testing.T) {
	doc := testDocument(domain.Pending())
	doc.OCR = domain.ReferencedOCRText("ocr/" + testDocID + ".txt")
	repo := newRepoFake(doc)
	store := newStoreFake()
	store.objects[doc.File] = []byte("pdf")
	ocrLoc := domain.ObjectLocator{Bucket: testOCRTextBucket, Key: "ocr/" + testDocID + ".txt"}
	store.objects[ocrLoc] = []byte("text")
	index := newIndexFake()
	cache := newCacheFake()
	svc := NewDocumentService(repo, store, index, cache, testOCRTextBucket, 0)

	if err := svc.Delete(context.Background(), testDocID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, ok := repo.docs[testDocID]; ok {
		t.Fatalf("expected record deleted")
	}
	if store.has(doc.File) || store.has(ocrLoc) {
		t.Fatalf("expected blobs deleted")
	}
	if len(index.deleted) != 1 || len(cache.invalidated) != 1 {
		t.Fatalf("expected index removal and cache invalidation")
	}
}

func TestDeleteSurvivesBlobFailure(t *testing.T) {
	repo := newRepoFake(testDocument(domain.Pending()))
	store := newStoreFake()
	store.deleteErr = errors.New("minio down")
	svc := NewDocumentService(repo, store, nil, nil, testOCRTextBucket, 0)

	if err := svc.Delete(context.Background(), testDocID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, ok := repo.docs[testDocID]; ok {
		t.Fatalf("expected record deleted")
	}
}

func TestSearchValidatesAndClampsLimit(t *testing.T) {
	svc := NewDocumentService(newRepoFake(), newStoreFake(), newIndexFake(), nil, testOCRTextBucket, 0)

	if _, err := svc.Search(context.Background(), "  ", 10); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	hits, err := svc.Search(context.Background(), "invoice", 1000)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(hits) != 1 || hits[0].Score != maxSearchLimit {
		t.Fatalf("expected limit clamped to %d, got %+v", maxSearchLimit, hits)
	}

	noIndex := NewDocumentService(newRepoFake(), newStoreFake(), nil, nil, testOCRTextBucket, 0)
	if _, err := noIndex.Search(context.Background(), "invoice", 10); !domain.IsKind(err, domain.ErrUnsupported) {
		t.Fatalf("expected unsupported, got %v", err)
	}
}
