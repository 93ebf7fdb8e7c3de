package httpadapter

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/kirillkom/paperless-pipeline/internal/config"
	"github.com/kirillkom/paperless-pipeline/internal/core/domain"
	"github.com/kirillkom/paperless-pipeline/internal/core/ports"
)

const routerTestID = "3b0c8f0e-5d6a-4b1e-9c2d-1f0e2a3b4c5d"

type uploaderFake struct {
	err  error
	last ports.UploadInput
	body []byte
}

func (f *uploaderFake) Upload(_ context.Context, in ports.UploadInput) (*domain.DocumentSummary, error) {
	if f.err != nil {
		return nil, f.err
	}
	raw, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.last = in
	f.body = raw
	createdAt := in.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Date(2024, 10, 1, 9, 0, 0, 0, time.UTC)
	}
	return &domain.DocumentSummary{
		ID:               routerTestID,
		Title:            in.Title,
		OriginalFilename: in.Filename,
		FileSize:         int64(len(raw)),
		ContentType:      in.ContentType,
		ProcessingStatus: domain.StatusPending,
		CreatedAt:        createdAt,
	}, nil
}

type docsFake struct {
	err error

	renamedTo string
	deleted   string
	query     string
	limit     int
}

func (f *docsFake) GetStatus(_ context.Context, id string) (*domain.WorkerStatus, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.WorkerStatus{ID: id, ProcessingStatus: domain.StatusOCRFailed, ProcessingError: "Unreadable scan"}, nil
}

func (f *docsFake) GetByID(_ context.Context, id string) (*domain.DocumentDetail, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.DocumentDetail{
		DocumentSummary: domain.DocumentSummary{ID: id, Title: "Invoice", ProcessingStatus: domain.StatusCompleted},
		DownloadURL:     "http://minio.local/paperless-documents/x?sig=1",
		SummaryText:     "An invoice.",
	}, nil
}

func (f *docsFake) Rename(_ context.Context, id, title string) (*domain.DocumentSummary, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.renamedTo = title
	return &domain.DocumentSummary{ID: id, Title: title}, nil
}

func (f *docsFake) Delete(_ context.Context, id string) error {
	if f.err != nil {
		return f.err
	}
	f.deleted = id
	return nil
}

func (f *docsFake) Search(_ context.Context, query string, limit int) ([]domain.SearchHit, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.query = query
	f.limit = limit
	return []domain.SearchHit{{DocumentID: routerTestID, Title: "Invoice", Score: 1.5}}, nil
}

func newTestHandler(cfg config.Config, uploader *uploaderFake, docs *docsFake) http.Handler {
	if uploader == nil {
		uploader = &uploaderFake{}
	}
	if docs == nil {
		docs = &docsFake{}
	}
	return NewRouter(cfg, uploader, docs, nil).Handler()
}
