package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/paperless-pipeline/internal/core/domain"
)

type UploadInput struct {
	Title       string
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
	CreatedAt   time.Time
}

// DocumentUploader is the inbound contract for the upload entry point.
type DocumentUploader interface {
	Upload(ctx context.Context, in UploadInput) (*domain.DocumentSummary, error)
}

// DocumentService is the inbound read/edit model for documents.
type DocumentService interface {
	GetStatus(ctx context.Context, id string) (*domain.WorkerStatus, error)
	GetByID(ctx context.Context, id string) (*domain.DocumentDetail, error)
	Rename(ctx context.Context, id, title string) (*domain.DocumentSummary, error)
	Delete(ctx context.Context, id string) error
	Search(ctx context.Context, query string, limit int) ([]domain.SearchHit, error)
}

// OCRResponseProcessor applies OCR worker responses.
type OCRResponseProcessor interface {
	HandleOCRResponse(ctx context.Context, resp domain.OCRResponse) domain.Outcome
}

// GenAIResponseProcessor applies GenAI worker responses.
type GenAIResponseProcessor interface {
	HandleGenAIResponse(ctx context.Context, resp domain.GenAIResponse) domain.Outcome
}
