package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/paperless-pipeline/internal/core/domain"
	"github.com/kirillkom/paperless-pipeline/internal/core/ports"
)

const DefaultMaxUploadBytes int64 = 50 << 20

var (
	supportedExtensions = map[string]struct{}{
		".pdf": {}, ".png": {}, ".jpg": {}, ".jpeg": {},
		".tif": {}, ".tiff": {}, ".bmp": {}, ".gif": {},
	}
	supportedContentTypes = map[string]struct{}{
		"application/pdf": {},
		"image/png":       {},
		"image/jpeg":      {},
		"image/tiff":      {},
		"image/bmp":       {},
		"image/gif":       {},
	}
)

type UploadUseCase struct {
	repo      ports.DocumentRepository
	store     ports.ObjectStore
	publisher *RequestPublisher
	search    *SearchSync
	bucket    string
	maxBytes  int64
	now       func() time.Time
}

func NewUploadUseCase(
	repo ports.DocumentRepository,
	store ports.ObjectStore,
	publisher *RequestPublisher,
	search *SearchSync,
	bucket string,
	maxBytes int64,
) *UploadUseCase {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	return &UploadUseCase{
		repo:      repo,
		store:     store,
		publisher: publisher,
		search:    search,
		bucket:    bucket,
		maxBytes:  maxBytes,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (uc *UploadUseCase) Upload(ctx context.Context, in ports.UploadInput) (*domain.DocumentSummary, error) {
	contentType, err := uc.validate(in)
	if err != nil {
		return nil, err
	}

	now := uc.now()
	createdAt := now
	if !in.CreatedAt.IsZero() {
		createdAt = in.CreatedAt.UTC()
	}
	id := uuid.NewString()
	loc := domain.ObjectLocator{
		Bucket: uc.bucket,
		Key:    fmt.Sprintf("%s/%s-%s", now.Format("2006/01"), id, sanitizeFilename(in.Filename)),
	}

	if err := uc.store.Put(ctx, loc, in.Body, in.Size, contentType); err != nil {
		return nil, domain.WrapError(domain.ErrProcessingFailure, "store original file", err)
	}

	doc := &domain.Document{
		ID:               id,
		Title:            strings.TrimSpace(in.Title),
		OriginalFilename: filepath.Base(in.Filename),
		ContentType:      contentType,
		FileSize:         in.Size,
		File:             loc,
		State:            domain.Pending(),
		CreatedAt:        createdAt,
		UpdatedAt:        now,
	}

	if err := uc.repo.Create(ctx, doc); err != nil {
		fireAndLog(ctx, "object_store.delete_orphan", id, func(ctx context.Context) error {
			return uc.store.Delete(ctx, loc)
		})
		return nil, domain.WrapError(domain.ErrProcessingFailure, "create document record", err)
	}

	uc.search.IndexDocument(ctx, doc)

	if err := uc.publisher.PublishOCR(ctx, doc); err != nil {
		slog.Error("ocr_request_publish_failed", "document_id", id, "error", err)
	}

	summary := doc.ToSummary()
	return &summary, nil
}

// validate returns the normalised content type.
func (uc *UploadUseCase) validate(in ports.UploadInput) (string, error) {
	if in.Body == nil || in.Size <= 0 {
		return "", domain.WrapError(domain.ErrInvalidInput, "validate upload", errors.New("file is empty"))
	}
	if in.Size > uc.maxBytes {
		return "", domain.WrapError(domain.ErrTooLarge, "validate upload", fmt.Errorf("file larger than %d bytes", uc.maxBytes))
	}
	if err := domain.ValidateTitle(in.Title); err != nil {
		return "", err
	}
	ext := strings.ToLower(filepath.Ext(in.Filename))
	if _, ok := supportedExtensions[ext]; !ok {
		return "", domain.WrapError(domain.ErrInvalidInput, "validate upload", fmt.Errorf("unsupported file extension %q", ext))
	}
	contentType := normalizeContentType(in.ContentType)
	if _, ok := supportedContentTypes[contentType]; !ok {
		return "", domain.WrapError(domain.ErrInvalidInput, "validate upload", fmt.Errorf("unsupported content type %q", in.ContentType))
	}
	return contentType, nil
}

func normalizeContentType(raw string) string {
	mediaType, _, err := mime.ParseMediaType(raw)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(raw))
	}
	return strings.ToLower(mediaType)
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." {
		return "document.bin"
	}
	return base
}
