package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/paperless-pipeline/internal/core/domain"
	"github.com/kirillkom/paperless-pipeline/internal/core/ports"
)

const DefaultGenAIMaxInputChars = 300000

var errNoOCRText = errors.New("document holds no inline ocr text")

type RequestPublisher struct {
	queue         ports.RequestQueue
	maxInputChars int
}

func NewRequestPublisher(queue ports.RequestQueue, maxInputChars int) *RequestPublisher {
	if maxInputChars <= 0 {
		maxInputChars = DefaultGenAIMaxInputChars
	}
	return &RequestPublisher{
		queue:         queue,
		maxInputChars: maxInputChars,
	}
}

func (p *RequestPublisher) PublishOCR(ctx context.Context, doc *domain.Document) error {
	req := domain.OCRRequest{
		DocumentID:       doc.ID,
		Title:            doc.Title,
		OriginalFilename: doc.OriginalFilename,
		ContentType:      doc.ContentType,
		FileSize:         doc.FileSize,
		FileBucket:       doc.File.Bucket,
		FileObjectKey:    doc.File.Key,
	}
	if err := p.queue.PublishOCRRequest(ctx, req); err != nil {
		return fmt.Errorf("publish ocr request: %w", err)
	}
	return nil
}

// PublishGenAI sends the inline OCR text of doc for summarisation. It returns
// errNoOCRText without publishing when there is no text to summarise.
func (p *RequestPublisher) PublishGenAI(ctx context.Context, doc *domain.Document) error {
	text, ok := doc.OCR.Inline()
	if !ok || strings.TrimSpace(text) == "" {
		slog.Warn("genai_request_skipped", "document_id", doc.ID, "reason", "empty ocr text")
		return errNoOCRText
	}

	truncated, cut := truncateRunes(text, p.maxInputChars)
	if cut {
		slog.Info("genai_input_truncated",
			"document_id", doc.ID,
			"original_chars", utf8.RuneCountInString(text),
			"max_chars", p.maxInputChars,
		)
	}

	req := domain.GenAIRequest{DocumentID: doc.ID, OCRText: truncated}
	if err := p.queue.PublishGenAIRequest(ctx, req); err != nil {
		return fmt.Errorf("publish genai request: %w", err)
	}
	return nil
}

func truncateRunes(text string, maxChars int) (string, bool) {
	if maxChars <= 0 || utf8.RuneCountInString(text) <= maxChars {
		return text, false
	}
	count := 0
	for i := range text {
		if count == maxChars {
			return text[:i], true
		}
		count++
	}
	return text, false
}
