package usecase

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/paperless-pipeline/internal/core/domain"
	"github.com/kirillkom/paperless-pipeline/internal/core/ports"
)

const DefaultOCRTextSizeThreshold int64 = 1 << 20

// TextTieringPolicy decides how OCR text is represented. Text above the
// threshold is written by the OCR worker to the OCR text bucket and only its
// key travels over the broker; the policy moves it back inline.
type TextTieringPolicy struct {
	store     ports.ObjectStore
	bucket    string
	threshold int64
}

func NewTextTieringPolicy(store ports.ObjectStore, bucket string, threshold int64) *TextTieringPolicy {
	if threshold <= 0 {
		threshold = DefaultOCRTextSizeThreshold
	}
	return &TextTieringPolicy{
		store:     store,
		bucket:    bucket,
		threshold: threshold,
	}
}

func (p *TextTieringPolicy) Threshold() int64 {
	return p.threshold
}

func (p *TextTieringPolicy) locator(objectKey string) domain.ObjectLocator {
	return domain.ObjectLocator{Bucket: p.bucket, Key: objectKey}
}

// CheckInline warns when a worker sent inline text that should have been
// referenced. The text is still accepted.
func (p *TextTieringPolicy) CheckInline(documentID, text string) {
	if int64(len(text)) > p.threshold {
		slog.Warn("ocr_inline_text_over_threshold",
			"document_id", documentID,
			"bytes", len(text),
			"threshold", p.threshold,
		)
	}
}

// Fetch reads referenced text. Fetching the same key twice yields the same
// text as long as Release has not run.
func (p *TextTieringPolicy) Fetch(ctx context.Context, objectKey string) (string, error) {
	loc := p.locator(objectKey)
	body, err := p.store.Get(ctx, loc)
	if err != nil {
		return "", fmt.Errorf("fetch ocr text %s: %w", loc, err)
	}
	defer body.Close()

	raw, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("read ocr text %s: %w", loc, err)
	}
	if !utf8.Valid(raw) {
		// The record column is UTF-8 text; keep what is readable.
		slog.Warn("ocr_text_invalid_utf8", "object", loc.String(), "bytes", len(raw))
		return strings.ToValidUTF8(string(raw), "\uFFFD"), nil
	}
	return string(raw), nil
}

// Release deletes the transient blob once its text is stored inline. A blob
// that is already gone counts as released.
func (p *TextTieringPolicy) Release(ctx context.Context, objectKey string) error {
	loc := p.locator(objectKey)
	if err := p.store.Delete(ctx, loc); err != nil && !domain.IsKind(err, domain.ErrObjectNotFound) {
		return fmt.Errorf("release ocr text %s: %w", loc, err)
	}
	return nil
}
