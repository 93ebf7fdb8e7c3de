package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/paperless-pipeline/internal/core/domain"
	"github.com/kirillkom/paperless-pipeline/internal/core/ports"
)

type OCRResponseHandler struct {
	repo      ports.DocumentRepository
	tiering   *TextTieringPolicy
	search    *SearchSync
	publisher *RequestPublisher
	cache     ports.StatusCache
	now       func() time.Time
}

func NewOCRResponseHandler(
	repo ports.DocumentRepository,
	tiering *TextTieringPolicy,
	search *SearchSync,
	publisher *RequestPublisher,
	cache ports.StatusCache,
) *OCRResponseHandler {
	return &OCRResponseHandler{
		repo:      repo,
		tiering:   tiering,
		search:    search,
		publisher: publisher,
		cache:     cache,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// HandleOCRResponse never fails; problems are logged and reported through
// the returned outcome.
func (h *OCRResponseHandler) HandleOCRResponse(ctx context.Context, resp domain.OCRResponse) (outcome domain.Outcome) {
	logger := slog.With("stage", "ocr", "document_id", resp.DocumentID, "worker", resp.Worker)
	defer recoverHandler(logger, &outcome)

	if resp.Status != domain.WorkerCompleted && resp.Status != domain.WorkerFailed {
		logger.Warn("worker_response_ignored", "reason", "unknown status", "status", resp.Status)
		return domain.OutcomeIgnored
	}

	doc, outcome, ok := resolveDocument(ctx, h.repo, logger, resp.DocumentID)
	if !ok {
		return outcome
	}

	objectKey := strings.TrimSpace(resp.OCRTextObjectKey)
	if resp.Status == domain.WorkerFailed {
		return h.fail(ctx, logger, doc, workerFailureMessage(resp.Error), h.releaseHook(objectKey))
	}

	text := resp.OCRText
	switch {
	case strings.TrimSpace(text) != "":
		h.tiering.CheckInline(doc.ID, text)
		outcome := h.complete(ctx, logger, doc, text, nil)
		if objectKey != "" {
			// Inline text wins and the referenced blob is dropped.
			logger.Warn("ocr_response_both_representations", "object_key", objectKey)
			if outcome == domain.OutcomeApplied {
				fireAndLog(ctx, "ocr_text.release", doc.ID, func(ctx context.Context) error {
					return h.tiering.Release(ctx, objectKey)
				})
			}
		}
		return outcome
	case objectKey != "":
		return h.reconcile(ctx, logger, doc, objectKey)
	default:
		return h.fail(ctx, logger, doc, errNoOCRResult, nil)
	}
}

// reconcile moves referenced text inline. The blob is deleted once the
// transition commits; a failed delete only leaves an orphaned blob behind.
func (h *OCRResponseHandler) reconcile(ctx context.Context, logger *slog.Logger, doc *domain.Document, objectKey string) domain.Outcome {
	if !doc.Status().AwaitingOCR() {
		logger.Info("worker_response_stale", "status", doc.Status(), "object_key", objectKey)
		return domain.OutcomeStale
	}

	text, err := h.tiering.Fetch(ctx, objectKey)
	if err != nil {
		logger.Error("ocr_text_fetch_failed", "object_key", objectKey, "error", err)
		return domain.OutcomeError
	}

	release := h.releaseHook(objectKey)
	if strings.TrimSpace(text) == "" {
		return h.fail(ctx, logger, doc, errNoOCRResult, release)
	}
	return h.complete(ctx, logger, doc, text, release)
}

func (h *OCRResponseHandler) releaseHook(objectKey string) ports.AfterCommitHook {
	if objectKey == "" {
		return nil
	}
	return func(ctx context.Context) error {
		return h.tiering.Release(ctx, objectKey)
	}
}

func (h *OCRResponseHandler) complete(ctx context.Context, logger *slog.Logger, doc *domain.Document, text string, afterCommit ports.AfterCommitHook) domain.Outcome {
	next, err := doc.WithOCRText(text, h.now())
	if err != nil {
		return staleOutcome(logger, err)
	}
	if outcome := commitTransition(ctx, h.repo, logger, next, doc.Status(), afterCommit); outcome != "" {
		return outcome
	}

	invalidateStatus(ctx, h.cache, next.ID)
	h.search.IndexDocument(ctx, next)
	if err := h.publisher.PublishGenAI(ctx, next); err != nil && !errors.Is(err, errNoOCRText) {
		logger.Error("genai_request_publish_failed", "error", err)
	}
	return domain.OutcomeApplied
}

func (h *OCRResponseHandler) fail(ctx context.Context, logger *slog.Logger, doc *domain.Document, message string, afterCommit ports.AfterCommitHook) domain.Outcome {
	next, err := doc.WithOCRFailure(message, h.now())
	if err != nil {
		return staleOutcome(logger, err)
	}
	if outcome := commitTransition(ctx, h.repo, logger, next, doc.Status(), afterCommit); outcome != "" {
		return outcome
	}

	invalidateStatus(ctx, h.cache, next.ID)
	h.search.IndexStatus(ctx, next)
	return domain.OutcomeFailed
}
