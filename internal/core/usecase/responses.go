package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/kirillkom/paperless-pipeline/internal/core/domain"
	"github.com/kirillkom/paperless-pipeline/internal/core/ports"
)

const (
	errNoOCRResult     = "no OCR text or reference provided"
	errNoSummaryResult = "no summary text generated"
	errUnknownWorker   = "unknown error"
)

// resolveDocument loads the document a worker response refers to. When ok is
// false the returned outcome says why the response cannot be applied.
func resolveDocument(ctx context.Context, repo ports.DocumentRepository, logger *slog.Logger, documentID string) (*domain.Document, domain.Outcome, bool) {
	if _, err := uuid.Parse(strings.TrimSpace(documentID)); err != nil {
		logger.Warn("worker_response_dropped", "reason", "malformed document id")
		return nil, domain.OutcomeDropped, false
	}
	doc, err := repo.GetByID(ctx, strings.TrimSpace(documentID))
	if err != nil {
		if domain.IsKind(err, domain.ErrDocumentNotFound) {
			logger.Warn("worker_response_dropped", "reason", "document not found")
			return nil, domain.OutcomeDropped, false
		}
		logger.Error("worker_response_load_failed", "error", err)
		return nil, domain.OutcomeError, false
	}
	return doc, "", true
}

// commitTransition writes next guarded by the status it was derived from.
func commitTransition(ctx context.Context, repo ports.DocumentRepository, logger *slog.Logger, next *domain.Document, from domain.ProcessingStatus, afterCommit ports.AfterCommitHook) domain.Outcome {
	if err := repo.Transition(ctx, next, from, afterCommit); err != nil {
		if domain.IsKind(err, domain.ErrStaleTransition) {
			logger.Info("worker_response_stale", "from", from, "to", next.Status())
			return domain.OutcomeStale
		}
		logger.Error("worker_response_write_failed", "from", from, "to", next.Status(), "error", err)
		return domain.OutcomeError
	}
	logger.Info("document_transitioned", "from", from, "to", next.Status())
	return ""
}

// staleOutcome reports a transition rejected by the pure domain guard.
func staleOutcome(logger *slog.Logger, err error) domain.Outcome {
	if domain.IsKind(err, domain.ErrStaleTransition) {
		logger.Info("worker_response_stale", "error", err)
		return domain.OutcomeStale
	}
	logger.Error("worker_response_rejected", "error", err)
	return domain.OutcomeError
}

func workerFailureMessage(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return errUnknownWorker
	}
	return raw
}

func recoverHandler(logger *slog.Logger, outcome *domain.Outcome) {
	if r := recover(); r != nil {
		logger.Error("worker_response_panic", "panic", fmt.Sprint(r))
		*outcome = domain.OutcomeError
	}
}
