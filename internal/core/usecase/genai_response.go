package usecase

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/paperless-pipeline/internal/core/domain"
	"github.com/kirillkom/paperless-pipeline/internal/core/ports"
)

type GenAIResponseHandler struct {
	repo   ports.DocumentRepository
	search *SearchSync
	cache  ports.StatusCache
	now    func() time.Time
}

func NewGenAIResponseHandler(repo ports.DocumentRepository, search *SearchSync, cache ports.StatusCache) *GenAIResponseHandler {
	return &GenAIResponseHandler{
		repo:   repo,
		search: search,
		cache:  cache,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (h *GenAIResponseHandler) HandleGenAIResponse(ctx context.Context, resp domain.GenAIResponse) (outcome domain.Outcome) {
	logger := slog.With("stage", "genai", "document_id", resp.DocumentID, "worker", resp.Worker)
	defer recoverHandler(logger, &outcome)

	if resp.Status != domain.WorkerCompleted && resp.Status != domain.WorkerFailed {
		logger.Warn("worker_response_ignored", "reason", "unknown status", "status", resp.Status)
		return domain.OutcomeIgnored
	}

	doc, outcome, ok := resolveDocument(ctx, h.repo, logger, resp.DocumentID)
	if !ok {
		return outcome
	}

	switch {
	case resp.Status == domain.WorkerFailed:
		return h.fail(ctx, logger, doc, workerFailureMessage(resp.Error))
	case strings.TrimSpace(resp.SummaryText) == "":
		return h.fail(ctx, logger, doc, errNoSummaryResult)
	default:
		return h.complete(ctx, logger, doc, resp.SummaryText)
	}
}

func (h *GenAIResponseHandler) complete(ctx context.Context, logger *slog.Logger, doc *domain.Document, summary string) domain.Outcome {
	next, err := doc.WithSummary(summary, h.now())
	if err != nil {
		return staleOutcome(logger, err)
	}
	if outcome := commitTransition(ctx, h.repo, logger, next, doc.Status(), nil); outcome != "" {
		return outcome
	}

	invalidateStatus(ctx, h.cache, next.ID)
	h.search.IndexDocument(ctx, next)
	return domain.OutcomeApplied
}

func (h *GenAIResponseHandler) fail(ctx context.Context, logger *slog.Logger, doc *domain.Document, message string) domain.Outcome {
	next, err := doc.WithGenAIFailure(message, h.now())
	if err != nil {
		return staleOutcome(logger, err)
	}
	if outcome := commitTransition(ctx, h.repo, logger, next, doc.Status(), nil); outcome != "" {
		return outcome
	}

	invalidateStatus(ctx, h.cache, next.ID)
	h.search.IndexStatus(ctx, next)
	return domain.OutcomeFailed
}
