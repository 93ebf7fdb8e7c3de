package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kirillkom/paperless-pipeline/internal/core/domain"
	"github.com/kirillkom/paperless-pipeline/internal/core/ports"
)

// fireAndLog runs a side effect whose failure must never reach the caller.
// Errors and panics are logged and absorbed.
func fireAndLog(ctx context.Context, operation, documentID string, fn func(context.Context) error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("best_effort_panic",
				"operation", operation,
				"document_id", documentID,
				"panic", fmt.Sprint(r),
			)
		}
	}()
	if err := fn(ctx); err != nil {
		slog.Warn("best_effort_failed",
			"operation", operation,
			"document_id", documentID,
			"error", err,
		)
	}
}

type SearchSync struct {
	index ports.SearchIndex
}

// NewSearchSync accepts a nil index, in which case every sync is a no-op.
func NewSearchSync(index ports.SearchIndex) *SearchSync {
	return &SearchSync{index: index}
}

// IndexDocument upserts the full projection of doc.
func (s *SearchSync) IndexDocument(ctx context.Context, doc *domain.Document) {
	if s == nil || s.index == nil || doc == nil {
		return
	}
	projection := doc.ToSearchDocument()
	fireAndLog(ctx, "search.upsert", doc.ID, func(ctx context.Context) error {
		return s.index.Upsert(ctx, projection)
	})
}

// IndexStatus refreshes only the status fields of an indexed document.
func (s *SearchSync) IndexStatus(ctx context.Context, doc *domain.Document) {
	if s == nil || s.index == nil || doc == nil {
		return
	}
	fireAndLog(ctx, "search.update_status", doc.ID, func(ctx context.Context) error {
		return s.index.UpdateStatus(ctx, doc.ID, doc.Status(), doc.State.Failure())
	})
}

func (s *SearchSync) Remove(ctx context.Context, documentID string) {
	if s == nil || s.index == nil {
		return
	}
	fireAndLog(ctx, "search.delete", documentID, func(ctx context.Context) error {
		return s.index.Delete(ctx, documentID)
	})
}

func invalidateStatus(ctx context.Context, cache ports.StatusCache, documentID string) {
	if cache == nil {
		return
	}
	fireAndLog(ctx, "status_cache.invalidate", documentID, func(ctx context.Context) error {
		return cache.Invalidate(ctx, documentID)
	})
}
