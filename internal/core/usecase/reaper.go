package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/paperless-pipeline/internal/core/domain"
	"github.com/kirillkom/paperless-pipeline/internal/core/ports"
)

const defaultSweepBatchSize = 100

// StuckDocumentReaper fails documents whose worker response never arrived.
// It writes through the same status guard as the response handlers, so a
// late response and the sweep cannot both be applied.
type StuckDocumentReaper struct {
	repo      ports.DocumentRepository
	search    *SearchSync
	cache     ports.StatusCache
	timeout   time.Duration
	batchSize int
	onSweep   func(failed int)
	now       func() time.Time
}

func NewStuckDocumentReaper(repo ports.DocumentRepository, search *SearchSync, cache ports.StatusCache, timeout time.Duration) *StuckDocumentReaper {
	return &StuckDocumentReaper{
		repo:      repo,
		search:    search,
		cache:     cache,
		timeout:   timeout,
		batchSize: defaultSweepBatchSize,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// OnSweep registers a callback invoked with the count of every completed
// sweep run by Run.
func (r *StuckDocumentReaper) OnSweep(fn func(failed int)) {
	r.onSweep = fn
}

func (r *StuckDocumentReaper) Enabled() bool {
	return r != nil && r.timeout > 0
}

// Run sweeps once immediately and then on every interval tick until ctx is
// cancelled.
func (r *StuckDocumentReaper) Run(ctx context.Context, interval time.Duration) error {
	if !r.Enabled() {
		return nil
	}
	if interval <= 0 {
		interval = time.Minute
	}
	slog.Info("stuck_document_sweep_started", "timeout", r.timeout.String(), "interval", interval.String())

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		failed, err := r.Sweep(ctx)
		if err != nil {
			slog.Error("stuck_document_sweep_failed", "error", err)
		}
		if r.onSweep != nil {
			r.onSweep(failed)
		}
		select {
		case <-ctx.Done():
			slog.Info("stuck_document_sweep_stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Sweep fails every document stuck past the timeout and returns how many
// were changed.
func (r *StuckDocumentReaper) Sweep(ctx context.Context) (int, error) {
	if !r.Enabled() {
		return 0, nil
	}
	now := r.now()
	cutoff := now.Add(-r.timeout)

	ocrStuck, err := r.repo.ListStale(ctx, []domain.ProcessingStatus{domain.StatusPending, domain.StatusOCRProcessing}, cutoff, r.batchSize)
	if err != nil {
		return 0, fmt.Errorf("list documents awaiting ocr: %w", err)
	}
	genaiStuck, err := r.repo.ListStale(ctx, []domain.ProcessingStatus{domain.StatusOCRCompleted, domain.StatusGenAIProcessing}, cutoff, r.batchSize)
	if err != nil {
		return 0, fmt.Errorf("list documents awaiting genai: %w", err)
	}

	failed := 0
	for i := range ocrStuck {
		doc := &ocrStuck[i]
		next, err := doc.WithOCRFailure(fmt.Sprintf("no OCR response within %s", r.timeout), now)
		if r.apply(ctx, doc, next, err) {
			failed++
		}
	}
	for i := range genaiStuck {
		doc := &genaiStuck[i]
		next, err := doc.WithGenAIFailure(fmt.Sprintf("no summary response within %s", r.timeout), now)
		if r.apply(ctx, doc, next, err) {
			failed++
		}
	}
	if failed > 0 {
		slog.Info("stuck_document_sweep_complete", "failed_documents", failed)
	}
	return failed, nil
}

func (r *StuckDocumentReaper) apply(ctx context.Context, doc, next *domain.Document, transitionErr error) bool {
	logger := slog.With("stage", "sweep", "document_id", doc.ID)
	if transitionErr != nil {
		logger.Info("stuck_document_skipped", "error", transitionErr)
		return false
	}
	if err := r.repo.Transition(ctx, next, doc.Status(), nil); err != nil {
		if domain.IsKind(err, domain.ErrStaleTransition) {
			logger.Info("stuck_document_skipped", "reason", "status changed")
			return false
		}
		logger.Error("stuck_document_fail_write", "error", err)
		return false
	}
	logger.Warn("stuck_document_failed", "from", doc.Status(), "to", next.Status())
	invalidateStatus(ctx, r.cache, doc.ID)
	r.search.IndexStatus(ctx, next)
	return true
}
