package bootstrap

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/paperless-pipeline/internal/core/domain"
	"github.com/kirillkom/paperless-pipeline/internal/core/ports"
	"github.com/kirillkom/paperless-pipeline/internal/observability/metrics"
)

const workerService = "paperless-worker"

// RunWorker consumes both response queues, runs the stuck-document sweep and
// serves worker metrics until ctx is cancelled or one of them fails.
func (a *App) RunWorker(ctx context.Context, m *metrics.WorkerMetrics) error {
	g, ctx := errgroup.WithContext(ctx)
	timeout := a.Config.WorkerResponseTimeout

	g.Go(func() error {
		return a.Broker.ConsumeOCRResponses(ctx, ObserveOCR(a.OCRHandler, m, timeout))
	})
	g.Go(func() error {
		return a.Broker.ConsumeGenAIResponses(ctx, ObserveGenAI(a.GenAIHandler, m, timeout))
	})

	if a.Reaper.Enabled() {
		if m != nil {
			a.Reaper.OnSweep(func(failed int) { m.RecordSweep(workerService, failed) })
		}
		g.Go(func() error {
			return a.Reaper.Run(ctx, a.Config.StuckSweepInterval)
		})
	}

	if a.Config.WorkerMetricsPort != "" {
		server := &http.Server{
			Addr:              ":" + a.Config.WorkerMetricsPort,
			Handler:           workerMux(m, a.Executor.OpenBreakers),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			slog.Info("worker_metrics_listening", "port", a.Config.WorkerMetricsPort)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}

// workerMux serves the health and metrics endpoints. Open breakers are
// reported as degraded but keep the health check at 200 so the process is not
// restarted while a dependency recovers.
func workerMux(m *metrics.WorkerMetrics, openBreakers func() []string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		body := map[string]any{"status": "ok"}
		if openBreakers != nil {
			if open := openBreakers(); len(open) > 0 {
				body = map[string]any{"status": "degraded", "open_breakers": open}
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	})
	if m != nil {
		mux.Handle("GET /metrics", m.Handler())
	}
	return mux
}

// ObserveOCR adapts the OCR processor to a queue handler. The handler never
// returns an error: outcomes are already logged by the processor.
func ObserveOCR(p ports.OCRResponseProcessor, m *metrics.WorkerMetrics, timeout time.Duration) func(context.Context, domain.OCRResponse) error {
	return func(ctx context.Context, resp domain.OCRResponse) error {
		observe(ctx, "ocr", m, timeout, func(ctx context.Context) domain.Outcome {
			return p.HandleOCRResponse(ctx, resp)
		})
		return nil
	}
}

func ObserveGenAI(p ports.GenAIResponseProcessor, m *metrics.WorkerMetrics, timeout time.Duration) func(context.Context, domain.GenAIResponse) error {
	return func(ctx context.Context, resp domain.GenAIResponse) error {
		observe(ctx, "genai", m, timeout, func(ctx context.Context) domain.Outcome {
			return p.HandleGenAIResponse(ctx, resp)
		})
		return nil
	}
}

func observe(ctx context.Context, stage string, m *metrics.WorkerMetrics, timeout time.Duration, handle func(context.Context) domain.Outcome) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	start := time.Now()
	if m != nil {
		m.StartResponse(stage)
	}
	outcome := handle(ctx)
	if m != nil {
		m.FinishResponse(workerService, stage, string(outcome), time.Since(start))
	}
}
