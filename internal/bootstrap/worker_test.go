package bootstrap

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/paperless-pipeline/internal/core/domain"
	"github.com/kirillkom/paperless-pipeline/internal/observability/metrics"
)

type ocrProcessorFake struct {
	outcome     domain.Outcome
	hadDeadline bool
}

func (f *ocrProcessorFake) HandleOCRResponse(ctx context.Context, _ domain.OCRResponse) domain.Outcome {
	_, f.hadDeadline = ctx.Deadline()
	return f.outcome
}

type genaiProcessorFake struct{}

func (genaiProcessorFake) HandleGenAIResponse(context.Context, domain.GenAIResponse) domain.Outcome {
	return domain.OutcomeStale
}

func TestObserveRecordsOutcomesAndNeverFails(t *testing.T) {
	m := metrics.NewWorkerMetrics(workerService)
	proc := &ocrProcessorFake{outcome: domain.OutcomeError}

	if err := ObserveOCR(proc, m, time.Minute)(context.Background(), domain.OCRResponse{DocumentID: "x"}); err != nil {
		t.Fatalf("ObserveOCR handler error = %v", err)
	}
	if !proc.hadDeadline {
		t.Fatalf("expected handler to run under a timeout")
	}
	if err := ObserveGenAI(genaiProcessorFake{}, m, 0)(context.Background(), domain.GenAIResponse{}); err != nil {
		t.Fatalf("ObserveGenAI handler error = %v", err)
	}

	res := httptest.NewRecorder()
	workerMux(m, nil).ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(res.Body)
	for _, want := range []string{`outcome="error",service="paperless-worker",stage="ocr"`, `outcome="stale",service="paperless-worker",stage="genai"`} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("missing %q in metrics output", want)
		}
	}
}

func TestObserveWithoutMetrics(t *testing.T) {
	proc := &ocrProcessorFake{outcome: domain.OutcomeApplied}
	if err := ObserveOCR(proc, nil, 0)(context.Background(), domain.OCRResponse{}); err != nil {
		t.Fatalf("handler error = %v", err)
	}
	if proc.hadDeadline {
		t.Fatalf("zero timeout must not set a deadline")
	}
}

func TestWorkerHealthReportsOpenBreakers(t *testing.T) {
	mux := workerMux(nil, func() []string { return []string{"minio.put"} })

	res := httptest.NewRecorder()
	mux.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	body, _ := io.ReadAll(res.Body)
	if !strings.Contains(string(body), `"status":"degraded"`) || !strings.Contains(string(body), "minio.put") {
		t.Fatalf("unexpected health body %s", body)
	}
}
