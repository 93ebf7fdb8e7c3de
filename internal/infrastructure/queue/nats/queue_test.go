package nats

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/nats-io/nats.go"
)

func TestConsumerNameReplacesSubjectTokens(t *testing.T) {
	if got := consumerName("documents.ocr.processing.response"); got != "documents_ocr_processing_response" {
		t.Fatalf("unexpected durable name %q", got)
	}
}

func TestClassifyNATSError(t *testing.T) {
	if class := classifyNATSError(fmt.Errorf("publish: %w", nats.ErrNoServers)); !class.Retryable || !class.RecordFailure {
		t.Fatalf("expected no-servers to be retryable, got %+v", class)
	}
	if class := classifyNATSError(context.Canceled); class.Retryable || class.RecordFailure {
		t.Fatalf("expected cancellation to be neither retried nor recorded, got %+v", class)
	}
	if class := classifyNATSError(errors.New("permissions violation")); class.Retryable {
		t.Fatalf("expected unknown error to be permanent, got %+v", class)
	}
}
