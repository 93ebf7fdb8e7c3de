package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
)

// Topology names the routing keys and durable queues shared by the pipeline
// and its workers. On JetStream the exchange is the stream subject prefix, on
// Kafka routing keys are topics and queues are consumer groups.
type Topology struct {
	Exchange string

	OCRRequestKey    string
	OCRResponseKey   string
	GenAIRequestKey  string
	GenAIResponseKey string

	OCRQueue           string
	OCRResponseQueue   string
	GenAIQueue         string
	GenAIResponseQueue string
}

func DefaultTopology() Topology {
	return Topology{
		Exchange:           "documents.operations",
		OCRRequestKey:      "documents.ocr.request",
		OCRResponseKey:     "documents.ocr.response",
		GenAIRequestKey:    "documents.genai.request",
		GenAIResponseKey:   "documents.genai.response",
		OCRQueue:           "documents.ocr.processing",
		OCRResponseQueue:   "documents.ocr.processing.response",
		GenAIQueue:         "documents.genai.processing",
		GenAIResponseQueue: "documents.genai.processing.response",
	}
}

// WithDefaults fills empty fields from DefaultTopology.
func (t Topology) WithDefaults() Topology {
	d := DefaultTopology()
	fill := func(v *string, def string) {
		if strings.TrimSpace(*v) == "" {
			*v = def
		}
	}
	fill(&t.Exchange, d.Exchange)
	fill(&t.OCRRequestKey, d.OCRRequestKey)
	fill(&t.OCRResponseKey, d.OCRResponseKey)
	fill(&t.GenAIRequestKey, d.GenAIRequestKey)
	fill(&t.GenAIResponseKey, d.GenAIResponseKey)
	fill(&t.OCRQueue, d.OCRQueue)
	fill(&t.OCRResponseQueue, d.OCRResponseQueue)
	fill(&t.GenAIQueue, d.GenAIQueue)
	fill(&t.GenAIResponseQueue, d.GenAIResponseQueue)
	return t
}

// Binding pairs a durable queue with the routing key it is bound to.
type Binding struct {
	Queue      string
	RoutingKey string
}

func (t Topology) Bindings() []Binding {
	return []Binding{
		{Queue: t.OCRQueue, RoutingKey: t.OCRRequestKey},
		{Queue: t.OCRResponseQueue, RoutingKey: t.OCRResponseKey},
		{Queue: t.GenAIQueue, RoutingKey: t.GenAIRequestKey},
		{Queue: t.GenAIResponseQueue, RoutingKey: t.GenAIResponseKey},
	}
}

// Dispatch decodes one message body and hands it to handler. Malformed
// bodies and handler panics are logged and swallowed so the caller can ack
// the message and move on.
func Dispatch[T any](ctx context.Context, queueName string, body []byte, handler func(context.Context, T) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("queue_handler_panic", "queue", queueName, "panic", fmt.Sprint(r))
			err = nil
		}
	}()

	var msg T
	if decodeErr := json.Unmarshal(body, &msg); decodeErr != nil {
		slog.Warn("queue_message_malformed", "queue", queueName, "error", decodeErr, "bytes", len(body))
		return nil
	}
	if handleErr := handler(ctx, msg); handleErr != nil {
		slog.Error("queue_handler_failed", "queue", queueName, "error", handleErr)
		return handleErr
	}
	return nil
}

// Encode marshals a request payload for publishing.
func Encode(v any) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	return body, nil
}
