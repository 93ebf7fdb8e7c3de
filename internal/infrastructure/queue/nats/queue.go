package nats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/paperless-pipeline/internal/core/domain"
	"github.com/kirillkom/paperless-pipeline/internal/infrastructure/queue"
	"github.com/kirillkom/paperless-pipeline/internal/infrastructure/resilience"
)

// Queue carries pipeline messages over NATS JetStream. Routing keys are
// subjects of one stream; queues are durable pull consumers filtered on
// their routing key.
type Queue struct {
	conn        *nats.Conn
	js          jetstream.JetStream
	stream      string
	topology    queue.Topology
	concurrency int
	executor    *resilience.Executor
}

type Options struct {
	Stream      string
	Topology    queue.Topology
	Concurrency int

	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
}

func New(ctx context.Context, url string, options Options) (*Queue, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}
	stream := options.Stream
	if stream == "" {
		stream = "DOCUMENTS"
	}
	concurrency := options.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}

	conn, err := nats.Connect(
		url,
		nats.Name("paperless-pipeline"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}

	q := &Queue{
		conn:        conn,
		js:          js,
		stream:      stream,
		topology:    options.Topology.WithDefaults(),
		concurrency: concurrency,
		executor:    options.ResilienceExecutor,
	}
	if err := q.declare(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return q, nil
}

// declare creates the stream and one durable consumer per queue. Requests
// published before any worker attaches are retained.
func (q *Queue) declare(ctx context.Context) error {
	bindings := q.topology.Bindings()
	subjects := make([]string, 0, len(bindings))
	for _, b := range bindings {
		subjects = append(subjects, b.RoutingKey)
	}
	_, err := q.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        q.stream,
		Description: q.topology.Exchange,
		Subjects:    subjects,
		Storage:     jetstream.FileStorage,
		Retention:   jetstream.LimitsPolicy,
	})
	if err != nil {
		return fmt.Errorf("declare stream %s: %w", q.stream, err)
	}
	for _, b := range bindings {
		if _, err := q.consumer(ctx, b); err != nil {
			return err
		}
	}
	return nil
}

func (q *Queue) consumer(ctx context.Context, b queue.Binding) (jetstream.Consumer, error) {
	cons, err := q.js.CreateOrUpdateConsumer(ctx, q.stream, jetstream.ConsumerConfig{
		Durable:       consumerName(b.Queue),
		FilterSubject: b.RoutingKey,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       2 * time.Minute,
		MaxAckPending: 1000,
	})
	if err != nil {
		return nil, fmt.Errorf("declare consumer %s: %w", b.Queue, err)
	}
	return cons, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *Queue) PublishOCRRequest(ctx context.Context, req domain.OCRRequest) error {
	return q.publish(ctx, q.topology.OCRRequestKey, req.DocumentID, req)
}

func (q *Queue) PublishGenAIRequest(ctx context.Context, req domain.GenAIRequest) error {
	return q.publish(ctx, q.topology.GenAIRequestKey, req.DocumentID, req)
}

func (q *Queue) publish(ctx context.Context, subject, documentID string, payload any) error {
	body, err := queue.Encode(payload)
	if err != nil {
		return err
	}
	err = resilience.Run(ctx, q.executor, "nats.publish", func(ctx context.Context) error {
		if _, err := q.js.Publish(ctx, subject, body); err != nil {
			return fmt.Errorf("jetstream publish %s: %w", subject, err)
		}
		return nil
	}, classifyNATSError)
	if err != nil {
		return resilience.WrapTemporary("nats publish", err, classifyNATSError)
	}
	slog.Debug("message_published", "subject", subject, "document_id", documentID)
	return nil
}

func (q *Queue) ConsumeOCRResponses(ctx context.Context, handler func(context.Context, domain.OCRResponse) error) error {
	return consume(ctx, q, queue.Binding{Queue: q.topology.OCRResponseQueue, RoutingKey: q.topology.OCRResponseKey}, handler)
}

func (q *Queue) ConsumeGenAIResponses(ctx context.Context, handler func(context.Context, domain.GenAIResponse) error) error {
	return consume(ctx, q, queue.Binding{Queue: q.topology.GenAIResponseQueue, RoutingKey: q.topology.GenAIResponseKey}, handler)
}

// consume pulls from the durable consumer of b until ctx is cancelled,
// running at most q.concurrency handlers at a time. Every delivered message
// is acked once its handler returns.
func consume[T any](ctx context.Context, q *Queue, b queue.Binding, handler func(context.Context, T) error) error {
	cons, err := q.consumer(ctx, b)
	if err != nil {
		return err
	}
	iter, err := cons.Messages(jetstream.PullMaxMessages(q.concurrency))
	if err != nil {
		return fmt.Errorf("jetstream messages %s: %w", b.Queue, err)
	}
	go func() {
		<-ctx.Done()
		iter.Drain()
	}()

	slog.Info("consumer_started", "queue", b.Queue, "subject", b.RoutingKey, "concurrency", q.concurrency)
	// In-flight handlers finish after shutdown starts; their messages are
	// acked, so they must not see the cancellation.
	handlerCtx := context.WithoutCancel(ctx)
	g := new(errgroup.Group)
	g.SetLimit(q.concurrency)
	for {
		msg, err := iter.Next()
		if err != nil {
			if errors.Is(err, jetstream.ErrMsgIteratorClosed) {
				break
			}
			slog.Warn("consumer_fetch_failed", "queue", b.Queue, "error", err)
			continue
		}
		g.Go(func() error {
			_ = queue.Dispatch(handlerCtx, b.Queue, msg.Data(), handler)
			if err := msg.Ack(); err != nil {
				slog.Warn("message_ack_failed", "queue", b.Queue, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
	slog.Info("consumer_stopped", "queue", b.Queue)
	return nil
}

// consumerName maps a queue name onto a valid durable name; JetStream
// rejects dots in durable names.
func consumerName(queueName string) string {
	out := []byte(queueName)
	for i, c := range out {
		if c == '.' || c == ' ' || c == '*' || c == '>' {
			out[i] = '_'
		}
	}
	return string(out)
}
