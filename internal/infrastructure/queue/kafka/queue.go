package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/paperless-pipeline/internal/core/domain"
	"github.com/kirillkom/paperless-pipeline/internal/infrastructure/queue"
	"github.com/kirillkom/paperless-pipeline/internal/infrastructure/resilience"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Queue carries pipeline messages over Kafka. Routing keys are topics,
// queues are consumer groups and the document id is the message key, so
// messages for one document stay ordered within a partition.
type Queue struct {
	brokers     []string
	topology    queue.Topology
	concurrency int
	executor    *resilience.Executor

	writer    messageWriter
	newReader func(groupID, topic string) messageReader
}

type Options struct {
	Topology           queue.Topology
	Concurrency        int
	Partitions         int
	ReplicationFactor  int
	ResilienceExecutor *resilience.Executor
}

func New(ctx context.Context, brokers []string, options Options) (*Queue, error) {
	if len(brokers) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "kafka queue", errors.New("no brokers configured"))
	}
	concurrency := options.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	partitions := options.Partitions
	if partitions <= 0 {
		partitions = concurrency
	}
	replication := options.ReplicationFactor
	if replication <= 0 {
		replication = 1
	}

	q := &Queue{
		brokers:     brokers,
		topology:    options.Topology.WithDefaults(),
		concurrency: concurrency,
		executor:    options.ResilienceExecutor,
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
			BatchTimeout:           10 * time.Millisecond,
		},
	}
	q.newReader = func(groupID, topic string) messageReader {
		return kafka.NewReader(kafka.ReaderConfig{
			Brokers:        brokers,
			GroupID:        groupID,
			Topic:          topic,
			MinBytes:       1,
			MaxBytes:       10 << 20,
			MaxWait:        time.Second,
			CommitInterval: 0,
			StartOffset:    kafka.FirstOffset,
		})
	}
	if err := q.declare(ctx, partitions, replication); err != nil {
		_ = q.writer.Close()
		return nil, err
	}
	return q, nil
}

// declare creates one topic per routing key through the cluster controller.
func (q *Queue) declare(ctx context.Context, partitions, replication int) error {
	dialer := &kafka.Dialer{Timeout: 5 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", q.brokers[0])
	if err != nil {
		return fmt.Errorf("dial kafka: %w", err)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("kafka controller: %w", err)
	}
	ctrl, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return fmt.Errorf("dial kafka controller: %w", err)
	}
	defer ctrl.Close()

	bindings := q.topology.Bindings()
	topics := make([]kafka.TopicConfig, 0, len(bindings))
	for _, b := range bindings {
		topics = append(topics, kafka.TopicConfig{
			Topic:             b.RoutingKey,
			NumPartitions:     partitions,
			ReplicationFactor: replication,
		})
	}
	if err := ctrl.CreateTopics(topics...); err != nil && !errors.Is(err, kafka.TopicAlreadyExists) {
		return fmt.Errorf("create kafka topics: %w", err)
	}
	return nil
}

func (q *Queue) Close() {
	if q.writer != nil {
		if err := q.writer.Close(); err != nil {
			slog.Warn("kafka_writer_close_failed", "error", err)
		}
	}
}

func (q *Queue) PublishOCRRequest(ctx context.Context, req domain.OCRRequest) error {
	return q.publish(ctx, q.topology.OCRRequestKey, req.DocumentID, req)
}

func (q *Queue) PublishGenAIRequest(ctx context.Context, req domain.GenAIRequest) error {
	return q.publish(ctx, q.topology.GenAIRequestKey, req.DocumentID, req)
}

func (q *Queue) publish(ctx context.Context, topic, documentID string, payload any) error {
	body, err := queue.Encode(payload)
	if err != nil {
		return err
	}
	err = resilience.Run(ctx, q.executor, "kafka.publish", func(ctx context.Context) error {
		msg := kafka.Message{
			Topic: topic,
			Key:   []byte(documentID),
			Value: body,
		}
		if err := q.writer.WriteMessages(ctx, msg); err != nil {
			return fmt.Errorf("kafka write %s: %w", topic, err)
		}
		return nil
	}, classifyKafkaError)
	if err != nil {
		return resilience.WrapTemporary("kafka publish", err, classifyKafkaError)
	}
	slog.Debug("message_published", "topic", topic, "document_id", documentID)
	return nil
}

func (q *Queue) ConsumeOCRResponses(ctx context.Context, handler func(context.Context, domain.OCRResponse) error) error {
	return consume(ctx, q, queue.Binding{Queue: q.topology.OCRResponseQueue, RoutingKey: q.topology.OCRResponseKey}, handler)
}

func (q *Queue) ConsumeGenAIResponses(ctx context.Context, handler func(context.Context, domain.GenAIResponse) error) error {
	return consume(ctx, q, queue.Binding{Queue: q.topology.GenAIResponseQueue, RoutingKey: q.topology.GenAIResponseKey}, handler)
}

// consume runs q.concurrency readers in the consumer group of b until ctx is
// cancelled. Offsets are committed after each handled message.
func consume[T any](ctx context.Context, q *Queue, b queue.Binding, handler func(context.Context, T) error) error {
	slog.Info("consumer_started", "queue", b.Queue, "topic", b.RoutingKey, "concurrency", q.concurrency)
	handlerCtx := context.WithoutCancel(ctx)

	g := new(errgroup.Group)
	for i := 0; i < q.concurrency; i++ {
		reader := q.newReader(b.Queue, b.RoutingKey)
		g.Go(func() error {
			defer reader.Close()
			for {
				msg, err := reader.FetchMessage(ctx)
				if err != nil {
					if ctx.Err() != nil || errors.Is(err, io.EOF) {
						return nil
					}
					slog.Warn("consumer_fetch_failed", "queue", b.Queue, "error", err)
					continue
				}
				_ = queue.Dispatch(handlerCtx, b.Queue, msg.Value, handler)

				commitCtx, cancel := context.WithTimeout(handlerCtx, 5*time.Second)
				if err := reader.CommitMessages(commitCtx, msg); err != nil {
					slog.Warn("message_commit_failed", "queue", b.Queue, "partition", msg.Partition, "offset", msg.Offset, "error", err)
				}
				cancel()
			}
		})
	}
	err := g.Wait()
	slog.Info("consumer_stopped", "queue", b.Queue)
	return err
}
