package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kirillkom/paperless-pipeline/internal/config"
	"github.com/kirillkom/paperless-pipeline/internal/core/ports"
	"github.com/kirillkom/paperless-pipeline/internal/core/usecase"
	rediscache "github.com/kirillkom/paperless-pipeline/internal/infrastructure/cache/redis"
	"github.com/kirillkom/paperless-pipeline/internal/infrastructure/queue"
	"github.com/kirillkom/paperless-pipeline/internal/infrastructure/queue/kafka"
	"github.com/kirillkom/paperless-pipeline/internal/infrastructure/queue/nats"
	"github.com/kirillkom/paperless-pipeline/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/paperless-pipeline/internal/infrastructure/resilience"
	"github.com/kirillkom/paperless-pipeline/internal/infrastructure/search/qdrant"
	"github.com/kirillkom/paperless-pipeline/internal/infrastructure/storage/localfs"
	miniostorage "github.com/kirillkom/paperless-pipeline/internal/infrastructure/storage/minio"
)

// Broker is a message broker adapter able to both publish requests and
// consume responses.
type Broker interface {
	ports.RequestQueue
	ports.ResponseQueue
	Close()
}

type App struct {
	Config config.Config

	Repo   ports.DocumentRepository
	Store  ports.ObjectStore
	Broker Broker
	Index  ports.SearchIndex
	Cache  ports.StatusCache

	Executor *resilience.Executor

	Uploader     *usecase.UploadUseCase
	Documents    *usecase.DocumentService
	OCRHandler   *usecase.OCRResponseHandler
	GenAIHandler *usecase.GenAIResponseHandler
	Reaper       *usecase.StuckDocumentReaper

	closers []func()
}

// Options carries process-specific hooks into the shared wiring.
type Options struct {
	// OnBreakerStateChange receives every circuit breaker transition.
	OnBreakerStateChange func(operation, state string)
}

func New(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	app := &App{Config: cfg}
	ok := false
	defer func() {
		if !ok {
			app.Close()
		}
	}()

	var err error

	rc := resilienceConfig(cfg)
	rc.OnStateChange = opts.OnBreakerStateChange
	executor := resilience.NewExecutor(rc)
	app.Executor = executor

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	app.closers = append(app.closers, func() { _ = db.Close() })
	repo := postgres.NewDocumentRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	app.Repo = repo

	app.Store, err = newObjectStore(ctx, cfg, executor)
	if err != nil {
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	app.Broker, err = newBroker(ctx, cfg, executor)
	if err != nil {
		return nil, fmt.Errorf("init message broker: %w", err)
	}
	app.closers = append(app.closers, app.Broker.Close)

	if cfg.QdrantURL != "" {
		app.Index = qdrant.New(cfg.QdrantURL, cfg.QdrantCollection, executor)
	} else {
		slog.Warn("search_index_disabled")
	}

	if cfg.RedisAddr != "" {
		cache, err := rediscache.New(ctx, rediscache.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			TTL:      cfg.StatusCacheTTL,
		})
		if err != nil {
			return nil, fmt.Errorf("init status cache: %w", err)
		}
		app.closers = append(app.closers, func() { _ = cache.Close() })
		app.Cache = cache
	}

	searchSync := usecase.NewSearchSync(app.Index)
	publisher := usecase.NewRequestPublisher(app.Broker, cfg.GenAIMaxInputChars)
	tiering := usecase.NewTextTieringPolicy(app.Store, cfg.OCRTextBucket, cfg.OCRTextThreshold)

	app.Uploader = usecase.NewUploadUseCase(app.Repo, app.Store, publisher, searchSync, cfg.DocumentsBucket, cfg.MaxUploadBytes)
	app.Documents = usecase.NewDocumentService(app.Repo, app.Store, app.Index, app.Cache, cfg.OCRTextBucket, cfg.PresignExpiry)
	app.OCRHandler = usecase.NewOCRResponseHandler(app.Repo, tiering, searchSync, publisher, app.Cache)
	app.GenAIHandler = usecase.NewGenAIResponseHandler(app.Repo, searchSync, app.Cache)
	app.Reaper = usecase.NewStuckDocumentReaper(app.Repo, searchSync, app.Cache, cfg.StuckDocumentTimeout)

	ok = true
	return app, nil
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func resilienceConfig(cfg config.Config) resilience.Config {
	rc := resilience.DefaultConfig()
	rc.RetryMaxAttempts = cfg.RetryMaxAttempts
	rc.RetryInitialBackoff = cfg.RetryInitialBackoff
	rc.RetryMaxBackoff = cfg.RetryMaxBackoff
	rc.BreakerEnabled = cfg.BreakerEnabled
	rc.BreakerOpenTimeout = cfg.BreakerOpenTimeout
	rc.BreakerFailureRatio = cfg.BreakerFailureRatio
	return rc
}

func topology(cfg config.Config) queue.Topology {
	return queue.Topology{
		Exchange:           cfg.Exchange,
		OCRRequestKey:      cfg.OCRRoutingKeyReq,
		OCRResponseKey:     cfg.OCRRoutingKeyResp,
		GenAIRequestKey:    cfg.GenAIRoutingKeyReq,
		GenAIResponseKey:   cfg.GenAIRoutingKeyResp,
		OCRQueue:           cfg.OCRQueue,
		OCRResponseQueue:   cfg.OCRResponseQueue,
		GenAIQueue:         cfg.GenAIQueue,
		GenAIResponseQueue: cfg.GenAIResponseQueue,
	}.WithDefaults()
}

func newBroker(ctx context.Context, cfg config.Config, executor *resilience.Executor) (Broker, error) {
	switch cfg.Broker {
	case "", "nats":
		return nats.New(ctx, cfg.NATSURL, nats.Options{
			Stream:             cfg.NATSStream,
			Topology:           topology(cfg),
			Concurrency:        cfg.ConsumerConcurrency,
			ResilienceExecutor: executor,
		})
	case "kafka":
		return kafka.New(ctx, cfg.KafkaBrokers, kafka.Options{
			Topology:           topology(cfg),
			Concurrency:        cfg.ConsumerConcurrency,
			ResilienceExecutor: executor,
		})
	default:
		return nil, fmt.Errorf("unknown broker %q", cfg.Broker)
	}
}

func newObjectStore(ctx context.Context, cfg config.Config, executor *resilience.Executor) (ports.ObjectStore, error) {
	switch cfg.StorageBackend {
	case "", "minio":
		return miniostorage.New(ctx, miniostorage.Options{
			Endpoint:           cfg.MinIOEndpoint,
			AccessKey:          cfg.MinIOAccessKey,
			SecretKey:          cfg.MinIOSecretKey,
			UseSSL:             cfg.MinIOUseSSL,
			Buckets:            []string{cfg.DocumentsBucket, cfg.OCRTextBucket},
			ResilienceExecutor: executor,
		})
	case "localfs":
		return localfs.New(cfg.StoragePath)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}
