package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/septivank/invoice-review/internal/api"
	"github.com/septivank/invoice-review/internal/audit"
	"github.com/septivank/invoice-review/internal/config"
	"github.com/septivank/invoice-review/internal/db"
	"github.com/septivank/invoice-review/internal/extraction"
	"github.com/septivank/invoice-review/internal/ingest"
	"github.com/septivank/invoice-review/internal/logging"
	"github.com/septivank/invoice-review/internal/mq"
	"github.com/septivank/invoice-review/internal/repository"
	"github.com/septivank/invoice-review/internal/review"
	"github.com/septivank/invoice-review/internal/service"
	"github.com/septivank/invoice-review/internal/triage"
	"github.com/septivank/invoice-review/internal/validator"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.NewLogger(cfg.ServiceName)
}

// ProvideRepository returns nil when no database is configured
func ProvideRepository(lc fx.Lifecycle, logger *zap.Logger, cfg *config.Config) (*repository.Repository, error) {
	if cfg.Database.URL == "" {
		logger.Warn("DATABASE_URL not set, review state is kept in memory only")
		return nil, nil
	}

	pool, err := db.NewPool(lc, logger, cfg.Database.URL)
	if err != nil {
		return nil, err
	}
	return repository.NewRepository(pool, logger), nil
}

// ProvideAuditLog creates the audit log, durable when a repository exists
func ProvideAuditLog(repo *repository.Repository, logger *zap.Logger) *audit.Log {
	var store audit.Store
	if repo != nil {
		store = repo
	}
	return audit.NewLog(store, logger)
}

// ProvideValidator creates a new validator instance
func ProvideValidator(cfg *config.Config) *validator.Validator {
	return validator.NewValidator(cfg.Validation.MaxBillingPeriodDays)
}

// ProvideClassifier creates a new triage classifier instance
func ProvideClassifier(cfg *config.Config) *triage.Classifier {
	return triage.NewClassifier(cfg.Triage.HighThreshold, cfg.Triage.MediumThreshold)
}

// ProvideQueue creates a new review queue instance
func ProvideQueue(log *audit.Log, v *validator.Validator, logger *zap.Logger) *review.Queue {
	return review.NewQueue(log, v, logger)
}

// ProvideRenderer creates a new upload renderer instance
func ProvideRenderer(cfg *config.Config, logger *zap.Logger) (*ingest.Renderer, error) {
	return ingest.NewRenderer(cfg.Ingest.ImageDir, cfg.Ingest.PdftoppmPath, cfg.Ingest.MaxUploadBytes, logger)
}

// ProvideExtractor returns nil when no extraction service is configured
func ProvideExtractor(cfg *config.Config, renderer *ingest.Renderer, logger *zap.Logger) extraction.Extractor {
	if cfg.Extraction.URL == "" {
		logger.Warn("EXTRACTION_URL not set, uploads are disabled")
		return nil
	}
	return extraction.NewHTTPClient(cfg.Extraction.URL, cfg.Extraction.Timeout(), renderer, logger)
}

// ProvideMQConnection returns nil when no broker is configured
func ProvideMQConnection(lc fx.Lifecycle, logger *zap.Logger, cfg *config.Config) (*mq.Connection, error) {
	if cfg.RabbitMQ.URL == "" {
		logger.Warn("RABBITMQ_URL not set, intake consumer and decision events are disabled")
		return nil, nil
	}
	return mq.NewConnection(lc, logger, cfg.RabbitMQ.URL)
}

// ProvideNotifier publishes decisions to RabbitMQ, or drops them without a broker
func ProvideNotifier(lc fx.Lifecycle, conn *mq.Connection, cfg *config.Config, logger *zap.Logger) (service.Notifier, error) {
	if conn == nil {
		return service.NoopNotifier{}, nil
	}

	publisher, err := mq.NewPublisher(conn, cfg.RabbitMQ.DecisionExchange, cfg.RabbitMQ.DecisionRoutingPrefix, logger)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return publisher.Close()
		},
	})
	return publisher, nil
}

// ProvideQueueController creates a new queue controller instance
func ProvideQueueController(
	queue *review.Queue,
	log *audit.Log,
	classifier *triage.Classifier,
	v *validator.Validator,
	renderer *ingest.Renderer,
	extractor extraction.Extractor,
	notifier service.Notifier,
	logger *zap.Logger,
) *service.QueueController {
	return service.NewQueueController(queue, log, classifier, v, renderer, extractor, notifier, logger)
}

// ProvideRouter creates the HTTP API router
func ProvideRouter(controller *service.QueueController, cfg *config.Config, logger *zap.Logger) http.Handler {
	return api.NewRouter(api.NewHandler(controller, cfg.Ingest.MaxUploadBytes, logger))
}

// restoreState reloads the audit trail and the live records before any
// consumer or HTTP request can touch the queue
func restoreState(lc fx.Lifecycle, repo *repository.Repository, log *audit.Log, queue *review.Queue, logger *zap.Logger) {
	if repo == nil {
		return
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := repo.Migrate(ctx); err != nil {
				return fmt.Errorf("[DATABASE] %w", err)
			}

			events, err := repo.LoadEvents(ctx)
			if err != nil {
				return fmt.Errorf("[DATABASE] %w", err)
			}
			if err := log.Restore(events); err != nil {
				return err
			}

			records, err := repo.LoadLiveRecords(ctx)
			if err != nil {
				return fmt.Errorf("[DATABASE] %w", err)
			}
			if err := queue.Restore(records); err != nil {
				return err
			}

			logger.Info("review state restored",
				zap.Int("events", len(events)),
				zap.Int("live_records", len(records)),
			)
			return nil
		},
	})
}

func startIntakeConsumer(
	lc fx.Lifecycle,
	conn *mq.Connection,
	cfg *config.Config,
	controller *service.QueueController,
	logger *zap.Logger,
) error {
	if conn == nil {
		return nil
	}

	consumer, err := mq.NewConsumer(mq.ConsumerConfig{
		Connection:    conn,
		Queue:         cfg.RabbitMQ.IntakeQueue,
		DLQQueue:      cfg.RabbitMQ.DLQQueue,
		Exchange:      cfg.RabbitMQ.IntakeExchange,
		RoutingKey:    cfg.RabbitMQ.IntakeRoutingKey,
		PrefetchCount: cfg.RabbitMQ.PrefetchCount,
		Logger:        logger,
		Handler:       controller.ProcessExtractionMessage,
		IsRetryable:   review.IsRetryable,
	})
	if err != nil {
		return err
	}

	consumer.RegisterLifecycle(lc)
	return nil
}

func startHTTPServer(lc fx.Lifecycle, cfg *config.Config, handler http.Handler, logger *zap.Logger) {
	api.NewServer(lc, cfg.ServicePort, handler, logger)
}
