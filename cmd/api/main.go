package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/example/allocation/internal/api"
	"github.com/example/allocation/internal/command"
	"github.com/example/allocation/internal/config"
	"github.com/example/allocation/internal/domain/allocation"
	"github.com/example/allocation/internal/infrastructure/kafka"
	"github.com/example/allocation/internal/infrastructure/store"
	"github.com/example/allocation/internal/logging"
	"github.com/example/allocation/internal/projection"
	"github.com/example/allocation/internal/query"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := logging.New(config.ServiceName, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("allocation service stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	readStore := store.NewReadStore()
	projector := projection.NewProjector(readStore, logger)

	// Kafka carries events to the projector; without it the projector
	// is fed directly by the event store.
	var publisher store.Publisher = projector
	if cfg.UseKafka() {
		producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer producer.Close()
		publisher = producer
	}

	var eventStore store.EventStoreInterface
	if cfg.UsePostgres() {
		db, err := store.ConnectPostgres(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := store.EnsureSchema(ctx, db); err != nil {
			return err
		}
		eventStore = store.NewPostgresEventStore(db, publisher, logger)
		logger.Info("using postgres event store")
	} else {
		eventStore = store.NewEventStore(publisher, logger)
		logger.Info("using in-memory event store")
	}

	if err := replayEvents(ctx, eventStore, projector, logger); err != nil {
		return err
	}

	var wg sync.WaitGroup
	if cfg.UseKafka() {
		consumer := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupID, logger)
		defer consumer.Close()

		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Info("starting kafka consumer", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
			if err := consumer.Consume(ctx, projector.HandleEvent); err != nil && ctx.Err() == nil {
				logger.Error("projector error", zap.Error(err))
			}
		}()
	}

	allocationSvc := allocation.NewService(eventStore, logger)
	handlers := api.NewHandlers(command.NewHandler(allocationSvc), query.NewHandler(readStore))

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.NewRouter(handlers, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server started", zap.String("addr", cfg.HTTPAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
	case err := <-serverErr:
		return err
	}

	logger.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown", zap.Error(err))
	}

	wg.Wait()
	return nil
}

// replayEvents rebuilds the read models from every stored event
func replayEvents(ctx context.Context, eventStore store.EventStoreInterface, projector *projection.Projector, logger *zap.Logger) error {
	events, err := eventStore.GetAllEvents(ctx)
	if err != nil {
		return fmt.Errorf("failed to load events for replay: %w", err)
	}
	logger.Info("replaying events", zap.Int("count", len(events)))

	for _, event := range events {
		if err := projector.Apply(event); err != nil {
			logger.Warn("error replaying event", zap.String("event_id", event.ID), zap.Error(err))
		}
	}
	return nil
}
