package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"power-quality-processor/analytics"
	"power-quality-processor/cache"
	"power-quality-processor/config"
	"power-quality-processor/events"
	"power-quality-processor/handlers"
	"power-quality-processor/ingest"
	"power-quality-processor/logger"
	"power-quality-processor/scheduler"
	"power-quality-processor/storage"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to YAML config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := logger.New("power-quality-processor", cfg.LogLevel)
	if err := run(cfg, log); err != nil {
		log.Error("service stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("service exited")
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loc, _ := cfg.Location()
	runAt, _ := cfg.RunAt()

	samples, aggregates, closeStore, err := openStores(ctx, cfg, loc, log)
	if err != nil {
		return err
	}
	defer closeStore()

	var engineOpts []analytics.EngineOption
	engineOpts = append(engineOpts, analytics.WithHooks(handlers.MetricHooks()))

	if cfg.Redis.Addr != "" {
		redisClient, err := cache.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.TTL)
		if err != nil {
			log.Warn("redis unavailable, serving latest sample from the store", "addr", cfg.Redis.Addr, "error", err)
		} else {
			defer redisClient.Close()
			engineOpts = append(engineOpts, analytics.WithCache(redisClient))
			log.Info("connected to redis", "addr", cfg.Redis.Addr)
		}
	}

	hub := handlers.NewHub(log)
	go hub.Run(ctx)
	engineOpts = append(engineOpts, analytics.WithNotifier(hub))

	validator := analytics.NewValidator(cfg.Thresholds)
	engine := analytics.NewEngine(samples, aggregates, validator, analytics.EngineConfig{
		Workers:       cfg.Ingest.Workers,
		QueueSize:     cfg.Ingest.QueueSize,
		RejectInvalid: cfg.Ingest.RejectInvalid,
		Location:      loc,
	}, log, engineOpts...)
	engine.Start(ctx)

	aggregator := analytics.NewAggregator(samples, aggregates, cfg.Thresholds, analytics.AggregatorConfig{
		SamplingInterval: cfg.Aggregation.SamplingInterval,
		IncludeInvalid:   cfg.Aggregation.IncludeInvalid,
		Location:         loc,
	}, log)

	if len(cfg.Kafka.Brokers) > 0 {
		publisher := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer publisher.Close()
		aggregator.SetPublisher(publisher)
		log.Info("publishing daily aggregates to kafka", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	}

	tracker := scheduler.NewTracker(aggregator, scheduler.Config{Location: loc, RunAt: runAt}, log)
	go tracker.Run(ctx)

	if cfg.MQTT.Broker != "" {
		sub := ingest.NewSubscriber(ingest.Config{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Topics:   cfg.MQTT.Topics,
			QoS:      cfg.MQTT.QoS,
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
		}, engine, log)
		if err := sub.Start(ctx); err != nil {
			log.Warn("mqtt initial connect failed, retrying in background", "error", err)
		}
		defer sub.Stop()
	}

	api := handlers.NewAPI(engine, engine, tracker, handlers.APIConfig{
		Location: loc,
		Schedule: fmt.Sprintf("every day at %s", cfg.Aggregation.RunAt),
	}, log)

	srv := &http.Server{
		Addr: cfg.HTTP.Addr,
		Handler: handlers.NewRouter(api, hub, handlers.RouterConfig{
			AllowedOrigins: cfg.HTTP.AllowedOrigins,
			AccessLog:      cfg.HTTP.AccessLog,
		}),
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: 1 << 20,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server starting", "addr", cfg.HTTP.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		stop()
		return fmt.Errorf("http server: %w", err)
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	engine.Wait()
	return nil
}

func openStores(ctx context.Context, cfg *config.Config, loc *time.Location, log *slog.Logger) (storage.SampleStore, storage.AggregateStore, func(), error) {
	if cfg.Database.DSN == "" {
		log.Warn("no database configured, samples and aggregates are kept in memory")
		mem := storage.NewMemoryStore()
		return mem, mem, func() {}, nil
	}

	db, err := storage.Open(ctx, cfg.Database.DSN)
	if err != nil {
		return nil, nil, nil, err
	}
	if !cfg.Database.SkipMigrations {
		if err := storage.Migrate(ctx, db, log); err != nil {
			db.Close()
			return nil, nil, nil, err
		}
	}

	pg := storage.NewPostgresStore(db, loc)
	return pg, pg, func() { db.Close() }, nil
}
