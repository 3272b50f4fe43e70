package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"fxgate/exchange-rate-service/internal/app/exchange-rate/config"
	"fxgate/exchange-rate-service/internal/app/exchange-rate/entity"
	"fxgate/exchange-rate-service/internal/app/exchange-rate/handler"
	"fxgate/exchange-rate-service/internal/app/exchange-rate/infrastructure/messaging"
	"fxgate/exchange-rate-service/internal/app/exchange-rate/infrastructure/provider"
	"fxgate/exchange-rate-service/internal/app/exchange-rate/processor"
	"fxgate/exchange-rate-service/internal/app/exchange-rate/repository"
	"fxgate/exchange-rate-service/internal/app/exchange-rate/service"
	"fxgate/pkg/logger"
)

const serviceName = "exchange-rate-service"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(serviceName, cfg.LogLevel)

	if cfg.LogstashAddr != "" {
		if err := logger.InitLogstash(cfg.LogstashAddr, serviceName, cfg.LogLevel); err != nil {
			logger.Warn().Err(err).Msg("Failed to connect to Logstash, using stdout only")
		} else {
			logger.Info().Str("logstash_addr", cfg.LogstashAddr).Msg("Connected to Logstash")
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// PostgreSQL нужен только для журналов, без него курсы продолжают обслуживаться
	var (
		updateLogRepo    repository.UpdateLogRepository
		webhookEventRepo repository.WebhookEventRepository
	)
	db, err := connectDB(cfg.Database)
	if err != nil {
		logger.Error().Err(err).Msg("PostgreSQL unavailable, audit logs disabled")
	} else {
		logger.Info().
			Str("host", cfg.Database.Host).
			Str("database", cfg.Database.DBName).
			Msg("Connected to PostgreSQL")

		if err := db.AutoMigrate(&entity.RateUpdateLog{}, &entity.WebhookEvent{}); err != nil {
			logger.Fatal().Err(err).Msg("Failed to migrate database")
		}
		updateLogRepo = repository.NewUpdateLogRepository(db)
		webhookEventRepo = repository.NewWebhookEventRepository(db)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	var snapshots repository.RateSnapshotRepository
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Error().Err(err).Str("addr", cfg.Redis.Address()).Msg("Redis unavailable, rate snapshots disabled")
	} else {
		logger.Info().Str("addr", cfg.Redis.Address()).Msg("Connected to Redis")
		snapshots = repository.NewRateSnapshotRepository(redisClient, cfg.Redis.SnapshotTTL)
	}

	history := repository.NewHistoryLog()
	store := repository.NewRateStore(history)
	store.Register(cfg.Rates.SupportedCurrencies...)
	warmStart(ctx, store, snapshots, cfg.Rates.SupportedCurrencies)

	rateProvider := provider.NewFallbackProvider(
		provider.NewExchangeRateAPIProvider(cfg.ExchangeAPI.PrimaryURL, cfg.ExchangeAPI.APIKey, cfg.Rates.BaseCurrency, cfg.ExchangeAPI.Timeout),
		provider.NewFXRatesAPIProvider(cfg.ExchangeAPI.BackupURL, cfg.Rates.BaseCurrency, cfg.ExchangeAPI.Timeout),
	)

	kafkaProducer := messaging.NewKafkaProducer(cfg.Kafka.Brokers, cfg.Kafka.EventsTopic)
	defer kafkaProducer.Close()
	logger.Info().
		Str("topic", cfg.Kafka.EventsTopic).
		Msg("Initialized Kafka producer")

	scheduler := service.NewRefreshScheduler(store, rateProvider, updateLogRepo, snapshots, kafkaProducer, service.RefreshSchedulerConfig{
		BaseCurrency:    cfg.Rates.BaseCurrency,
		TTL:             cfg.Rates.TTL,
		MaxTaskDuration: cfg.Rates.MaxTaskDuration,
		FailureCooldown: cfg.Rates.FailureCooldown,
		JobRetention:    cfg.Rates.JobRetention,
	})

	defaultFee, err := decimal.NewFromString(cfg.Rates.DefaultFeePercent)
	if err != nil {
		logger.Fatal().Err(err).Str("value", cfg.Rates.DefaultFeePercent).Msg("Invalid DEFAULT_SERVICE_FEE_PERCENTAGE")
	}
	rateService := service.NewRateService(store, history, scheduler, service.NewCalculationEngine(defaultFee), service.RateServiceConfig{
		BaseCurrency:     cfg.Rates.BaseCurrency,
		MaxStaleness:     cfg.Rates.MaxStaleness,
		HistoryRetention: cfg.Rates.HistoryRetention,
	})

	verifiers, err := service.BuildVerifiers(cfg.Webhook.HMACSecrets, cfg.Webhook.PublicKeys)
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid webhook provider keys")
	}
	if len(verifiers) == 0 {
		logger.Warn().Msg("No webhook providers configured, all webhooks will be rejected")
	}

	transactions := repository.NewTransactionStore()
	reconciler := service.NewWebhookReconciler(
		verifiers,
		newDedupSet(cfg.Webhook.DedupBackend, redisClient, snapshots != nil),
		store,
		transactions,
		webhookEventRepo,
		kafkaProducer,
		service.WebhookReconcilerConfig{
			BaseCurrency: cfg.Rates.BaseCurrency,
			TTL:          cfg.Rates.TTL,
			ReplayWindow: cfg.Webhook.ReplayWindow,
			ClockSkew:    cfg.Webhook.ClockSkew,
		},
	)
	transactionService := service.NewTransactionService(transactions)

	cronScheduler := processor.NewCronScheduler(scheduler, rateService, reconciler)
	if err := cronScheduler.Start(ctx, cfg.Rates.RefreshSchedule()); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start cron scheduler")
	}

	kafkaConsumer := processor.NewKafkaConsumer(
		cfg.Kafka.Brokers,
		cfg.Kafka.RequestsTopic,
		cfg.Kafka.GroupID,
		cfg.Kafka.MinBytes,
		cfg.Kafka.MaxBytes,
		scheduler,
	)
	kafkaConsumer.Start(ctx)

	rateLimiter, err := handler.NewIPRateLimiter(cfg.RateLimit.Rate)
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid RATE_LIMIT")
	}

	var redisForHealth *redis.Client
	if snapshots != nil {
		redisForHealth = redisClient
	}
	router := handler.SetupRoutes(handler.Handlers{
		Rates:        handler.NewRateHandler(rateService, scheduler),
		Webhooks:     handler.NewWebhookHandler(reconciler),
		Transactions: handler.NewTransactionHandler(transactionService),
		Health:       handler.NewHealthCheckHandler(db, redisForHealth, rateService),
	}, handler.NewAuthMiddleware(cfg.JWT.Secret), rateLimiter)

	server := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().
			Str("address", cfg.Server.Address()).
			Str("base_currency", cfg.Rates.BaseCurrency).
			Strs("currencies", cfg.Rates.SupportedCurrencies).
			Msg("Starting Exchange Rate Service")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down Exchange Rate Service...")

	cronScheduler.Stop()
	cancel()
	kafkaConsumer.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	logger.Info().Msg("Exchange Rate Service stopped gracefully")
}

// warmStart заполняет RateStore снимком из Redis, чтобы после рестарта было что отдавать до первого обновления
func warmStart(ctx context.Context, store *repository.RateStore, snapshots repository.RateSnapshotRepository, currencies []string) {
	if snapshots == nil {
		return
	}

	records, err := snapshots.LoadAll(ctx, currencies)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to load rate snapshot")
		return
	}

	loaded := 0
	for _, rec := range records {
		if _, err := store.Put(rec); err != nil {
			logger.Warn().Err(err).Str("currency", rec.CurrencyCode).Msg("Skipping invalid rate snapshot")
			continue
		}
		loaded++
	}
	logger.Info().Int("loaded", loaded).Msg("Rate store warmed from snapshot")
}

func newDedupSet(backend string, client *redis.Client, redisAvailable bool) repository.DedupSet {
	if backend == "redis" {
		if redisAvailable {
			return repository.NewRedisDedupSet(client)
		}
		logger.Warn().Msg("Redis dedup backend requested but Redis is unavailable, using memory")
	}
	return repository.NewMemoryDedupSet()
}

func connectDB(cfg config.DatabaseConfig) (*gorm.DB, error) {
	gormConfig := &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	}

	var db *gorm.DB
	var err error

	for i := 0; i < 5; i++ {
		db, err = gorm.Open(postgres.Open(cfg.DSN()), gormConfig)
		if err == nil {
			sqlDB, sqlErr := db.DB()
			if sqlErr != nil {
				err = sqlErr
			} else {
				pingErr := sqlDB.Ping()
				if pingErr != nil {
					err = pingErr
				} else {
					sqlDB.SetMaxOpenConns(25)
					sqlDB.SetMaxIdleConns(5)
					sqlDB.SetConnMaxLifetime(5 * time.Minute)
					sqlDB.SetConnMaxIdleTime(1 * time.Minute)
					return db, nil
				}
			}
		}
		logger.Warn().
			Int("attempt", i+1).
			Err(err).
			Msg("Failed to connect to database, retrying...")
		time.Sleep(3 * time.Second)
	}

	return nil, fmt.Errorf("failed to connect after 5 attempts: %w", err)
}
