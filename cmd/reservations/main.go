package main

import (
	"context"

	"slotkeeper/internal/reservations/events"
	"slotkeeper/internal/reservations/handler"
	"slotkeeper/internal/reservations/interval"
	"slotkeeper/internal/reservations/payment"
	"slotkeeper/internal/reservations/pool"
	"slotkeeper/internal/reservations/repository"
	"slotkeeper/internal/reservations/service"
	"slotkeeper/internal/reservations/validator"
	"slotkeeper/pkg/app"
	"slotkeeper/pkg/auth"
	"slotkeeper/pkg/config"
	"slotkeeper/pkg/kafka"
	"slotkeeper/pkg/middleware"
	"slotkeeper/pkg/tracing"
)

const ServiceName = "reservations"

func main() {
	cfg := config.Load(ServiceName)
	cfg.Connect()

	cfg.Log.Info("Starting Reservations service")

	shutdownTracing, err := tracing.Init(context.Background(), ServiceName, cfg.OtelEndpoint)
	if err != nil {
		cfg.Log.Fatal("Failed to initialise tracing", "error", err)
	}

	unitPool, err := pool.New(cfg.PoolSize)
	if err != nil {
		cfg.Log.Fatal("Invalid unit pool", "error", err)
	}
	index := interval.New(unitPool, cfg.PendingTTL)

	ledger := repository.Traced(initLedger(cfg, index), cfg.StorageDriver)
	publisher := initPublisher(cfg)
	bookingService := initServices(cfg, unitPool, index, ledger, publisher)
	reaper := service.NewReaper(ledger, publisher, cfg.ReapInterval, cfg.ReapBatchSize, cfg.Log)

	serverApp := app.NewApplication()
	serverApp.SetApp(cfg,
		initResolver(cfg),
		handler.NewHealthHandler(ledger, cfg.StorageDriver, cfg.Log),
		handler.NewBookingHandler(bookingService, cfg.Log),
	)
	serverApp.AddWorker(reaper)
	serverApp.AddCloser("event-publisher", publisher)
	serverApp.OnShutdown(shutdownTracing)
	serverApp.Run()
}

func initLedger(cfg *config.Config, index interval.Index) repository.Ledger {
	opts := repository.Options{
		Index: index,
		Log:   cfg.Log,
	}

	switch cfg.StorageDriver {
	case config.StorageMongo:
		cfg.Log.Info("Ledger backed by MongoDB", "database", cfg.MongoDatabaseName)
		return repository.NewMongoLedger(cfg.Client.Mongo, cfg.MongoDatabaseName, opts)
	case config.StoragePostgres:
		cfg.Log.Info("Ledger backed by Postgres")
		return repository.NewPostgresLedger(cfg.Client.Postgres, opts)
	default:
		cfg.Log.Warn("Ledger kept in process memory, state is lost on restart")
		return repository.NewMemoryLedger(opts)
	}
}

func initPublisher(cfg *config.Config) events.Publisher {
	if !cfg.EventsEnabled {
		cfg.Log.Info("Lifecycle events disabled")
		return events.NoopPublisher{}
	}

	producer, err := kafka.NewProducer(cfg.Kafka, cfg.EventsTopic, cfg.Log)
	if err != nil {
		cfg.Log.Fatal("Failed to create Kafka producer", "error", err)
	}
	return events.NewKafkaPublisher(producer, cfg.Kafka.PublishTimeout, cfg.Log)
}

func initServices(
	cfg *config.Config,
	unitPool pool.Pool,
	index interval.Index,
	ledger repository.Ledger,
	publisher events.Publisher,
) service.BookingService {
	capturer, err := payment.NewSimulated(cfg.PaymentMode, cfg.Log)
	if err != nil {
		cfg.Log.Fatal("Invalid payment mode", "error", err)
	}

	bookingService := service.NewBookingService(
		ledger,
		capturer,
		validator.NewBookingValidator(unitPool, cfg.Log),
		publisher,
		service.Config{
			Index:       index,
			AmountCents: cfg.BookingAmountCents,
			Currency:    cfg.BookingCurrency,
			Log:         cfg.Log,
		},
	)

	cfg.Log.Info("Booking service initialized",
		"storage_driver", cfg.StorageDriver,
		"pool_size", unitPool.Size(),
	)
	return bookingService
}

func initResolver(cfg *config.Config) middleware.SubjectResolver {
	if cfg.AuthMode == config.AuthModeHeader {
		cfg.Log.Warn("Trusting identity headers from upstream gateway")
		return middleware.HeaderResolver{}
	}
	return middleware.BearerResolver{Tokens: auth.NewTokenIssuer(cfg.JWTSecret)}
}
