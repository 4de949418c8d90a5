package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"stayhub/internal/app/commands"
	bookingapp "stayhub/internal/app/handlers/booking"
	payoutapp "stayhub/internal/app/handlers/payout"
	"stayhub/internal/app/middleware"
	"stayhub/internal/app/outbox"
	"stayhub/internal/app/policies"
	"stayhub/internal/app/queries"
	"stayhub/internal/app/schedule"
	"stayhub/internal/app/uow"
	"stayhub/internal/infra/broker/kafka"
	"stayhub/internal/infra/config"
	mongodb "stayhub/internal/infra/db/mongo"
	"stayhub/internal/infra/gateway/notchpay"
	ginserver "stayhub/internal/infra/http/gin"
	"stayhub/internal/infra/obs"
	infraoutbox "stayhub/internal/infra/outbox"
	"stayhub/internal/infra/storage/memory"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("configuration invalid", "error", err)
		os.Exit(1)
	}
	logger := obs.NewLogger(cfg.Env)

	app, err := buildApplication(cfg, logger)
	if err != nil {
		logger.Error("application wiring failed", "error", err)
		os.Exit(1)
	}
	defer app.close(logger)

	server := ginserver.NewServer(cfg, obs.Middleware{Logger: logger}, obs.HealthHandlers{
		Ready: app.ready,
	}, app.handlers)

	payoutWorker := &schedule.Worker{
		Bus:      app.commandBus,
		Interval: cfg.PayoutPollInterval,
		Logger:   logger,
	}
	go func() {
		if err := payoutWorker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("payout worker stopped", "error", err)
		}
	}()

	if app.relay != nil {
		go func() {
			if err := app.relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("outbox relay stopped", "error", err)
			}
		}()
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown failed", "error", err)
		}
	}()

	logger.Info("HTTP server starting", "addr", cfg.HTTPAddr, "env", cfg.Env)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("HTTP server stopped")
}

type application struct {
	handlers   ginserver.Handlers
	commandBus commands.Bus
	relay      *infraoutbox.Worker
	settings   *memory.SettingsStore

	mongoClient *mongodb.Client
	producer    *kafka.Producer
}

func buildApplication(cfg config.Config, logger *slog.Logger) (application, error) {
	var app application

	// The listing, subscription and identity services live outside this
	// module; their read models are served through in-memory directories
	// until the platform adapters land.
	properties := memory.NewPropertyDirectory()
	subscriptions := memory.NewSubscriptionDirectory()
	accounts := memory.NewPayoutAccountDirectory()
	tenants := memory.NewTenantDirectory()
	settings := memory.NewSettingsStore()
	settings.Put(policies.SettingGracePeriodMinutes, strconv.Itoa(cfg.GraceMinutes))
	app.settings = settings
	calendar := memory.NewCalendar()

	var (
		uowFactory  uow.UoWFactory
		idStore     middleware.IdempotencyStore
		outboxStore outbox.Outbox
	)

	if cfg.MongoURI != "" {
		client, err := mongodb.New(cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return app, err
		}
		app.mongoClient = client
		db := client.DB

		uowFactory = mongodb.Factory{
			DB:              db,
			BookingRepo:     mongodb.NewBookingRepository(db),
			PromoRepo:       mongodb.NewPromoRepository(db),
			PayoutRepo:      mongodb.NewPayoutRepository(db),
			CommissionRepo:  mongodb.NewCommissionRepository(db),
			TransactionRepo: mongodb.NewTransactionRepository(db),
			PropertiesDir:   properties,
			CalendarSvc:     calendar,
		}
		idStore = mongodb.NewIdempotencyStore(db, cfg.IdempotencyTTL)

		store := infraoutbox.NewStore(db)
		outboxStore = store

		if len(cfg.KafkaBrokers) > 0 {
			producer, err := kafka.NewProducer(cfg.KafkaBrokers, nil)
			if err != nil {
				return app, err
			}
			app.producer = producer
			app.relay = &infraoutbox.Worker{
				Store:       store,
				Producer:    producer,
				Interval:    cfg.OutboxPollInterval,
				TopicPrefix: cfg.KafkaTopicPrefix,
				Backoff:     cfg.RetryBackoff,
			}
		} else {
			logger.Warn("no kafka brokers configured, outbox records will not be relayed")
		}
	} else {
		uowFactory = memory.Factory{
			BookingRepo:     memory.NewBookingRepository(),
			PromoRepo:       memory.NewPromoRepository(),
			PayoutRepo:      memory.NewPayoutRepository(),
			CommissionRepo:  memory.NewCommissionRepository(),
			TransactionRepo: memory.NewTransactionRepository(),
			PropertiesDir:   properties,
			CalendarSvc:     calendar,
		}
		idStore = memory.NewIdempotencyStore()
		outboxStore = memory.NewOutbox()
	}

	var gateway policies.PaymentGateway
	if cfg.NotchPaySecretKey != "" {
		gateway = &notchpay.Client{
			HTTP:       &http.Client{Timeout: cfg.GatewayTimeout},
			BaseURL:    cfg.NotchPayBaseURL,
			PublicKey:  cfg.NotchPayPublicKey,
			SecretKey:  cfg.NotchPaySecretKey,
			WebhookKey: cfg.NotchPayWebhookKey,
			Logger:     logger,
		}
	} else {
		fake := memory.NewGateway()
		fake.WebhookSecret = cfg.NotchPayWebhookKey
		gateway = fake
		logger.Warn("no gateway credentials configured, using in-memory gateway")
	}

	encoder := outbox.JSONEventEncoder{}

	commandBus := commands.NewInMemoryBus()
	commands.RegisterHandler(commandBus, bookingapp.CreateBookingCommand{}.Key(), &bookingapp.CreateBookingHandler{
		Outbox:  outboxStore,
		Encoder: encoder,
	})
	commands.RegisterHandler(commandBus, bookingapp.ConfirmBookingCommand{}.Key(), &bookingapp.ConfirmBookingHandler{
		Subscriptions: subscriptions,
		Outbox:        outboxStore,
		Encoder:       encoder,
	})
	commands.RegisterHandler(commandBus, bookingapp.CompleteBookingCommand{}.Key(), &bookingapp.CompleteBookingHandler{
		Outbox:  outboxStore,
		Encoder: encoder,
	})
	commands.RegisterHandler(commandBus, bookingapp.CancelBookingCommand{}.Key(), &bookingapp.CancelBookingHandler{
		UoWFactory:    uowFactory,
		Gateway:       gateway,
		Subscriptions: subscriptions,
		Settings:      settings,
		Outbox:        outboxStore,
		Encoder:       encoder,
		Logger:        logger,
	})
	commands.RegisterHandler(commandBus, bookingapp.InitiatePaymentCommand{}.Key(), &bookingapp.InitiatePaymentHandler{
		UoWFactory: uowFactory,
		Gateway:    gateway,
		Tenants:    tenants,
	})
	commands.RegisterHandler(commandBus, bookingapp.ProcessGatewayEventCommand{}.Key(), &bookingapp.ProcessGatewayEventHandler{
		Subscriptions: subscriptions,
		Outbox:        outboxStore,
		Encoder:       encoder,
		Logger:        logger,
	})
	commands.RegisterHandler(commandBus, bookingapp.ReconcilePaymentCommand{}.Key(), &bookingapp.ReconcilePaymentHandler{
		UoWFactory:    uowFactory,
		Gateway:       gateway,
		Subscriptions: subscriptions,
		Outbox:        outboxStore,
		Encoder:       encoder,
		Logger:        logger,
	})
	commands.RegisterHandler(commandBus, payoutapp.SchedulePayoutCommand{}.Key(), &payoutapp.SchedulePayoutHandler{
		Subscriptions: subscriptions,
		Outbox:        outboxStore,
		Encoder:       encoder,
	})
	commands.RegisterHandler(commandBus, payoutapp.SweepMissingPayoutsCommand{}.Key(), &payoutapp.SweepMissingPayoutsHandler{
		Subscriptions: subscriptions,
		Outbox:        outboxStore,
		Encoder:       encoder,
		Logger:        logger,
	})
	commands.RegisterHandler(commandBus, payoutapp.AdvanceScheduledCommand{}.Key(), &payoutapp.AdvanceScheduledHandler{
		Logger: logger,
	})
	commands.RegisterHandler(commandBus, payoutapp.ExecuteReadyCommand{}.Key(), &payoutapp.ExecuteReadyHandler{
		UoWFactory: uowFactory,
		Gateway:    gateway,
		Accounts:   accounts,
		Outbox:     outboxStore,
		Encoder:    encoder,
		Logger:     logger,
	})
	commands.RegisterHandler(commandBus, payoutapp.CancelPayoutCommand{}.Key(), &payoutapp.CancelPayoutHandler{
		Outbox:  outboxStore,
		Encoder: encoder,
	})

	queryBus := queries.NewInMemoryBus()
	queries.RegisterHandler(queryBus, bookingapp.GetBookingQuery{}.Key(), &bookingapp.GetBookingHandler{
		UoWFactory: uowFactory,
	})

	app.commandBus = middleware.ChainCommands(
		commandBus,
		middleware.Idempotency(idStore, nil),
		middleware.Transaction(uowFactory, nil),
		middleware.OutboxFlush(outboxStore),
	)
	queryBusWithMiddleware := middleware.ChainQueries(queryBus)

	app.handlers = ginserver.Handlers{
		Booking: ginserver.BookingHandler{
			Commands: app.commandBus,
			Queries:  queryBusWithMiddleware,
		},
		Payout: ginserver.PayoutHandler{
			Commands: app.commandBus,
		},
		Webhook: ginserver.WebhookHandler{
			Commands: app.commandBus,
			Verifier: gateway,
		},
	}
	return app, nil
}

func (a application) ready() error {
	if a.mongoClient == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return a.mongoClient.Ping(ctx)
}

func (a application) close(logger *slog.Logger) {
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			logger.Error("kafka producer close failed", "error", err)
		}
	}
	if a.mongoClient != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.mongoClient.Disconnect(ctx); err != nil {
			logger.Error("mongo disconnect failed", "error", err)
		}
	}
}
