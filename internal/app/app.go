// Package app wires the order and loyalty components for both binaries.
package app

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-orderflow-loyalty/internal/aws"
	"github.com/imrishuroy/go-orderflow-loyalty/internal/clock"
	"github.com/imrishuroy/go-orderflow-loyalty/internal/completion"
	"github.com/imrishuroy/go-orderflow-loyalty/internal/config"
	"github.com/imrishuroy/go-orderflow-loyalty/internal/errs"
	"github.com/imrishuroy/go-orderflow-loyalty/internal/handlers"
	"github.com/imrishuroy/go-orderflow-loyalty/internal/idempotency"
	"github.com/imrishuroy/go-orderflow-loyalty/internal/logging"
	"github.com/imrishuroy/go-orderflow-loyalty/internal/loyalty"
	"github.com/imrishuroy/go-orderflow-loyalty/internal/orders"
	"github.com/imrishuroy/go-orderflow-loyalty/internal/reservation"
)

var ConfigModule = fx.Module("config",
	fx.Provide(config.LoadConfig),
)

var LoggerModule = fx.Module("logger",
	fx.Provide(NewLogger),
)

var AWSModule = fx.Module("aws",
	fx.Provide(
		NewAWSClients,
		func(c *aws.AWSClients) aws.DynamoDBAPI { return c.DynamoDB },
		NewMetrics,
		clock.NewRealClock,
	),
)

var ReservationModule = fx.Module("reservation",
	fx.Provide(
		NewReservationStore,
		NewReservationClient,
	),
)

var OrdersModule = fx.Module("orders",
	fx.Provide(
		func(db aws.DynamoDBAPI, cfg config.Config) *orders.Store {
			return orders.NewStore(db, cfg.Tables.Orders)
		},
		func(db aws.DynamoDBAPI, cfg config.Config) *orders.TimeoutStore {
			return orders.NewTimeoutStore(db, cfg.Tables.OrderTimeouts)
		},
		orders.NewDispatcher,
		NewManager,
	),
)

var LoyaltyModule = fx.Module("loyalty",
	fx.Provide(
		NewSettingsSource,
		func(db aws.DynamoDBAPI, cfg config.Config) *loyalty.Ledger {
			return loyalty.NewLedger(db, cfg.Tables.PointLedger, cfg.Tables.Customers)
		},
		func(db aws.DynamoDBAPI, cfg config.Config) *loyalty.CustomerStore {
			return loyalty.NewCustomerStore(db, cfg.Tables.Customers)
		},
		NewLoyaltyService,
	),
)

var CompletionModule = fx.Module("completion",
	fx.Provide(NewOrchestrator),
	fx.Invoke(Subscribe),
)

var HandlerModule = fx.Module("handler",
	fx.Provide(
		func(db aws.DynamoDBAPI, cfg config.Config, clk clock.Clock) *idempotency.Store {
			return idempotency.NewStore(db, cfg.Tables.Idempotency, cfg.Idempotency.TTL, clk)
		},
		func(m *orders.Manager, s *idempotency.Store, logger *zap.Logger) *handlers.OrdersHandler {
			return handlers.NewOrdersHandler(m, s, logger)
		},
		func(svc *loyalty.Service, logger *zap.Logger) *handlers.PointsHandler {
			return handlers.NewPointsHandler(svc, logger)
		},
		handlers.NewRouter,
	),
)

// Core is everything both binaries need: the order manager with the
// completion orchestrator subscribed to it.
var Core = fx.Options(
	ConfigModule,
	LoggerModule,
	AWSModule,
	ReservationModule,
	OrdersModule,
	LoyaltyModule,
	CompletionModule,
)

// API adds the HTTP surface to Core.
var API = fx.Options(Core, HandlerModule)

func NewLogger(lc fx.Lifecycle, cfg config.Config) (*zap.Logger, error) {
	logger, err := logging.New(cfg)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			_ = logger.Sync()
			return nil
		},
	})
	return logger, nil
}

func NewAWSClients(cfg config.Config) (*aws.AWSClients, error) {
	return aws.NewAWSClients(context.Background(), cfg.AWS)
}

func NewMetrics(clients *aws.AWSClients, cfg config.Config, logger *zap.Logger) *aws.Metrics {
	return aws.NewMetrics(clients.CloudWatch, cfg.AWS.MetricsNamespace, logger)
}

// NewReservationStore returns the configured coordination store, or nil for
// the "none" backend.
func NewReservationStore(lc fx.Lifecycle, cfg config.Config, db aws.DynamoDBAPI, clk clock.Clock, logger *zap.Logger) reservation.Store {
	switch cfg.Reservation.Backend {
	case config.BackendRedis:
		rdb := reservation.NewRedisClient(cfg.Reservation)
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				// an unreachable store is handled by the failure policy, not at boot
				if err := rdb.Ping(ctx).Err(); err != nil {
					logger.Warn("redis unreachable at startup",
						zap.String("addr", cfg.Reservation.RedisAddr),
						zap.Error(err))
				}
				return nil
			},
			OnStop: func(context.Context) error {
				return rdb.Close()
			},
		})
		return reservation.NewRedisStore(rdb)
	case config.BackendDynamoDB:
		return reservation.NewDynamoStore(db, cfg.Reservation.Table, clk)
	}
	return nil
}

func NewReservationClient(store reservation.Store, cfg config.Config, logger *zap.Logger, metrics *aws.Metrics) *reservation.Client {
	c := reservation.NewClient(store, reservation.ClientConfig{
		Policy:  reservation.Policy(cfg.Reservation.FailurePolicy),
		TTL:     cfg.Reservation.TTL,
		Logger:  logger,
		Metrics: metrics,
	})
	if c.Degraded() {
		logger.Warn("no reservation store configured",
			zap.String("reservation_store", "degraded"),
			zap.String("policy", cfg.Reservation.FailurePolicy))
	}
	return c
}

func NewManager(store *orders.Store, reserver *reservation.Client, timeouts *orders.TimeoutStore, dispatcher *orders.Dispatcher, cfg config.Config, clk clock.Clock, logger *zap.Logger, metrics *aws.Metrics) *orders.Manager {
	return orders.NewManager(store, reserver, timeouts, dispatcher, orders.ManagerConfig{
		MaxFanOut: cfg.Reservation.MaxFanOut,
		Clock:     clk,
		Logger:    logger,
		Metrics:   metrics,
	})
}

func NewSettingsSource(cfg config.Config) (loyalty.SettingsSource, error) {
	settings, ladder, err := loyalty.LoadFile(cfg.Loyalty.SettingsFile)
	if err != nil {
		return nil, err
	}
	return loyalty.NewStaticSource(settings, ladder), nil
}

func NewLoyaltyService(source loyalty.SettingsSource, ledger *loyalty.Ledger, customers *loyalty.CustomerStore, clk clock.Clock, logger *zap.Logger) *loyalty.Service {
	return loyalty.NewService(source, ledger, customers, clk, logger)
}

func NewOrchestrator(svc *loyalty.Service, cfg config.Config, logger *zap.Logger, metrics *aws.Metrics) (*completion.Orchestrator, error) {
	trigger, err := TriggerStatus(cfg.Loyalty.TriggerStatus)
	if err != nil {
		return nil, err
	}
	return completion.NewOrchestrator(svc, completion.Config{
		TriggerStatus: trigger,
		Logger:        logger,
		Metrics:       metrics,
	}), nil
}

// TriggerStatus parses LOYALTY_TRIGGER_STATUS. Only a status on the paid
// path can start accrual; pending, cancelled and refunded are rejected.
func TriggerStatus(raw string) (orders.Status, error) {
	s, ok := orders.ParseStatus(raw)
	if !ok {
		return "", errs.Newf("unknown loyalty trigger status %q", raw)
	}
	switch s {
	case orders.StatusPending, orders.StatusCancelled, orders.StatusRefunded:
		return "", errs.Newf("status %q cannot trigger loyalty accrual", raw)
	}
	return s, nil
}

// Subscribe attaches the completion orchestrator and, when a queue is
// configured, the outbound order-event notifier to the dispatcher.
func Subscribe(dispatcher *orders.Dispatcher, orch *completion.Orchestrator, clients *aws.AWSClients, cfg config.Config, logger *zap.Logger) {
	dispatcher.Subscribe("completion", orch)
	if cfg.Queue.OrderEventsURL == "" {
		logger.Info("order events queue not configured, notifier disabled")
		return
	}
	dispatcher.Subscribe("queue", orders.NewQueueNotifier(aws.NewPublisher(clients.SQS, cfg.Queue.OrderEventsURL)))
}
