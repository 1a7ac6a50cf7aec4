package main

import (
	"context"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-orderflow-loyalty/internal/app"
	"github.com/imrishuroy/go-orderflow-loyalty/internal/config"
	"github.com/imrishuroy/go-orderflow-loyalty/internal/orders"
)

func main() {
	var (
		processor *Processor
		cfg       config.Config
		logger    *zap.Logger
	)
	fxApp := fx.New(
		app.Core,
		fx.Provide(func(m *orders.Manager, l *zap.Logger) *Processor { return NewProcessor(m, l) }),
		fx.Populate(&processor, &cfg, &logger),
		fx.NopLogger,
	)

	startCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := fxApp.Start(startCtx); err != nil {
		os.Stderr.WriteString("worker startup failed: " + err.Error() + "\n")
		os.Exit(1)
	}

	// If RUN_LOCAL=true, simulate a single TTL expiry for LOCAL_ORDER_ID.
	if cfg.Server.RunLocal {
		orderID := os.Getenv("LOCAL_ORDER_ID")
		if orderID == "" {
			orderID = "local-order-1"
		}
		event := events.DynamoDBEvent{
			Records: []events.DynamoDBEventRecord{{
				EventID:   "local-1",
				EventName: string(events.DynamoDBOperationTypeRemove),
				Change: events.DynamoDBStreamRecord{
					Keys: map[string]events.DynamoDBAttributeValue{
						"order_id": events.NewStringAttribute(orderID),
					},
				},
				UserIdentity: &events.DynamoDBUserIdentity{Type: ttlPrincipalType, PrincipalID: ttlPrincipalID},
			}},
		}
		if err := processor.Handle(context.Background(), event); err != nil {
			logger.Fatal("local handler error", zap.Error(err))
		}
		_ = fxApp.Stop(context.Background())
		return
	}

	lambda.Start(processor.Handle)
}
