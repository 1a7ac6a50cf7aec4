package main

import (
	"context"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-orderflow-loyalty/internal/app"
	"github.com/imrishuroy/go-orderflow-loyalty/internal/config"
)

func main() {
	var (
		r      *gin.Engine
		cfg    config.Config
		logger *zap.Logger
	)
	fxApp := fx.New(
		app.API,
		fx.Populate(&r, &cfg, &logger),
		fx.NopLogger,
	)

	startCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := fxApp.Start(startCtx); err != nil {
		os.Stderr.WriteString("api startup failed: " + err.Error() + "\n")
		os.Exit(1)
	}

	// if RUN_LOCAL is true, run a plain HTTP server for development.
	if cfg.Server.RunLocal {
		addr := ":" + cfg.Server.Port
		logger.Info("running local server", zap.String("addr", addr))
		if err := r.Run(addr); err != nil {
			logger.Fatal("failed to run local server", zap.Error(err))
		}
		return
	}

	adapter := ginadapter.New(r)
	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		return adapter.ProxyWithContext(ctx, req)
	})
}
