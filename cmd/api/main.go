package main

import (
	"context"
	"log"
	"os"

	lambdaevents "github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/syncline/ordersync/internal/awsx"
	"github.com/syncline/ordersync/internal/config"
	"github.com/syncline/ordersync/internal/handlers"
	"github.com/syncline/ordersync/internal/logger"
	"github.com/syncline/ordersync/internal/queue"
	"github.com/syncline/ordersync/internal/source"
)

func setupRouter(cfg handlers.HandlerConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	handlers.RegisterWebhookRoutes(r, cfg)

	return r
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	zlog, err := logger.NewForEnvironment(cfg.App.Env, cfg.App.LogLevel)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	clients, err := awsx.NewClients(context.Background())
	if err != nil {
		zlog.Fatal("failed to init aws clients", zap.Error(err))
	}

	handlerCfg := handlers.HandlerConfig{
		Queue:        queue.NewStore(clients.DynamoDB, cfg.Tables.SyncRequests, cfg.Dispatcher.MaxAttempts),
		ParseOptions: source.DefaultParseOptions(),
		Logger:       zlog,
	}
	if cfg.Queue.NudgeURL != "" {
		handlerCfg.Publisher = awsx.NewPublisher(clients.SQS, cfg.Queue.NudgeURL)
	}

	r := setupRouter(handlerCfg)

	// if environment variable RUN_LOCAL is set to "true", run local HTTP server for development.
	if os.Getenv("RUN_LOCAL") == "true" {
		addr := ":" + cfg.App.Port
		zlog.Info("running local server", zap.String("addr", addr))
		if err := r.Run(addr); err != nil {
			zlog.Fatal("failed to run local server", zap.Error(err))
		}
		return
	}

	// lambda adapter behind API Gateway
	adapter := ginadapter.New(r)

	lambda.Start(func(ctx context.Context, req lambdaevents.APIGatewayProxyRequest) (interface{}, error) {
		return adapter.ProxyWithContext(ctx, req)
	})
}
