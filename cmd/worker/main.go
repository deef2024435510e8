package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	lambdaevents "github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"github.com/syncline/ordersync/internal/awsx"
	"github.com/syncline/ordersync/internal/config"
	"github.com/syncline/ordersync/internal/dispatcher"
	"github.com/syncline/ordersync/internal/locks"
	"github.com/syncline/ordersync/internal/logger"
	"github.com/syncline/ordersync/internal/mapping"
	"github.com/syncline/ordersync/internal/queue"
	"github.com/syncline/ordersync/internal/sink"
	"github.com/syncline/ordersync/internal/source"
	"github.com/syncline/ordersync/internal/syncer"
)

const metricsNamespace = "OrderSync"

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

	queueStore := queue.NewStore(clients.DynamoDB, cfg.Tables.SyncRequests, cfg.Dispatcher.MaxAttempts)
	mappings := mapping.NewStore(clients.DynamoDB, cfg.Tables.OrderMappings)

	sinkClient := sink.NewClient(sink.Options{
		BaseURL:     cfg.Sink.BaseURL,
		Token:       cfg.Sink.Token,
		MinInterval: cfg.Sink.MinInterval,
		BackoffBase: cfg.Sink.BackoffBase,
		MaxAttempts: cfg.Sink.MaxAttempts,
		SearchDays:  cfg.Sink.SearchDays,
		SearchLimit: cfg.Sink.SearchLimit,
	}, zlog)

	sync := syncer.New(mappings, sinkClient, locks.NewTable(), syncer.Options{
		LockTimeout:  cfg.Lock.Timeout,
		ParseOptions: source.DefaultParseOptions(),
	}, zlog)

	d := dispatcher.New(queueStore, sync, awsx.NewMetrics(clients.CloudWatch, metricsNamespace), dispatcher.Options{
		Interval:  cfg.Dispatcher.Interval,
		RowDelay:  cfg.Dispatcher.RowDelay,
		BatchSize: cfg.Dispatcher.BatchSize,
	}, zlog)

	// RUN_LOCAL runs the long-lived interval poller; otherwise each SQS nudge
	// batch delivered to the Lambda triggers one drain pass over the queue.
	if os.Getenv("RUN_LOCAL") == "true" {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		go d.Start(ctx)
		<-ctx.Done()
		d.Stop()
		return
	}

	lambda.Start(func(ctx context.Context, ev lambdaevents.SQSEvent) error {
		zlog.Info("nudge batch received", zap.Int("messages", len(ev.Records)))
		_, err := d.DrainOnce(ctx)
		return err
	})
}
