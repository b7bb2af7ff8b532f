package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/internal/config"
	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/internal/db"
	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/internal/queue"
	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/internal/storage"
	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/internal/timing"
	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/internal/util"
	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/embed"
	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/ingest"
	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/leaselock"
	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/logger"
	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/logger/console"
	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/motive"
	pgstore "github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/store/pgx"
)

func main() {
	util.LoadEnv()
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// logger
	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: cfg.Debug,
		JSON:  cfg.LogJSON,
	})
	logger.Init(consoleLogger)

	if err := cfg.Validate(); err != nil {
		logger.Fatal("Invalid configuration", "err", err)
	}

	// ai client
	aiClient, err := cfg.AI.NewClient()
	if err != nil {
		logger.Fatal("Could not create AI client", "err", err)
	}

	// database
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("Unable to connect to database", "err", err)
	}
	defer pool.Close()

	// object storage is only needed for queued uploads
	var files queue.FileFetcher
	if cfg.Storage.Enabled() {
		s3, err := storage.NewS3Client(ctx, cfg.Storage)
		if err != nil {
			logger.Fatal("Failed to create S3 client", "err", err)
		}
		files = s3
	} else {
		logger.Warn("AWS_BUCKET not set, ingest_queue messages will fail")
	}

	st := pgstore.NewStorage(pool)
	ingester, err := ingest.NewService(embed.New(aiClient, cfg.Embed), st, cfg.Ingest)
	if err != nil {
		logger.Fatal("Could not create ingest service", "err", err)
	}
	analyzer := motive.NewAnalyzer(aiClient, st, cfg.Motive, motive.WithLocker(leaselock.New(pool)))
	handler := queue.NewHandler(analyzer, ingester, files)

	// rabbitmq
	conn, err := queue.Dial(cfg.Queue)
	if err != nil {
		logger.Fatal("Failed to connect to RabbitMQ", "err", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open channel", "err", err)
	}
	defer ch.Close()

	if err := queue.SetupQueues(ch, queue.Queues); err != nil {
		logger.Fatal("Failed to declare queues", "err", err)
	}

	// A single consumer channel with prefetch=1 delivers one message at a
	// time across all queues.
	consumerCh, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open consumer channel", "err", err)
	}
	defer consumerCh.Close()

	if err := consumerCh.Qos(1, 0, true); err != nil {
		logger.Fatal("Failed to set QoS", "err", err)
	}

	type queuedMessage struct {
		msg       amqp.Delivery
		queueName string
	}
	messageChan := make(chan queuedMessage)

	for _, queueName := range queue.Queues {
		msgs, err := consumerCh.Consume(
			queueName,
			fmt.Sprintf("%s_consumer", queueName),
			false, // autoAck
			false, // exclusive
			false, // noLocal
			false, // noWait
			nil,   // args
		)
		if err != nil {
			logger.Fatal("Failed to start consuming", "queue", queueName, "err", err)
		}

		go func(qName string, msgs <-chan amqp.Delivery) {
			for {
				select {
				case <-ctx.Done():
					logger.Info("Stopping consumer", "queue", qName)
					return
				case msg, ok := <-msgs:
					if !ok {
						logger.Info("Message channel closed", "queue", qName)
						return
					}
					select {
					case messageChan <- queuedMessage{msg: msg, queueName: qName}:
					case <-ctx.Done():
						return
					}
				}
			}
		}(queueName, msgs)
	}

	logger.Info("Listening for messages", "queues", queue.Queues)

	for {
		select {
		case <-ctx.Done():
			logger.Info("Shutdown signal received, exiting...")
			return
		case qm := <-messageChan:
			startTime := time.Now()
			logger.Info("Received message", "queue", qm.queueName)

			processingErr := handler.Process(ctx, qm.queueName, qm.msg.Body)
			if processingErr != nil {
				logger.Error("Error processing message", "queue", qm.queueName, "err", processingErr)
				queue.HandleFailure(context.WithoutCancel(ctx), ch, qm.msg, qm.queueName, processingErr)
			} else {
				if err := qm.msg.Ack(false); err != nil {
					logger.Error("Failed to ack message", "err", err)
				}
				logger.Info("Message processed successfully", "queue", qm.queueName)
			}

			metrics := aiClient.GetMetrics()
			logger.Info(
				"AI Metrics",
				"requests", metrics.Requests,
				"input_tokens", metrics.InputTokens,
				"output_tokens", metrics.OutputTokens,
				"total_tokens", metrics.TotalTokens,
				"duration", timing.Clock(time.Duration(metrics.DurationMs)*time.Millisecond),
			)
			logger.Info("Processing time", "duration", timing.Since(startTime))
			logger.Info("Waiting for next message")
			aiClient.ResetMetrics()
		}
	}
}
