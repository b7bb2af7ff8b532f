package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/internal/config"
	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/internal/db"
	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/internal/queue"
	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/internal/server"
	mid "github.com/laedsonzzz/DialogAI-Qualidade-sub001/internal/server/middleware"
	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/internal/storage"
	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/internal/util"
	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/embed"
	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/graph"
	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/ingest"
	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/leaselock"
	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/logger"
	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/logger/console"
	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/motive"
	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/query"
	pgstore "github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/store/pgx"
)

func main() {
	util.LoadEnv()
	cfg := config.Load()

	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: cfg.Debug,
		JSON:  cfg.LogJSON,
	})
	logger.Init(consoleLogger)

	if err := cfg.Validate(); err != nil {
		logger.Fatal("Invalid configuration", "err", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.AutoMigrate {
		if err := db.Migrate(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
			logger.Fatal("Failed to migrate database", "err", err)
		}
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("Failed to connect to database", "err", err)
	}
	defer pool.Close()

	aiClient, err := cfg.AI.NewClient()
	if err != nil {
		logger.Fatal("Could not create AI client", "err", err)
	}

	st := pgstore.NewStorage(pool)
	embedder := embed.New(aiClient, cfg.Embed)

	ingester, err := ingest.NewService(embedder, st, cfg.Ingest)
	if err != nil {
		logger.Fatal("Could not create ingest service", "err", err)
	}

	app := &mid.App{
		Ingest:    ingester,
		Retriever: query.NewRetriever(embedder, st, cfg.Retrieve),
		Graph:     graph.NewExtractor(aiClient, st, cfg.Graph, graph.WithLocker(leaselock.New(pool))),
		Analysis:  st,
	}

	analyzerOpts := []motive.AnalyzerOption{motive.WithLocker(leaselock.New(pool))}
	if cfg.AsyncAnalysis || cfg.Storage.Enabled() {
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
		producer := queue.NewProducer(ch)

		if cfg.AsyncAnalysis {
			analyzerOpts = append(analyzerOpts, motive.WithDispatcher(producer))
		}
		if cfg.Storage.Enabled() {
			s3, err := storage.NewS3Client(ctx, cfg.Storage)
			if err != nil {
				logger.Fatal("Failed to create S3 client", "err", err)
			}
			app.Uploads = s3
			app.IngestQueue = producer
		}
	}
	app.Analyzer = motive.NewAnalyzer(aiClient, st, cfg.Motive, analyzerOpts...)

	e := server.New(server.Config{
		Port:        cfg.Port,
		BodyLimit:   cfg.BodyLimit,
		CORSOrigins: cfg.CORSOrigins,
	}, app)
	if err := server.Run(ctx, e, cfg.Port); err != nil {
		logger.Fatal("Server stopped", "err", err)
	}
}
