package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/your-org/mediapost/internal/auth"
	"github.com/your-org/mediapost/internal/ingest"
	"github.com/your-org/mediapost/internal/ledger"
	"github.com/your-org/mediapost/internal/media"
	"github.com/your-org/mediapost/internal/publish"
	"github.com/your-org/mediapost/internal/publish/bluesky"
	"github.com/your-org/mediapost/internal/publish/mastodon"
	"github.com/your-org/mediapost/pkg/blobstore"
	"github.com/your-org/mediapost/pkg/config"
	"github.com/your-org/mediapost/pkg/kafka"
	"github.com/your-org/mediapost/pkg/logger"
	"github.com/your-org/mediapost/pkg/metrics"
	"github.com/your-org/mediapost/pkg/tracing"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logr, err := logger.New(cfg.App.LogLevel, cfg.App.Environment)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	traceShutdown, err := tracing.Init(ctx, tracing.Config{
		Endpoint:    cfg.Tracing.Endpoint,
		Insecure:    cfg.Tracing.Insecure,
		SampleRatio: cfg.Tracing.SampleRatio,
		ServiceName: cfg.App.Name,
		Environment: cfg.App.Environment,
	})
	if err != nil {
		logr.Fatal("init tracing", zap.Error(err))
	}
	defer traceShutdown(context.Background()) //nolint:errcheck

	m := metrics.New()
	go func() {
		if err := m.Serve(ctx, cfg.Metrics.Addr); err != nil {
			logr.Error("metrics server failed", zap.Error(err))
		}
	}()

	if err := os.MkdirAll(cfg.Upload.Dir, 0o755); err != nil {
		logr.Fatal("create upload dir", zap.Error(err))
	}

	store, err := blobstore.New(blobstore.Config{
		Endpoint:    cfg.Storage.Endpoint,
		Region:      cfg.Storage.Region,
		Bucket:      cfg.Storage.Bucket,
		AccessKey:   cfg.Storage.AccessKey,
		SecretKey:   cfg.Storage.SecretKey,
		UseSSL:      cfg.Storage.UseSSL,
		PublicHosts: cfg.Storage.PublicHosts,
		PageSize:    cfg.Storage.ListPageSize,
	})
	if err != nil {
		logr.Fatal("init blob store", zap.Error(err))
	}

	pool, err := ledger.Connect(ctx, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.ConnTimeout)
	if err != nil {
		logr.Fatal("connect database", zap.Error(err))
	}
	defer pool.Close()

	uploads := ledger.New(pool)
	sweeper := ledger.NewSweeper(uploads, logr, cfg.Ledger.SweepInterval, cfg.Ledger.PendingMaxAge)
	sweeper.Start(ctx)

	var events ingest.EventSink = ingest.NopSink{}
	var publishEvents publish.EventSink = publish.NopSink{}
	var producer *kafka.Producer
	if cfg.Kafka.Enabled {
		producer = kafka.NewProducer(kafka.ProducerConfig{
			Brokers:      cfg.Kafka.Brokers,
			Topic:        cfg.Kafka.EventsTopic,
			BatchSize:    cfg.Kafka.BatchSize,
			BatchTimeout: cfg.Kafka.BatchTimeout,
			Compression:  kafka.CompressionFromString(cfg.Kafka.Compression),
			MaxAttempts:  cfg.Kafka.Retries,
		})
		events = producer
		publishEvents = producer
	}

	ingestService := ingest.NewService(ingest.Params{
		Store:       store,
		Ledger:      uploads,
		Events:      events,
		Transformer: media.NewTransformer(),
		Metrics:     m,
		Logger:      logr,
		WorkDir:     cfg.Upload.Dir,
	})
	ingestHandler := ingest.NewHTTPHandler(ingestService, logr, cfg.Upload.MaxSizeBytes, cfg.Upload.MultipartMemBytes)

	transcoder := media.NewTranscoder(cfg.Transcode.FFmpegPath, cfg.Transcode.Timeout)
	feed, err := bluesky.New(bluesky.Config{
		PDSURL:       cfg.Bluesky.PDSURL,
		VideoHost:    cfg.Bluesky.VideoHost,
		Identifier:   cfg.Bluesky.Identifier,
		Password:     cfg.Bluesky.Password,
		PollInterval: cfg.Bluesky.PollInterval,
		PollTimeout:  cfg.Bluesky.PollTimeout,
	}, store, transcoder, m, logr, cfg.Upload.Dir)
	if err != nil {
		logr.Fatal("init bluesky publisher", zap.Error(err))
	}

	microblog, err := mastodon.New(mastodon.Config{
		Server:      cfg.Mastodon.Server,
		AccessToken: cfg.Mastodon.AccessToken,
	})
	if err != nil {
		logr.Fatal("init mastodon publisher", zap.Error(err))
	}

	publishHandler := publish.NewHTTPHandler(feed, microblog, publishEvents, m, logr)

	router := buildRouter(cfg, ingestHandler, publishHandler)

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logr.Error("http server shutdown failed", zap.Error(err))
		}
		if producer != nil {
			if err := producer.Close(); err != nil {
				logr.Error("kafka producer close failed", zap.Error(err))
			}
		}
		sweeper.Wait()
	}()

	logr.Info("mediapost starting", zap.String("addr", cfg.HTTP.Addr))
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logr.Fatal("http server failed", zap.Error(err))
	}
}

func buildRouter(cfg *config.Config, ingestHandler *ingest.HTTPHandler, publishHandler *publish.HTTPHandler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`)) //nolint:errcheck
	})

	// Everything that touches storage or external platforms requires the
	// operator bearer token.
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireBearer(cfg.Auth.AdminToken))
		ingestHandler.Register(r)
		publishHandler.Register(r)
	})

	return r
}
