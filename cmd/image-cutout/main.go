package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
	httpSwagger "github.com/swaggo/http-swagger"

	_ "imageCutout/docs"
	"imageCutout/internal/cleanup"
	"imageCutout/internal/config"
	"imageCutout/internal/filecheck"
	"imageCutout/internal/http-server/handlers/image/deleteImage"
	"imageCutout/internal/http-server/handlers/image/getImage"
	"imageCutout/internal/http-server/handlers/image/redirectImage"
	"imageCutout/internal/http-server/handlers/image/uploadImage"
	"imageCutout/internal/http-server/middleware/mwlogger"
	"imageCutout/internal/http-server/middleware/ratelimit"
	"imageCutout/internal/http-server/middleware/secheaders"
	"imageCutout/internal/kafka/consumer"
	"imageCutout/internal/kafka/producer"
	"imageCutout/internal/lib/api/response"
	"imageCutout/internal/lib/logger/handlers/slogpretty"
	"imageCutout/internal/lib/logger/sl"
	"imageCutout/internal/photoroom"
	"imageCutout/internal/processor"
	"imageCutout/internal/storage/minio"
	"imageCutout/internal/storage/postgres"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

// @title        Image Cutout API
// @version      1.0
// @description  Upload images, strip their backgrounds and share the result.
// @BasePath     /
func main() {
	cfg := config.MustLoad()

	log := setupLogger(cfg.Env)

	log.Info("Starting image cutout service", slog.String("env", cfg.Env))
	log.Debug("Debug messages are enabled")

	storage, err := postgres.InitDB(&cfg.Database)
	if err != nil {
		log.Error("failed to init storage", sl.Err(err))
		os.Exit(1)
	}

	if err = postgres.Migrate(&cfg.Database, cfg.Database.MigrationsPath); err != nil {
		log.Error("failed to run migrations", sl.Err(err))
		os.Exit(1)
	}

	objectStore, err := minio.NewStore(&cfg.Storage, log)
	if err != nil {
		log.Error("failed to init object store", sl.Err(err))
		os.Exit(1)
	}

	kafkaProducer, err := producer.NewProducer(&cfg.Kafka, log)
	if err != nil {
		log.Error("failed to create kafka producer", sl.Err(err))
		os.Exit(1)
	}

	kafkaConsumer, err := consumer.NewConsumer(&cfg.Kafka, log)
	if err != nil {
		log.Error("failed to create kafka consumer", sl.Err(err))
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cleanupWorker := cleanup.NewWorker(log, objectStore, storage)
	go kafkaConsumer.ReadMessages(ctx, cleanupWorker.HandleMessage)

	limiter := ratelimit.New(cfg.RateLimit.MaxRequests, cfg.RateLimit.Window)
	go limiter.Run(ctx)

	removerClient := photoroom.NewClient(&cfg.PhotoRoom, log)
	fileValidator := filecheck.NewValidator(cfg.Upload.MaxFileSizeBytes(), cfg.Upload.AllowedTypes)

	pipeline := processor.NewPipeline(log, fileValidator, objectStore, storage, removerClient, kafkaProducer)

	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(mwlogger.New(log))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(cfg.HTTPServer.RequestTimeout))
	router.Use(secheaders.New())
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.HTTPServer.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	router.Use(limiter.Middleware(log))

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, response.OK())
	})

	router.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	router.Post("/api/upload", uploadImage.New(log, pipeline, cfg.HTTPServer.BaseURL))
	router.Get("/api/images/{id}", getImage.New(log, storage))
	router.Delete("/api/images/{id}", deleteImage.New(log, pipeline))
	router.Get("/i/{shortId}", redirectImage.New(log, storage))

	log.Info("starting server", slog.String("address", cfg.HTTPServer.Address))

	srv := &http.Server{
		Addr:         cfg.HTTPServer.Address,
		Handler:      router,
		ReadTimeout:  cfg.HTTPServer.Timeout,
		WriteTimeout: cfg.HTTPServer.Timeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("failed to start server", sl.Err(err))
			cancel()
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT, os.Interrupt)

	select {
	case sign := <-stop:
		log.Info("application stopping", slog.String("signal", sign.String()))
	case <-ctx.Done():
		log.Info("application stopping")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTPServer.Timeout)
	defer shutdownCancel()

	if err = srv.Shutdown(shutdownCtx); err != nil {
		log.Error("failed to shutdown server", sl.Err(err))
	}

	cancel()

	if err = storage.Close(); err != nil {
		log.Error("failed to close database", slog.String("error", err.Error()))
	}

	log.Info("postgres connection closed")

	if err = kafkaProducer.Close(); err != nil {
		log.Error("failed to close kafka producer", slog.String("error", err.Error()))
	}

	if err = kafkaConsumer.Close(); err != nil {
		log.Error("failed to close kafka consumer", slog.String("error", err.Error()))
	}

	log.Info("kafka connection closed")

	log.Info("application stopped")
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = setupPrettySlog()
	case envDev:
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case envProd:
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	default:
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	return log
}

func setupPrettySlog() *slog.Logger {
	opts := slogpretty.PrettyHandlerOptions{
		SlogOpts: &slog.HandlerOptions{
			Level: slog.LevelDebug,
		},
	}

	h := opts.NewPrettyHandler(os.Stdout)

	return slog.New(h)
}
