package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"kensho/internal/app"
	"kensho/internal/config"
	"kensho/internal/ratelimit"
	"kensho/internal/server"
	"kensho/internal/util"
	"kensho/pkg/ai"
	"kensho/pkg/speech"
	"kensho/pkg/storage"
	"kensho/pkg/store"
	"kensho/pkg/transcript"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := util.InitLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	blobs, err := newBlobStore(cfg)
	if err != nil {
		log.Fatalf("failed to init blob store: %v", err)
	}

	sessions, err := store.NewJWTSessionStore(cfg.JWTSecret, cfg.SessionTTLDuration(), store.JWTOptions{})
	if err != nil {
		log.Fatalf("failed to init session store: %v", err)
	}

	gemini, err := ai.NewGeminiClient(cfg.GeminiAPIKey, ai.WithTimeout(cfg.GeminiTimeoutDuration()))
	if err != nil {
		log.Fatalf("failed to init gemini client: %v", err)
	}
	generator := ai.NewNotesGenerator(gemini, cfg.GeminiModel, cfg.GeminiTemperature, cfg.GeminiMaxOutputTokens)
	if ok, err := gemini.TestConnection(ctx, cfg.GeminiModel); !ok {
		logger.Warn("gemini connection check failed", "error", err)
	}

	transcriber, err := speech.NewTranscriber(ctx, cfg.GoogleCredentialsFile, cfg.GoogleProjectID, speech.Options{
		Languages: cfg.SpeechLanguages,
		Formats:   cfg.AudioFormats,
		MaxBytes:  cfg.MaxAudioBytes,
	})
	if err != nil {
		log.Fatalf("failed to init speech transcriber: %v", err)
	}
	defer transcriber.Close()

	appCore, err := app.New(app.Config{
		DatabaseURL: cfg.DatabaseURL,
		Sessions:    sessions,
		Blobs:       blobs,
		Generator:   generator,
		Fetcher:     transcript.NewFetcher(),
		Transcriber: transcriber,
		Languages:   cfg.CaptionLanguages,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	ingestLimit := cfg.IngestRateLimitPerMinute
	if ingestLimit <= 0 {
		ingestLimit = 6
	}
	ingestLimiter, err := ratelimit.NewRedisFixedWindowLimiter(
		cfg.RedisAddr, cfg.RedisPassword, "kensho:ratelimit:ingest", ingestLimit, time.Minute)
	if err != nil {
		log.Fatalf("failed to init rate limiter: %v", err)
	}

	httpServer, err := server.New(server.Config{
		App:            appCore,
		IngestLimiter:  ingestLimiter,
		MaxUploadBytes: cfg.MaxUploadBytes,
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		slog.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		logger.Error("server error", "err", err)
	}
}

func newBlobStore(cfg config.FileConfig) (storage.BlobStore, error) {
	if cfg.StorageBackend == "minio" {
		return storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
	}
	return storage.NewFileStore(cfg.DataDir)
}
