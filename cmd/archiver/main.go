// Command archiver is the entrypoint for the catalog acquisition pipeline.
// It:
//   - Loads configuration and initializes structured logging.
//   - Opens the sqlite catalog store.
//   - Runs the producer/worker-pool pipeline over every configured uploader.
//   - Exposes a read-only HTTP surface with /healthz, /videos, /uploaders, /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/catalogarchive/archiver/catalog"
	"github.com/catalogarchive/archiver/config"
	"github.com/catalogarchive/archiver/server"
	"github.com/catalogarchive/archiver/signer"
	"github.com/catalogarchive/archiver/telemetry"
)

func main() {
	_ = godotenv.Load()

	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	var handler slog.Handler
	if strings.ToLower(os.Getenv("LOG_FORMAT")) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("config validation failed", slog.Any("err", err))
		os.Exit(1)
	}

	telemetry.Init()

	shutdownTracing, err := telemetry.InitTracing("catalog-archiver", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdownTracing()

	store, err := catalog.Open(cfg.DBPath)
	if err != nil {
		slog.Error("failed to open catalog store", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Error("failed to close catalog store", slog.Any("err", err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	httpClient := &http.Client{Timeout: 15 * time.Second}
	sign := signer.New("https://api.bilibili.com/x/web-interface/nav", httpClient)

	// delay is C3's single process-wide policy object: updated once per
	// uploader by the producer and read once per uploader by the
	// orchestrator, so all three components below must share this one
	// instance rather than each owning a private copy.
	requestDelay := func() time.Duration {
		span := cfg.RequestDelayMax - cfg.RequestDelayMin
		if span <= 0 {
			return cfg.RequestDelayMin
		}
		return cfg.RequestDelayMin + time.Duration(rand.Int63n(int64(span)))
	}
	delay := catalog.NewDelayPolicy(requestDelay, cfg.PageDelay, cfg.UserSwitch)

	requester := catalog.NewRequester(httpClient, sign, delay)
	client := catalog.NewClient(requester, cfg.Headers)
	producer := catalog.NewProducer(client, delay, 50)
	classifier := catalog.NewClassifier(keywordCorpus())

	orchestrator := catalog.NewOrchestrator(store, producer, delay, cfg.MaxConcurrency, cfg.MaxQueueSize, func() *catalog.Pool {
		return catalog.NewPool(cfg.MaxConcurrency, client, store, classifier)
	})

	go func() {
		slog.Info("http server starting", slog.String("addr", cfg.HTTPAddr))
		if err := server.Start(ctx, store, cfg.HTTPAddr); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	go func() {
		if err := orchestrator.RunAll(ctx); err != nil {
			slog.Error("orchestrator run failed", slog.Any("err", err))
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")
}

// keywordCorpus is the themed-keyword set videos are classified against.
// It is read from TOUHOU_KEYWORDS (comma-separated) with a small built-in
// default so the binary runs out of the box.
func keywordCorpus() []string {
	if raw := os.Getenv("TOUHOU_KEYWORDS"); raw != "" {
		parts := strings.Split(raw, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return []string{"東方", "Touhou", "东方Project"}
}
