package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	appconfig "github.com/avetisov/mediascribe/internal/config"
	"github.com/avetisov/mediascribe/internal/dispatcher"
	"github.com/avetisov/mediascribe/internal/media"
	"github.com/avetisov/mediascribe/internal/server"
	"github.com/avetisov/mediascribe/internal/storage"
	"github.com/avetisov/mediascribe/internal/store"
	"github.com/avetisov/mediascribe/internal/transcribe"
	httpapi "github.com/avetisov/mediascribe/internal/transport/http"
	"github.com/avetisov/mediascribe/internal/worker"
)

func main() {
	cfg := appconfig.Load()
	slog.Info("starting mediascribe",
		"addr", cfg.HTTPAddr,
		"store", cfg.StoreBackend,
		"max_active_jobs", cfg.MaxActiveJobs)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	jobStore, err := store.New(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialize job store", "err", err)
		os.Exit(1)
	}
	defer jobStore.Close()
	slog.Info("job store initialized", "backend", store.BackendType(cfg))

	artifacts, err := storage.NewStorage(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialize storage", "err", err)
		os.Exit(1)
	}
	slog.Info("storage initialized", "type", storage.StorageType(cfg))

	downloader := media.NewDownloader(cfg.YTDLPPath, cfg.YTDLPCookieFile, cfg.DownloadTimeout)
	transcriber := transcribe.NewClient(cfg.OpenAIAPIKey, cfg.TranscribeModel)
	pipeline := worker.NewPipeline(downloader, transcriber, artifacts)

	d := dispatcher.New(jobStore, pipeline.Run, dispatcher.Options{
		MaxActiveJobs: cfg.MaxActiveJobs,
	})

	// surface jobs interrupted by a previous shutdown, resuming is the
	// caller's call
	d.LogIncomplete(ctx)

	handlers := &httpapi.Handlers{
		Dispatcher: d,
		Store:      jobStore,
		Config:     cfg,
	}
	r := server.NewRouter(handlers)

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  90 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	<-ch
	slog.Info("shutting down")

	shCtx, shCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shCancel()
	_ = srv.Shutdown(shCtx)
	cancel()
}
