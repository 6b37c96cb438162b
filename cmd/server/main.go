package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"scribe/internal/artifact"
	"scribe/internal/audiocache"
	"scribe/internal/cleanup"
	"scribe/internal/config"
	"scribe/internal/downloader"
	"scribe/internal/httpapi"
	"scribe/internal/jobqueue"
	"scribe/internal/orchestrator"
	"scribe/internal/push"
	"scribe/internal/shownotes"
	"scribe/internal/store"
	"scribe/internal/tagconfig"
	"scribe/internal/transcriber"
)

func main() {
	jsonHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	slog.SetDefault(slog.New(jsonHandler))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if err := os.MkdirAll(config.DataDir, 0o755); err != nil {
		slog.Error("failed to create data dir", "error", err)
		os.Exit(1)
	}
	if err := os.MkdirAll(config.ConfigDir, 0o755); err != nil {
		slog.Error("failed to create config dir", "error", err)
		os.Exit(1)
	}

	st, err := store.Open(filepath.Join(config.DataDir, "scribe.db"))
	if err != nil {
		slog.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	artifacts := artifact.New(config.DataDir)
	cache := audiocache.New(config.DataDir)
	dl := downloader.New(cache, config.MaxAudioSizeBytes, config.DownloadTimeout, config.YtDlpPath)
	tc := transcriber.New(config.TranscriberURL, config.TranscriberPoll)

	healthCtx, healthCancel := context.WithTimeout(ctx, 5*time.Second)
	if err := tc.HealthCheck(healthCtx); err != nil {
		slog.Warn("transcriber health check failed at startup, continuing anyway", "error", err)
	}
	healthCancel()

	hub := push.NewHub(st.GetTranscription)
	hubDone := make(chan struct{})
	go hub.Run(hubDone)
	defer close(hubDone)

	queue, err := jobqueue.New(ctx, fmt.Sprintf("%s:%d", config.RedisHost, config.RedisPort), "", 0)
	if err != nil {
		slog.Error("failed to connect to job queue", "error", err)
		os.Exit(1)
	}
	defer queue.Close()

	orch := orchestrator.New(st, artifacts, cache, dl, tc, hub, queue, shownotes.New(), orchestrator.Options{
		DownloadTimeout:   config.DownloadTimeout,
		TranscribeTimeout: config.TranscriberTimeout,
		AudioCacheDays:    config.AudioCacheDays,
		MaxAudioBytes:     config.MaxAudioSizeBytes,
	})

	sweeper := cleanup.New(st, cache, config.CleanupInterval, config.FailedRetainWindow)
	sweeperDone := make(chan struct{})
	go sweeper.Run(ctx, sweeperDone)
	defer close(sweeperDone)

	tagStore, err := tagconfig.New(config.ConfigDir)
	if err != nil {
		slog.Error("failed to load tag config store", "error", err)
		os.Exit(1)
	}
	tagWatchDone := make(chan struct{})
	if err := tagStore.Watch(tagWatchDone); err != nil {
		slog.Error("failed to watch tag config dir", "error", err)
		os.Exit(1)
	}
	defer close(tagWatchDone)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	httpapi.SetupRoutes(r, httpapi.Deps{
		Store:        st,
		Artifacts:    artifacts,
		Orchestrator: orch,
		Hub:          hub,
		TagConfig:    tagStore,
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%s", config.Host, config.Port),
		Handler: r,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("http server failed to start", "error", err)
			cancel()
		}
	}()

	slog.Info("scribe frontend service started", "addr", srv.Addr)

	select {
	case sig := <-sigChan:
		slog.Info("received shutdown signal", "signal", sig)
	case <-ctx.Done():
		slog.Info("context cancelled")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	} else {
		slog.Info("server exited gracefully")
	}
}
