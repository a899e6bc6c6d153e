package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/lysyi3m/announcer/app/api"
	"github.com/lysyi3m/announcer/app/cfg"
	"github.com/lysyi3m/announcer/app/database"
	"github.com/lysyi3m/announcer/app/dispatch"
	"github.com/lysyi3m/announcer/app/instance"
	"github.com/lysyi3m/announcer/app/message"
	"github.com/lysyi3m/announcer/app/source"
	"github.com/lysyi3m/announcer/app/tasks"
)

func main() {
	appConfig, err := cfg.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if appConfig == nil {
		// Help was shown
		return
	}

	logLevel := slog.LevelInfo
	if appConfig.Debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))

	slog.Info("Starting Announcer", "version", appConfig.Version)

	db, err := database.NewConnection(appConfig.DBPath)
	if err != nil {
		slog.Error("Failed to open database", "path", appConfig.DBPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	version, dirty, err := database.RunMigrations(db)
	if err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("Database ready", "path", appConfig.DBPath, "schema_version", version, "dirty", dirty)

	instanceRepo := database.NewInstanceStore(db)
	ledger := database.NewLedger(db)

	configCache := instance.NewConfigCache(appConfig.InstancesDir)
	if err := configCache.Run(); err != nil {
		slog.Error("Failed to load instance configurations", "dir", appConfig.InstancesDir, "error", err)
		os.Exit(1)
	}
	slog.Info("Instance configurations loaded", "count", configCache.GetConfigCount())

	providerClient := &http.Client{Timeout: appConfig.ProviderTimeout}

	// Each provider gets its own request budget.
	var sources tasks.Sources
	uploadLimiter := rate.NewLimiter(rate.Limit(appConfig.ProviderRate), 1)
	switch appConfig.YouTubeSource {
	case cfg.YouTubeSourceAtom:
		sources.Uploads = source.NewAtomFeed(source.DefaultAtomFeedURL, providerClient, uploadLimiter, appConfig.UserAgent)
	default:
		sources.Uploads = source.NewScraperFeed(appConfig.YouTubeScraperURL, providerClient, uploadLimiter, appConfig.UserAgent)
	}
	slog.Info("YouTube upload source configured", "source", appConfig.YouTubeSource)

	if appConfig.TwitchEnabled() {
		limiter := rate.NewLimiter(rate.Limit(appConfig.ProviderRate), 1)
		streams, err := source.NewTwitchStreams(appConfig.TwitchClientID, appConfig.TwitchAccessToken, providerClient, limiter)
		if err != nil {
			slog.Error("Failed to create Twitch client", "error", err)
			os.Exit(1)
		}
		sources.Streams = streams
	} else {
		slog.Warn("Twitch credentials not set, live stream checks disabled")
	}

	discord := dispatch.NewDiscord(&http.Client{}, appConfig.UserAgent, appConfig.DiscordSendTimeout)
	validator := message.NewValidator()

	announcer := tasks.NewAnnouncer(instanceRepo, ledger, sources, validator, discord)
	checker := tasks.NewChecker(announcer, instanceRepo, appConfig.WorkerCount, appConfig.CycleTimeout)

	scheduler, err := tasks.NewScheduler(checker, configCache, instanceRepo, appConfig.Schedule, appConfig.RunOnStart)
	if err != nil {
		slog.Error("Failed to create scheduler", "error", err)
		os.Exit(1)
	}
	scheduler.Start()
	defer scheduler.Stop()
	slog.Info("Scheduler started", "schedule", appConfig.Schedule, "workers", appConfig.WorkerCount)

	apiHandler := api.NewHandler(configCache, instanceRepo, ledger, announcer, validator, scheduler)
	server := api.NewServer(apiHandler, appConfig.APIAccessKey, appConfig.Version)

	// The write timeout covers a synchronous check cycle triggered over the API.
	httpServer := &http.Server{
		Addr:         ":" + appConfig.Port,
		Handler:      server,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: appConfig.CycleTimeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "port", appConfig.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig.String())
	case err := <-serverErrChan:
		slog.Error("Server error", "error", err)
	}

	slog.Info("Shutting down server gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server stopped")
	}

	slog.Info("Announcer shutdown complete", "delivery_failures", discord.Failures())
}
