package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Rrens/practice-chat/internal/api"
	"github.com/Rrens/practice-chat/internal/config"
	"github.com/Rrens/practice-chat/internal/domain"
	"github.com/Rrens/practice-chat/internal/logger"
	"github.com/Rrens/practice-chat/internal/metrics"
	"github.com/Rrens/practice-chat/internal/repository/redis"
	"github.com/Rrens/practice-chat/internal/scheduler"
	"github.com/Rrens/practice-chat/internal/service"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Load .env file - try multiple locations
	envPaths := []string{".env", "../.env", "../../.env"}
	envLoaded := ""
	for _, p := range envPaths {
		if err := godotenv.Load(p); err == nil {
			envLoaded = p
			break
		}
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	logCloser, err := logger.Setup(cfg.Logging, os.Getenv("ENV"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	defer logCloser.Close()

	if envLoaded != "" {
		log.Debug().Str("path", envLoaded).Msg("Loaded .env")
	}

	if err := run(cfg); err != nil {
		log.Error().Err(err).Msg("Server exited with error")
		logCloser.Close()
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().
		Str("host", cfg.Server.Host).
		Int("port", cfg.Server.Port).
		Str("driver", cfg.Database.Driver).
		Msg("Starting chat API server")

	// Initialize store
	st, err := openStore(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to open %s store: %w", cfg.Database.Driver, err)
	}
	defer st.close()

	// Initialize Redis. The service keeps working without it.
	var (
		redisClient *redis.Client
		locker      scheduler.Locker
		preferences domain.PreferenceRepository = st.preferences
	)
	if cfg.Redis.Enabled {
		redisClient, err = redis.NewClient(cfg.Redis)
		if err != nil {
			log.Warn().Err(err).Msg("Redis unavailable, running without cache, rate limit and sweep lock")
			redisClient = nil
		} else {
			defer redisClient.Close()
			preferences = redis.NewPreferenceCache(redisClient, st.preferences)
			locker = redis.NewLocker(redisClient)
		}
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	llmRouter := api.NewLLMRouter(cfg.LLM)
	chatService := service.NewChatService(st.sessions, preferences, llmRouter, cfg.Chat, m)

	router := api.NewRouter(cfg, api.Dependencies{
		ChatService: chatService,
		LLMRouter:   llmRouter,
		Store:       st.sessions,
		Redis:       redisClient,
		Metrics:     m,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Msgf("Server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
			return err
		}
		return nil
	})

	if cfg.Cleanup.Enabled {
		cleanup := scheduler.NewCleanupScheduler(chatService, cfg.Cleanup, locker, m)
		g.Go(func() error {
			return cleanup.Run(gctx)
		})
	}

	err = g.Wait()
	log.Info().Msg("Server stopped")
	return err
}
