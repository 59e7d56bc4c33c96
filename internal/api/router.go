package api

import (
	"net/http"

	"github.com/Rrens/practice-chat/internal/api/handler"
	customMiddleware "github.com/Rrens/practice-chat/internal/api/middleware"
	"github.com/Rrens/practice-chat/internal/config"
	"github.com/Rrens/practice-chat/internal/llm"
	"github.com/Rrens/practice-chat/internal/llm/anthropic"
	"github.com/Rrens/practice-chat/internal/llm/deepseek"
	"github.com/Rrens/practice-chat/internal/llm/gemini"
	"github.com/Rrens/practice-chat/internal/llm/ollama"
	"github.com/Rrens/practice-chat/internal/llm/openai"
	"github.com/Rrens/practice-chat/internal/metrics"
	"github.com/Rrens/practice-chat/internal/repository/redis"
	"github.com/Rrens/practice-chat/internal/security"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"
)

// Dependencies are the wired components the router serves
type Dependencies struct {
	ChatService handler.ChatService
	LLMRouter   *llm.Router
	Store       handler.Pinger
	// Redis is nil when Redis is disabled
	Redis   *redis.Client
	Metrics *metrics.Metrics
}

// NewLLMRouter registers every configured completion provider
func NewLLMRouter(cfg config.LLMConfig) *llm.Router {
	llmRouter := llm.NewRouter(cfg.DefaultProvider)

	log.Info().Msgf("Initializing LLM providers. Default: %s", cfg.DefaultProvider)

	if cfg.OpenAI.APIKey != "" {
		llmRouter.RegisterProvider(openai.NewProvider(cfg.OpenAI.APIKey, cfg.OpenAI.Model, cfg.OpenAI.BaseURL))
	}
	if cfg.Anthropic.APIKey != "" {
		llmRouter.RegisterProvider(anthropic.NewProvider(cfg.Anthropic.APIKey, cfg.Anthropic.Model))
	}
	if cfg.DeepSeek.APIKey != "" {
		llmRouter.RegisterProvider(deepseek.NewProvider(cfg.DeepSeek.APIKey, cfg.DeepSeek.Model))
	}
	if cfg.Gemini.APIKey != "" {
		llmRouter.RegisterProvider(gemini.NewProvider(cfg.Gemini))
	}
	if cfg.Ollama.Host != "" {
		log.Info().Str("host", cfg.Ollama.Host).Msg("Registering Ollama provider")
		llmRouter.RegisterProvider(ollama.NewProvider(cfg.Ollama.Host, cfg.Ollama.DefaultModel))
	}

	if len(llmRouter.ListProviders()) == 0 {
		log.Warn().Msg("No LLM provider configured, chat requests will fail")
	}

	return llmRouter
}

// NewRouter creates and configures the HTTP router
func NewRouter(cfg *config.Config, deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(customMiddleware.Logger)
	if deps.Metrics != nil {
		r.Use(customMiddleware.Metrics(deps.Metrics))
	}
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.Server.MiddlewareTimeout))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-ID", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	jwtManager := security.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL)
	authMiddleware := customMiddleware.NewAuthMiddleware(jwtManager, cfg.Auth.Required)

	var rateLimiter *redis.RateLimiter
	if deps.Redis != nil {
		rateLimiter = redis.NewRateLimiter(
			deps.Redis,
			cfg.Security.RateLimit.RequestsPerMinute,
			cfg.Security.RateLimit.Burst,
		)
	}
	rateLimitMiddleware := customMiddleware.NewRateLimitMiddleware(rateLimiter)

	chatHandler := handler.NewChatHandler(deps.ChatService)

	var cache handler.Pinger
	if deps.Redis != nil {
		cache = deps.Redis
	}

	if deps.Metrics != nil && cfg.Metrics.Enabled {
		r.Handle(cfg.Metrics.Path, deps.Metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		// Health check
		r.Get("/health", handler.HealthCheck)
		r.Get("/ready", handler.ReadyCheck(deps.Store, cache))

		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Authenticate)
			r.Use(rateLimitMiddleware.Limit)

			r.Get("/llm-providers", handler.ListLLMProviders(deps.LLMRouter))

			r.Route("/chat", func(r chi.Router) {
				r.Get("/models", chatHandler.ListModels)
				r.Post("/", chatHandler.Chat)

				r.Get("/preferences/{userID}", chatHandler.GetPreferences)
				r.Post("/preferences", chatHandler.UpdatePreferences)

				r.Get("/history/{userID}", chatHandler.History)

				r.Get("/session/{sessionID}", chatHandler.GetSession)
				r.Delete("/session/{sessionID}", chatHandler.DeleteSession)

				r.Post("/cleanup", chatHandler.Cleanup)
			})
		})
	})

	return r
}
