package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"educel/internal/adapters/generator"
	"educel/internal/adapters/httpapi"
	"educel/internal/adapters/repo"
	"educel/internal/domain"
	"educel/internal/infra/anthropic"
	"educel/internal/infra/config"
	"educel/internal/infra/db"
	infrahttp "educel/internal/infra/http"
	"educel/internal/infra/log"
	"educel/internal/infra/metrics"
	"educel/internal/infra/ratelimit"
	"educel/internal/usecase/discovery"
	"educel/internal/usecase/generation"
	"educel/internal/usecase/library"
)

func main() {
	cfg := config.Load()
	logger := log.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), cfg.MetricsAddr)

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: нет подключения к БД")
	}
	defer pool.Close()
	store := repo.NewPostgres(pool)

	var limiter domain.RateLimiter
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()
		limiter = ratelimit.NewRedis(redisClient, "generate", cfg.Limits.GeneratePerHour, time.Hour)
		logger.Info().Str("addr", cfg.RedisAddr).Msg("api: лимиты генерации считаются в Redis")
	} else {
		memory := ratelimit.NewMemory(cfg.Limits.GeneratePerHour, time.Hour)
		defer memory.Close()
		limiter = memory
		logger.Warn().Msg("api: лимиты генерации считаются в памяти процесса, не для нескольких инстансов")
	}

	anthropicClient := anthropic.NewClient(cfg.Anthropic.APIKey, cfg.Anthropic.BaseURL, cfg.Anthropic.Timeout)
	claude := generator.NewClaude(anthropicClient, cfg.Anthropic.Model)
	if !claude.HasCredentials() {
		logger.Warn().Msg("api: ключ Anthropic не задан, генерация будет отвечать ошибкой")
	}

	discoverySvc := discovery.NewService(store.Events(), store.Recos(),
		logger.With().Str("component", "discovery").Logger())
	generationSvc := generation.NewService(claude, limiter, store.Recos(), store.Events(), store.LearnItems(),
		discoverySvc, logger.With().Str("component", "generation").Logger())
	librarySvc := library.NewService(store.LearnItems(), store.LessonPlans(), store.SavedItems(),
		store.Prefs(), store.Events(), logger.With().Str("component", "library").Logger())

	handler := httpapi.NewHandler(generationSvc, librarySvc,
		logger.With().Str("component", "api").Logger(), cfg.Limits.LearnItemsMax)

	server := infrahttp.NewServer(logger.With().Str("component", "http").Logger())
	server.Router.Group(func(protected chi.Router) {
		protected.Use(infrahttp.AuthMiddleware(cfg.Auth.JWTSecret))
		protected.Route("/api", handler.Routes)
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(fmt.Sprintf(":%d", cfg.Port))
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("api: сервер остановился с ошибкой")
		}
	case <-ctx.Done():
		logger.Info().Msg("api: получен сигнал остановки")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("api: остановка сервера не удалась")
	}
}
