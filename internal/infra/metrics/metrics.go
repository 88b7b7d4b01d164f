package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 15, 20, 25, 30},
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})

	LLMGenerationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "llm_generation_duration_seconds",
		Help:    "Длительность генерации ответа LLM",
		Buckets: prometheus.DefBuckets,
	}, []string{"model"})

	LLMTokensTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "llm_tokens_total",
		Help: "Количество токенов, использованных LLM",
	}, []string{"model", "type"})

	GenerateRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "generate_requests_total",
		Help: "Запросы на генерацию по типу и исходу",
	}, []string{"type", "outcome"})

	GenerateAttemptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "generate_attempts_total",
		Help: "Попытки обращения к модели по типу",
	}, []string{"type"})

	SuggestionCacheHits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "suggestion_cache_total",
		Help: "Попадания и промахи кэша предложений тем",
	}, []string{"status"})

	RateLimitRejections = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rate_limit_rejections_total",
		Help: "Отказы по лимиту генераций",
	})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		NetworkRequestDuration,
		NetworkRequestTotal,
		LLMGenerationDuration,
		LLMTokensTotal,
		GenerateRequestsTotal,
		GenerateAttemptsTotal,
		SuggestionCacheHits,
		RateLimitRejections,
	)
}

// StartServer запускает HTTP сервер с эндпоинтом /metrics.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	shutdownCtx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-ctx.Done():
		case <-shutdownCtx.Done():
		}
		shutdownTimeout, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer timeoutCancel()
		if err := srv.Shutdown(shutdownTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
		cancel()
	}()
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// ObserveLLMGeneration записывает длительность и токены генерации LLM.
func ObserveLLMGeneration(model string, duration time.Duration, inputTokens, outputTokens int) {
	if model == "" {
		model = "unknown"
	}
	LLMGenerationDuration.WithLabelValues(model).Observe(duration.Seconds())
	if inputTokens > 0 {
		LLMTokensTotal.WithLabelValues(model, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		LLMTokensTotal.WithLabelValues(model, "output").Add(float64(outputTokens))
	}
	if total := inputTokens + outputTokens; total > 0 {
		LLMTokensTotal.WithLabelValues(model, "total").Add(float64(total))
	}
}

// IncGenerateRequest увеличивает счётчик запросов на генерацию.
func IncGenerateRequest(genType, outcome string) {
	GenerateRequestsTotal.WithLabelValues(genType, outcome).Inc()
}

// IncGenerateAttempt увеличивает счётчик попыток обращения к модели.
func IncGenerateAttempt(genType string) {
	GenerateAttemptsTotal.WithLabelValues(genType).Inc()
}

// IncSuggestionCache фиксирует попадание или промах кэша предложений.
func IncSuggestionCache(hit bool) {
	status := "miss"
	if hit {
		status = "hit"
	}
	SuggestionCacheHits.WithLabelValues(status).Inc()
}
