package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	httpSwagger "github.com/swaggo/http-swagger/v2"

	_ "github.com/zhanzhaozzz/newsradar/docs"
	"github.com/zhanzhaozzz/newsradar/internal/handler/http/auth"
	hhttp "github.com/zhanzhaozzz/newsradar/internal/handler/http"
	"github.com/zhanzhaozzz/newsradar/internal/llm"
	"github.com/zhanzhaozzz/newsradar/internal/observability/tracing"
)

// startMetricsServer starts the ambient health/metrics HTTP surface on the
// configured port. It runs in a background goroutine and shuts down
// gracefully when ctx is canceled.
//
// Routes:
//   - GET /metrics    - Prometheus scrape endpoint (bearer-protected when JWT_SECRET is set)
//   - GET /health     - content store connectivity check
//   - GET /ready      - readiness probe
//   - GET /live       - liveness probe
//   - GET /health/ai  - chat client circuit breaker state
//   - GET /swagger/   - swagger UI describing this surface
func startMetricsServer(ctx context.Context, logger *slog.Logger, db *sql.DB, chatClient llm.Client) *http.Server {
	port := getMetricsPort()

	mux := http.NewServeMux()
	mux.Handle("/metrics", auth.RequireBearer(hhttp.MetricsHandler()))
	mux.Handle("/health", hhttp.MetricsMiddleware(&hhttp.HealthHandler{DB: db, Version: "1.0.0"}))
	mux.Handle("/ready", hhttp.MetricsMiddleware(&hhttp.ReadyHandler{DB: db}))
	mux.Handle("/live", hhttp.MetricsMiddleware(&hhttp.LiveHandler{}))
	mux.HandleFunc("/health/ai", hhttp.NewAIHealthHandler(chatClient).Health)
	mux.Handle("/swagger/", httpSwagger.WrapHandler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      tracing.Middleware(mux),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("metrics server starting", slog.Int("port", port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", slog.Any("error", err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownMetricsServer(server, logger)
	}()

	return server
}

// shutdownMetricsServer gracefully stops server within 5 seconds.
func shutdownMetricsServer(server *http.Server, logger *slog.Logger) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown error", slog.Any("error", err))
	} else {
		logger.Info("metrics server stopped")
	}
}

// getMetricsPort retrieves the metrics server port from environment variable.
// Defaults to 9090 if not set or invalid.
func getMetricsPort() int {
	portStr := os.Getenv("METRICS_PORT")
	if portStr == "" {
		return 9090
	}

	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return 9090
	}

	return port
}
