package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/scm/internal/health"
)

const shutdownTimeout = 5 * time.Second

// newAdminMux собирает /metrics, /healthz, /livez и /readyz.
func newAdminMux(gatherer prometheus.Gatherer, healthHandler *health.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", health.LivenessHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)
	return mux
}

// StartAdminServer запускает HTTP-обработчики метрик и health в фоне до отмены ctx.
// Пустой addr отключает сервер, тогда возвращается nil.
func StartAdminServer(ctx context.Context, addr string, deps *Dependencies) *http.Server {
	if addr == "" || deps == nil {
		return nil
	}
	logger := deps.Logger.WithField("layer", "admin-http")

	srv := &http.Server{
		Addr:              addr,
		Handler:           newAdminMux(deps.Registry, deps.Health),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/livez, %s/readyz", addr, addr, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("admin server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("admin server shutdown with error")
	}
}
