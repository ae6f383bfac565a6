package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/salesledger/pkg/logger"
)

const serverShutdownTimeout = 5 * time.Second

// Handler serves the /metrics and /health/live endpoints of a worker process.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return r
}

// Serve runs Handler on :port until ctx is done. An empty port disables it
// and Serve just waits for ctx.
func Serve(ctx context.Context, port string, gatherer prometheus.Gatherer, logg *logger.Logger) error {
	if port == "" {
		<-ctx.Done()
		return nil
	}
	srv := &http.Server{
		Addr:              net.JoinHostPort("", port),
		Handler:           Handler(gatherer),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	logg.Info(logg.WithField(ctx, "metrics_addr", srv.Addr), "metrics server listening")

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), serverShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
