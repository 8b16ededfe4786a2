package edge

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httplog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/imgedge/imgedge/pkg/monitoring"
)

// Handler returns router serving viewer requests
func (d *Distribution) Handler() http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	if d.cfg.Server.AccessLog {
		router.Use(httplog.RequestLogger(httplog.NewLogger(d.cfg.Distribution.Name, httplog.Options{JSON: true})))
	}
	router.Use(middleware.Recoverer)
	router.Handle("/*", d)

	return router
}

// InternalHandler returns router with metrics, health check and plan of distribution
func (d *Distribution) InternalHandler(gatherer prometheus.Gatherer) http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(200)
		w.Write([]byte("ok"))
	})
	router.Get("/plan", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(d.Plan()); err != nil {
			monitoring.Log().Error("Distribution/plan encode error", zap.Error(err))
		}
	})

	return router
}
