package order_api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ms-delivery/internal/auth"
	"ms-delivery/internal/logger"
	"ms-delivery/internal/models"
)

// NewRouter wires the public probes and the authenticated order API.
func NewRouter(h *Handler, sse *SSEHandler, verifier auth.TokenVerifier, log *logger.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(log))

	// --- Public Routes ---
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	// --- Protected Routes ---
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(verifier, log))

		r.Route("/api", func(r chi.Router) {
			r.Route("/orders", func(r chi.Router) {
				r.Post("/", h.PlaceOrder)
				r.With(auth.RequireRole(models.RoleAdmin, models.RoleCourier)).Get("/", h.ListOrders)
				r.Get("/stream", sse.HandleOrderChanges)

				r.Route("/{orderId}", func(r chi.Router) {
					r.Get("/", h.GetOrder)
					r.With(auth.RequireRole(models.RoleAdmin)).Put("/status", h.SetStatus)

					r.Group(func(r chi.Router) {
						r.Use(auth.RequireRole(models.RoleCourier))
						r.Post("/claim", h.Claim)
						r.Post("/arrived", h.MarkArrived)
						r.Post("/complete", h.CompleteDelivery)
					})
				})
			})

			r.Get("/store-info", h.GetStoreInfo)
			r.With(auth.RequireRole(models.RoleAdmin)).Put("/store-info", h.UpdateStoreInfo)
		})
	})

	return r
}

func requestLogger(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.LogAPI(r.Method, r.URL.Path, fmt.Sprintf("%d", ww.Status()), time.Since(start).String())
		})
	}
}
