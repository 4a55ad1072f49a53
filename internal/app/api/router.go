package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	slogchi "github.com/samber/slog-chi"
)

func (api *API) NewRouter() *chi.Mux {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(slogchi.New(api.logger))

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	router.Use(middleware.StripSlashes)

	router.Use(middleware.Recoverer)

	router.Handle("/metrics", promhttp.HandlerFor(api.metrics, promhttp.HandlerOpts{Registry: api.metrics}))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	timeout := api.cfg.Timeout
	if timeout == 0 {
		timeout = 5 * time.Minute // local inference on first model load is slow
	}

	router.Route("/api", func(router chi.Router) {
		router.Group(func(router chi.Router) {
			router.Use(middleware.Timeout(timeout))

			router.Post("/generate", api.generate)
			router.Get("/generations", api.generations)

			router.Post("/voices", api.enrollVoice)
			router.Get("/voices", api.listVoices)
			router.Delete("/voices/{id}", api.removeVoice)

			router.Get("/settings", api.getSettings)
			router.Put("/settings", api.updateSettings)

			router.Get("/server", api.serverStatus)
			router.Post("/server/install", api.serverInstall)
			router.Post("/server/restart", api.serverRestart)
		})

		// the install stream stays open as long as the install runs
		router.Get("/ws/install", api.installWS)
	})

	router.Handle("/outputs/*", http.StripPrefix("/outputs/", http.FileServer(http.Dir(api.outputDir))))

	return router
}
