package routers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/Agate-DB/Carnelia-Collab/internal/api"
	"github.com/Agate-DB/Carnelia-Collab/internal/metrics"
	"github.com/Agate-DB/Carnelia-Collab/internal/server"
	"github.com/Agate-DB/Carnelia-Collab/internal/session"
	"github.com/Agate-DB/Carnelia-Collab/internal/utils"
)

func New(log *utils.Logger, relay *server.Relay, hub *session.Hub) http.Handler {
	h := api.NewHandlers(log, relay, hub)

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
	)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}))

	r.Get("/api/v1/healthz", h.Health)
	r.Get("/api/v1/rooms/{room}/docs/{doc}", h.GetDocument)
	r.Get("/ws", h.CollabWS)
	r.Handle("/metrics", metrics.Handler())

	return r
}
