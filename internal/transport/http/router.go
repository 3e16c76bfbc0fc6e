package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"live-quiz-service/internal/metrics"
)

// NewRouter mounts the REST API, the room feed, health and metrics endpoints.
func NewRouter(h *Handler, ws *WSHandler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(requestLogger(h.logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID", UserHeader},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", metrics.Handler())

	r.Get("/ws/rooms/{id}", ws.ServeWS)

	r.Route("/rooms", func(rm chi.Router) {
		rm.Get("/code/{code}", h.GetRoomByCode)
		rm.With(requireUser).Post("/", h.CreateRoom)
		rm.With(requireUser).Post("/join", h.JoinByCode)

		rm.Route("/{id}", func(rr chi.Router) {
			rr.Get("/", h.GetRoom)
			rr.Get("/leaderboard", h.QuestionLeaderboard)
			rr.Get("/leaderboard/final", h.FinalLeaderboard)
			rr.Get("/questions/{index}/distribution", h.ResponseDistribution)

			rr.Group(func(pr chi.Router) {
				pr.Use(requireUser)
				pr.Delete("/", h.DeleteRoom)
				pr.Post("/join", h.JoinRoom)
				pr.Post("/leave", h.LeaveRoom)
				pr.Post("/start", h.StartRoom)
				pr.Post("/advance", h.AdvanceRoom)
				pr.Post("/end", h.EndRoom)
				pr.Post("/answers", h.SubmitAnswer)
			})
		})
	})

	return r
}
